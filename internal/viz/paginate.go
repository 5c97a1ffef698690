package viz

// PageView is one bounded window over a result set. Rows is a slice of the
// source, never a copy with mutations.
type PageView struct {
	Rows       []map[string]any
	PageSize   int
	Page       int
	TotalPages int
	TotalRows  int
}

// View computes the page-th window of pageSize rows. page is clamped to
// [1, totalPages]; an empty result set still has one (empty) page.
func View(rows []map[string]any, pageSize, page int) PageView {
	if pageSize < 1 {
		pageSize = 1
	}
	totalPages := (len(rows) + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	start := (page - 1) * pageSize
	end := min(start+pageSize, len(rows))
	if start > len(rows) {
		start = len(rows)
	}

	return PageView{
		Rows:       rows[start:end],
		PageSize:   pageSize,
		Page:       page,
		TotalPages: totalPages,
		TotalRows:  len(rows),
	}
}

// Paginator tracks the current page over an immutable result set.
// Navigation past either boundary is a no-op, not an error.
type Paginator struct {
	rows     []map[string]any
	pageSize int
	page     int
}

// NewPaginator starts at page 1.
func NewPaginator(rows []map[string]any, pageSize int) *Paginator {
	if pageSize < 1 {
		pageSize = 1
	}
	return &Paginator{rows: rows, pageSize: pageSize, page: 1}
}

// View returns the current page.
func (p *Paginator) View() PageView {
	return View(p.rows, p.pageSize, p.page)
}

// Next advances one page, stopping at the last.
func (p *Paginator) Next() {
	p.GoTo(p.page + 1)
}

// Previous steps back one page, stopping at the first.
func (p *Paginator) Previous() {
	p.GoTo(p.page - 1)
}

// GoTo jumps to page n, clamped to the valid range.
func (p *Paginator) GoTo(n int) {
	p.page = View(p.rows, p.pageSize, n).Page
}
