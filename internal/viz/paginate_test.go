package viz

import "testing"

func makeRows(n int) []map[string]any {
	rows := make([]map[string]any, 0, n)
	for i := range n {
		rows = append(rows, map[string]any{"n": i + 1})
	}
	return rows
}

func TestView(t *testing.T) {
	rows := makeRows(95)

	t.Run("first page", func(t *testing.T) {
		v := View(rows, 20, 1)
		if v.TotalPages != 5 {
			t.Errorf("TotalPages = %d, want 5", v.TotalPages)
		}
		if len(v.Rows) != 20 {
			t.Errorf("len(Rows) = %d, want 20", len(v.Rows))
		}
		if v.Rows[0]["n"] != 1 {
			t.Errorf("first row = %v, want 1", v.Rows[0]["n"])
		}
	})

	t.Run("last page is partial", func(t *testing.T) {
		v := View(rows, 20, 5)
		if len(v.Rows) != 15 {
			t.Errorf("len(Rows) = %d, want 15", len(v.Rows))
		}
		if v.Rows[0]["n"] != 81 {
			t.Errorf("first row = %v, want 81", v.Rows[0]["n"])
		}
	})

	t.Run("page beyond end clamps", func(t *testing.T) {
		v := View(rows, 20, 10)
		if v.Page != 5 {
			t.Errorf("Page = %d, want 5", v.Page)
		}
	})

	t.Run("page below start clamps", func(t *testing.T) {
		v := View(rows, 20, 0)
		if v.Page != 1 {
			t.Errorf("Page = %d, want 1", v.Page)
		}
	})

	t.Run("empty rows yield one empty page", func(t *testing.T) {
		v := View(nil, 20, 1)
		if v.TotalPages != 1 {
			t.Errorf("TotalPages = %d, want 1", v.TotalPages)
		}
		if len(v.Rows) != 0 {
			t.Errorf("len(Rows) = %d, want 0", len(v.Rows))
		}
	})
}

func TestPaginator(t *testing.T) {
	rows := makeRows(95)

	t.Run("previous at first page is a no-op", func(t *testing.T) {
		p := NewPaginator(rows, 20)
		p.Previous()
		if got := p.View().Page; got != 1 {
			t.Errorf("Page = %d, want 1", got)
		}
	})

	t.Run("next at last page is a no-op", func(t *testing.T) {
		p := NewPaginator(rows, 20)
		p.GoTo(5)
		p.Next()
		if got := p.View().Page; got != 5 {
			t.Errorf("Page = %d, want 5", got)
		}
	})

	t.Run("navigation never mutates rows", func(t *testing.T) {
		p := NewPaginator(rows, 20)
		p.Next()
		p.Next()
		p.GoTo(5)
		if rows[0]["n"] != 1 || rows[94]["n"] != 95 {
			t.Error("source rows were mutated by pagination")
		}
		if len(rows) != 95 {
			t.Errorf("len(rows) = %d, want 95", len(rows))
		}
	})

	t.Run("goto clamps both directions", func(t *testing.T) {
		p := NewPaginator(rows, 20)
		p.GoTo(99)
		if got := p.View().Page; got != 5 {
			t.Errorf("Page after GoTo(99) = %d, want 5", got)
		}
		p.GoTo(-3)
		if got := p.View().Page; got != 1 {
			t.Errorf("Page after GoTo(-3) = %d, want 1", got)
		}
	})
}

func TestRegistry(t *testing.T) {
	t.Run("register disposes previous under same key", func(t *testing.T) {
		r := NewRegistry()
		first := &fakeChart{}
		second := &fakeChart{}

		r.Register("msg-1", first)
		r.Register("msg-1", second)

		if !first.disposed {
			t.Error("previous chart was not disposed on re-registration")
		}
		if second.disposed {
			t.Error("new chart must not be disposed")
		}
		if r.Len() != 1 {
			t.Errorf("Len = %d, want 1", r.Len())
		}
	})

	t.Run("dispose removes entry", func(t *testing.T) {
		r := NewRegistry()
		c := &fakeChart{}
		r.Register("msg-1", c)
		r.Dispose("msg-1")

		if !c.disposed {
			t.Error("chart was not disposed")
		}
		if r.Get("msg-1") != nil {
			t.Error("entry still present after Dispose")
		}
	})

	t.Run("close disposes everything", func(t *testing.T) {
		r := NewRegistry()
		a := &fakeChart{}
		b := &fakeChart{}
		r.Register("a", a)
		r.Register("b", b)
		r.Close()

		if !a.disposed || !b.disposed {
			t.Error("Close left live charts behind")
		}
		if r.Len() != 0 {
			t.Errorf("Len = %d, want 0", r.Len())
		}
	})
}

type fakeChart struct {
	disposed bool
}

func (f *fakeChart) Dispose() { f.disposed = true }
