package query

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	// queryTimeout bounds a single generated query, server side.
	queryTimeout = "10s"

	// maxRows caps result sets that carry no LIMIT of their own.
	maxRows = 1000
)

var (
	// ErrNotSelect indicates the generated statement is not a SELECT.
	ErrNotSelect = errors.New("only SELECT queries are allowed")

	// ErrForbiddenKeyword indicates a mutating keyword inside the statement.
	ErrForbiddenKeyword = errors.New("query contains forbidden keyword")

	// ErrMultipleStatements indicates more than one statement was generated.
	ErrMultipleStatements = errors.New("multiple statements are not allowed")

	// ErrQueryTimeout indicates the query exceeded the execution budget.
	ErrQueryTimeout = errors.New("query timed out")
)

var sqlFence = regexp.MustCompile("(?is)```(?:sql)?\\s*(.*?)\\s*```")

// ExtractSQL pulls the statement out of a fenced code block if the model
// wrapped it in one; otherwise the trimmed response is the statement.
func ExtractSQL(response string) string {
	if m := sqlFence.FindStringSubmatch(response); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(response)
}

// forbiddenKeywords are mutating statements the pipeline must never run.
var forbiddenKeywords = []string{"DROP", "DELETE", "UPDATE", "INSERT", "TRUNCATE", "ALTER", "CREATE", "GRANT", "REVOKE"}

var wordBoundary = func() map[string]*regexp.Regexp {
	m := make(map[string]*regexp.Regexp, len(forbiddenKeywords))
	for _, kw := range forbiddenKeywords {
		m[kw] = regexp.MustCompile(`(?i)\b` + kw + `\b`)
	}
	return m
}()

// ValidateSQL extracts and checks a generated statement. Only single SELECT
// statements (including WITH ... SELECT) pass; any mutating keyword anywhere
// in the statement rejects it, even inside a subquery.
func ValidateSQL(response string) (string, error) {
	sql := ExtractSQL(response)

	if strings.Contains(strings.TrimRight(sql, "; \t\n"), ";") {
		return "", ErrMultipleStatements
	}

	upper := strings.ToUpper(sql)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return "", fmt.Errorf("%w: got %.40q", ErrNotSelect, sql)
	}

	for _, kw := range forbiddenKeywords {
		if wordBoundary[kw].MatchString(sql) {
			return "", fmt.Errorf("%w: %s", ErrForbiddenKeyword, kw)
		}
	}

	return sql, nil
}

// RunSQL executes a validated statement and returns column names plus rows
// keyed by column. Statements without a LIMIT get one appended; a statement
// timeout is set on the connection so runaway queries die server side.
func RunSQL(ctx context.Context, pool *pgxpool.Pool, sql string) ([]string, []map[string]any, error) {
	if !strings.Contains(strings.ToUpper(sql), "LIMIT") {
		sql = fmt.Sprintf("%s LIMIT %d", strings.TrimRight(sql, "; \t\n"), maxRows)
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, fmt.Sprintf("SET statement_timeout = '%s'", queryTimeout)); err != nil {
		return nil, nil, fmt.Errorf("setting statement timeout: %w", err)
	}

	rows, err := conn.Query(ctx, sql)
	if err != nil {
		return nil, nil, execError(err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	var result []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, nil, fmt.Errorf("reading row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, execError(err)
	}

	return columns, result, nil
}

func execError(err error) error {
	if strings.Contains(strings.ToLower(err.Error()), "statement timeout") {
		return fmt.Errorf("%w: try a simpler question", ErrQueryTimeout)
	}
	return fmt.Errorf("query execution failed: %w", err)
}
