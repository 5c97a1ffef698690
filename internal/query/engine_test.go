package query

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sheetsage/sheetsage/internal/log"
	"github.com/sheetsage/sheetsage/internal/stream"
)

// fakeGenerator returns canned responses in order.
type fakeGenerator struct {
	responses []string
	calls     int
	err       error
}

func (f *fakeGenerator) Generate(_ context.Context, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.calls >= len(f.responses) {
		return "", errors.New("no more canned responses")
	}
	r := f.responses[f.calls]
	f.calls++
	return r, nil
}

func (f *fakeGenerator) GenerateStream(ctx context.Context, prompt string, onToken func(string) error) (string, error) {
	full, err := f.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	if err := onToken(full); err != nil {
		return "", err
	}
	return full, nil
}

type fakeCatalog struct {
	datasets []Dataset
	err      error
}

func (f *fakeCatalog) ListDatasets(context.Context) ([]Dataset, error) {
	return f.datasets, f.err
}

type recordedExchange struct {
	chatID   int64
	question string
	answer   string
	meta     ExchangeMeta
}

// fakeRecorder persists nothing; it hands out a fixed chat ID and captures
// exchanges.
type fakeRecorder struct {
	chatID    int64
	system    string
	exchanges []recordedExchange
}

func (f *fakeRecorder) EnsureChat(_ context.Context, chatID *int64, _ *int64, _ string) (int64, error) {
	if chatID != nil {
		return *chatID, nil
	}
	return f.chatID, nil
}

func (f *fakeRecorder) AddExchange(_ context.Context, chatID int64, question, answer string, meta ExchangeMeta) error {
	f.exchanges = append(f.exchanges, recordedExchange{chatID, question, answer, meta})
	return nil
}

func (f *fakeRecorder) SystemPrompt(context.Context, int64) (string, error) {
	return f.system, nil
}

type fakeHistory struct {
	prior    *PriorResult
	appended []recordedExchange
}

func (f *fakeHistory) FormatForPrompt(context.Context, int64) string { return "" }

func (f *fakeHistory) Append(_ context.Context, chatID int64, question, answer string, meta ExchangeMeta) error {
	f.appended = append(f.appended, recordedExchange{chatID, question, answer, meta})
	return nil
}

func (f *fakeHistory) LastResult(context.Context, int64) (*PriorResult, error) {
	return f.prior, nil
}

// captureEmitter records emitted events.
type captureEmitter struct {
	meta   *stream.Metadata
	tokens []string
	done   bool
	errMsg string
}

func (c *captureEmitter) Metadata(m *stream.Metadata) error { c.meta = m; return nil }
func (c *captureEmitter) Token(tok string) error            { c.tokens = append(c.tokens, tok); return nil }
func (c *captureEmitter) Done(float64) error                { c.done = true; return nil }
func (c *captureEmitter) Error(msg string) error            { c.errMsg = msg; return nil }

func TestAskWithoutDatasets(t *testing.T) {
	engine := NewEngine(nil, &fakeGenerator{}, &fakeCatalog{}, nil, nil, log.NewNop())
	emit := &captureEmitter{}

	if err := engine.Ask(context.Background(), AskRequest{Question: "total sales"}, emit); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if emit.errMsg != noDatasetMessage {
		t.Errorf("error = %q, want the no-dataset message", emit.errMsg)
	}
	if emit.meta != nil || emit.done {
		t.Error("no other events expected after the error")
	}
}

func TestAskCatalogFailure(t *testing.T) {
	engine := NewEngine(nil, &fakeGenerator{}, &fakeCatalog{err: errors.New("db down")}, nil, nil, log.NewNop())
	emit := &captureEmitter{}

	if err := engine.Ask(context.Background(), AskRequest{Question: "q"}, emit); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if emit.errMsg == "" {
		t.Fatal("expected an emitted error")
	}
	if strings.Contains(emit.errMsg, "db down") {
		t.Error("internal error detail leaked to the client")
	}
}

func TestAskUnknownDatasetID(t *testing.T) {
	catalog := &fakeCatalog{datasets: []Dataset{{ID: 1, TableName: "ds_abc"}}}
	engine := NewEngine(nil, &fakeGenerator{}, catalog, nil, nil, log.NewNop())
	emit := &captureEmitter{}

	missing := int64(99)
	if err := engine.Ask(context.Background(), AskRequest{Question: "q", DatasetID: &missing}, emit); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !strings.Contains(emit.errMsg, "99") {
		t.Errorf("error = %q, want mention of the missing ID", emit.errMsg)
	}
}

func TestAskRerendersPreviousResult(t *testing.T) {
	rows := []map[string]any{
		{"region": "North", "sales": 100.0},
		{"region": "South", "sales": 60.0},
	}
	hist := &fakeHistory{prior: &PriorResult{
		Question: "sales by region",
		VizType:  stream.VizBar,
		Columns:  []string{"region", "sales"},
		Rows:     rows,
	}}
	rec := &fakeRecorder{chatID: 7}
	gen := &fakeGenerator{}
	catalog := &fakeCatalog{datasets: []Dataset{{ID: 1, TableName: "ds_sales", Columns: []string{"region", "sales"}}}}
	engine := NewEngine(nil, gen, catalog, rec, hist, log.NewNop())
	emit := &captureEmitter{}

	id := int64(7)
	if err := engine.Ask(context.Background(), AskRequest{Question: "show that as a pie chart", ChatID: &id}, emit); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if emit.errMsg != "" {
		t.Fatalf("emitted error %q", emit.errMsg)
	}
	if emit.meta == nil {
		t.Fatal("no metadata emitted")
	}
	if emit.meta.VizType != stream.VizPie {
		t.Errorf("viz type = %q, want pie", emit.meta.VizType)
	}
	if len(emit.meta.Rows) != 2 || emit.meta.RowCount != 2 {
		t.Errorf("metadata rows = %d (count %d), want the stored result", len(emit.meta.Rows), emit.meta.RowCount)
	}
	if gen.calls != 0 {
		t.Errorf("model called %d times, want 0 for a re-render", gen.calls)
	}
	if !emit.done {
		t.Error("done not emitted")
	}
	if len(emit.tokens) == 0 || !strings.Contains(strings.Join(emit.tokens, ""), "pie chart") {
		t.Errorf("answer tokens = %v, want a pie chart note", emit.tokens)
	}
	if len(rec.exchanges) != 1 || rec.exchanges[0].meta.VizType != stream.VizPie {
		t.Errorf("recorded exchanges = %+v, want one with the new viz type", rec.exchanges)
	}
	if len(hist.appended) != 1 {
		t.Errorf("history entries = %d, want 1", len(hist.appended))
	}
}

func TestRerenderWithoutStoredResult(t *testing.T) {
	engine := NewEngine(nil, &fakeGenerator{}, nil, nil, &fakeHistory{}, log.NewNop())
	emit := &captureEmitter{}

	handled, err := engine.rerenderLast(context.Background(), "show that as a pie chart", 1, stream.VizPie, emit, time.Now())
	if err != nil {
		t.Fatalf("rerenderLast: %v", err)
	}
	if handled {
		t.Error("handled without a stored result, want fall-through to the pipeline")
	}
	if emit.meta != nil || emit.done || len(emit.tokens) != 0 {
		t.Error("events emitted without a stored result")
	}
}

func TestSelectTable(t *testing.T) {
	datasets := []Dataset{
		{ID: 1, TableName: "ds_sales", Columns: []string{"region", "sales"}},
		{ID: 2, TableName: "ds_hr", Columns: []string{"employee", "salary"}},
	}

	t.Run("explicit dataset id", func(t *testing.T) {
		engine := NewEngine(nil, &fakeGenerator{}, nil, nil, nil, log.NewNop())
		id := int64(2)
		table, err := engine.selectTable(context.Background(), "q", datasets, &id)
		if err != nil {
			t.Fatalf("selectTable: %v", err)
		}
		if table != "ds_hr" {
			t.Errorf("table = %q, want ds_hr", table)
		}
	})

	t.Run("single dataset auto-selected without model call", func(t *testing.T) {
		gen := &fakeGenerator{}
		engine := NewEngine(nil, gen, nil, nil, nil, log.NewNop())
		table, err := engine.selectTable(context.Background(), "q", datasets[:1], nil)
		if err != nil {
			t.Fatalf("selectTable: %v", err)
		}
		if table != "ds_sales" {
			t.Errorf("table = %q, want ds_sales", table)
		}
		if gen.calls != 0 {
			t.Errorf("model called %d times, want 0", gen.calls)
		}
	})

	t.Run("model picks among several", func(t *testing.T) {
		gen := &fakeGenerator{responses: []string{"```json\n{\"table_name\": \"ds_hr\"}\n```"}}
		engine := NewEngine(nil, gen, nil, nil, nil, log.NewNop())
		table, err := engine.selectTable(context.Background(), "average salary", datasets, nil)
		if err != nil {
			t.Fatalf("selectTable: %v", err)
		}
		if table != "ds_hr" {
			t.Errorf("table = %q, want ds_hr", table)
		}
	})

	t.Run("model failure falls back to first", func(t *testing.T) {
		gen := &fakeGenerator{err: errors.New("quota")}
		engine := NewEngine(nil, gen, nil, nil, nil, log.NewNop())
		table, err := engine.selectTable(context.Background(), "q", datasets, nil)
		if err != nil {
			t.Fatalf("selectTable: %v", err)
		}
		if table != "ds_sales" {
			t.Errorf("table = %q, want first dataset", table)
		}
	})

	t.Run("hallucinated table falls back to first", func(t *testing.T) {
		gen := &fakeGenerator{responses: []string{`{"table_name": "ds_invented"}`}}
		engine := NewEngine(nil, gen, nil, nil, nil, log.NewNop())
		table, err := engine.selectTable(context.Background(), "q", datasets, nil)
		if err != nil {
			t.Fatalf("selectTable: %v", err)
		}
		if table != "ds_sales" {
			t.Errorf("table = %q, want first dataset", table)
		}
	})
}

func TestParseSchemaChoice(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"plain json", `{"table_name": "ds_a"}`, "ds_a", false},
		{"fenced json", "```json\n{\"table_name\": \"ds_a\"}\n```", "ds_a", false},
		{"missing field", `{}`, "", true},
		{"not json", "the best table is ds_a", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSchemaChoice(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSchemaChoice: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
