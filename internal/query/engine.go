package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sheetsage/sheetsage/internal/llm"
	"github.com/sheetsage/sheetsage/internal/stream"
)

// noDatasetMessage is the service error when nothing has been uploaded yet.
const noDatasetMessage = "No dataset uploaded. Please upload a CSV or Excel file first."

// Dataset is one queryable table as the catalog reports it.
type Dataset struct {
	ID        int64
	TableName string
	Columns   []string
}

// Catalog lists the uploaded datasets.
type Catalog interface {
	ListDatasets(ctx context.Context) ([]Dataset, error)
}

// ExchangeMeta is the per-answer metadata persisted with a chat message.
type ExchangeMeta struct {
	GeneratedSQL string
	TableUsed    string
	VizType      string
	Columns      []string
	Rows         []map[string]any
	RowCount     int
}

// Recorder persists chats and their messages. Nil disables persistence.
type Recorder interface {
	// EnsureChat resolves the chat for this exchange, creating one titled
	// after the question when chatID is nil.
	EnsureChat(ctx context.Context, chatID *int64, datasetID *int64, question string) (int64, error)

	// AddExchange appends the question and answer to the chat.
	AddExchange(ctx context.Context, chatID int64, question, answer string, meta ExchangeMeta) error

	// SystemPrompt returns the chat's custom instructions, empty when unset.
	SystemPrompt(ctx context.Context, chatID int64) (string, error)
}

// PriorResult is a previously returned result set. Follow-up requests like
// "show that as a pie chart" re-render it without running a new query.
type PriorResult struct {
	Question string
	VizType  string
	Columns  []string
	Rows     []map[string]any
}

// HistoryStore provides conversation context for follow-up questions.
// Nil disables history.
type HistoryStore interface {
	// FormatForPrompt renders the prior exchanges of a chat for prompt
	// inclusion. Empty string when there is no history.
	FormatForPrompt(ctx context.Context, chatID int64) string

	// Append records a completed exchange.
	Append(ctx context.Context, chatID int64, question, answer string, meta ExchangeMeta) error

	// LastResult returns the most recent exchange that carried result rows,
	// nil when there is none.
	LastResult(ctx context.Context, chatID int64) (*PriorResult, error)
}

// Emitter receives the events of one answer stream, in protocol order:
// metadata, then tokens, then done. Error may replace any of them.
type Emitter interface {
	Metadata(m *stream.Metadata) error
	Token(token string) error
	Done(elapsedSeconds float64) error
	Error(message string) error
}

// AskRequest is one natural-language question against the datasets.
type AskRequest struct {
	Question  string
	DatasetID *int64
	ChatID    *int64
}

// Engine runs the ask pipeline: table selection, SQL generation and
// validation, execution, visualization detection, and the streamed answer.
type Engine struct {
	pool     *pgxpool.Pool
	gen      llm.Generator
	catalog  Catalog
	recorder Recorder
	history  HistoryStore
	logger   *slog.Logger
}

// NewEngine wires the pipeline. recorder and history may be nil.
func NewEngine(pool *pgxpool.Pool, gen llm.Generator, catalog Catalog, recorder Recorder, history HistoryStore, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		pool:     pool,
		gen:      gen,
		catalog:  catalog,
		recorder: recorder,
		history:  history,
		logger:   logger,
	}
}

// Ask answers one question, emitting protocol events as it goes. Pipeline
// failures surface as an emitted error event, not as a returned error; the
// returned error reports emit failures only (a gone client).
func (e *Engine) Ask(ctx context.Context, req AskRequest, emit Emitter) error {
	start := time.Now()
	e.logger.Info("received question", "question", req.Question, "dataset_id", req.DatasetID, "chat_id", req.ChatID)

	datasets, err := e.catalog.ListDatasets(ctx)
	if err != nil {
		e.logger.Error("listing datasets failed", "error", err)
		return emit.Error("Failed to list datasets. Please try again.")
	}
	if len(datasets) == 0 {
		return emit.Error(noDatasetMessage)
	}

	chatID := req.ChatID
	if e.recorder != nil {
		id, err := e.recorder.EnsureChat(ctx, req.ChatID, req.DatasetID, req.Question)
		if err != nil {
			e.logger.Error("ensuring chat failed", "error", err)
		} else {
			chatID = &id
		}
	}

	var systemPrompt string
	if e.recorder != nil && chatID != nil {
		sp, err := e.recorder.SystemPrompt(ctx, *chatID)
		if err != nil {
			e.logger.Warn("loading system prompt failed", "chat_id", *chatID, "error", err)
		} else {
			systemPrompt = sp
		}
	}

	if e.history != nil && chatID != nil {
		if hint, ok := VizChangeRequest(req.Question); ok {
			handled, err := e.rerenderLast(ctx, req.Question, *chatID, hint, emit, start)
			if handled || err != nil {
				return err
			}
		}
	}

	table, err := e.selectTable(ctx, req.Question, datasets, req.DatasetID)
	if err != nil {
		return emit.Error(err.Error())
	}

	info, err := GetTableInfo(ctx, e.pool, table)
	if err != nil {
		e.logger.Error("table inspection failed", "table", table, "error", err)
		return emit.Error(fmt.Sprintf("Failed to inspect table %q.", table))
	}

	var historyText string
	if e.history != nil && chatID != nil {
		historyText = e.history.FormatForPrompt(ctx, *chatID)
	}

	response, err := e.gen.Generate(ctx, BuildSQLPrompt(req.Question, table, info, historyText, systemPrompt))
	if err != nil {
		e.logger.Error("sql generation failed", "error", err)
		return emit.Error("Failed to generate a query for this question.")
	}

	sql, err := ValidateSQL(response)
	if err != nil {
		e.logger.Warn("generated sql rejected", "error", err, "response", response)
		return emit.Error(err.Error())
	}

	columns, rows, err := RunSQL(ctx, e.pool, sql)
	if err != nil {
		e.logger.Error("query execution failed", "sql", sql, "error", err)
		return emit.Error(err.Error())
	}

	vizType := DetectVizType(req.Question, columns, rows)
	e.logger.Info("query executed", "table", table, "rows", len(rows), "viz_type", vizType)

	meta := &stream.Metadata{
		Columns:      columns,
		Rows:         rows,
		GeneratedSQL: sql,
		TableUsed:    table,
		VizType:      vizType,
		RowCount:     len(rows),
		ChatID:       chatID,
	}
	if err := emit.Metadata(meta); err != nil {
		return err
	}

	answer, err := e.gen.GenerateStream(ctx, BuildAnswerPrompt(req.Question, rows, systemPrompt), emit.Token)
	if err != nil {
		e.logger.Error("answer generation failed", "error", err)
		return emit.Error("Failed to generate an answer.")
	}

	e.record(ctx, chatID, req.Question, answer, ExchangeMeta{
		GeneratedSQL: sql,
		TableUsed:    table,
		VizType:      vizType,
		Columns:      columns,
		Rows:         rows,
		RowCount:     len(rows),
	})

	elapsed := time.Since(start).Seconds()
	e.logger.Info("question answered", "elapsed", elapsed, "chat_id", chatID)
	return emit.Done(elapsed)
}

// rerenderLast answers a visualization change request from the chat's last
// stored result instead of generating new SQL. Returns handled=false when no
// prior result exists, in which case the normal pipeline runs.
func (e *Engine) rerenderLast(ctx context.Context, question string, chatID int64, hint string, emit Emitter, start time.Time) (handled bool, err error) {
	prior, err := e.history.LastResult(ctx, chatID)
	if err != nil {
		e.logger.Warn("loading last result failed", "chat_id", chatID, "error", err)
		return false, nil
	}
	if prior == nil || len(prior.Rows) == 0 {
		return false, nil
	}

	e.logger.Info("re-rendering previous result", "chat_id", chatID, "viz_type", hint, "rows", len(prior.Rows))
	meta := &stream.Metadata{
		Columns:  prior.Columns,
		Rows:     prior.Rows,
		VizType:  hint,
		RowCount: len(prior.Rows),
		ChatID:   &chatID,
	}
	if err := emit.Metadata(meta); err != nil {
		return true, err
	}

	answer := fmt.Sprintf("Here is the previous result as a %s.", describeViz(hint))
	if err := emit.Token(answer); err != nil {
		return true, err
	}

	e.record(ctx, &chatID, question, answer, ExchangeMeta{
		VizType:  hint,
		Columns:  prior.Columns,
		Rows:     prior.Rows,
		RowCount: len(prior.Rows),
	})
	return true, emit.Done(time.Since(start).Seconds())
}

// record persists the exchange. Persistence failures are logged, never
// surfaced: the answer already streamed.
func (e *Engine) record(ctx context.Context, chatID *int64, question, answer string, meta ExchangeMeta) {
	if chatID == nil {
		return
	}
	if e.recorder != nil {
		if err := e.recorder.AddExchange(ctx, *chatID, question, answer, meta); err != nil {
			e.logger.Error("recording exchange failed", "chat_id", *chatID, "error", err)
		}
	}
	if e.history != nil {
		if err := e.history.Append(ctx, *chatID, question, answer, meta); err != nil {
			e.logger.Error("appending history failed", "chat_id", *chatID, "error", err)
		}
	}
}

// selectTable resolves which table answers the question: the named dataset,
// the only dataset, or the model's pick over the catalog.
func (e *Engine) selectTable(ctx context.Context, question string, datasets []Dataset, datasetID *int64) (string, error) {
	if datasetID != nil {
		for _, d := range datasets {
			if d.ID == *datasetID {
				return d.TableName, nil
			}
		}
		return "", fmt.Errorf("dataset with ID %d not found", *datasetID)
	}

	if len(datasets) == 1 {
		return datasets[0].TableName, nil
	}

	choices := make([]TableChoice, len(datasets))
	for i, d := range datasets {
		choices[i] = TableChoice{TableName: d.TableName, Columns: d.Columns}
	}

	response, err := e.gen.Generate(ctx, BuildSchemaPrompt(question, choices))
	if err != nil {
		e.logger.Error("schema selection failed, using first dataset", "error", err)
		return datasets[0].TableName, nil
	}
	table, err := ParseSchemaChoice(response)
	if err != nil {
		e.logger.Error("schema choice unparseable, using first dataset", "error", err)
		return datasets[0].TableName, nil
	}
	// The model must pick from the catalog, not invent a table.
	for _, d := range datasets {
		if d.TableName == table {
			return table, nil
		}
	}
	e.logger.Warn("schema choice not in catalog, using first dataset", "choice", table)
	return datasets[0].TableName, nil
}
