// Package stream implements the answer-stream consumer: it reassembles
// discrete protocol events out of arbitrarily chunked bytes and drives the
// per-question session state machine that turns those events into renders.
package stream

import "encoding/json"

// EventType discriminates protocol events.
type EventType int

const (
	// EventMetadata carries the result set, generated SQL and viz hint.
	EventMetadata EventType = iota
	// EventToken carries one incremental fragment of the answer text.
	EventToken
	// EventDone terminates the stream successfully.
	EventDone
	// EventError terminates the stream with a service-reported failure.
	EventError
)

// Visualization hints carried by the metadata event.
const (
	VizBar         = "bar"
	VizLine        = "line"
	VizPie         = "pie"
	VizTable       = "table"
	VizSingleValue = "single_value"
	VizNone        = "none"
)

// Metadata is the single event carrying the full result of one question.
// Rows are immutable once received; downstream views (plans, pages) slice
// them but never mutate them.
type Metadata struct {
	Columns      []string
	Rows         []map[string]any
	GeneratedSQL string
	TableUsed    string
	VizType      string
	RowCount     int
	ChatID       *int64
}

// Event is a discriminated union: exactly the fields for Type are set.
type Event struct {
	Type     EventType
	Metadata *Metadata // EventMetadata
	Token    string    // EventToken
	Elapsed  float64   // EventDone, seconds
	Message  string    // EventError
}

// wirePayload mirrors the JSON envelope produced by the answer service.
// A bare "error" field (no "type") signals failure and wins over "type".
type wirePayload struct {
	Type         string           `json:"type"`
	Error        string           `json:"error"`
	Columns      []string         `json:"columns"`
	Data         []map[string]any `json:"data"`
	GeneratedSQL string           `json:"generated_sql"`
	TableUsed    string           `json:"table_used"`
	VizType      string           `json:"viz_type"`
	RowCount     int              `json:"row_count"`
	ChatID       *int64           `json:"chat_id"`
	Content      string           `json:"content"`
	Elapsed      float64          `json:"elapsed"`
}

// decodeEvent parses one payload. ok is false for malformed JSON (the bytes
// may simply not have fully arrived yet) and for unrecognized discriminators;
// both are skipped without error.
func decodeEvent(data []byte) (Event, bool) {
	var p wirePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return Event{}, false
	}

	if p.Error != "" {
		return Event{Type: EventError, Message: p.Error}, true
	}

	switch p.Type {
	case "metadata":
		return Event{Type: EventMetadata, Metadata: &Metadata{
			Columns:      p.Columns,
			Rows:         p.Data,
			GeneratedSQL: p.GeneratedSQL,
			TableUsed:    p.TableUsed,
			VizType:      p.VizType,
			RowCount:     p.RowCount,
			ChatID:       p.ChatID,
		}}, true
	case "token":
		return Event{Type: EventToken, Token: p.Content}, true
	case "done":
		return Event{Type: EventDone, Elapsed: p.Elapsed}, true
	default:
		return Event{}, false
	}
}
