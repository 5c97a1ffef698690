package stream

import "encoding/json"

// Wire encoders for the producing side of the protocol. The server emits
// exactly the payloads decodeEvent consumes.

// EncodeMetadata renders the metadata payload.
func EncodeMetadata(m *Metadata) ([]byte, error) {
	columns := m.Columns
	if columns == nil {
		columns = []string{}
	}
	rows := m.Rows
	if rows == nil {
		rows = []map[string]any{}
	}
	return json.Marshal(struct {
		Type         string           `json:"type"`
		Columns      []string         `json:"columns"`
		Data         []map[string]any `json:"data"`
		GeneratedSQL string           `json:"generated_sql"`
		TableUsed    string           `json:"table_used"`
		VizType      string           `json:"viz_type"`
		RowCount     int              `json:"row_count"`
		ChatID       *int64           `json:"chat_id,omitempty"`
	}{"metadata", columns, rows, m.GeneratedSQL, m.TableUsed, m.VizType, m.RowCount, m.ChatID})
}

// EncodeToken renders one answer fragment.
func EncodeToken(content string) ([]byte, error) {
	return json.Marshal(struct {
		Type    string `json:"type"`
		Content string `json:"content"`
	}{"token", content})
}

// EncodeDone renders the terminal success payload.
func EncodeDone(elapsedSeconds float64) ([]byte, error) {
	return json.Marshal(struct {
		Type    string  `json:"type"`
		Elapsed float64 `json:"elapsed"`
	}{"done", elapsedSeconds})
}

// EncodeError renders the terminal failure payload.
func EncodeError(message string) ([]byte, error) {
	return json.Marshal(struct {
		Error string `json:"error"`
	}{message})
}
