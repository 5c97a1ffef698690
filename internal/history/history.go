// Package history keeps recent question/answer exchanges per chat in Redis
// so follow-up questions can reference earlier answers. Entries expire after
// thirty days of inactivity.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/redis/go-redis/v9"

	"github.com/sheetsage/sheetsage/internal/query"
)

const (
	// keyPrefix namespaces the conversation keys.
	keyPrefix = "sheetsage:conv:history:chat:"

	// conversationTTL is how long an idle conversation survives.
	conversationTTL = 30 * 24 * time.Hour

	// answerSummaryLimit truncates stored answers.
	answerSummaryLimit = 200

	// storedRowLimit caps the result rows kept per entry.
	storedRowLimit = 100
)

// Entry is one stored exchange. Result metadata rides along so a follow-up
// "show that as a pie chart" can re-render without re-querying.
type Entry struct {
	Question string           `json:"question"`
	Answer   string           `json:"answer"`
	VizType  string           `json:"viz_type,omitempty"`
	Columns  []string         `json:"columns,omitempty"`
	Data     []map[string]any `json:"data,omitempty"`
}

// Store is the Redis-backed conversation history.
type Store struct {
	client *redis.Client
	limit  int
	logger *slog.Logger
}

// New creates a Store keeping at most limit entries per chat.
func New(client *redis.Client, limit int, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{client: client, limit: limit, logger: logger}
}

// Ping verifies the Redis connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func key(chatID int64) string {
	return fmt.Sprintf("%s%d", keyPrefix, chatID)
}

// Get returns the stored entries for a chat, oldest first.
func (s *Store) Get(ctx context.Context, chatID int64) ([]Entry, error) {
	raw, err := s.client.Get(ctx, key(chatID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading history for chat %d: %w", chatID, err)
	}

	var entries []Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("decoding history for chat %d: %w", chatID, err)
	}
	return entries, nil
}

// Add appends one exchange, trimming to the limit and refreshing the TTL.
func (s *Store) Add(ctx context.Context, chatID int64, entry Entry) error {
	entry.Answer = truncate(entry.Answer, answerSummaryLimit)
	if len(entry.Data) > storedRowLimit {
		entry.Data = entry.Data[:storedRowLimit]
	}

	entries, err := s.Get(ctx, chatID)
	if err != nil {
		return err
	}
	entries = append(entries, entry)
	if len(entries) > s.limit {
		entries = entries[len(entries)-s.limit:]
	}

	encoded, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}
	if err := s.client.Set(ctx, key(chatID), encoded, conversationTTL).Err(); err != nil {
		return fmt.Errorf("storing history for chat %d: %w", chatID, err)
	}
	return nil
}

// Clear drops a chat's history.
func (s *Store) Clear(ctx context.Context, chatID int64) error {
	if err := s.client.Del(ctx, key(chatID)).Err(); err != nil {
		return fmt.Errorf("clearing history for chat %d: %w", chatID, err)
	}
	return nil
}

// LastResult implements query.HistoryStore: the most recent entry that
// carried result data, for follow-up visualization requests. Nil when there
// is none.
func (s *Store) LastResult(ctx context.Context, chatID int64) (*query.PriorResult, error) {
	entries, err := s.Get(ctx, chatID)
	if err != nil {
		return nil, err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if len(e.Data) > 0 && len(e.Columns) > 0 {
			return &query.PriorResult{
				Question: e.Question,
				VizType:  e.VizType,
				Columns:  e.Columns,
				Rows:     e.Data,
			}, nil
		}
	}
	return nil, nil
}

// FormatForPrompt implements query.HistoryStore: older exchanges as brief
// background, the latest in full as current context.
func (s *Store) FormatForPrompt(ctx context.Context, chatID int64) string {
	entries, err := s.Get(ctx, chatID)
	if err != nil {
		s.logger.Warn("history unavailable, continuing without context", "chat_id", chatID, "error", err)
		return ""
	}
	return FormatEntries(entries)
}

// FormatEntries renders entries for prompt inclusion.
func FormatEntries(entries []Entry) string {
	if len(entries) == 0 {
		return ""
	}

	current := entries[len(entries)-1]
	background := entries[:len(entries)-1]

	var out string
	if len(background) > 0 {
		out = "\nBACKGROUND CONTEXT (older conversation, for general reference only):\n"
		for i, e := range background {
			out += fmt.Sprintf("  %d. Q: %s\n     A: %s\n", i+1, truncate(e.Question, 80), truncate(e.Answer, 500))
		}
	}

	out += fmt.Sprintf(`
CURRENT CONTEXT (use this for follow-up questions like "the 9th one", "that customer", "more details"):
Q: %s
A: %s
`, current.Question, current.Answer)
	return out
}

// truncate caps s at n bytes, backing off to a rune boundary so the result
// stays valid UTF-8.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

// Append implements query.HistoryStore.
func (s *Store) Append(ctx context.Context, chatID int64, question, answer string, meta query.ExchangeMeta) error {
	return s.Add(ctx, chatID, Entry{
		Question: question,
		Answer:   answer,
		VizType:  meta.VizType,
		Columns:  meta.Columns,
		Data:     meta.Rows,
	})
}
