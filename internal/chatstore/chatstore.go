// Package chatstore persists chats and their messages in PostgreSQL.
package chatstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sheetsage/sheetsage/internal/query"
)

// ErrNotFound indicates the chat does not exist.
var ErrNotFound = errors.New("chat not found")

// titleLimit is how much of the first question becomes the chat title.
const titleLimit = 50

// Chat is one conversation.
type Chat struct {
	ID           int64
	Title        string
	DatasetID    *int64
	SystemPrompt *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	MessageCount int64
}

// Message is one turn of a chat. Metadata carries the answer's result
// context (SQL, viz type, row count) as JSON.
type Message struct {
	ID        int64
	ChatID    int64
	Role      string
	Content   string
	Metadata  map[string]any
	CreatedAt time.Time
}

// Store persists chats and messages.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Store over pool.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// Create starts a new chat.
func (s *Store) Create(ctx context.Context, title string, datasetID *int64) (*Chat, error) {
	if title == "" {
		title = "New Chat"
	}
	var c Chat
	err := s.pool.QueryRow(ctx, `
		INSERT INTO chats (title, dataset_id)
		VALUES ($1, $2)
		RETURNING id, title, dataset_id, system_prompt, created_at, updated_at`,
		title, datasetID,
	).Scan(&c.ID, &c.Title, &c.DatasetID, &c.SystemPrompt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating chat: %w", err)
	}
	return &c, nil
}

// List returns chats with message counts, most recently active first.
func (s *Store) List(ctx context.Context, limit int) ([]Chat, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.title, c.dataset_id, c.created_at, c.updated_at,
		       COUNT(m.id) AS message_count
		FROM chats c
		LEFT JOIN messages m ON c.id = m.chat_id
		GROUP BY c.id
		ORDER BY c.updated_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing chats: %w", err)
	}
	defer rows.Close()

	var chats []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ID, &c.Title, &c.DatasetID, &c.CreatedAt, &c.UpdatedAt, &c.MessageCount); err != nil {
			return nil, fmt.Errorf("scanning chat: %w", err)
		}
		chats = append(chats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading chats: %w", err)
	}
	return chats, nil
}

// Get returns one chat by ID.
func (s *Store) Get(ctx context.Context, id int64) (*Chat, error) {
	var c Chat
	err := s.pool.QueryRow(ctx, `
		SELECT id, title, dataset_id, system_prompt, created_at, updated_at
		FROM chats WHERE id = $1`, id,
	).Scan(&c.ID, &c.Title, &c.DatasetID, &c.SystemPrompt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading chat %d: %w", id, err)
	}
	return &c, nil
}

// Delete removes a chat; its messages cascade.
func (s *Store) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM chats WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting chat %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	s.logger.Info("chat deleted", "chat_id", id)
	return nil
}

// UpdateTitle renames a chat.
func (s *Store) UpdateTitle(ctx context.Context, id int64, title string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE chats SET title = $1, updated_at = now() WHERE id = $2`, title, id)
	if err != nil {
		return fmt.Errorf("updating chat title: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateSystemPrompt sets a chat's custom instructions. An empty prompt
// clears them.
func (s *Store) UpdateSystemPrompt(ctx context.Context, id int64, prompt string) error {
	var value *string
	if prompt != "" {
		value = &prompt
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE chats SET system_prompt = $1, updated_at = now() WHERE id = $2`, value, id)
	if err != nil {
		return fmt.Errorf("updating chat system prompt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddMessage appends one message and bumps the chat's activity time.
func (s *Store) AddMessage(ctx context.Context, chatID int64, role, content string, metadata map[string]any) (*Message, error) {
	var encoded []byte
	if metadata != nil {
		var err error
		encoded, err = json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("encoding message metadata: %w", err)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	m := Message{ChatID: chatID, Role: role, Content: content, Metadata: metadata}
	err = tx.QueryRow(ctx, `
		INSERT INTO messages (chat_id, role, content, metadata)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		chatID, role, content, encoded,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	if _, err := tx.Exec(ctx, "UPDATE chats SET updated_at = now() WHERE id = $1", chatID); err != nil {
		return nil, fmt.Errorf("bumping chat activity: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing message: %w", err)
	}
	return &m, nil
}

// Messages returns a chat's messages, oldest first.
func (s *Store) Messages(ctx context.Context, chatID int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, chat_id, role, content, metadata, created_at
		FROM messages
		WHERE chat_id = $1
		ORDER BY created_at ASC
		LIMIT $2`, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		var encoded []byte
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &encoded, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		if len(encoded) > 0 {
			if err := json.Unmarshal(encoded, &m.Metadata); err != nil {
				return nil, fmt.Errorf("decoding message metadata: %w", err)
			}
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading messages: %w", err)
	}
	return messages, nil
}

// TitleFromQuestion derives a chat title from its first question.
func TitleFromQuestion(question string) string {
	if len(question) <= titleLimit {
		return question
	}
	return question[:titleLimit] + "..."
}

// EnsureChat implements query.Recorder: reuse the given chat or create one
// titled after the question.
func (s *Store) EnsureChat(ctx context.Context, chatID *int64, datasetID *int64, question string) (int64, error) {
	if chatID != nil {
		if _, err := s.Get(ctx, *chatID); err != nil {
			return 0, err
		}
		return *chatID, nil
	}
	c, err := s.Create(ctx, TitleFromQuestion(question), datasetID)
	if err != nil {
		return 0, err
	}
	return c.ID, nil
}

// SystemPrompt implements query.Recorder: the chat's custom instructions,
// empty when unset.
func (s *Store) SystemPrompt(ctx context.Context, chatID int64) (string, error) {
	c, err := s.Get(ctx, chatID)
	if err != nil {
		return "", err
	}
	if c.SystemPrompt == nil {
		return "", nil
	}
	return *c.SystemPrompt, nil
}

// AddExchange implements query.Recorder: the question as a user message,
// the answer with its result metadata as an assistant message.
func (s *Store) AddExchange(ctx context.Context, chatID int64, question, answer string, meta query.ExchangeMeta) error {
	if _, err := s.AddMessage(ctx, chatID, "user", question, nil); err != nil {
		return err
	}
	_, err := s.AddMessage(ctx, chatID, "assistant", answer, map[string]any{
		"generated_sql": meta.GeneratedSQL,
		"table_used":    meta.TableUsed,
		"viz_type":      meta.VizType,
		"row_count":     meta.RowCount,
	})
	return err
}
