//go:build integration
// +build integration

package chatstore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sheetsage/sheetsage/internal/query"
	"github.com/sheetsage/sheetsage/internal/testutil"
)

func TestStoreCreateAndGet(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store := New(db.Pool, testutil.DiscardLogger())
	ctx := context.Background()

	c, err := store.Create(ctx, "Quarterly revenue", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.ID == 0 {
		t.Fatal("Create returned zero ID")
	}
	if c.Title != "Quarterly revenue" {
		t.Errorf("Title = %q, want %q", c.Title, "Quarterly revenue")
	}
	if c.CreatedAt.IsZero() || c.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}

	got, err := store.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != c.ID || got.Title != c.Title {
		t.Errorf("Get = %+v, want id=%d title=%q", got, c.ID, c.Title)
	}
}

func TestStoreCreateDefaultTitle(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store := New(db.Pool, testutil.DiscardLogger())

	c, err := store.Create(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.Title != "New Chat" {
		t.Errorf("Title = %q, want %q", c.Title, "New Chat")
	}
}

func TestStoreGetNotFound(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store := New(db.Pool, testutil.DiscardLogger())

	if _, err := store.Get(context.Background(), 12345); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(12345) error = %v, want ErrNotFound", err)
	}
}

func TestStoreListOrdersByActivity(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store := New(db.Pool, testutil.DiscardLogger())
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 3; i++ {
		c, err := store.Create(ctx, fmt.Sprintf("Chat %d", i+1), nil)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		ids = append(ids, c.ID)
	}

	// A new message makes the oldest chat the most recently active.
	if _, err := store.AddMessage(ctx, ids[0], "user", "hello", nil); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}

	chats, err := store.List(ctx, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(chats) != 3 {
		t.Fatalf("List returned %d chats, want 3", len(chats))
	}
	if chats[0].ID != ids[0] {
		t.Errorf("most recent chat = %d, want %d", chats[0].ID, ids[0])
	}
	if chats[0].MessageCount != 1 {
		t.Errorf("MessageCount = %d, want 1", chats[0].MessageCount)
	}
}

func TestStoreDeleteCascadesMessages(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store := New(db.Pool, testutil.DiscardLogger())
	ctx := context.Background()

	c, err := store.Create(ctx, "doomed", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.AddMessage(ctx, c.ID, "user", "q", nil); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}

	if err := store.Delete(ctx, c.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete error = %v, want ErrNotFound", err)
	}

	var count int
	if err := db.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM messages WHERE chat_id = $1", c.ID).Scan(&count); err != nil {
		t.Fatalf("counting messages: %v", err)
	}
	if count != 0 {
		t.Errorf("messages left after delete: %d", count)
	}

	if err := store.Delete(ctx, c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete error = %v, want ErrNotFound", err)
	}
}

func TestStoreUpdateTitle(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store := New(db.Pool, testutil.DiscardLogger())
	ctx := context.Background()

	c, err := store.Create(ctx, "old", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.UpdateTitle(ctx, c.ID, "new title"); err != nil {
		t.Fatalf("UpdateTitle: %v", err)
	}
	got, err := store.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "new title" {
		t.Errorf("Title = %q, want %q", got.Title, "new title")
	}

	if err := store.UpdateTitle(ctx, 99999, "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateTitle(99999) error = %v, want ErrNotFound", err)
	}
}

func TestStoreSystemPrompt(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store := New(db.Pool, testutil.DiscardLogger())
	ctx := context.Background()

	c, err := store.Create(ctx, "prompted", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// A fresh chat has no custom instructions.
	sp, err := store.SystemPrompt(ctx, c.ID)
	if err != nil {
		t.Fatalf("SystemPrompt: %v", err)
	}
	if sp != "" {
		t.Errorf("SystemPrompt = %q, want empty", sp)
	}

	if err := store.UpdateSystemPrompt(ctx, c.ID, "Always answer in lakhs."); err != nil {
		t.Fatalf("UpdateSystemPrompt: %v", err)
	}
	sp, err = store.SystemPrompt(ctx, c.ID)
	if err != nil {
		t.Fatalf("SystemPrompt: %v", err)
	}
	if sp != "Always answer in lakhs." {
		t.Errorf("SystemPrompt = %q", sp)
	}

	got, err := store.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.SystemPrompt == nil || *got.SystemPrompt != "Always answer in lakhs." {
		t.Errorf("Get SystemPrompt = %v", got.SystemPrompt)
	}

	// An empty prompt clears the instructions.
	if err := store.UpdateSystemPrompt(ctx, c.ID, ""); err != nil {
		t.Fatalf("UpdateSystemPrompt clear: %v", err)
	}
	got, err = store.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.SystemPrompt != nil {
		t.Errorf("SystemPrompt after clear = %q, want nil", *got.SystemPrompt)
	}

	if err := store.UpdateSystemPrompt(ctx, 99999, "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateSystemPrompt(99999) error = %v, want ErrNotFound", err)
	}
}

func TestStoreMessageMetadataRoundTrip(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store := New(db.Pool, testutil.DiscardLogger())
	ctx := context.Background()

	c, err := store.Create(ctx, "meta", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	meta := map[string]any{
		"generated_sql": "SELECT region, SUM(sales) FROM ds_ab12cd34 GROUP BY region",
		"viz_type":      "bar",
		"row_count":     float64(4),
	}
	if _, err := store.AddMessage(ctx, c.ID, "assistant", "Here are the totals.", meta); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}

	msgs, err := store.Messages(ctx, c.ID, 0)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("Messages returned %d, want 1", len(msgs))
	}
	m := msgs[0]
	if m.Role != "assistant" {
		t.Errorf("Role = %q, want assistant", m.Role)
	}
	if m.Metadata["viz_type"] != "bar" {
		t.Errorf("Metadata viz_type = %v, want bar", m.Metadata["viz_type"])
	}
	if m.Metadata["row_count"] != float64(4) {
		t.Errorf("Metadata row_count = %v, want 4", m.Metadata["row_count"])
	}
}

func TestStoreRecorderFlow(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store := New(db.Pool, testutil.DiscardLogger())
	ctx := context.Background()

	question := "Which region had the highest sales in 2024 across all product categories combined?"

	chatID, err := store.EnsureChat(ctx, nil, nil, question)
	if err != nil {
		t.Fatalf("EnsureChat: %v", err)
	}
	c, err := store.Get(ctx, chatID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if want := question[:50] + "..."; c.Title != want {
		t.Errorf("Title = %q, want %q", c.Title, want)
	}

	// Passing the existing ID back must reuse the chat.
	again, err := store.EnsureChat(ctx, &chatID, nil, "followup")
	if err != nil {
		t.Fatalf("EnsureChat reuse: %v", err)
	}
	if again != chatID {
		t.Errorf("EnsureChat reuse = %d, want %d", again, chatID)
	}

	missing := int64(424242)
	if _, err := store.EnsureChat(ctx, &missing, nil, "q"); !errors.Is(err, ErrNotFound) {
		t.Errorf("EnsureChat(missing) error = %v, want ErrNotFound", err)
	}

	err = store.AddExchange(ctx, chatID, question, "North leads with ₹38.85 Cr.", query.ExchangeMeta{
		GeneratedSQL: "SELECT region, SUM(sales) AS total FROM ds_ab12cd34 GROUP BY region",
		TableUsed:    "ds_ab12cd34",
		VizType:      "bar",
		RowCount:     4,
	})
	if err != nil {
		t.Fatalf("AddExchange: %v", err)
	}

	msgs, err := store.Messages(ctx, chatID, 0)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("Messages returned %d, want 2", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[0].Content != question {
		t.Errorf("first message = %q %q", msgs[0].Role, msgs[0].Content)
	}
	if msgs[1].Role != "assistant" {
		t.Errorf("second message role = %q, want assistant", msgs[1].Role)
	}
	if msgs[1].Metadata["table_used"] != "ds_ab12cd34" {
		t.Errorf("assistant metadata table_used = %v", msgs[1].Metadata["table_used"])
	}
}
