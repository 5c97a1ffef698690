// Package client is the HTTP client for the answer service. The TUI and the
// one-shot CLI commands go through it; answer streams come back as raw
// response bodies for the stream consumer to reassemble.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/sheetsage/sheetsage/internal/log"
)

// Client talks to one answer service instance.
type Client struct {
	baseURL string
	http    *http.Client
	logger  log.Logger
}

// New creates a client for the service at baseURL. The underlying HTTP
// client has no overall timeout; answer streams run as long as generation
// takes and are bounded by the caller's context instead.
func New(baseURL string, logger log.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		logger:  logger,
	}
}

// AskRequest is one question for the service.
type AskRequest struct {
	Question  string `json:"question"`
	DatasetID *int64 `json:"dataset_id,omitempty"`
	ChatID    *int64 `json:"chat_id,omitempty"`
}

// Ask posts a question and returns the open SSE response body. The caller
// owns the body and must close it; feed it to the stream session consumer.
func (c *Client) Ask(ctx context.Context, req AskRequest) (io.ReadCloser, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding ask request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/ask/stream", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building ask request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("asking: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, c.errorFrom(resp)
	}
	return resp.Body, nil
}

// Dataset is one uploaded dataset as the service reports it.
type Dataset struct {
	ID        int64     `json:"id"`
	TableName string    `json:"table_name"`
	FileName  string    `json:"file_name"`
	FileType  string    `json:"file_type"`
	Columns   []string  `json:"columns"`
	RowCount  int64     `json:"row_count"`
	CreatedAt time.Time `json:"created_at"`
}

// UploadProgress receives upload progress updates.
type UploadProgress func(percent int, status string)

// Upload sends one file to the service and follows the progress stream.
// progress may be nil.
func (c *Client) Upload(ctx context.Context, r io.Reader, filename string, progress UploadProgress) (*Dataset, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("building upload: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("reading upload file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finishing upload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/datasets", &body)
	if err != nil {
		return nil, fmt.Errorf("building upload request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("uploading: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, c.errorFrom(resp)
	}

	return followUploadStream(resp.Body, progress)
}

// followUploadStream reads the upload progress payloads until the terminal
// complete or error payload arrives.
func followUploadStream(r io.Reader, progress UploadProgress) (*Dataset, error) {
	type uploadPayload struct {
		Type    string   `json:"type"`
		Percent int      `json:"percent"`
		Status  string   `json:"status"`
		Dataset *Dataset `json:"dataset"`
		Error   string   `json:"error"`
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var p uploadPayload
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &p); err != nil {
			continue
		}
		switch {
		case p.Error != "":
			return nil, fmt.Errorf("upload failed: %s", p.Error)
		case p.Type == "complete" && p.Dataset != nil:
			return p.Dataset, nil
		case p.Type == "progress" && progress != nil:
			progress(p.Percent, p.Status)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading upload stream: %w", err)
	}
	return nil, fmt.Errorf("upload stream ended without a result")
}

// ListDatasets returns the uploaded datasets, newest first.
func (c *Client) ListDatasets(ctx context.Context) ([]Dataset, error) {
	var out struct {
		Datasets []Dataset `json:"datasets"`
	}
	if err := c.getJSON(ctx, "/api/datasets", &out); err != nil {
		return nil, err
	}
	return out.Datasets, nil
}

// DeleteDataset removes one dataset and its table.
func (c *Client) DeleteDataset(ctx context.Context, id int64) error {
	return c.delete(ctx, fmt.Sprintf("/api/datasets/%d", id))
}

// SyncDatasets reconciles the dataset catalog with the actual tables,
// returning the IDs the service removed.
func (c *Client) SyncDatasets(ctx context.Context) ([]int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/datasets/sync", nil)
	if err != nil {
		return nil, fmt.Errorf("building sync request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("syncing datasets: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, c.errorFrom(resp)
	}
	var out struct {
		Removed []int64 `json:"removed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding sync response: %w", err)
	}
	return out.Removed, nil
}

// Chat is one conversation as the service reports it.
type Chat struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	DatasetID    *int64    `json:"dataset_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int64     `json:"message_count"`
}

// Message is one chat turn as the service reports it.
type Message struct {
	ID        int64          `json:"id"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}

// ListChats returns the chats, most recently active first.
func (c *Client) ListChats(ctx context.Context) ([]Chat, error) {
	var out struct {
		Chats []Chat `json:"chats"`
	}
	if err := c.getJSON(ctx, "/api/chats", &out); err != nil {
		return nil, err
	}
	return out.Chats, nil
}

// Messages returns a chat's transcript, oldest first.
func (c *Client) Messages(ctx context.Context, chatID int64) ([]Message, error) {
	var out struct {
		Messages []Message `json:"messages"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("/api/chats/%d/messages", chatID), &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// DeleteChat removes one chat and its history.
func (c *Client) DeleteChat(ctx context.Context, id int64) error {
	return c.delete(ctx, fmt.Sprintf("/api/chats/%d", id))
}

// SetSystemPrompt stores a chat's custom instructions. An empty prompt
// clears them.
func (c *Client) SetSystemPrompt(ctx context.Context, id int64, prompt string) error {
	payload, err := json.Marshal(struct {
		SystemPrompt string `json:"system_prompt"`
	}{prompt})
	if err != nil {
		return fmt.Errorf("encoding system prompt: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch,
		fmt.Sprintf("%s/api/chats/%d/system-prompt", c.baseURL, id), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("setting system prompt: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return c.errorFrom(resp)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return c.errorFrom(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

func (c *Client) delete(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("DELETE %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return c.errorFrom(resp)
	}
	return nil
}

// errorFrom turns a non-2xx response into an error, preferring the service's
// JSON error envelope over the bare status.
func (c *Client) errorFrom(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var envelope struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != "" {
		if envelope.Message != "" {
			return fmt.Errorf("service error %d: %s", resp.StatusCode, envelope.Message)
		}
		return fmt.Errorf("service error %d: %s", resp.StatusCode, envelope.Error)
	}
	return fmt.Errorf("service error %d", resp.StatusCode)
}
