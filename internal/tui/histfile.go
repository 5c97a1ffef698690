package tui

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/sheetsage/sheetsage/internal/log"
)

// lockRetryDelay is how long one attempt at the history lock waits before
// giving up. Losing a prompt history line is acceptable; blocking the UI
// is not.
const lockRetryDelay = 200 * time.Millisecond

// historyFile persists the prompt history across sessions, one prompt per
// line. Concurrent TUI instances share it, so every access takes a file
// lock.
type historyFile struct {
	path   string
	logger log.Logger
}

func newHistoryFile(path string, logger log.Logger) *historyFile {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return &historyFile{logger: logger}
		}
		path = filepath.Join(home, ".sheetsage", "history")
	}
	return &historyFile{path: path, logger: logger}
}

// Load reads the stored prompts, oldest first. Failures degrade to an empty
// history.
func (h *historyFile) Load() []string {
	if h.path == "" {
		return nil
	}

	lock := flock.New(h.path + ".lock")
	locked, err := lock.TryRLock()
	if err != nil || !locked {
		time.Sleep(lockRetryDelay)
		if locked, err = lock.TryRLock(); err != nil || !locked {
			h.logger.Warn("prompt history locked, starting empty", "path", h.path)
			return nil
		}
	}
	defer func() { _ = lock.Unlock() }()

	data, err := os.ReadFile(h.path)
	if err != nil {
		return nil
	}

	var history []string
	for _, line := range strings.Split(string(data), "\n") {
		if line != "" {
			history = append(history, line)
		}
	}
	return history
}

// Append adds one prompt to the stored history. Multi-line prompts are
// flattened; persistence failures are logged and otherwise ignored.
func (h *historyFile) Append(prompt string) {
	if h.path == "" {
		return
	}
	prompt = strings.ReplaceAll(prompt, "\n", " ")

	lock := flock.New(h.path + ".lock")
	locked, err := lock.TryLock()
	if err != nil || !locked {
		time.Sleep(lockRetryDelay)
		if locked, err = lock.TryLock(); err != nil || !locked {
			h.logger.Warn("prompt history locked, entry dropped", "path", h.path)
			return
		}
	}
	defer func() { _ = lock.Unlock() }()

	if err := os.MkdirAll(filepath.Dir(h.path), 0o700); err != nil {
		h.logger.Warn("creating history directory failed", "error", err)
		return
	}
	f, err := os.OpenFile(h.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		h.logger.Warn("opening prompt history failed", "error", err)
		return
	}
	defer f.Close()

	if _, err := f.WriteString(prompt + "\n"); err != nil {
		h.logger.Warn("writing prompt history failed", "error", err)
	}
}
