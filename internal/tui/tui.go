// Package tui is the Bubble Tea terminal interface for SheetSage: a chat
// loop over the answer service, with query results rendered inline as
// tables and charts before the streamed answer text.
package tui

import (
	"context"
	"errors"
	"strings"
	"time"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/spinner"
	"charm.land/bubbles/v2/textarea"
	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/sheetsage/sheetsage/internal/client"
	"github.com/sheetsage/sheetsage/internal/log"
	"github.com/sheetsage/sheetsage/internal/viz"
)

// State represents the TUI state machine.
type State int

// TUI state machine states.
const (
	StateInput     State = iota // Awaiting user input
	StateThinking               // Question sent, metadata not yet arrived
	StateStreaming              // Answer tokens arriving
)

// Memory bounds to prevent unbounded growth.
const (
	maxMessages = 100 // Maximum messages stored
	maxHistory  = 100 // Maximum prompt history entries
)

// streamTimeout bounds one question/answer exchange.
const streamTimeout = 5 * time.Minute

// Message role constants for display.
const (
	roleUser      = "user"
	roleAssistant = "assistant"
	roleSystem    = "system"
	roleError     = "error"
)

// Layout constants for viewport height calculation.
const (
	separatorLines = 2 // Above and below input
	helpLines      = 1
	promptLines    = 1
	minViewport    = 3
)

// Message is one conversation entry for display. Viz holds the rendered
// visualization block shown above assistant text, if the exchange had one.
type Message struct {
	Role string
	Text string
	Viz  string
}

// Model is the Bubble Tea model for the SheetSage terminal interface.
type Model struct {
	// Input (textarea for multi-line support, Shift+Enter for newline)
	input      textarea.Model
	history    []string
	historyIdx int
	histFile   *historyFile

	// State
	state     State
	lastCtrlC time.Time
	chatID    *int64
	datasetID *int64

	// Output
	spinner  spinner.Model
	answer   string // accumulated answer text of the in-flight exchange
	viewBuf  strings.Builder
	messages []Message

	// Visualization of the in-flight exchange, rendered when metadata
	// arrives and attached to the assistant message on completion.
	pendingViz   string
	pendingTable *resultTable
	registry     *viz.Registry

	// Last table on screen; the page keys act on it.
	activeTable    *resultTable
	activeTableIdx int // index into messages, -1 while streaming or none

	// Scrollable message viewport
	viewport viewport.Model

	// Help bar
	help help.Model
	keys keyMap

	// Stream management. Bubble Tea's event loop provides synchronization;
	// one union channel carries every stream event.
	streamCancel  context.CancelFunc
	streamEventCh <-chan streamEvent

	// Dependencies
	svc       *client.Client
	logger    log.Logger
	ctx       context.Context
	ctxCancel context.CancelFunc

	// Dimensions
	width  int
	height int

	styles   Styles
	markdown *markdownRenderer
}

// addMessage appends a message and enforces the maxMessages bound.
func (m *Model) addMessage(msg Message) {
	m.messages = append(m.messages, msg)
	if len(m.messages) > maxMessages {
		m.messages = m.messages[len(m.messages)-maxMessages:]
	}
}

// Options tune a new Model.
type Options struct {
	// ChatID resumes an existing chat instead of starting a new one.
	ChatID *int64
	// DatasetID pins questions to one dataset instead of letting the
	// service choose.
	DatasetID *int64
	// HistoryPath overrides the prompt history file location. Empty uses
	// the default under the user config directory.
	HistoryPath string
}

// New creates a Model over svc.
//
// ctx MUST be the same context passed to tea.WithContext() so cancellation
// behaves consistently.
func New(ctx context.Context, svc *client.Client, logger log.Logger, opts Options) (*Model, error) {
	if svc == nil {
		return nil, errors.New("tui.New: client is required")
	}
	if ctx == nil {
		return nil, errors.New("tui.New: ctx is required")
	}

	ctx, cancel := context.WithCancel(ctx)

	ta := textarea.New()
	ta.Placeholder = "Ask about your data..."
	ta.SetHeight(1)
	ta.SetWidth(120)
	ta.MaxWidth = 0
	ta.ShowLineNumbers = false

	cleanStyle := textarea.StyleState{
		Base:        lipgloss.NewStyle(),
		Text:        lipgloss.NewStyle(),
		Placeholder: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		Prompt:      lipgloss.NewStyle(),
	}
	ta.SetStyles(textarea.Styles{
		Focused: cleanStyle,
		Blurred: cleanStyle,
	})
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	vp := viewport.New(viewport.WithWidth(80), viewport.WithHeight(20))
	vp.MouseWheelEnabled = true
	vp.SoftWrap = true
	vp.KeyMap = viewport.KeyMap{} // keys are routed explicitly in handleKey

	histFile := newHistoryFile(opts.HistoryPath, logger)
	history := histFile.Load()
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}

	return &Model{
		svc:            svc,
		logger:         logger,
		activeTableIdx: -1,
		ctx:        ctx,
		ctxCancel:  cancel,
		chatID:     opts.ChatID,
		datasetID:  opts.DatasetID,
		input:      ta,
		spinner:    sp,
		viewport:   vp,
		help:       help.New(),
		keys:       newKeyMap(),
		styles:     DefaultStyles(),
		registry:   viz.NewRegistry(),
		history:    history,
		historyIdx: len(history),
		histFile:   histFile,
		markdown:   newMarkdownRenderer(80),
		width:      80,
	}, nil
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
		m.input.Focus(),
	)
}
