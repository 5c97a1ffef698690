package tui

import (
	"strings"
	"time"

	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"
)

// Slash command constants.
const (
	cmdHelp     = "/help"
	cmdClear    = "/clear"
	cmdExit     = "/exit"
	cmdQuit     = "/quit"
	cmdDatasets = "/datasets"
	cmdUpload   = "/upload"
)

// keyMap holds key bindings for the help bar.
type keyMap struct {
	Submit     key.Binding
	NewLine    key.Binding
	History    key.Binding
	Cancel     key.Binding
	Quit       key.Binding
	ScrollUp   key.Binding
	ScrollDown key.Binding
	EscCancel  key.Binding
	PagePrev   key.Binding
	PageNext   key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Submit:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
		NewLine:    key.NewBinding(key.WithKeys("shift+enter"), key.WithHelp("s+enter", "newline")),
		History:    key.NewBinding(key.WithKeys("up", "down"), key.WithHelp("↑/↓", "history")),
		Cancel:     key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "cancel")),
		Quit:       key.NewBinding(key.WithKeys("ctrl+d"), key.WithHelp("ctrl+d", "exit")),
		ScrollUp:   key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "scroll up")),
		ScrollDown: key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdn", "scroll down")),
		EscCancel:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		PagePrev:   key.NewBinding(key.WithKeys("["), key.WithHelp("[", "prev page")),
		PageNext:   key.NewBinding(key.WithKeys("]"), key.WithHelp("]", "next page")),
	}
}

//nolint:gocyclo // Keyboard handler requires branching for all key combinations
func (m *Model) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	k := msg.Key()

	if k.Mod&tea.ModCtrl != 0 {
		switch k.Code {
		case 'c':
			return m.handleCtrlC()
		case 'd':
			return m, m.cleanup()
		}
	}

	switch k.Code {
	case tea.KeyEnter:
		if m.state == StateInput {
			// Enter submits; Shift+Enter passes through as a newline.
			if k.Mod&tea.ModShift == 0 {
				return m.handleSubmit()
			}
		}

	case tea.KeyUp:
		if m.state == StateInput && m.input.Line() == 0 {
			return m.navigateHistory(-1)
		}

	case tea.KeyDown:
		if m.state == StateInput && m.input.Line() == m.input.LineCount()-1 {
			return m.navigateHistory(1)
		}

	case tea.KeyEscape:
		if m.state == StateStreaming || m.state == StateThinking {
			m.cancelStream()
			m.addMessage(Message{Role: roleSystem, Text: "(Canceled)"})
			m.rebuildViewportContent()
			return m, nil
		}

	case tea.KeyPgUp:
		m.viewport.PageUp()
		return m, nil

	case tea.KeyPgDown:
		m.viewport.PageDown()
		return m, nil

	case '[':
		if m.state == StateInput && m.flipTablePage(-1) {
			return m, nil
		}

	case ']':
		if m.state == StateInput && m.flipTablePage(1) {
			return m, nil
		}
	}

	// Pass everything else to the textarea. Typing stays available even
	// while an answer streams, so the next question can be prepared.
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// flipTablePage turns the active table's page and re-renders its message.
// Reports false when no table is on screen or the key should go to the
// textarea instead (text already typed).
func (m *Model) flipTablePage(delta int) bool {
	if m.activeTable == nil || m.input.Value() != "" {
		return false
	}
	if delta < 0 {
		m.activeTable.Previous()
	} else {
		m.activeTable.Next()
	}
	if m.activeTableIdx >= 0 && m.activeTableIdx < len(m.messages) {
		m.messages[m.activeTableIdx].Viz = m.activeTable.Render(m.styles)
	} else {
		m.pendingViz = m.activeTable.Render(m.styles)
	}
	m.rebuildViewportContent()
	return true
}

func (m *Model) handleCtrlC() (tea.Model, tea.Cmd) {
	now := time.Now()

	// Double Ctrl+C within 1 second quits.
	if now.Sub(m.lastCtrlC) < time.Second {
		return m, m.cleanup()
	}
	m.lastCtrlC = now

	switch m.state {
	case StateInput:
		m.input.Reset()
		return m, nil

	case StateThinking, StateStreaming:
		m.cancelStream()
		m.addMessage(Message{Role: roleSystem, Text: "(Canceled)"})
		m.rebuildViewportContent()
		return m, nil
	}

	return m, nil
}

func (m *Model) handleSubmit() (tea.Model, tea.Cmd) {
	question := strings.TrimSpace(m.input.Value())
	if question == "" {
		return m, nil
	}

	if strings.HasPrefix(question, "/") {
		return m.handleSlashCommand(question)
	}

	m.history = append(m.history, question)
	if len(m.history) > maxHistory {
		m.history = m.history[len(m.history)-maxHistory:]
	}
	m.historyIdx = len(m.history)
	m.histFile.Append(question)

	m.addMessage(Message{Role: roleUser, Text: question})
	m.input.Reset()
	m.state = StateThinking
	m.rebuildViewportContent()
	m.viewport.GotoBottom()

	return m, tea.Batch(
		m.spinner.Tick,
		m.startStream(question),
	)
}

func (m *Model) handleSlashCommand(cmd string) (tea.Model, tea.Cmd) {
	name, arg, _ := strings.Cut(cmd, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case cmdHelp:
		m.addMessage(Message{
			Role: roleSystem,
			Text: "Commands: /help, /clear, /datasets, /upload <path>, /exit\n" +
				"Shortcuts:\n  Enter: send question\n  Shift+Enter: new line\n" +
				"  [ / ]: table pages\n  Ctrl+C: cancel/clear\n  Ctrl+D: exit\n" +
				"  Up/Down: history\n  PgUp/PgDn: scroll",
		})
	case cmdClear:
		m.messages = nil
		m.registry.Close()
		m.activeTable = nil
		m.activeTableIdx = -1
	case cmdDatasets:
		m.input.Reset()
		return m, m.listDatasets()
	case cmdUpload:
		if arg == "" {
			m.addMessage(Message{Role: roleError, Text: "Usage: /upload <path to .csv or .xlsx>"})
			break
		}
		m.input.Reset()
		m.addMessage(Message{Role: roleSystem, Text: "Uploading " + arg + "..."})
		m.rebuildViewportContent()
		return m, m.uploadFile(arg)
	case cmdExit, cmdQuit:
		return m, m.cleanup()
	default:
		m.addMessage(Message{Role: roleError, Text: "Unknown command: " + name})
	}
	m.input.Reset()
	m.rebuildViewportContent()
	return m, nil
}

func (m *Model) navigateHistory(delta int) (tea.Model, tea.Cmd) {
	if len(m.history) == 0 {
		return m, nil
	}

	m.historyIdx += delta
	if m.historyIdx < 0 {
		m.historyIdx = 0
	}
	if m.historyIdx > len(m.history) {
		m.historyIdx = len(m.history)
	}

	if m.historyIdx == len(m.history) {
		m.input.SetValue("")
	} else {
		m.input.SetValue(m.history[m.historyIdx])
		m.input.CursorEnd()
	}

	return m, nil
}

func (m *Model) cancelStream() {
	if m.streamCancel != nil {
		m.streamCancel()
		m.streamCancel = nil
	}
	m.streamEventCh = nil
	m.state = StateInput
	m.answer = ""
	m.pendingViz = ""
	m.pendingTable = nil
}

// cleanup cancels any active stream, releases chart state, and quits.
func (m *Model) cleanup() tea.Cmd {
	if m.ctxCancel != nil {
		m.ctxCancel()
		m.ctxCancel = nil
	}
	m.cancelStream()
	m.registry.Close()
	return tea.Quit
}
