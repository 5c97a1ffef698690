package tui

import (
	"fmt"

	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"
)

// Update implements tea.Model.
//
//nolint:gocognit,gocyclo // Bubble Tea Update requires a type switch over all message types
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		inputHeight := m.input.Height() + promptLines
		fixedHeight := separatorLines + inputHeight + helpLines
		vpHeight := max(msg.Height-fixedHeight, minViewport)

		m.viewport.SetWidth(msg.Width)
		m.viewport.SetHeight(vpHeight)
		m.input.SetWidth(msg.Width - 4) // Room for "> " prompt
		m.help.SetWidth(msg.Width)
		m.markdown.UpdateWidth(msg.Width)

		m.rebuildViewportContent()
		return m, nil

	case tea.MouseWheelMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.state == StateThinking {
			m.rebuildViewportContent()
		}
		return m, cmd

	case streamStartedMsg:
		m.streamCancel = msg.cancel
		m.streamEventCh = msg.eventCh
		return m, listenForStream(msg.eventCh)

	case streamVizMsg:
		if m.streamEventCh == nil || msg.from != m.streamEventCh {
			return m, nil
		}
		if msg.meta.ChatID != nil {
			m.chatID = msg.meta.ChatID
		}
		m.pendingViz, m.pendingTable = renderVisualization(msg.meta, msg.plan, m.styles, defaultPageSize)
		if m.pendingTable != nil {
			m.activeTable = m.pendingTable
			m.activeTableIdx = -1
		}
		m.answer = ""
		m.state = StateStreaming
		m.rebuildViewportContent()
		m.viewport.GotoBottom()
		return m, listenForStream(m.streamEventCh)

	case streamAnswerMsg:
		if m.streamEventCh == nil || msg.from != m.streamEventCh {
			return m, nil
		}
		m.answer = msg.text
		m.state = StateStreaming
		m.rebuildViewportContent()
		m.viewport.GotoBottom()
		return m, listenForStream(m.streamEventCh)

	case streamFinishedMsg:
		if m.streamEventCh == nil || msg.from != m.streamEventCh {
			return m, nil
		}
		m.endStream()

		message := Message{Role: roleAssistant, Text: m.answer, Viz: m.pendingViz}
		m.addMessage(message)
		if m.pendingTable != nil {
			m.activeTableIdx = len(m.messages) - 1
			m.registry.Register(fmt.Sprintf("exchange-%d", m.activeTableIdx), m.pendingTable)
		}
		m.addMessage(Message{Role: roleSystem, Text: fmt.Sprintf("(answered in %.1fs)", msg.elapsed)})

		m.answer = ""
		m.pendingViz = ""
		m.pendingTable = nil
		m.rebuildViewportContent()
		m.viewport.GotoBottom()
		return m, m.input.Focus()

	case streamErrorMsg:
		if m.streamEventCh == nil || msg.from != m.streamEventCh {
			return m, nil
		}
		m.endStream()
		m.addMessage(Message{Role: roleError, Text: msg.message})
		m.answer = ""
		m.pendingViz = ""
		m.pendingTable = nil
		m.rebuildViewportContent()
		m.viewport.GotoBottom()
		return m, m.input.Focus()

	case datasetListMsg:
		m.addMessage(Message{Role: roleSystem, Text: msg.text})
		m.rebuildViewportContent()
		m.viewport.GotoBottom()
		return m, nil

	case uploadDoneMsg:
		if msg.err != "" {
			m.addMessage(Message{Role: roleError, Text: msg.err})
		} else {
			m.addMessage(Message{Role: roleSystem, Text: msg.text})
		}
		m.rebuildViewportContent()
		m.viewport.GotoBottom()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// endStream releases the stream context and returns the model to input
// state.
func (m *Model) endStream() {
	m.state = StateInput
	if m.streamCancel != nil {
		m.streamCancel()
		m.streamCancel = nil
	}
	m.streamEventCh = nil
}
