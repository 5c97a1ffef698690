package tui

import (
	"context"
	"fmt"

	tea "charm.land/bubbletea/v2"

	"github.com/sheetsage/sheetsage/internal/client"
	"github.com/sheetsage/sheetsage/internal/stream"
	"github.com/sheetsage/sheetsage/internal/viz"
)

// streamBufferSize absorbs token bursts during UI render delays while
// keeping memory bounded.
const streamBufferSize = 100

type streamEventKind int

const (
	evViz streamEventKind = iota
	evAnswer
	evError
	evFinish
)

// streamEvent is a discriminated union for all stream events. One channel
// with a union type keeps the select logic simple.
type streamEvent struct {
	kind      streamEventKind
	meta      *stream.Metadata // evViz
	plan      viz.Plan         // evViz
	answer    string           // evAnswer: full accumulated text
	streaming bool             // evAnswer: more tokens may follow
	errMsg    string           // evError
	transport bool             // evError
	elapsed   float64          // evFinish, seconds
}

// Stream message types for Bubble Tea.
type streamStartedMsg struct {
	eventCh <-chan streamEvent
	cancel  context.CancelFunc
}

// Every per-event message carries the channel it came from. A listener for a
// superseded stream may still deliver one buffered message after the user
// starts a new question; Update drops messages whose channel is not the
// active one.
type streamVizMsg struct {
	from <-chan streamEvent
	meta *stream.Metadata
	plan viz.Plan
}

type streamAnswerMsg struct {
	from      <-chan streamEvent
	text      string
	streaming bool
}

type streamErrorMsg struct {
	from      <-chan streamEvent
	message   string
	transport bool
}

type streamFinishedMsg struct {
	from    <-chan streamEvent
	elapsed float64
}

// channelSink implements stream.Sink by forwarding session renders into the
// event channel, where the Bubble Tea loop picks them up.
type channelSink struct {
	ctx context.Context
	ch  chan<- streamEvent
}

var _ stream.Sink = (*channelSink)(nil)

func (s *channelSink) ShowVisualization(meta *stream.Metadata, plan viz.Plan) {
	s.send(streamEvent{kind: evViz, meta: meta, plan: plan})
}

func (s *channelSink) ShowAnswer(text string, streaming bool) {
	s.send(streamEvent{kind: evAnswer, answer: text, streaming: streaming})
}

func (s *channelSink) ShowError(message string, transport bool) {
	s.send(streamEvent{kind: evError, errMsg: message, transport: transport})
}

func (s *channelSink) Finish(elapsedSeconds float64) {
	s.send(streamEvent{kind: evFinish, elapsed: elapsedSeconds})
}

func (s *channelSink) send(ev streamEvent) {
	select {
	case s.ch <- ev:
	case <-s.ctx.Done():
	}
}

// startStream creates a command that posts the question and consumes the
// answer stream.
//
// Goroutine lifecycle: the spawned goroutine exits when the session reaches
// a terminal state or the context is canceled. Channel closure signals
// completion; no WaitGroup needed.
func (m *Model) startStream(question string) tea.Cmd {
	req := client.AskRequest{
		Question:  question,
		DatasetID: m.datasetID,
		ChatID:    m.chatID,
	}
	svc := m.svc
	logger := m.logger
	parentCtx := m.ctx

	return func() tea.Msg {
		eventCh := make(chan streamEvent, streamBufferSize)
		ctx, cancel := context.WithTimeout(parentCtx, streamTimeout)

		go func() {
			defer cancel()
			defer close(eventCh)

			// Panic recovery to prevent a locked-up UI.
			defer func() {
				if r := recover(); r != nil {
					logger.Error("stream panic recovered", "panic", r)
					select {
					case eventCh <- streamEvent{kind: evError, errMsg: fmt.Sprintf("internal error: %v", r)}:
					default:
					}
				}
			}()

			sink := &channelSink{ctx: ctx, ch: eventCh}
			session := stream.NewSession(sink, logger)

			body, err := svc.Ask(ctx, req)
			if err != nil {
				session.FailTransport(err)
				return
			}
			defer body.Close()

			session.Consume(ctx, body, stream.FramingSSE)
		}()

		return streamStartedMsg{eventCh: eventCh, cancel: cancel}
	}
}

// listenForStream creates a command that waits for the next stream event.
// Terminal events (error, finish) end the listen loop; Update stops
// re-issuing it after them.
func listenForStream(eventCh <-chan streamEvent) tea.Cmd {
	return func() tea.Msg {
		if eventCh == nil {
			return nil
		}
		ev, ok := <-eventCh
		if !ok {
			// Channel closed without a terminal event. The session
			// guarantees one, so this is a defensive fallback.
			return streamErrorMsg{from: eventCh, message: "stream ended unexpectedly", transport: true}
		}
		switch ev.kind {
		case evViz:
			return streamVizMsg{from: eventCh, meta: ev.meta, plan: ev.plan}
		case evAnswer:
			return streamAnswerMsg{from: eventCh, text: ev.answer, streaming: ev.streaming}
		case evError:
			return streamErrorMsg{from: eventCh, message: ev.errMsg, transport: ev.transport}
		case evFinish:
			return streamFinishedMsg{from: eventCh, elapsed: ev.elapsed}
		default:
			return nil
		}
	}
}
