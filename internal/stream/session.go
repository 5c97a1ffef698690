package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/sheetsage/sheetsage/internal/viz"
)

// State is the lifecycle of one question/answer exchange.
type State int

const (
	// StateIdle is the initial state, before the transport is opened.
	StateIdle State = iota
	// StateAwaitingMetadata means the transport is open and the metadata
	// event has not arrived yet. No answer bubble exists in this state.
	StateAwaitingMetadata
	// StateStreaming means metadata arrived and tokens are being appended.
	StateStreaming
	// StateDone is terminal: the answer completed.
	StateDone
	// StateFailed is terminal: the service reported an error or the
	// transport failed.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingMetadata:
		return "awaiting_metadata"
	case StateStreaming:
		return "streaming"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// transportFailureMessage is what the user sees on a connection-level
// failure. The underlying cause is logged, never shown.
const transportFailureMessage = "Connection to the answer service failed. Please try again."

// Sink receives the rendering effects of session transitions. It is the only
// path through which a session touches the outside world; implementations
// bind it to a terminal view, an SSE test recorder, or plain stdout.
type Sink interface {
	// ShowVisualization renders the result set once, when metadata arrives,
	// before any answer text. plan is derived from the metadata's viz hint
	// and result shape.
	ShowVisualization(meta *Metadata, plan viz.Plan)

	// ShowAnswer re-renders the accumulated answer text. streaming is true
	// while more tokens may follow; renderers show an in-progress cursor.
	ShowAnswer(text string, streaming bool)

	// ShowError renders a terminal failure inline. transport distinguishes
	// connection-level failures from service-reported errors.
	ShowError(message string, transport bool)

	// Finish is called exactly once when the stream completes, with the
	// service-reported elapsed seconds. Chat-list refreshes hang off this.
	Finish(elapsedSeconds float64)
}

// Session sequences the events of one question into sink renders. Events are
// applied strictly in arrival order; anything arriving after a terminal
// state is dropped. The ID tags every callback so that a superseded session
// can be told apart from the active one.
//
// Session is not safe for concurrent use: the consumer loop owns it.
type Session struct {
	id     uuid.UUID
	state  State
	answer strings.Builder
	meta   *Metadata
	chatID *int64
	sink   Sink
	logger *slog.Logger
}

// NewSession creates an idle session bound to sink.
func NewSession(sink Sink, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		id:     uuid.New(),
		state:  StateIdle,
		sink:   sink,
		logger: logger,
	}
}

// ID is the session token. Callers compare it on every callback to discard
// events from superseded sessions.
func (s *Session) ID() uuid.UUID { return s.id }

// State returns the current state.
func (s *Session) State() State { return s.state }

// ChatID returns the chat established by the metadata event, if any.
func (s *Session) ChatID() *int64 { return s.chatID }

// Metadata returns the received metadata, nil before it arrives.
func (s *Session) Metadata() *Metadata { return s.meta }

// Answer returns the answer text accumulated so far.
func (s *Session) Answer() string { return s.answer.String() }

// Terminal reports whether the session has finished, successfully or not.
func (s *Session) Terminal() bool {
	return s.state == StateDone || s.state == StateFailed
}

// Start records that the transport has been opened.
func (s *Session) Start() {
	if s.state != StateIdle {
		return
	}
	s.state = StateAwaitingMetadata
}

// HandleEvent applies one decoded event. All side effects of the state
// machine happen here and nowhere else.
func (s *Session) HandleEvent(ev Event) {
	if s.Terminal() {
		// Late stray data must not reanimate a finished session.
		return
	}

	switch ev.Type {
	case EventMetadata:
		if s.state != StateAwaitingMetadata {
			s.logger.Warn("duplicate metadata event ignored", "session", s.id, "state", s.state.String())
			return
		}
		s.meta = ev.Metadata
		if s.chatID == nil {
			s.chatID = ev.Metadata.ChatID
		}
		// The visualization always renders before any answer text.
		plan := viz.SelectPlan(ev.Metadata.VizType, ev.Metadata.Columns, ev.Metadata.Rows)
		s.sink.ShowVisualization(ev.Metadata, plan)
		s.answer.Reset()
		s.sink.ShowAnswer("", true)
		s.state = StateStreaming

	case EventToken:
		if s.state != StateStreaming {
			// Tokens cannot precede metadata: the answer sink does not
			// exist yet.
			return
		}
		s.answer.WriteString(ev.Token)
		s.sink.ShowAnswer(s.answer.String(), true)

	case EventDone:
		if s.state != StateStreaming {
			return
		}
		s.state = StateDone
		s.sink.ShowAnswer(s.answer.String(), false)
		s.sink.Finish(ev.Elapsed)

	case EventError:
		s.state = StateFailed
		s.sink.ShowError(ev.Message, false)
	}
}

// FailTransport terminates the session after a connection-level failure
// (non-2xx status, stream abort). The user sees a generic message; the
// cause goes to the log only.
func (s *Session) FailTransport(cause error) {
	if s.Terminal() {
		return
	}
	s.logger.Error("transport failure", "session", s.id, "state", s.state.String(), "cause", cause)
	s.state = StateFailed
	s.sink.ShowError(transportFailureMessage, true)
}

// readBufferSize is the chunk size for draining the transport body.
const readBufferSize = 4096

// Consume drains body through a Reassembler, applying each decoded event
// until the session reaches a terminal state or the reader ends. Awaiting
// the next chunk is the only suspension point; everything between two reads
// runs to completion. A stream that ends without a terminal event is a
// transport failure.
func (s *Session) Consume(ctx context.Context, body io.Reader, framing Framing) {
	s.Start()
	r := NewReassembler(framing)
	buf := make([]byte, readBufferSize)

	for {
		if err := ctx.Err(); err != nil {
			s.FailTransport(err)
			return
		}

		n, err := body.Read(buf)
		if n > 0 {
			for _, ev := range r.Feed(buf[:n]) {
				s.HandleEvent(ev)
				if s.Terminal() {
					return
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) && s.Terminal() {
				return
			}
			s.FailTransport(err)
			return
		}
	}
}
