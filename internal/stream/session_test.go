package stream

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sheetsage/sheetsage/internal/log"
	"github.com/sheetsage/sheetsage/internal/viz"
)

// recordingSink captures every render call in order.
type recordingSink struct {
	calls    []string
	plans    []viz.Plan
	answers  []string
	errors   []string
	elapsed  []float64
	lastMeta *Metadata
}

func (r *recordingSink) ShowVisualization(meta *Metadata, plan viz.Plan) {
	r.calls = append(r.calls, "viz")
	r.plans = append(r.plans, plan)
	r.lastMeta = meta
}

func (r *recordingSink) ShowAnswer(text string, streaming bool) {
	if streaming {
		r.calls = append(r.calls, "answer*")
	} else {
		r.calls = append(r.calls, "answer")
	}
	r.answers = append(r.answers, text)
}

func (r *recordingSink) ShowError(message string, transport bool) {
	r.calls = append(r.calls, "error")
	r.errors = append(r.errors, message)
}

func (r *recordingSink) Finish(elapsedSeconds float64) {
	r.calls = append(r.calls, "finish")
	r.elapsed = append(r.elapsed, elapsedSeconds)
}

func barMetadata() *Metadata {
	return &Metadata{
		Columns:  []string{"region", "sales"},
		Rows:     []map[string]any{{"region": "N", "sales": 1.0}, {"region": "S", "sales": 2.0}},
		VizType:  VizBar,
		RowCount: 2,
	}
}

func TestSessionHappyPath(t *testing.T) {
	sink := &recordingSink{}
	s := NewSession(sink, log.NewNop())

	s.Start()
	if s.State() != StateAwaitingMetadata {
		t.Fatalf("state after Start = %v", s.State())
	}

	s.HandleEvent(Event{Type: EventMetadata, Metadata: barMetadata()})
	if s.State() != StateStreaming {
		t.Fatalf("state after metadata = %v", s.State())
	}

	for _, tok := range []string{"A", "B", "C"} {
		s.HandleEvent(Event{Type: EventToken, Token: tok})
	}
	s.HandleEvent(Event{Type: EventDone, Elapsed: 2.5})

	if s.State() != StateDone {
		t.Fatalf("state after done = %v", s.State())
	}
	if s.Answer() != "ABC" {
		t.Errorf("Answer = %q, want ABC", s.Answer())
	}

	want := []string{"viz", "answer*", "answer*", "answer*", "answer*", "answer", "finish"}
	if strings.Join(sink.calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", sink.calls, want)
	}

	// The final re-render carries the full text with streaming off.
	if last := sink.answers[len(sink.answers)-1]; last != "ABC" {
		t.Errorf("final answer render = %q, want ABC", last)
	}
	if sink.elapsed[0] != 2.5 {
		t.Errorf("elapsed = %v, want 2.5", sink.elapsed[0])
	}
	if sink.plans[0].Kind != viz.KindBar {
		t.Errorf("plan kind = %v, want bar", sink.plans[0].Kind)
	}
}

func TestSessionTokenBeforeMetadataDropped(t *testing.T) {
	sink := &recordingSink{}
	s := NewSession(sink, log.NewNop())
	s.Start()

	s.HandleEvent(Event{Type: EventToken, Token: "orphan"})

	if len(sink.calls) != 0 {
		t.Errorf("calls = %v, want none before metadata", sink.calls)
	}
	if s.Answer() != "" {
		t.Errorf("Answer = %q, want empty", s.Answer())
	}
}

func TestSessionErrorBeforeMetadata(t *testing.T) {
	sink := &recordingSink{}
	s := NewSession(sink, log.NewNop())
	s.Start()

	s.HandleEvent(Event{Type: EventError, Message: "no dataset uploaded"})

	if s.State() != StateFailed {
		t.Fatalf("state = %v, want failed", s.State())
	}
	// Only the error renders; no answer bubble was ever created.
	if strings.Join(sink.calls, ",") != "error" {
		t.Errorf("calls = %v, want only error", sink.calls)
	}
	if sink.errors[0] != "no dataset uploaded" {
		t.Errorf("error message = %q", sink.errors[0])
	}
}

func TestSessionErrorDuringStreamingKeepsPartialAnswer(t *testing.T) {
	sink := &recordingSink{}
	s := NewSession(sink, log.NewNop())
	s.Start()
	s.HandleEvent(Event{Type: EventMetadata, Metadata: barMetadata()})
	s.HandleEvent(Event{Type: EventToken, Token: "partial"})

	s.HandleEvent(Event{Type: EventError, Message: "model overloaded"})

	if s.State() != StateFailed {
		t.Fatalf("state = %v, want failed", s.State())
	}
	if s.Answer() != "partial" {
		t.Errorf("Answer = %q, want partial text preserved", s.Answer())
	}
}

func TestSessionIgnoresEventsAfterTerminal(t *testing.T) {
	sink := &recordingSink{}
	s := NewSession(sink, log.NewNop())
	s.Start()
	s.HandleEvent(Event{Type: EventMetadata, Metadata: barMetadata()})
	s.HandleEvent(Event{Type: EventDone, Elapsed: 1})

	before := len(sink.calls)
	s.HandleEvent(Event{Type: EventToken, Token: "late"})
	s.HandleEvent(Event{Type: EventDone, Elapsed: 9})
	s.HandleEvent(Event{Type: EventError, Message: "late error"})

	if len(sink.calls) != before {
		t.Errorf("terminal session produced renders: %v", sink.calls[before:])
	}
	if s.Answer() != "" {
		t.Errorf("Answer = %q, want empty", s.Answer())
	}
}

func TestSessionDuplicateMetadataIgnored(t *testing.T) {
	sink := &recordingSink{}
	s := NewSession(sink, log.NewNop())
	s.Start()

	first := barMetadata()
	s.HandleEvent(Event{Type: EventMetadata, Metadata: first})
	s.HandleEvent(Event{Type: EventToken, Token: "A"})

	second := barMetadata()
	second.TableUsed = "other"
	s.HandleEvent(Event{Type: EventMetadata, Metadata: second})

	if s.Metadata() != first {
		t.Error("duplicate metadata replaced the original")
	}
	if s.Answer() != "A" {
		t.Errorf("Answer = %q, duplicate metadata must not reset it", s.Answer())
	}
}

func TestSessionDoneBeforeMetadataIgnored(t *testing.T) {
	sink := &recordingSink{}
	s := NewSession(sink, log.NewNop())
	s.Start()

	s.HandleEvent(Event{Type: EventDone, Elapsed: 1})

	if s.State() != StateAwaitingMetadata {
		t.Errorf("state = %v, want awaiting_metadata", s.State())
	}
	if len(sink.calls) != 0 {
		t.Errorf("calls = %v, want none", sink.calls)
	}
}

func TestSessionChatIDSticks(t *testing.T) {
	sink := &recordingSink{}
	s := NewSession(sink, log.NewNop())
	s.Start()

	id := int64(42)
	meta := barMetadata()
	meta.ChatID = &id
	s.HandleEvent(Event{Type: EventMetadata, Metadata: meta})

	if got := s.ChatID(); got == nil || *got != 42 {
		t.Errorf("ChatID = %v, want 42", got)
	}
}

func TestSessionFailTransport(t *testing.T) {
	sink := &recordingSink{}
	s := NewSession(sink, log.NewNop())
	s.Start()

	s.FailTransport(errors.New("connection refused"))

	if s.State() != StateFailed {
		t.Fatalf("state = %v, want failed", s.State())
	}
	if sink.errors[0] != transportFailureMessage {
		t.Errorf("message = %q, want the generic transport message", sink.errors[0])
	}
	if strings.Contains(sink.errors[0], "connection refused") {
		t.Error("raw cause leaked into the user-facing message")
	}

	// A second failure after terminal is a no-op.
	before := len(sink.calls)
	s.FailTransport(errors.New("again"))
	if len(sink.calls) != before {
		t.Error("FailTransport after terminal produced renders")
	}
}

func TestSessionIDsAreUnique(t *testing.T) {
	a := NewSession(&recordingSink{}, log.NewNop())
	b := NewSession(&recordingSink{}, log.NewNop())
	if a.ID() == b.ID() {
		t.Error("two sessions share an ID")
	}
}

func TestConsume(t *testing.T) {
	t.Run("full stream reaches done", func(t *testing.T) {
		sink := &recordingSink{}
		s := NewSession(sink, log.NewNop())

		body := strings.NewReader(sseStream)
		s.Consume(context.Background(), body, FramingSSE)

		if s.State() != StateDone {
			t.Fatalf("state = %v, want done", s.State())
		}
		if s.Answer() != "The answer — ₹1.2 Cr" {
			t.Errorf("Answer = %q", s.Answer())
		}
	})

	t.Run("eof before terminal fails transport", func(t *testing.T) {
		sink := &recordingSink{}
		s := NewSession(sink, log.NewNop())

		body := strings.NewReader("data: {\"type\":\"metadata\",\"columns\":[\"a\"],\"data\":[{\"a\":1}],\"viz_type\":\"table\",\"row_count\":1}\n\n" +
			"data: {\"type\":\"token\",\"content\":\"half\"}\n\n")
		s.Consume(context.Background(), body, FramingSSE)

		if s.State() != StateFailed {
			t.Fatalf("state = %v, want failed", s.State())
		}
		if sink.errors[0] != transportFailureMessage {
			t.Errorf("message = %q, want the generic transport message", sink.errors[0])
		}
	})

	t.Run("events after done are not consumed", func(t *testing.T) {
		sink := &recordingSink{}
		s := NewSession(sink, log.NewNop())

		body := strings.NewReader("data: {\"type\":\"metadata\",\"columns\":[\"a\"],\"data\":[{\"a\":1}],\"viz_type\":\"table\",\"row_count\":1}\n\n" +
			"data: {\"type\":\"done\",\"elapsed\":1}\n\n" +
			"data: {\"type\":\"token\",\"content\":\"stray\"}\n\n")
		s.Consume(context.Background(), body, FramingSSE)

		if s.State() != StateDone {
			t.Fatalf("state = %v, want done", s.State())
		}
		if s.Answer() != "" {
			t.Errorf("Answer = %q, want empty", s.Answer())
		}
	})

	t.Run("cancelled context fails transport", func(t *testing.T) {
		sink := &recordingSink{}
		s := NewSession(sink, log.NewNop())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		s.Consume(ctx, strings.NewReader(sseStream), FramingSSE)

		if s.State() != StateFailed {
			t.Fatalf("state = %v, want failed", s.State())
		}
	})
}
