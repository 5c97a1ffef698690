package viz

import "testing"

type countingChart struct {
	disposed int
}

func (f *countingChart) Dispose() { f.disposed++ }

func TestRegistryReplaceDisposesOld(t *testing.T) {
	r := NewRegistry()
	first := &countingChart{}
	second := &countingChart{}

	r.Register("main", first)
	r.Register("main", second)

	if first.disposed != 1 {
		t.Errorf("replaced chart disposed %d times, want 1", first.disposed)
	}
	if second.disposed != 0 {
		t.Errorf("live chart disposed %d times, want 0", second.disposed)
	}
	if got := r.Get("main"); got != second {
		t.Errorf("Get returned %v, want the replacement", got)
	}
}

func TestRegistryDispose(t *testing.T) {
	r := NewRegistry()
	chart := &countingChart{}
	r.Register("main", chart)

	r.Dispose("main")
	if chart.disposed != 1 {
		t.Errorf("disposed %d times, want 1", chart.disposed)
	}
	if r.Get("main") != nil {
		t.Error("chart still registered after Dispose")
	}

	// Unknown keys are a no-op.
	r.Dispose("missing")
}

func TestRegistryClose(t *testing.T) {
	r := NewRegistry()
	charts := []*countingChart{{}, {}, {}}
	for i, c := range charts {
		r.Register(string(rune('a'+i)), c)
	}

	r.Close()

	if r.Len() != 0 {
		t.Errorf("Len after Close = %d, want 0", r.Len())
	}
	for i, c := range charts {
		if c.disposed != 1 {
			t.Errorf("chart %d disposed %d times, want 1", i, c.disposed)
		}
	}
}
