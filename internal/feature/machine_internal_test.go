package feature

import (
	"errors"
	"testing"
)

func TestAcquireReleasesBusyEntry(t *testing.T) {
	m := NewMachine(nil, nil, nil)

	release, err := m.acquire("auth")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := m.acquire("auth"); !errors.Is(err, ErrFeatureBusy) {
		t.Fatalf("second acquire = %v, want ErrFeatureBusy", err)
	}
	other, err := m.acquire("search")
	if err != nil {
		t.Fatalf("acquire other feature: %v", err)
	}
	if got := m.inFlight(); got != 2 {
		t.Fatalf("in flight = %d, want 2", got)
	}

	release()
	other()
	if got := m.inFlight(); got != 0 {
		t.Fatalf("in flight after release = %d, want 0", got)
	}
	again, err := m.acquire("auth")
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	again()
}
