package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	apperrors "github.com/vodhub/vodhub/internal/errors"
)

func testConfig() Config {
	return Config{
		MaxFailures:         3,
		Timeout:             50 * time.Millisecond,
		MaxHalfOpenRequests: 1,
	}
}

func TestOpensAfterMaxFailures(t *testing.T) {
	cb := New(testConfig())
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		if err := cb.Execute(func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("unexpected error %v", err)
		}
	}

	if cb.State() != StateOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrOpenState) {
		t.Fatalf("expected ErrOpenState, got %v", err)
	}
}

func TestRecoversThroughHalfOpen(t *testing.T) {
	cb := New(testConfig())
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		cb.Execute(func() error { return boom })
	}
	time.Sleep(60 * time.Millisecond)

	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("half-open probe should pass, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after successful probe, got %s", cb.State())
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	cb := New(testConfig())
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		cb.Execute(func() error { return boom })
	}
	time.Sleep(60 * time.Millisecond)

	cb.Execute(func() error { return boom })
	if cb.State() != StateOpen {
		t.Fatalf("expected reopened, got %s", cb.State())
	}
}

func TestAuthErrorsDoNotTrip(t *testing.T) {
	cb := New(testConfig())

	for i := 0; i < 10; i++ {
		cb.Execute(func() error { return apperrors.UpstreamAuth("px", "401") })
	}

	if cb.State() != StateClosed {
		t.Fatalf("auth rejections must not open the circuit, got %s", cb.State())
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb := New(testConfig())
	boom := errors.New("boom")

	cb.Execute(func() error { return boom })
	cb.Execute(func() error { return boom })
	cb.Execute(func() error { return nil })
	cb.Execute(func() error { return boom })
	cb.Execute(func() error { return boom })

	if cb.State() != StateClosed {
		t.Fatalf("expected closed, got %s", cb.State())
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(42):     "unknown",
	}
	for state, want := range tests {
		if state.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", state, state.String(), want)
		}
	}
}
