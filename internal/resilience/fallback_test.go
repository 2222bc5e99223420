package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newGroup() *FallbackGroup[string] {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour},
	})
	fg.AddFallback("mirror", "mirror")
	return fg
}

func TestExecuteWithResult_PrimaryFirst(t *testing.T) {
	t.Parallel()

	fg := newGroup()
	got, err := ExecuteWithResult(fg, func(v string) (string, error) { return v, nil })
	if err != nil || got != "primary" {
		t.Errorf("got %q, %v; want primary", got, err)
	}
	if fg.Len() != 2 {
		t.Errorf("Len = %d, want 2", fg.Len())
	}
}

func TestExecuteWithResult_Failover(t *testing.T) {
	t.Parallel()

	fg := newGroup()
	got, err := ExecuteWithResult(fg, func(v string) (string, error) {
		if v == "primary" {
			return "", errTest
		}
		return v, nil
	})
	if err != nil || got != "mirror" {
		t.Errorf("got %q, %v; want mirror", got, err)
	}
}

func TestExecuteWithResult_AllFail(t *testing.T) {
	t.Parallel()

	fg := newGroup()
	_, err := ExecuteWithResult(fg, func(string) (int, error) { return 0, errTest })
	if !errors.Is(err, ErrAllFailed) || !errors.Is(err, errTest) {
		t.Errorf("err = %v, want ErrAllFailed wrapping the last error", err)
	}
}

func TestExecuteWithResult_SkipsOpenEntry(t *testing.T) {
	t.Parallel()

	fg := newGroup()
	for i := 0; i < 2; i++ {
		_, _ = ExecuteWithResult(fg, func(v string) (string, error) {
			if v == "primary" {
				return "", errTest
			}
			return v, nil
		})
	}

	var calls []string
	got, err := ExecuteWithResult(fg, func(v string) (string, error) {
		calls = append(calls, v)
		return v, nil
	})
	if err != nil || got != "mirror" {
		t.Fatalf("got %q, %v", got, err)
	}
	if len(calls) != 1 || calls[0] != "mirror" {
		t.Errorf("calls = %v, want [mirror]", calls)
	}

	h := fg.Health()
	if h[0].Name != "primary" || h[0].State != StateOpen || h[1].State != StateClosed {
		t.Errorf("Health = %+v", h)
	}
}

func TestExecuteWithResult_CancellationStopsWalk(t *testing.T) {
	t.Parallel()

	fg := newGroup()
	var calls int
	_, err := ExecuteWithResult(fg, func(string) (string, error) {
		calls++
		return "", context.Canceled
	})
	if !errors.Is(err, context.Canceled) || errors.Is(err, ErrAllFailed) {
		t.Errorf("err = %v, want bare context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
