package calls

import (
	"testing"
	"time"
)

func TestTurnKeyFor_OrdersWithinSecond(t *testing.T) {
	exact := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	later := exact.Add(500 * time.Millisecond)

	first := TurnKeyFor(exact, 1)
	second := TurnKeyFor(later, 1)
	if first >= second {
		t.Fatalf("turn keys out of order: %q >= %q", first, second)
	}
}

func TestTurnKeyFor_SequenceBreaksTies(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 500000000, time.UTC)
	if a, b := TurnKeyFor(at, 1), TurnKeyFor(at, 2); a >= b {
		t.Fatalf("sequence did not break the tie: %q >= %q", a, b)
	}
}
