package session

import (
	"math"
	"time"
)

// Backoff chooses the delay before reconnect attempt n (starting at 0).
type Backoff interface {
	Delay(attempt int) time.Duration
}

// Fixed waits the same delay before every attempt.
type Fixed time.Duration

// Delay implements Backoff.
func (f Fixed) Delay(int) time.Duration { return time.Duration(f) }

// Exponential grows the delay by Factor per attempt, capped at Max.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
}

// Delay implements Backoff.
func (e Exponential) Delay(attempt int) time.Duration {
	factor := e.Factor
	if factor < 1 {
		factor = 1
	}
	d := float64(e.Initial) * math.Pow(factor, float64(attempt))
	if e.Max > 0 && d > float64(e.Max) {
		return e.Max
	}
	return time.Duration(d)
}
