package channel

import (
	"math/rand/v2"
	"time"

	"github.com/matheus3301/momento/internal/config"
)

// ReconnectPolicy decides how long to wait before reconnect attempt n (1-based).
type ReconnectPolicy interface {
	Delay(attempt int) time.Duration
}

// Fixed waits the same delay before every attempt.
type Fixed time.Duration

func (f Fixed) Delay(int) time.Duration { return time.Duration(f) }

// Exponential doubles the delay per attempt up to Max, then applies up to
// ±Jitter (a fraction) of randomization.
type Exponential struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
	// Rand returns a value in [0,1); nil uses math/rand/v2.
	Rand func() float64
}

func (e Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := e.Base
	for i := 1; i < attempt && d < e.Max; i++ {
		d *= 2
	}
	if e.Max > 0 && d > e.Max {
		d = e.Max
	}
	if e.Jitter > 0 {
		r := rand.Float64
		if e.Rand != nil {
			r = e.Rand
		}
		d += time.Duration((r()*2 - 1) * e.Jitter * float64(d))
	}
	return d
}

// PolicyFromConfig builds the policy selected by reconnect_policy.
func PolicyFromConfig(cfg *config.Config) ReconnectPolicy {
	if cfg.ReconnectPolicy == config.PolicyExponential {
		return Exponential{Base: cfg.ReconnectDelay, Max: cfg.ReconnectMax, Jitter: 0.2}
	}
	return Fixed(cfg.ReconnectDelay)
}
