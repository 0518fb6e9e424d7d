// Package budget enforces the per-run spend ceiling for the paid
// vision stage and builds the run-wide request throttle.
//
// Local stages are free, so nothing here applies to them. The vision
// stage reserves estimated spend before every API call; once the cap is
// reached, remaining vision work fails fast instead of quietly billing
// past the ceiling.
package budget

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/corvata/gleaner/errors"
)

// DefaultCostPerPageUSD is the published document-text-detection price
// used for estimates when the config does not override it.
const DefaultCostPerPageUSD = 0.0015

// Status is a point-in-time view of run spend.
type Status struct {
	Pages        int
	SpentUSD     float64
	CapUSD       float64 // 0 = uncapped
	RemainingUSD float64 // meaningless when uncapped
}

// Tracker accounts estimated vision spend for one run. Every worker
// submitting paid work shares a single Tracker so the cap holds across
// concurrent documents.
type Tracker struct {
	mu          sync.Mutex
	costPerPage float64
	capUSD      float64
	pages       int
	spentUSD    float64
}

// NewTracker creates a tracker with the given per-page estimate and run
// cap in dollars. A zero or negative cap disables enforcement; spend is
// still accounted so the run summary can report it.
func NewTracker(costPerPageUSD, capUSD float64) *Tracker {
	if costPerPageUSD <= 0 {
		costPerPageUSD = DefaultCostPerPageUSD
	}
	if capUSD < 0 {
		capUSD = 0
	}
	return &Tracker{costPerPage: costPerPageUSD, capUSD: capUSD}
}

// Estimate returns the projected cost of annotating n pages.
func (t *Tracker) Estimate(n int) float64 {
	return float64(n) * t.costPerPage
}

// Reserve books the estimated cost of n pages before the request is
// sent. It returns ErrBudgetExhausted when the reservation would cross
// the cap, leaving the tracker unchanged.
func (t *Tracker) Reserve(n int) error {
	cost := t.Estimate(n)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.capUSD > 0 && t.spentUSD+cost > t.capUSD {
		return errors.Wrapf(errors.ErrBudgetExhausted,
			"spent $%.4f + estimated $%.4f > cap $%.2f", t.spentUSD, cost, t.capUSD)
	}
	t.pages += n
	t.spentUSD += cost
	return nil
}

// Refund returns a reservation whose request never reached the service,
// so nothing was billed.
func (t *Tracker) Refund(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pages -= n
	t.spentUSD -= t.Estimate(n)
	if t.pages < 0 {
		t.pages = 0
	}
	if t.spentUSD < 0 {
		t.spentUSD = 0
	}
}

// GetStatus returns the current spend picture.
func (t *Tracker) GetStatus() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Status{
		Pages:        t.pages,
		SpentUSD:     t.spentUSD,
		CapUSD:       t.capUSD,
		RemainingUSD: t.capUSD - t.spentUSD,
	}
}

// NewLimiter builds the run-wide vision request throttle. All batches
// from all workers wait on the same limiter.
func NewLimiter(requestsPerSecond float64, burst int) *rate.Limiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 5
	}
	if burst <= 0 {
		burst = 2
	}
	return rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}
