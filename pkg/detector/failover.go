package detector

import "fmt"

// Transition is a change of active pool between two consecutive observations.
type Transition struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Message renders the notification text for the transition.
func (t Transition) Message() string {
	return fmt.Sprintf(":arrows_counterclockwise: Failover detected! %s → %s", t.From, t.To)
}

// Failover detects changes of the active pool. The first pool seen only
// primes the detector.
type Failover struct {
	last string
}

// NewFailover creates a detector with no known pool.
func NewFailover() *Failover {
	return &Failover{}
}

// Observe records pool and returns the transition when it differs from the
// previously observed pool.
func (f *Failover) Observe(pool string) (Transition, bool) {
	prev := f.last
	f.last = pool
	if prev == "" || prev == pool {
		return Transition{}, false
	}
	return Transition{From: prev, To: pool}, true
}

// Last returns the most recently observed pool, or "" before the first one.
func (f *Failover) Last() string {
	return f.last
}
