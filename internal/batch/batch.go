// Package batch aggregates per-item outcomes for the archive's batch
// drivers. Components record success, skip, or failure per item instead of
// swallowing errors, so drivers can report exact counts without parsing
// log output.
package batch

import "sync"

// Outcome classifies how processing one item ended.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// Item is the result of processing one unit of work (a file, an event).
type Item struct {
	ID      string
	Outcome Outcome
	Reason  string // skip reason or error text; empty on success
}

// Summary collects item results. Safe for concurrent use: build phases
// record from worker goroutines.
type Summary struct {
	mu    sync.Mutex
	items []Item
}

// Succeed records a successfully processed item.
func (s *Summary) Succeed(id string) {
	s.add(Item{ID: id, Outcome: OutcomeSucceeded})
}

// Skip records an item left unprocessed, with the reason it was skipped.
func (s *Summary) Skip(id, reason string) {
	s.add(Item{ID: id, Outcome: OutcomeSkipped, Reason: reason})
}

// Fail records an item whose processing errored.
func (s *Summary) Fail(id string, err error) {
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	s.add(Item{ID: id, Outcome: OutcomeFailed, Reason: reason})
}

func (s *Summary) add(item Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, item)
}

// Counts returns (succeeded, skipped, failed) totals.
func (s *Summary) Counts() (succeeded, skipped, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.items {
		switch item.Outcome {
		case OutcomeSucceeded:
			succeeded++
		case OutcomeSkipped:
			skipped++
		case OutcomeFailed:
			failed++
		}
	}
	return succeeded, skipped, failed
}

// Items returns a copy of all recorded results.
func (s *Summary) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

// Failures returns only the failed items.
func (s *Summary) Failures() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Item
	for _, item := range s.items {
		if item.Outcome == OutcomeFailed {
			out = append(out, item)
		}
	}
	return out
}
