package wardrobe

import (
	"fmt"
	"sync"

	"github.com/chromacloset/chromacloset/internal/extraction"
	"github.com/chromacloset/chromacloset/internal/imaging"
)

// SessionState is the explicit review-session state machine. Transitions
// are validated so that illegal moves (e.g. committing from Idle) are
// rejected rather than silently performed.
type SessionState int

const (
	StateIdle SessionState = iota
	StateCapturing
	StatePreviewing
	StateReviewing
	StateCommitted
	StateDiscarded
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StatePreviewing:
		return "previewing"
	case StateReviewing:
		return "reviewing"
	case StateCommitted:
		return "committed"
	case StateDiscarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// NoItemsMessage is the distinct user-facing outcome for a scan where the
// model detected nothing. It is guidance, not a failure.
const NoItemsMessage = "no items detected, try a clearer photo"

// Candidate is one extracted item staged for review. The ID is provisional
// and only identifies the candidate within its session; committed items
// get fresh identifiers.
type Candidate struct {
	ID   string
	Item extraction.Item
}

// ReviewSession holds the pending batch for a single scan. It is transient
// state owned by the active scan workflow, discarded after commit/cancel.
type ReviewSession struct {
	mu         sync.Mutex
	token      string
	mode       extraction.Mode
	state      SessionState
	image      imaging.Encoded
	candidates []Candidate
	warning    string
	message    string
}

// NewReviewSession creates an idle session bound to a token. Extraction
// results are only ever applied through the session, so a result arriving
// after the session was torn down is discarded by the state check instead
// of relying on teardown timing.
func NewReviewSession(token string, mode extraction.Mode) *ReviewSession {
	return &ReviewSession{token: token, mode: mode, state: StateIdle}
}

// Token returns the session token.
func (s *ReviewSession) Token() string {
	return s.token
}

// Mode returns the extraction mode of this scan.
func (s *ReviewSession) Mode() extraction.Mode {
	return s.mode
}

// State returns the current state.
func (s *ReviewSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Message returns the user-facing outcome message, if any.
func (s *ReviewSession) Message() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.message
}

// Warning returns the non-fatal extraction warning, if any.
func (s *ReviewSession) Warning() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.warning
}

// Image returns the preprocessed scan image.
func (s *ReviewSession) Image() imaging.Encoded {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.image
}

// Candidates returns the remaining review batch.
func (s *ReviewSession) Candidates() []Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Candidate, len(s.candidates))
	copy(out, s.candidates)
	return out
}

// BeginCapture transitions Idle -> Capturing. A new capture cannot begin
// while an extraction is in flight for the same session; requests are not
// pipelined.
func (s *ReviewSession) BeginCapture() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return fmt.Errorf("cannot begin capture from state %s", s.state)
	}
	s.state = StateCapturing
	return nil
}

// CancelCapture transitions Capturing -> Idle.
func (s *ReviewSession) CancelCapture() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateCapturing {
		return fmt.Errorf("cannot cancel capture from state %s", s.state)
	}
	s.state = StateIdle
	return nil
}

// BeginPreview transitions Capturing -> Previewing with the encoded image.
// Previewing is the only state that waits on the external call.
func (s *ReviewSession) BeginPreview(img imaging.Encoded) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateCapturing {
		return fmt.Errorf("cannot begin preview from state %s", s.state)
	}
	s.image = img
	s.state = StatePreviewing
	return nil
}

// CompleteExtraction applies an extraction result. With one or more items
// the session moves to Reviewing; with zero items it terminates with the
// distinct no-items message (equivalent to Discarded, never Reviewing, so
// a zero-item commit is unrepresentable). A result landing on a session
// that is no longer Previewing (torn down or superseded) is discarded.
func (s *ReviewSession) CompleteExtraction(result extraction.Result, newID func() string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePreviewing {
		return fmt.Errorf("discarding stale extraction result for state %s", s.state)
	}

	s.warning = result.Warning
	if len(result.Items) == 0 {
		s.state = StateDiscarded
		s.message = NoItemsMessage
		return nil
	}

	s.candidates = make([]Candidate, 0, len(result.Items))
	for _, item := range result.Items {
		s.candidates = append(s.candidates, Candidate{ID: newID(), Item: item})
	}
	s.state = StateReviewing
	return nil
}

// FailExtraction returns the session to Idle after a failed external call.
// Nothing is committed; the user is invited to retry.
func (s *ReviewSession) FailExtraction() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePreviewing {
		return fmt.Errorf("cannot fail extraction from state %s", s.state)
	}
	s.image = imaging.Encoded{}
	s.state = StateIdle
	return nil
}

// RemoveCandidate removes one staged item by its provisional identifier.
func (s *ReviewSession) RemoveCandidate(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReviewing {
		return fmt.Errorf("cannot remove items from state %s", s.state)
	}
	for i, c := range s.candidates {
		if c.ID == id {
			s.candidates = append(s.candidates[:i], s.candidates[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("candidate not found: %s", id)
}

// Commit finalizes the batch: every remaining candidate is returned for
// persistence and the session terminates. Committing an empty batch is an
// error, so Reviewing with zero remaining candidates cannot reach
// Committed.
func (s *ReviewSession) Commit() ([]extraction.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReviewing {
		return nil, fmt.Errorf("cannot commit from state %s", s.state)
	}
	if len(s.candidates) == 0 {
		return nil, fmt.Errorf("nothing to commit: all candidates were removed")
	}

	items := make([]extraction.Item, 0, len(s.candidates))
	for _, c := range s.candidates {
		items = append(items, c.Item)
	}
	s.state = StateCommitted
	return items, nil
}

// Discard abandons the in-progress batch. Discarding destroys work in
// progress, so the caller must pass explicit confirmation.
func (s *ReviewSession) Discard(confirmed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReviewing && s.state != StatePreviewing && s.state != StateCapturing {
		return fmt.Errorf("cannot discard from state %s", s.state)
	}
	if s.state == StateReviewing && !confirmed {
		return fmt.Errorf("discarding a review batch requires confirmation")
	}
	s.state = StateDiscarded
	return nil
}
