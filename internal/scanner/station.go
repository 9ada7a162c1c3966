package scanner

import (
	"log/slog"
	"sync"

	"github.com/your-org/dermascan/internal/profile"
)

// Builder creates the flow for a signed-in identity.
type Builder func(id profile.Identity) (*Flow, error)

// Station holds the flow of whoever is signed in at the scanning station.
// Signing in as someone else tears the previous flow down.
type Station struct {
	build Builder

	mu   sync.Mutex
	flow *Flow
}

func NewStation(id profile.Identity, build Builder) (*Station, error) {
	flow, err := build(id)
	if err != nil {
		return nil, err
	}
	return &Station{build: build, flow: flow}, nil
}

// Flow returns the active flow.
func (s *Station) Flow() *Flow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flow
}

// Login switches the station to userID. Signing in as the current user keeps
// the running flow.
func (s *Station) Login(userID string) (*Flow, error) {
	id, err := profile.NewIdentity(userID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.flow != nil && s.flow.Identity() == id {
		return s.flow, nil
	}

	next, err := s.build(id)
	if err != nil {
		return nil, err
	}
	if s.flow != nil {
		s.flow.Close()
	}
	s.flow = next
	slog.Info("station signed in", "user_id", id.UserID)
	return next, nil
}

func (s *Station) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flow != nil {
		s.flow.Close()
	}
}
