package recovery

import (
	"sync"

	"github.com/wudi/pdfcodec/observability"
)

// StrictStrategy implements a fail-fast recovery strategy.
type StrictStrategy struct{}

func NewStrictStrategy() *StrictStrategy {
	return &StrictStrategy{}
}

func (s *StrictStrategy) OnError(ctx Context, err error, location Location) Action {
	return ActionFail
}

// Event is one recorded defect.
type Event struct {
	Location Location
	Err      error
}

// LenientStrategy implements a best-effort recovery strategy.
// Every defect is recorded and emitted as a Warn event; processing continues.
type LenientStrategy struct {
	Logger observability.Logger

	mu     sync.Mutex
	events []Event
}

func NewLenientStrategy() *LenientStrategy {
	return &LenientStrategy{Logger: observability.NopLogger{}}
}

// NewLoggingStrategy returns a lenient strategy that logs through l.
func NewLoggingStrategy(l observability.Logger) *LenientStrategy {
	if l == nil {
		l = observability.NopLogger{}
	}
	return &LenientStrategy{Logger: l}
}

func (s *LenientStrategy) OnError(ctx Context, err error, location Location) Action {
	s.mu.Lock()
	s.events = append(s.events, Event{Location: location, Err: err})
	s.mu.Unlock()
	if s.Logger != nil {
		s.Logger.Warn("recovered",
			observability.String("component", location.Component),
			observability.Int64("offset", location.ByteOffset),
			observability.Int("object", location.ObjectNum),
			observability.Int("generation", location.ObjectGen),
			observability.String("issue", location.Issue.String()),
			observability.Error("error", err),
		)
	}
	return ActionWarn
}

// Events returns a copy of the recorded defects.
func (s *LenientStrategy) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// Count returns how many defects of the given kind were recorded.
func (s *LenientStrategy) Count(issue Issue) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Location.Issue == issue {
			n++
		}
	}
	return n
}
