package recovery

import (
	"errors"
	"fmt"
)

// Strategy decides what happens when a component meets a recoverable defect.
type Strategy interface {
	OnError(ctx Context, err error, location Location) Action
}

// Location pinpoints a defect for diagnosis.
type Location struct {
	ByteOffset int64
	ObjectNum  int
	ObjectGen  int
	Component  string
	Issue      Issue
}

type Action int

const (
	ActionFail Action = iota
	ActionSkip
	ActionFix
	ActionWarn
)

func (a Action) String() string {
	switch a {
	case ActionFail:
		return "fail"
	case ActionSkip:
		return "skip"
	case ActionFix:
		return "fix"
	case ActionWarn:
		return "warn"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

type Context interface{ Done() <-chan struct{} }

// Issue classifies a recoverable defect.
type Issue int

const (
	IssueUnknown Issue = iota
	IssueStreamEOL
	IssueLoneCR
	IssueStreamLength
	IssueChecksum
	IssueXRefCycle
	IssueTruncated
	IssueRepaired
	IssueNumber
	IssueHeaderOffset
	IssueXRefEntry
	IssueFilter
	IssueSyntax
)

var issueNames = [...]string{
	IssueUnknown:      "unknown",
	IssueStreamEOL:    "stream-eol",
	IssueLoneCR:       "lone-cr",
	IssueStreamLength: "stream-length",
	IssueChecksum:     "checksum",
	IssueXRefCycle:    "xref-cycle",
	IssueTruncated:    "truncated",
	IssueRepaired:     "repaired",
	IssueNumber:       "number",
	IssueHeaderOffset: "header-offset",
	IssueXRefEntry:    "xref-entry",
	IssueFilter:       "filter",
	IssueSyntax:       "syntax",
}

func (i Issue) String() string {
	if int(i) >= 0 && int(i) < len(issueNames) {
		return issueNames[i]
	}
	return fmt.Sprintf("issue(%d)", int(i))
}

// Error is returned when a strategy refuses to continue past a defect.
type Error struct {
	Location Location
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s at offset %d: %v", e.Location.Component, e.Location.Issue, e.Location.ByteOffset, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrAborted marks defects that a strategy chose to fail on.
var ErrAborted = errors.New("recovery aborted")

// Report routes a recoverable defect through s. It returns nil when processing
// should continue, or an *Error when the strategy chose ActionFail.
// A nil strategy continues.
func Report(ctx Context, s Strategy, err error, loc Location) error {
	if s == nil {
		return nil
	}
	if s.OnError(ctx, err, loc) == ActionFail {
		return &Error{Location: loc, Err: errors.Join(ErrAborted, err)}
	}
	return nil
}
