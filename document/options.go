package document

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/wudi/pdfcodec/observability"
	"github.com/wudi/pdfcodec/recovery"
	"github.com/wudi/pdfcodec/security"
	"github.com/wudi/pdfcodec/writer"
)

// Mode decides which saves an opened document permits.
type Mode int

const (
	// ModeImport is read-only. Neither save is allowed.
	ModeImport Mode = iota
	// ModeModify permits mutation and full rewrites.
	ModeModify
	// ModeAppend permits mutation and incremental saves after the original bytes.
	ModeAppend
)

func (m Mode) String() string {
	switch m {
	case ModeImport:
		return "import"
	case ModeModify:
		return "modify"
	case ModeAppend:
		return "append"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode maps a command-line spelling to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "import":
		return ModeImport, nil
	case "modify":
		return ModeModify, nil
	case "append":
		return ModeAppend, nil
	}
	return 0, fmt.Errorf("unknown open mode %q", s)
}

type Options struct {
	Mode Mode `validate:"min=0,max=2"`
	// Recovery receives recoverable defects; nil logs them and carries on.
	Recovery recovery.Strategy `validate:"-"`
	// Repair rebuilds the cross-reference map by scanning when the chain is unusable.
	Repair bool
	Limits security.Limits
	Logger observability.Logger `validate:"-"`
	// Writer configures Save and SaveIncremental.
	Writer writer.Config
}

func DefaultOptions() Options {
	return Options{
		Mode:   ModeModify,
		Repair: true,
		Limits: security.DefaultLimits(),
		Writer: writer.DefaultConfig(),
	}
}

func (o Options) Validate() error {
	if err := validator.New().Struct(o); err != nil {
		return err
	}
	return o.Writer.Validate()
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = observability.NopLogger{}
	}
	if o.Recovery == nil {
		o.Recovery = recovery.NewLoggingStrategy(o.Logger)
	}
	if o.Limits == (security.Limits{}) {
		o.Limits = security.DefaultLimits()
	}
	if o.Writer.Logger == nil {
		o.Writer.Logger = o.Logger
	}
	return o
}
