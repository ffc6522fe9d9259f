package exprstate

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/sensemaker/internal/lang"
	"github.com/ashita-ai/sensemaker/internal/telemetry"
)

// FrontEnd parses and type-checks expression text.
type FrontEnd interface {
	Parse(text string) (lang.Expr, string, error)
	Infer(e lang.Expr) (lang.Scheme, error)
}

// LangFrontEnd is the FrontEnd backed by package lang.
type LangFrontEnd struct{}

func (LangFrontEnd) Parse(text string) (lang.Expr, string, error) { return lang.Parse(text) }
func (LangFrontEnd) Infer(e lang.Expr) (lang.Scheme, error)       { return lang.Infer(e) }

// Diagnostic prefixes for Invalid reasons.
const (
	PrefixParse      = "parse error: "
	PrefixUnconsumed = "unconsumed input: "
	PrefixType       = "type error: "
)

// Machine owns the editor buffer. It is not safe for concurrent use; the
// interaction loop drives it from a single goroutine.
type Machine struct {
	fe     FrontEnd
	logger *slog.Logger

	buffer string
	state  State

	validations metric.Int64Counter
}

// New creates a Machine with an empty buffer in the Initial state.
// A nil front end selects LangFrontEnd; a nil logger selects slog.Default.
func New(fe FrontEnd, logger *slog.Logger) *Machine {
	if fe == nil {
		fe = LangFrontEnd{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	validations, _ := telemetry.Meter("sensemaker/exprstate").Int64Counter("sensemaker.validations",
		metric.WithDescription("Buffer validations by result"),
	)
	return &Machine{
		fe:          fe,
		logger:      logger,
		state:       Initial,
		validations: validations,
	}
}

// Buffer returns the current buffer text.
func (m *Machine) Buffer() string { return m.buffer }

// State returns the state computed by the last Revalidate.
func (m *Machine) State() State { return m.state }

// Edit replaces the buffer. The state is left as it was.
func (m *Machine) Edit(text string) {
	m.buffer = text
}

// Revalidate parses and type-checks the whole buffer and stores the result.
func (m *Machine) Revalidate() State {
	m.state = m.validate(m.buffer)

	result := "valid"
	if !IsValid(m.state) {
		result = "invalid"
	}
	m.validations.Add(context.Background(), 1, metric.WithAttributes(attribute.String("result", result)))
	m.logger.Debug("exprstate: revalidated", "result", result, "buffer_len", len(m.buffer))
	return m.state
}

func (m *Machine) validate(text string) State {
	expr, rest, err := m.fe.Parse(text)
	if err != nil {
		return Invalid{Reason: PrefixParse + err.Error()}
	}
	if strings.TrimSpace(rest) != "" {
		return Invalid{Reason: PrefixUnconsumed + rest}
	}
	scheme, err := m.fe.Infer(expr)
	if err != nil {
		return Invalid{Reason: PrefixType + err.Error()}
	}
	return Valid{Scheme: scheme, Expr: expr}
}
