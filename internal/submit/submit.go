// Package submit turns a validated expression into a create call on the
// ledger node and folds the reply into a status line.
package submit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/sensemaker/internal/bundle"
	"github.com/ashita-ai/sensemaker/internal/ctxutil"
	"github.com/ashita-ai/sensemaker/internal/exprstate"
	"github.com/ashita-ai/sensemaker/internal/hash"
	"github.com/ashita-ai/sensemaker/internal/lang"
	"github.com/ashita-ai/sensemaker/internal/ledger"
	"github.com/ashita-ai/sensemaker/internal/telemetry"
)

// Resolver yields the DNA hash of the application bundle.
type Resolver interface {
	Resolve(ctx context.Context) (hash.DnaHash, error)
}

// Invoker dispatches a zome call. *ledger.Client implements it.
type Invoker interface {
	Invoke(ctx context.Context, call ledger.ZomeCall) (ledger.ExternIO, error)
}

// ArgsFunc supplies the argument list sent alongside an expression.
type ArgsFunc func(expr lang.Expr) []hash.HeaderHash

// NoArgs is the default ArgsFunc.
func NoArgs(lang.Expr) []hash.HeaderHash { return nil }

// Request is the input of one submission. It is built from a Valid state and
// discarded after the attempt.
type Request struct {
	Expr  lang.Expr
	Args  []hash.HeaderHash
	Agent hash.AgentPubKey
	Cell  hash.CellID
}

// createInput is the msgpack payload of the create call.
type createInput struct {
	Expr lang.Expr         `msgpack:"expr"`
	Args []hash.HeaderHash `msgpack:"args"`
}

// Outcome is the result of one submission: either the hash of the created
// entry or an *Error.
type Outcome struct {
	ID   uuid.UUID
	Cell hash.CellID
	Hash hash.HeaderHash
	Err  error
}

// Status renders the outcome for the status pane.
func (o Outcome) Status() string {
	if o.Err != nil {
		return "error: " + o.Err.Error()
	}
	return "create: ie_hash: " + o.Hash.String()
}

// Orchestrator runs submissions. Calls to the invoker are serialized: the
// ledger connection is a single shared handle.
type Orchestrator struct {
	resolver Resolver
	invoker  Invoker
	logger   *slog.Logger

	zome    string
	fn      string
	timeout time.Duration
	args    ArgsFunc
	agent   func() hash.AgentPubKey

	sem chan struct{}

	tracer      trace.Tracer
	submissions metric.Int64Counter
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTarget sets the zome and function the create call names.
func WithTarget(zome, fn string) Option {
	return func(o *Orchestrator) { o.zome, o.fn = zome, fn }
}

// WithTimeout bounds each submission. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// WithArgs sets the argument supplier.
func WithArgs(f ArgsFunc) Option {
	return func(o *Orchestrator) { o.args = f }
}

// WithIdentity sets how the signing identity is constructed for each submission.
func WithIdentity(f func() hash.AgentPubKey) Option {
	return func(o *Orchestrator) { o.agent = f }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New creates an Orchestrator that resolves the bundle with r and calls the node with inv.
func New(r Resolver, inv Invoker, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		resolver: r,
		invoker:  inv,
		logger:   slog.Default(),
		zome:     "interpreter",
		fn:       "create_interchange_entry",
		timeout:  30 * time.Second,
		args:     NoArgs,
		agent:    hash.PlaceholderAgent,
		sem:      make(chan struct{}, 1),
		tracer:   telemetry.Tracer("sensemaker/submit"),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.submissions, _ = telemetry.Meter("sensemaker/submit").Int64Counter("sensemaker.submissions",
		metric.WithDescription("Submissions by outcome"),
	)
	return o
}

// Submit creates an entry for the expression in state. It reports false and
// does nothing when state is not Valid. Every failure comes back inside the
// Outcome; Submit never panics on node or file errors.
func (o *Orchestrator) Submit(ctx context.Context, state exprstate.State) (Outcome, bool) {
	valid, ok := state.(exprstate.Valid)
	if !ok {
		return Outcome{}, false
	}

	out := Outcome{ID: uuid.New()}
	ctx = ctxutil.WithSubmissionID(ctx, out.ID)
	ctx, span := o.tracer.Start(ctx, "submit", trace.WithAttributes(
		attribute.String("submission_id", out.ID.String()),
		attribute.String("zome", o.zome),
		attribute.String("fn", o.fn),
	))
	defer span.End()

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	out.Cell, out.Hash, out.Err = o.run(ctx, span, valid)

	result := "created"
	if out.Err != nil {
		result = string(KindOf(out.Err))
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, out.Err.Error())
		o.logger.Warn("submit: failed", "submission_id", out.ID, "kind", result, "error", out.Err)
	} else {
		span.SetAttributes(attribute.String("ie_hash", out.Hash.String()))
		o.logger.Info("submit: created entry",
			"submission_id", out.ID,
			"cell_id", out.Cell.String(),
			"ie_hash", out.Hash.String(),
		)
	}
	o.submissions.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(attribute.String("outcome", result)))
	return out, true
}

func (o *Orchestrator) run(ctx context.Context, span trace.Span, valid exprstate.Valid) (hash.CellID, hash.HeaderHash, error) {
	req, err := o.prepare(ctx, valid)
	if err != nil {
		return hash.CellID{}, hash.HeaderHash{}, err
	}
	span.AddEvent("cell resolved", trace.WithAttributes(attribute.String("cell_id", req.Cell.String())))

	args := req.Args
	if args == nil {
		args = []hash.HeaderHash{}
	}
	payload, err := ledger.EncodeExternIO(createInput{Expr: req.Expr, Args: args})
	if err != nil {
		return req.Cell, hash.HeaderHash{}, &Error{Kind: KindEncode, Err: err}
	}
	span.AddEvent("payload encoded", trace.WithAttributes(attribute.Int("payload_bytes", len(payload))))

	reply, err := o.invoke(ctx, ledger.ZomeCall{
		CellID:     req.Cell,
		ZomeName:   o.zome,
		FnName:     o.fn,
		Payload:    payload,
		Provenance: req.Agent,
	})
	if err != nil {
		kind := KindTransport
		if ledger.IsRejected(err) {
			kind = KindRejected
		}
		return req.Cell, hash.HeaderHash{}, &Error{Kind: kind, Err: err}
	}
	span.AddEvent("node replied")

	var ie hash.HeaderHash
	if err := reply.Decode(&ie); err != nil {
		return req.Cell, hash.HeaderHash{}, &Error{Kind: KindDecode, Err: err}
	}
	if ie.IsZero() {
		return req.Cell, hash.HeaderHash{}, &Error{Kind: KindDecode, Err: fmt.Errorf("submit: empty header hash in reply")}
	}
	return req.Cell, ie, nil
}

// prepare resolves the bundle and derives the cell the call targets.
func (o *Orchestrator) prepare(ctx context.Context, valid exprstate.Valid) (Request, error) {
	dna, err := o.resolver.Resolve(ctx)
	if err != nil {
		kind := KindBundleConversion
		switch {
		case errors.Is(err, bundle.ErrRead):
			kind = KindBundleRead
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			kind = KindTransport
		}
		return Request{}, &Error{Kind: kind, Err: err}
	}
	agent := o.agent()
	return Request{
		Expr:  valid.Expr,
		Args:  o.args(valid.Expr),
		Agent: agent,
		Cell:  hash.NewCellID(dna, agent),
	}, nil
}

func (o *Orchestrator) invoke(ctx context.Context, call ledger.ZomeCall) (ledger.ExternIO, error) {
	select {
	case o.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("submit: waiting for connection: %w", ctx.Err())
	}
	defer func() { <-o.sem }()
	return o.invoker.Invoke(ctx, call)
}
