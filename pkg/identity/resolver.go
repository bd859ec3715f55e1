package identity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/udplabs/omnikey/internal/retry"
	"github.com/udplabs/omnikey/pkg/telemetry"
)

// DefaultTimeout bounds all network calls made within one resolution.
const DefaultTimeout = 60 * time.Second

// Resolver executes the probe/create/poll sequence that turns a wallet
// address into an omnikey identity. It is stateless across calls and safe
// for concurrent use.
type Resolver struct {
	client   *Client
	schedule retry.Schedule
	waiter   retry.Waiter
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	tracer   trace.Tracer
}

// Option customises a Resolver.
type Option func(*Resolver)

// WithSchedule overrides the settle delay and inter-attempt waits.
func WithSchedule(schedule retry.Schedule) Option {
	return func(r *Resolver) {
		r.schedule = schedule
	}
}

// WithWaiter substitutes the wait implementation. Tests use a fake that
// records durations instead of sleeping.
func WithWaiter(waiter retry.Waiter) Option {
	return func(r *Resolver) {
		r.waiter = waiter
	}
}

// WithTimeout overrides the per-resolution deadline.
func WithTimeout(timeout time.Duration) Option {
	return func(r *Resolver) {
		r.timeout = timeout
	}
}

// WithLogger sets the logger resolution events are emitted through.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithMetrics enables Prometheus resolution metrics.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = metrics
	}
}

// NewResolver creates a resolver over the given client.
func NewResolver(client *Client, opts ...Option) *Resolver {
	r := &Resolver{
		client:   client,
		schedule: retry.DefaultSchedule(),
		waiter:   retry.SleepWaiter{},
		timeout:  DefaultTimeout,
		logger:   slog.Default(),
		tracer:   telemetry.Tracer(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the omnikey identity for the wallet address, creating it
// on the remote side when it does not exist yet. Terminal failures are
// ErrCreateRejected, ErrExhausted, or a wrapped context error when the
// per-resolution deadline expires.
func (r *Resolver) Resolve(ctx context.Context, walletAddress string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	logger := r.logger.With(
		"wallet_address", walletAddress,
		"resolution_id", uuid.NewString(),
	)

	ctx, span := r.tracer.Start(ctx, "identity.resolve",
		trace.WithAttributes(attribute.String("identity.wallet_address", walletAddress)),
	)
	defer span.End()

	start := time.Now()
	id, attempts, outcome, err := r.resolve(ctx, logger, walletAddress)

	span.SetAttributes(
		attribute.String("identity.outcome", string(outcome)),
		attribute.Int("identity.fetch_attempts", attempts),
	)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}

	telemetry.RecordResolution(ctx, telemetry.Resolution{
		Outcome:  outcome,
		Attempts: attempts,
		Duration: time.Since(start),
	})
	if r.metrics != nil {
		r.metrics.RecordResolution(outcome, attempts, time.Since(start))
	}

	return id, err
}

// ResolveOrEmpty collapses every failure into an empty string, matching
// callers that only care whether an identity came back.
func (r *Resolver) ResolveOrEmpty(ctx context.Context, walletAddress string) string {
	id, err := r.Resolve(ctx, walletAddress)
	if err != nil {
		return ""
	}
	return id
}

func (r *Resolver) resolve(ctx context.Context, logger *slog.Logger, walletAddress string) (string, int, telemetry.Outcome, error) {
	// Probe first: the identity usually exists already and the rest of
	// the flow can be skipped. Probe failures of any kind are non-fatal.
	id, ok, err := r.client.Fetch(ctx, walletAddress)
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return "", 0, telemetry.OutcomeTimeout, fmt.Errorf("probe fetch: %w", ctx.Err())
		}
		logger.Debug("probe fetch failed", "error", err)
	case ok:
		logger.Info("identity already assigned", "omnikey_id", id)
		return id, 0, telemetry.OutcomeResolved, nil
	default:
		logger.Debug("probe found no assigned identity")
	}

	logger.Info("creating identity")
	if err := r.client.Create(ctx, walletAddress); err != nil {
		if ctx.Err() != nil {
			return "", 0, telemetry.OutcomeTimeout, fmt.Errorf("create identity: %w", ctx.Err())
		}
		return "", 0, telemetry.OutcomeCreateRejected, fmt.Errorf("%w: %s", ErrCreateRejected, err)
	}

	// Remote provisioning is asynchronous; give it time to settle before
	// the first fetch.
	logger.Debug("waiting for provisioning to settle", "wait", r.schedule.Settle)
	if err := r.waiter.Wait(ctx, r.schedule.Settle); err != nil {
		return "", 0, telemetry.OutcomeTimeout, fmt.Errorf("settle wait: %w", err)
	}

	attempts := r.schedule.Attempts()
	for attempt := 1; attempt <= attempts; attempt++ {
		id, ok, err := r.client.Fetch(ctx, walletAddress)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return "", attempt, telemetry.OutcomeTimeout, fmt.Errorf("fetch attempt %d: %w", attempt, ctx.Err())
			}
			logger.Warn("fetch attempt failed", "attempt", attempt, "error", err)
		case ok:
			logger.Info("identity assigned", "omnikey_id", id, "attempt", attempt)
			return id, attempt, telemetry.OutcomeCreated, nil
		default:
			logger.Debug("identity not assigned yet", "attempt", attempt)
		}

		// No wait after the final attempt.
		if gap, more := r.schedule.Gap(attempt); more {
			logger.Debug("waiting before next fetch", "attempt", attempt, "wait", gap)
			if err := r.waiter.Wait(ctx, gap); err != nil {
				return "", attempt, telemetry.OutcomeTimeout, fmt.Errorf("retry wait: %w", err)
			}
		}
	}

	logger.Warn("all fetch attempts exhausted", "attempts", attempts)
	return "", attempts, telemetry.OutcomeExhausted, fmt.Errorf("%w after %d attempts", ErrExhausted, attempts)
}
