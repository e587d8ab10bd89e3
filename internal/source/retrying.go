package source

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ginjaninja78/invoice-reconciler/internal/config"
	"github.com/ginjaninja78/invoice-reconciler/internal/logging"
	"github.com/ginjaninja78/invoice-reconciler/internal/types"
)

var tracer = otel.Tracer("github.com/ginjaninja78/invoice-reconciler/internal/source")

// Retrying wraps an InvoiceSource with bounded exponential backoff. Context
// cancellation and errors marked with backoff.Permanent are not retried.
type Retrying struct {
	next InvoiceSource
	cfg  config.RetryConfig
	log  logging.Logger
}

// NewRetrying wraps next. A MaxAttempts below 1 is treated as 1.
func NewRetrying(next InvoiceSource, cfg config.RetryConfig, log logging.Logger) *Retrying {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Retrying{next: next, cfg: cfg, log: log}
}

// ListInvoices implements InvoiceSource.
func (r *Retrying) ListInvoices(ctx context.Context, month types.Month, statuses ...types.InvoiceStatus) ([]types.Invoice, error) {
	ctx, span := tracer.Start(ctx, "source.ListInvoices")
	defer span.End()
	span.SetAttributes(attribute.String("reconciler.month", month.String()))

	attempts := 0
	op := func() ([]types.Invoice, error) {
		attempts++
		invoices, err := r.next.ListInvoices(ctx, month, statuses...)
		if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			return nil, backoff.Permanent(err)
		}
		return invoices, err
	}

	notify := func(err error, wait time.Duration) {
		r.log.Warn("invoice fetch failed, retrying", "month", month.String(), "attempt", attempts, "wait", wait, "error", err)
	}

	invoices, err := backoff.RetryNotifyWithData(op, backoff.WithContext(r.policy(), ctx), notify)
	span.SetAttributes(attribute.Int("reconciler.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invoice fetch failed")
		return nil, err
	}
	return invoices, nil
}

func (r *Retrying) policy() backoff.BackOff {
	opts := []backoff.ExponentialBackOffOpts{backoff.WithMaxElapsedTime(0)}
	if r.cfg.InitialInterval > 0 {
		opts = append(opts, backoff.WithInitialInterval(r.cfg.InitialInterval))
	}
	if r.cfg.MaxInterval > 0 {
		opts = append(opts, backoff.WithMaxInterval(r.cfg.MaxInterval))
	}
	return backoff.WithMaxRetries(backoff.NewExponentialBackOff(opts...), uint64(r.cfg.MaxAttempts-1))
}
