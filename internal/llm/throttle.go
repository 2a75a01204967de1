package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var _ Backend = (*Throttled)(nil)

// Throttled wraps a Backend with a token-bucket rate limit and a per-call timeout.
type Throttled struct {
	next    Backend
	limiter *rate.Limiter
	timeout time.Duration
	logger  *zap.Logger
}

// NewThrottled wraps next. rps <= 0 disables rate limiting; timeout <= 0 disables the deadline.
func NewThrottled(next Backend, rps float64, burst int, timeout time.Duration, opts ...Option) *Throttled {
	s := applyOptions(opts)
	t := &Throttled{next: next, timeout: timeout, logger: s.logger}
	if rps > 0 {
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return t
}

func (t *Throttled) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel, err := t.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	vec, err := t.next.Embed(ctx, text)
	return vec, t.wrap(ctx, "embed", err)
}

func (t *Throttled) Chat(ctx context.Context, messages []Message) (string, error) {
	ctx, cancel, err := t.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer cancel()
	out, err := t.next.Chat(ctx, messages)
	return out, t.wrap(ctx, "chat", err)
}

func (t *Throttled) Models(ctx context.Context) ([]string, error) {
	ctx, cancel := t.withTimeout(ctx)
	defer cancel()
	return t.next.Models(ctx)
}

func (t *Throttled) Health(ctx context.Context) error {
	ctx, cancel := t.withTimeout(ctx)
	defer cancel()
	return t.next.Health(ctx)
}

func (t *Throttled) acquire(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}
	ctx, cancel := t.withTimeout(ctx)
	return ctx, cancel, nil
}

func (t *Throttled) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, t.timeout)
}

func (t *Throttled) wrap(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		t.logger.Warn("backend call timed out", zap.String("op", op), zap.Duration("timeout", t.timeout))
		return fmt.Errorf("%s timed out after %s: %w", op, t.timeout, err)
	}
	return err
}
