package service

import (
	"context"
	"errors"
	"time"

	"qtc-marketplace/internal/apperr"
	"qtc-marketplace/internal/config"
	"qtc-marketplace/internal/model"

	"github.com/sethvargo/go-retry"
)

// PollConfig paces status polling for poll-completion gateways.
type PollConfig struct {
	InitialDelay  time.Duration
	Interval      time.Duration
	ErrorInterval time.Duration
	Ceiling       time.Duration
}

func NewPollConfig(cfg *config.Poll) PollConfig {
	return PollConfig{
		InitialDelay:  cfg.InitialDelay,
		Interval:      cfg.Interval,
		ErrorInterval: cfg.ErrorInterval,
		Ceiling:       cfg.Ceiling,
	}
}

var (
	ErrPollCeiling  = errors.New("payment still pending after polling ceiling")
	errStillPending = errors.New("payment pending")
)

type statusFetcher func(ctx context.Context) (*model.Order, error)

// pollStatus calls fetch one at a time until a terminal outcome, a non-retryable
// error, cancellation of ctx, or the ceiling. onUpdate sees every successful answer.
func pollStatus(ctx context.Context, cfg PollConfig, fetch statusFetcher, onUpdate func(*model.Order)) (*model.Order, error) {
	pollCtx, cancel := context.WithTimeout(ctx, cfg.Ceiling)
	defer cancel()

	if err := sleep(pollCtx, cfg.InitialDelay); err != nil {
		return nil, pollExit(ctx, err)
	}

	var (
		last    *model.Order
		lastErr error
	)
	backoff := retry.BackoffFunc(func() (time.Duration, bool) {
		if lastErr != nil && !errors.Is(lastErr, errStillPending) {
			return cfg.ErrorInterval, false
		}
		return cfg.Interval, false
	})

	err := retry.Do(pollCtx, backoff, func(ctx context.Context) error {
		order, err := fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if apperr.IsCode(err, apperr.CodeConfiguration) || apperr.IsCode(err, apperr.CodeValidation) {
				return err
			}
			lastErr = err
			return retry.RetryableError(err)
		}

		last = order
		onUpdate(order)
		if order.Outcome.Terminal() {
			return nil
		}
		lastErr = errStillPending
		return retry.RetryableError(errStillPending)
	})
	if err != nil {
		return last, pollExit(ctx, err)
	}
	return last, nil
}

// pollExit tells the ceiling apart from cancellation by the caller.
func pollExit(parent context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
		return ErrPollCeiling
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
