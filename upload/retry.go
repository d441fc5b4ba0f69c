// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package upload

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"

	"github.com/comet-ml/opik-sub005/attachment"
)

// retry calls f until it succeeds, fails permanently, or has failed
// transiently RetryAttempts times.  Only attachment.TransientError
// failures are retried.  The final transient error is returned as is;
// callers decide whether that becomes ErrUnavailable.
func retry[T any](ctx context.Context, c *Coordinator, op string, f func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.RetryInitial
	b.MaxInterval = c.RetryMax
	return backoff.Retry(ctx, func() (T, error) {
		v, err := f()
		if err != nil && !attachment.IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.RetryAttempts)),
		backoff.WithNotify(func(err error, delay time.Duration) {
			c.Logger.WithFields(logrus.Fields{
				"op":    op,
				"err":   err,
				"delay": delay,
			}).Warn("Retrying blob store call")
		}),
	)
}

// unavailable converts an exhausted transient failure to the error a
// client sees.  Other errors pass through.
func unavailable(err error) error {
	if attachment.IsTransient(err) {
		return attachment.ErrUnavailable{Err: err}
	}
	return err
}
