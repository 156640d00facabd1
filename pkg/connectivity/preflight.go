package connectivity

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// Preflight checks that the identity service issues a destination token,
// retrying with backoff (250ms doubling to 2s) until budget is spent.
// Missing bindings fail at once. Meant for startup; calls never retry.
func (c *Client) Preflight(ctx context.Context, budget time.Duration) error {
	b, err := c.resolve(callOptions{}, false)
	if err != nil {
		return err
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 250 * time.Millisecond
	eb.MaxInterval = 2 * time.Second

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		_, err := c.fetchToken(ctx, StepDestinationToken, b.identity, b.destination)
		if errors.Is(err, ErrConfiguration) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(eb),
		backoff.WithMaxElapsedTime(budget),
		backoff.WithNotify(func(err error, d time.Duration) {
			c.log.Info("preflight retry", zap.Duration("in", d), zap.Error(err))
		}),
	)
	return err
}
