package sims

import (
	"context"
	"time"
)

// connectWithBackoff retries attempt up to maxAttempts times with doubling
// backoff, on the simulator side of the boundary. (transport/ws/client.go's
// reconnect loop differs: it waits a fixed backoff and retries until its
// context is done.) It gives up and returns attempt's last error once maxAttempts is
// exhausted, or ctx.Err() if the context is cancelled while waiting.
func connectWithBackoff(ctx context.Context, maxAttempts int, backoff time.Duration, attempt func() error) error {
	delay := backoff
	var err error
	for i := 0; i < maxAttempts; i++ {
		if err = attempt(); err == nil {
			return nil
		}
		if i == maxAttempts-1 {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
