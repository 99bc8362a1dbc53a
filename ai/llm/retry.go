package llm

import (
	"context"
	"net"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/shopper/errors"
)

const (
	// DefaultAttempts is how many times a provider call is tried
	DefaultAttempts = 3

	// DefaultRetryDelay is multiplied by the attempt number between tries
	DefaultRetryDelay = time.Second
)

// RetryPolicy retries retryable errors with linear backoff
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// DefaultRetryPolicy returns 3 attempts with 1s, 2s backoff
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: DefaultAttempts, Delay: DefaultRetryDelay}
}

// Do calls fn until it succeeds, returns a non-retryable error, or attempts run out.
// Waiting between attempts respects ctx.
func (p RetryPolicy) Do(ctx context.Context, log *zap.SugaredLogger, provider string, fn func(context.Context) error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * p.Delay
			log.Debugw("Retrying request", "provider", provider, "attempt", attempt+1, "delay", delay)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return errors.Wrapf(ctx.Err(), "%s request cancelled while retrying", provider)
			case <-timer.C:
			}
		}

		err = fn(ctx)
		if err == nil {
			if attempt > 0 {
				log.Infow("Request succeeded after retries", "provider", provider, "attempts", attempt+1)
			}
			return nil
		}

		log.Warnw("Provider API error",
			"provider", provider,
			"attempt", attempt+1,
			"max_attempts", attempts,
			"error", err,
		)

		if ctx.Err() != nil {
			return errors.WithSecondaryError(errors.Wrapf(ctx.Err(), "%s request cancelled", provider), err)
		}
		if !IsRetryable(err) {
			return errors.Wrapf(err, "%s API error", provider)
		}
	}
	return errors.Wrapf(err, "%s API error after %d attempts", provider, attempts)
}

// IsRetryable checks if an error is worth retrying: network failures, timeouts,
// rate limiting and 5xx responses
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.IsAny(err, errors.ErrServiceUnavailable, errors.ErrTimeout) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ETIMEDOUT:
			return true
		}
	}

	// Check for common network error strings
	errStr := strings.ToLower(err.Error())
	for _, netErr := range []string{
		"connection reset by peer",
		"connection refused",
		"temporary failure",
		"network is unreachable",
		"i/o timeout",
	} {
		if strings.Contains(errStr, netErr) {
			return true
		}
	}

	return false
}

// StatusError classifies a non-2xx HTTP response
func StatusError(status int, body []byte) error {
	const maxBody = 512
	text := strings.TrimSpace(string(body))
	if len(text) > maxBody {
		text = text[:maxBody] + "..."
	}
	return errors.Wrapf(errors.FromHTTPStatus(status), "API request failed with status %d: %s", status, text)
}
