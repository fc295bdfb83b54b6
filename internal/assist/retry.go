package assist

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/responses"
)

// Backoff schedules. Interactive callers wait far less than batch jobs would.
var (
	rateLimitWaitTimes   = []time.Duration{2 * time.Second, 5 * time.Second}
	serverErrorWaitTimes = []time.Duration{500 * time.Millisecond, 2 * time.Second}
)

const maxRetries = 3

func callWithRetry(ctx context.Context, r responder, params responses.ResponseNewParams) (*responses.Response, error) {
	for attempt := 0; attempt < maxRetries; attempt++ {
		resp, err := r.New(ctx, params)
		if err == nil {
			return resp, nil
		}

		var wait time.Duration
		switch {
		case attempt >= maxRetries-1:
			return nil, err
		case isRateLimitError(err):
			wait = rateLimitWaitTimes[min(attempt, len(rateLimitWaitTimes)-1)]
		case isServerError(err):
			wait = serverErrorWaitTimes[min(attempt, len(serverErrorWaitTimes)-1)]
		default:
			return nil, err
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("failed after %d attempts due to OpenAI API issues", maxRetries)
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests")
}

func isServerError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "server_error")
}
