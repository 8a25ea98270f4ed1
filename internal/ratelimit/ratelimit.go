// Package ratelimit extracts suggested wait durations from rate-limit
// text and provides the loop's cancellable countdown wait.
package ratelimit

import (
	"context"
	"regexp"
	"strconv"
	"time"
)

// DefaultWait is used when the rate-limit text carries no timing info
const DefaultWait = 5 * time.Minute

// tick is a variable so tests can compress the countdown
var tick = time.Second

var waitPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)try again in (\d+) seconds?`),
	regexp.MustCompile(`(?i)wait (\d+) seconds?`),
	regexp.MustCompile(`(?i)(\d+) seconds? remaining`),
	regexp.MustCompile(`(?i)retry after (\d+)`),
}

// ExtractWait scans output for a suggested wait duration. The second
// return value is false when no pattern matched; the caller then falls
// back to DefaultWait.
func ExtractWait(output string) (time.Duration, bool) {
	for _, pat := range waitPatterns {
		m := pat.FindStringSubmatch(output)
		if m == nil {
			continue
		}
		secs, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		return time.Duration(secs) * time.Second, true
	}
	return 0, false
}

// Countdown waits for d at second granularity, invoking onTick with the
// remaining whole seconds once per second including an initial call.
// It returns ctx.Err() if the context is canceled before the countdown
// reaches zero. This and the agent invocation are the loop's only
// intentional suspension points.
func Countdown(ctx context.Context, d time.Duration, onTick func(remaining int)) error {
	remaining := int((d + tick - 1) / tick)

	for remaining > 0 {
		if onTick != nil {
			onTick(remaining)
		}

		timer := time.NewTimer(tick)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		remaining--
	}

	return nil
}
