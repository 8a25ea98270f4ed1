// Package analyze classifies raw agent output into the signals the
// iteration loop acts on. All matching is case-insensitive substring
// matching; unmatched text yields all-false.
package analyze

import "strings"

// CompletionSentinel is the marker the agent is instructed to emit only
// when the task is fully done.
const CompletionSentinel = "<promise>DONE</promise>"

var rateLimitPhrases = []string{
	"rate limit",
	"too many requests",
	"429",
	"quota exceeded",
	"capacity",
}

var errorPhrases = []string{
	"error:",
	"failed to",
	"cannot",
	"exception",
}

// Signals are the derived flags for one iteration's output
type Signals struct {
	IsComplete    bool
	IsRateLimited bool
	HasError      bool
}

// Output classifies raw agent output. Pure and total: never fails,
// has no side effects.
func Output(output string) Signals {
	lower := strings.ToLower(output)

	var s Signals
	s.IsComplete = strings.Contains(lower, strings.ToLower(CompletionSentinel))

	for _, phrase := range rateLimitPhrases {
		if strings.Contains(lower, phrase) {
			s.IsRateLimited = true
			break
		}
	}

	// A rate limit is not a generic error; the rate-limit match
	// suppresses the error flag.
	if !s.IsRateLimited {
		for _, phrase := range errorPhrases {
			if strings.Contains(lower, phrase) {
				s.HasError = true
				break
			}
		}
	}

	return s
}
