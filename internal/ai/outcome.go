package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
)

type Status int

const (
	StatusSuccess Status = iota
	// transient upstream failure: connection, timeout, rejected request, 5xx
	StatusProviderError
	StatusUnknownError
	// output withheld by the "block" output moderation policy
	StatusFlagged
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusProviderError:
		return "provider_error"
	case StatusUnknownError:
		return "unknown_error"
	case StatusFlagged:
		return "flagged"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome is the result of one completion call. Text is set on success (and may be
// empty); Detail carries the internal error description and must not reach users.
type Outcome struct {
	Status Status
	Text   string
	Detail string
}

func Success(text string) Outcome { return Outcome{Status: StatusSuccess, Text: text} }

func Failure(err error) Outcome {
	return Outcome{Status: Classify(err), Detail: err.Error()}
}

// HTTPError is a non-2xx answer from a provider.
type HTTPError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Classify maps connection errors, timeouts, 400 and 5xx answers to
// StatusProviderError and everything else to StatusUnknownError.
func Classify(err error) Status {
	if err == nil {
		return StatusSuccess
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode == 400 || httpErr.StatusCode >= 500 {
			return StatusProviderError
		}
		return StatusUnknownError
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return StatusProviderError
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return StatusProviderError
	}
	return StatusUnknownError
}
