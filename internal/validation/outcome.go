// Package validation decides whether a newly minted credential actually
// works. Plugins perform the real probe (SQL query, userinfo call, TLS
// handshake); this package wraps the probe with a wall-clock timeout,
// classifies failures, and decides between retry and rollback.
package validation

import (
	"strings"
	"time"
)

// Outcome is the result of probing a credential against its target service.
type Outcome struct {
	Passed   bool          `json:"passed"`
	Message  string        `json:"message"`
	Method   string        `json:"method"`
	Duration time.Duration `json:"duration"`
}

// FailureType classifies a validation failure.
type FailureType string

const (
	FailureNetworkError       FailureType = "network_error"
	FailureTimeout            FailureType = "timeout"
	FailureServiceUnavailable FailureType = "service_unavailable"
	FailureAuthentication     FailureType = "authentication_error"
	FailureAuthorization      FailureType = "authorization_error"
	FailureInvalidFormat      FailureType = "invalid_format"
	FailureUnknown            FailureType = "unknown"
)

// IsTransient reports whether the failure is likely to resolve on retry.
func (f FailureType) IsTransient() bool {
	switch f {
	case FailureNetworkError, FailureTimeout, FailureServiceUnavailable:
		return true
	default:
		return false
	}
}

// IsPermanent reports whether the failure needs a different credential or
// operator action.
func (f FailureType) IsPermanent() bool {
	return !f.IsTransient()
}

// classificationRules map message substrings to failure types. Order
// matters: timeout before network before auth, so "connection timeout"
// classifies as Timeout, not NetworkError.
var classificationRules = []struct {
	failureType FailureType
	patterns    []string
}{
	{FailureTimeout, []string{"timeout", "timed out", "deadline exceeded"}},
	{FailureNetworkError, []string{"connection refused", "connection reset", "network", "dns"}},
	{FailureAuthentication, []string{"unauthorized", "invalid credentials", "auth failed", "401"}},
	{FailureAuthorization, []string{"forbidden", "permission denied", "403"}},
	{FailureServiceUnavailable, []string{"service unavailable", "503", "temporarily unavailable"}},
	{FailureInvalidFormat, []string{"invalid format", "malformed", "parse error"}},
}

// Classify maps a failure message to a FailureType. The match is
// case-insensitive and every message classifies to exactly one type.
func Classify(message string) FailureType {
	msg := strings.ToLower(message)
	for _, rule := range classificationRules {
		for _, pattern := range rule.patterns {
			if strings.Contains(msg, pattern) {
				return rule.failureType
			}
		}
	}
	return FailureUnknown
}
