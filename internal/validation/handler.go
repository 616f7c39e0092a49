package validation

// FailureHandler decides what happens after a failed validation: retry the
// probe, or roll the rotation back.
type FailureHandler struct {
	// MaxRetries is how many retries a transient failure earns.
	MaxRetries int

	// AutoRollback enables rollback when retries are exhausted or the
	// failure is permanent.
	AutoRollback bool
}

// NewFailureHandler creates a handler with the given retry budget.
func NewFailureHandler(maxRetries int, autoRollback bool) *FailureHandler {
	return &FailureHandler{MaxRetries: maxRetries, AutoRollback: autoRollback}
}

// ShouldRetry reports whether the probe should run again. Only transient
// failures retry, and only while the budget lasts.
func (h *FailureHandler) ShouldRetry(kind FailureType, retryCount int) bool {
	return kind.IsTransient() && retryCount < h.MaxRetries
}

// ShouldTriggerRollback reports whether the rotation should roll back:
// permanent failures immediately, transient failures once the budget is
// spent, and only when AutoRollback is on.
func (h *FailureHandler) ShouldTriggerRollback(kind FailureType, retryCount int) bool {
	if !h.AutoRollback {
		return false
	}
	return kind.IsPermanent() || (kind.IsTransient() && retryCount >= h.MaxRetries)
}
