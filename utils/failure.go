package utils

import "go.uber.org/zap"

// FailureKind classifies a failure for reporting.
type FailureKind string

const (
	// FailureNotFound: requested post or blob has no stored counterpart.
	FailureNotFound FailureKind = "not_found"
	// FailureValidation: rejected or coerced caller input.
	FailureValidation FailureKind = "validation"
	// FailureDegraded: an optional dependency (search index, cache, object storage) is unavailable.
	FailureDegraded FailureKind = "degraded_dependency"
	// FailurePartialItem: one item of a batch failed, the batch continues.
	FailurePartialItem FailureKind = "partial_item"
	// FailureStorage: unexpected I/O error on the local store.
	FailureStorage FailureKind = "storage"
)

// ReportFailure is the single reporting path for handled failures.
// Degraded dependencies and partial items are warnings, storage failures are errors.
func ReportFailure(logger *zap.Logger, kind FailureKind, msg string, fields ...zap.Field) {
	if logger == nil {
		logger = Logger
	}
	fields = append(fields, zap.String("failure", string(kind)))
	switch kind {
	case FailureStorage:
		logger.Error(msg, fields...)
	case FailureDegraded, FailurePartialItem:
		logger.Warn(msg, fields...)
	default:
		logger.Info(msg, fields...)
	}
}
