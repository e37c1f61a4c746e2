package utils

import (
	"context"
	"errors"
	"net"
	"strings"
)

// --- Sentinel Errors for Categorization ---
var (
	ErrRetryFailed       = errors.New("request failed after all retries") // Wraps the last underlying error
	ErrFetchTransient    = errors.New("transient fetch error")            // Timeout, 5xx, connection reset; retryable
	ErrFetchPermanent    = errors.New("permanent fetch error")            // 404/410/malformed URL; never retried
	ErrRobotsDisallowed  = errors.New("disallowed by robots.txt")
	ErrParsing           = errors.New("parsing error")  // Wraps HTML/URL/JSON/XML parse failures
	ErrDatabase          = errors.New("database error") // Wraps badger/mongo errors
	ErrPersistFailed     = errors.New("persist failed after all retries")
	ErrRecordRejected    = errors.New("store rejected record") // Record-scoped write rejection; the store itself is healthy
	ErrIndexRequest      = errors.New("secondary index request failed")
	ErrCheckpointCorrupt = errors.New("checkpoint file corrupt")
	ErrRequestCreation   = errors.New("failed to create HTTP request")
	ErrResponseBodyRead  = errors.New("failed to read response body")
	ErrConfigValidation  = errors.New("configuration validation error")
	ErrLeaseViolation    = errors.New("report for URL without an active lease")
)

// CategorizeError maps an error to a predefined category string used for
// failure reasons on URL records and for log fields.
func CategorizeError(err error) string {
	if err == nil {
		return "None"
	}

	switch {
	case errors.Is(err, ErrRetryFailed):
		errMsg := strings.ToLower(err.Error())
		switch {
		case strings.Contains(errMsg, "status 429"):
			return "RetryFailed_HTTPTooManyRequests"
		case strings.Contains(errMsg, "status 5"):
			return "RetryFailed_HTTPServer"
		case strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline exceeded"):
			return "RetryFailed_Timeout"
		case strings.Contains(errMsg, "connection refused"):
			return "RetryFailed_ConnectionRefused"
		case strings.Contains(errMsg, "reset by peer"):
			return "RetryFailed_ConnectionReset"
		case strings.Contains(errMsg, "no such host"):
			return "RetryFailed_DNSLookup"
		}
		return "RetryFailed_Other"
	case errors.Is(err, ErrFetchPermanent):
		errMsg := err.Error()
		if strings.Contains(errMsg, " 404 ") || strings.Contains(errMsg, "status 404") {
			return "HTTP_404"
		}
		if strings.Contains(errMsg, " 410 ") || strings.Contains(errMsg, "status 410") {
			return "HTTP_410"
		}
		if strings.Contains(errMsg, "URL") {
			return "Fetch_MalformedURL"
		}
		return "HTTP_4xx"
	case errors.Is(err, ErrFetchTransient):
		return "Fetch_Transient"
	case errors.Is(err, ErrRobotsDisallowed):
		return "Policy_Robots"
	case errors.Is(err, ErrParsing):
		errMsg := err.Error()
		if strings.Contains(errMsg, "JSON") {
			return "Content_ParsingJSON"
		}
		if strings.Contains(errMsg, "HTML") {
			return "Content_ParsingHTML"
		}
		if strings.Contains(errMsg, "XML") {
			return "Content_ParsingXML"
		}
		return "Content_ParsingOther"
	case errors.Is(err, ErrRecordRejected):
		return "Persist_RecordRejected"
	case errors.Is(err, ErrPersistFailed):
		return "Persist_Failed"
	case errors.Is(err, ErrDatabase):
		return "Database_Other"
	case errors.Is(err, ErrIndexRequest):
		return "Index_RequestFailed"
	case errors.Is(err, ErrCheckpointCorrupt):
		return "Checkpoint_Corrupt"
	case errors.Is(err, ErrRequestCreation):
		return "Internal_RequestCreation"
	case errors.Is(err, ErrResponseBodyRead):
		return "Network_BodyRead"
	case errors.Is(err, ErrConfigValidation):
		return "Config_Validation"
	case errors.Is(err, ErrLeaseViolation):
		return "Internal_LeaseViolation"
	}

	// Context errors
	if errors.Is(err, context.Canceled) {
		return "System_ContextCanceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "System_ContextDeadlineExceeded"
	}

	// Network errors not wrapped by the sentinels above
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Network_Timeout"
	}
	lowerErrMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lowerErrMsg, "timeout"):
		return "Network_TimeoutGeneric"
	case strings.Contains(lowerErrMsg, "connection refused"):
		return "Network_ConnectionRefused"
	case strings.Contains(lowerErrMsg, "no such host"):
		return "Network_DNSLookup"
	case strings.Contains(lowerErrMsg, "reset by peer"):
		return "Network_ConnectionReset"
	case strings.Contains(lowerErrMsg, "tls") || strings.Contains(lowerErrMsg, "certificate"):
		return "Network_TLS"
	}

	return "Unknown"
}
