package client

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"syscall"
)

// ErrorType represents the category of error that occurred
type ErrorType int

const (
	// ErrTypeNetwork indicates a network-level error
	ErrTypeNetwork ErrorType = iota
	// ErrTypeHTTP indicates a non-2xx response
	ErrTypeHTTP
	// ErrTypeBusy indicates the daemon's command queue was full (HTTP 503)
	ErrTypeBusy
	// ErrTypeParse indicates a malformed response body
	ErrTypeParse
	// ErrTypeTimeout indicates a request timeout
	ErrTypeTimeout
	// ErrTypeConnectionRefused indicates nothing is listening on the port
	ErrTypeConnectionRefused
	// ErrTypeDNS indicates a DNS resolution failure
	ErrTypeDNS
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeNetwork:
		return "Network Error"
	case ErrTypeHTTP:
		return "HTTP Error"
	case ErrTypeBusy:
		return "Busy"
	case ErrTypeParse:
		return "Parse Error"
	case ErrTypeTimeout:
		return "Timeout"
	case ErrTypeConnectionRefused:
		return "Connection Refused"
	case ErrTypeDNS:
		return "DNS Error"
	default:
		return fmt.Sprintf("ErrorType(%d)", int(et))
	}
}

// Error is returned by every Client method.
type Error struct {
	Type       ErrorType
	Message    string
	StatusCode int    // HTTP status code, if any
	Host       string // daemon host, for hints
	Err        error
	Retryable  bool
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ClassifyNetworkError maps a transport error onto an *Error.
func ClassifyNetworkError(err error, host string) *Error {
	if err == nil {
		return nil
	}

	if os.IsTimeout(err) {
		return &Error{Type: ErrTypeTimeout, Message: "request timed out", Err: err, Host: host, Retryable: true}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &Error{Type: ErrTypeDNS, Message: fmt.Sprintf("DNS resolution failed for %s", dnsErr.Name), Err: err, Host: host}
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return &Error{Type: ErrTypeConnectionRefused, Message: "connection refused", Err: err, Host: host, Retryable: true}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != err {
		return ClassifyNetworkError(urlErr.Err, host)
	}

	return &Error{Type: ErrTypeNetwork, Message: "network error", Err: err, Host: host, Retryable: true}
}

func newHTTPError(status int, message string) *Error {
	if status == 503 {
		return &Error{Type: ErrTypeBusy, Message: message, StatusCode: status, Retryable: true}
	}
	return &Error{Type: ErrTypeHTTP, Message: message, StatusCode: status, Retryable: status >= 500}
}

func newParseError(message string, err error) *Error {
	return &Error{Type: ErrTypeParse, Message: message, Err: err}
}

func typeOf(err error) (ErrorType, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Type, true
	}
	return 0, false
}

// IsNetworkError reports whether the daemon could not be reached.
func IsNetworkError(err error) bool {
	t, ok := typeOf(err)
	return ok && (t == ErrTypeNetwork || t == ErrTypeTimeout || t == ErrTypeConnectionRefused || t == ErrTypeDNS)
}

// IsBusy reports whether the daemon rejected a command because its queue was full.
func IsBusy(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrTypeBusy
}

// IsHTTPError checks if an error is an HTTP error
func IsHTTPError(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrTypeHTTP
}

// IsParseError checks if an error is a parse error
func IsParseError(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrTypeParse
}

// IsRetryable checks if an error should be retried
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable
}

// GetShortErrorMessage returns a concise, user-friendly error message
func GetShortErrorMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return err.Error()
	}

	switch e.Type {
	case ErrTypeTimeout:
		return "Daemon not responding (timeout)"
	case ErrTypeConnectionRefused:
		return "Connection refused - is the daemon running with the API enabled?"
	case ErrTypeDNS:
		return "Cannot resolve daemon hostname"
	case ErrTypeNetwork:
		return "Network error - check connection"
	case ErrTypeBusy:
		return "Daemon busy - command queue full, try again"
	case ErrTypeHTTP:
		return fmt.Sprintf("Daemon error (HTTP %d): %s", e.StatusCode, e.Message)
	case ErrTypeParse:
		return "Failed to parse daemon response"
	default:
		return e.Message
	}
}

// GetTroubleshootingHint returns user-friendly troubleshooting advice for an error
func GetTroubleshootingHint(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "An unexpected error occurred. Please try again."
	}

	switch e.Type {
	case ErrTypeTimeout:
		return strings.Join([]string{
			"The daemon did not respond in time.",
			"Troubleshooting:",
			"  • Check that the host is powered on and on the network",
			"  • Try increasing --timeout",
		}, "\n")

	case ErrTypeConnectionRefused:
		return strings.Join([]string{
			"Nothing is listening on the API port.",
			"Troubleshooting:",
			"  • Start the daemon: smartrelay run",
			"  • Check api.enabled and api.listen in the config file",
			"  • Run 'smartrelay discover' to find daemons on the network",
		}, "\n")

	case ErrTypeDNS:
		return strings.Join([]string{
			"Could not resolve the daemon hostname.",
			"Troubleshooting:",
			"  • Use the IP address instead of hostname",
			"  • Run 'smartrelay discover' to list daemons by address",
		}, "\n")

	case ErrTypeNetwork:
		hint := []string{
			"Network communication failed.",
			"Troubleshooting:",
			"  • Check your network connection",
		}
		if e.Host != "" {
			hint = append(hint, "  • Try pinging the host: ping "+e.Host)
		}
		return strings.Join(hint, "\n")

	case ErrTypeBusy:
		return "The daemon is processing other commands. Retry in a moment."

	case ErrTypeHTTP:
		return fmt.Sprintf("The daemon returned HTTP error %d. Check the daemon log.", e.StatusCode)

	case ErrTypeParse:
		return "The response was not understood. Check that client and daemon versions match."

	default:
		return "An error occurred. Please check the error message for details."
	}
}
