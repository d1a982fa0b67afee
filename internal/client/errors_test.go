package client

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"
	"testing"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestClassifyNetworkError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantType  ErrorType
		retryable bool
	}{
		{
			name:      "timeout",
			err:       &url.Error{Op: "Get", URL: "http://pi:8080", Err: &net.OpError{Op: "dial", Net: "tcp", Err: timeoutError{}}},
			wantType:  ErrTypeTimeout,
			retryable: true,
		},
		{
			name:      "connection refused",
			err:       &url.Error{Op: "Get", URL: "http://pi:8080", Err: &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}},
			wantType:  ErrTypeConnectionRefused,
			retryable: true,
		},
		{
			name:     "dns",
			err:      &net.DNSError{Err: "no such host", Name: "nowhere.local", IsNotFound: true},
			wantType: ErrTypeDNS,
		},
		{
			name:      "generic",
			err:       errors.New("broken pipe"),
			wantType:  ErrTypeNetwork,
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyNetworkError(tt.err, "pi")
			if got.Type != tt.wantType {
				t.Errorf("Type = %v, want %v", got.Type, tt.wantType)
			}
			if got.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", got.Retryable, tt.retryable)
			}
			if !IsNetworkError(got) {
				t.Error("IsNetworkError() = false")
			}
		})
	}

	if ClassifyNetworkError(nil, "") != nil {
		t.Error("nil error classified")
	}
}

func TestHTTPErrors(t *testing.T) {
	busy := newHTTPError(503, "queue full")
	if !IsBusy(busy) || !IsRetryable(busy) {
		t.Error("503 should be busy and retryable")
	}
	if e := newHTTPError(500, "boom"); !IsHTTPError(e) || !IsRetryable(e) {
		t.Error("500 should be a retryable HTTP error")
	}
	if e := newHTTPError(400, "bad"); IsRetryable(e) {
		t.Error("400 should not be retryable")
	}
}

func TestHelpers_Wrapped(t *testing.T) {
	err := fmt.Errorf("turn on: %w", newHTTPError(503, "queue full"))
	if !IsBusy(err) {
		t.Error("IsBusy does not see through wrapping")
	}
	if !strings.Contains(GetShortErrorMessage(err), "busy") {
		t.Errorf("short message = %q", GetShortErrorMessage(err))
	}
	if IsBusy(errors.New("plain")) || IsRetryable(errors.New("plain")) {
		t.Error("plain errors matched")
	}
}

func TestMessages(t *testing.T) {
	for _, et := range []ErrorType{ErrTypeNetwork, ErrTypeHTTP, ErrTypeBusy, ErrTypeParse, ErrTypeTimeout, ErrTypeConnectionRefused, ErrTypeDNS} {
		e := &Error{Type: et, Message: "m", StatusCode: 500}
		if GetShortErrorMessage(e) == "" || GetTroubleshootingHint(e) == "" {
			t.Errorf("%v: empty message", et)
		}
		if strings.HasPrefix(et.String(), "ErrorType(") {
			t.Errorf("%d has no name", int(et))
		}
	}
	if got := GetShortErrorMessage(errors.New("plain")); got != "plain" {
		t.Errorf("plain short message = %q", got)
	}
}
