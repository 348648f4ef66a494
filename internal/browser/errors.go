package browser

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// ErrAutomationTimeout is matched by any call that exceeded its per-call timeout.
var ErrAutomationTimeout = errors.New("browser automation timed out")

// ErrLoginRequired is returned by Navigate when the remote page redirected to a login wall,
// which means the session's cookies are no longer accepted.
var ErrLoginRequired = errors.New("login required: session rejected by target site")

// CompatibilityError reports that the remote endpoint rejected a request encoding
// (unsupported parameter, unexpected schema, unknown route).
type CompatibilityError struct {
	Op       Operation
	Encoding Encoding
	Status   int
	Message  string
}

func (e *CompatibilityError) Error() string {
	return fmt.Sprintf("%s (%s encoding) rejected by browser service: HTTP %d: %s", e.Op, e.Encoding, e.Status, e.Message)
}

// TransportError is a failed call to the browser service. Retryable errors are retried by the
// client's retry policy; a TransportError wrapping ErrAutomationTimeout is also retried by callers
// that own a larger budget.
type TransportError struct {
	Op        Operation
	Status    int
	Message   string
	Retryable bool
	Cause     error
}

func (e *TransportError) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Op))
	sb.WriteString(" failed")
	if e.Status != 0 {
		sb.WriteString(fmt.Sprintf(": HTTP %d", e.Status))
	}
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// IsTimeout reports whether err is (or wraps) an automation timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrAutomationTimeout)
}

func isRetryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Retryable
}

// compatPattern matches the validation messages browser services return for request fields
// or shapes they do not understand.
var compatPattern = regexp.MustCompile(`(?i)(is not allowed|not permitted|unknown (field|property|parameter|option)|unrecognized|additional propert|unexpected (field|property|key)|schema|must not have)`)

const maxMessageLen = 300

// classifyResponse turns a non-2xx reply into a typed error.
func classifyResponse(op Operation, enc Encoding, status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	msg := strings.TrimSpace(string(body))
	if len(msg) > maxMessageLen {
		msg = msg[:maxMessageLen]
	}

	switch {
	case (status == http.StatusBadRequest || status == http.StatusUnprocessableEntity) && compatPattern.MatchString(msg):
		return &CompatibilityError{Op: op, Encoding: enc, Status: status, Message: msg}
	case status == http.StatusNotFound || status == http.StatusMethodNotAllowed:
		return &CompatibilityError{Op: op, Encoding: enc, Status: status, Message: msg}
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return &TransportError{Op: op, Status: status, Message: msg, Retryable: true, Cause: ErrAutomationTimeout}
	case status == http.StatusTooManyRequests || status >= 500:
		return &TransportError{Op: op, Status: status, Message: msg, Retryable: true}
	default:
		return &TransportError{Op: op, Status: status, Message: msg}
	}
}

// escalate converts a compatibility rejection of the fallback encoding into a terminal
// transport failure.
func escalate(compat *CompatibilityError) error {
	return &TransportError{
		Op:      compat.Op,
		Status:  compat.Status,
		Message: "no compatible request encoding",
		Cause:   compat,
	}
}
