package backend

import (
	"errors"
	"fmt"
)

const (
	connectivityMessageTemplate = "unable to reach the migration backend at %s; check that the backend service is running"
	timeoutMessageTemplate      = "the migration backend at %s did not respond in time; check that the backend service is running"
	serverStatusTemplate        = "request failed with status %d"
	decodeMessageTemplate       = "%s: unexpected response from backend: %s"
)

var (
	// ErrMissingBaseURL indicates the client was built without a backend address.
	ErrMissingBaseURL = errors.New("backend base url not configured")
	// ErrMissingIdentifier indicates an empty repository or migration id.
	ErrMissingIdentifier = errors.New("identifier required")
)

// ConnectivityError reports that the backend could not be reached or did not
// answer before the request deadline.
type ConnectivityError struct {
	BaseURL string
	Timeout bool
	Cause   error
}

func (e *ConnectivityError) Error() string {
	if e.Timeout {
		return fmt.Sprintf(timeoutMessageTemplate, e.BaseURL)
	}
	return fmt.Sprintf(connectivityMessageTemplate, e.BaseURL)
}

func (e *ConnectivityError) Unwrap() error { return e.Cause }

// ServerError is a non-2xx response. Detail is the server-provided message
// and is surfaced verbatim.
type ServerError struct {
	StatusCode int
	Detail     string
}

func (e *ServerError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf(serverStatusTemplate, e.StatusCode)
}

// DecodeError reports a 2xx response whose body could not be understood.
type DecodeError struct {
	Call  string
	Cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf(decodeMessageTemplate, e.Call, e.Cause)
}

func (e *DecodeError) Unwrap() error { return e.Cause }

// AnalysisError wraps a failed repository analysis. Its message is the
// server detail when one was sent, otherwise the connectivity message.
type AnalysisError struct {
	BaseURL string
	Cause   error
}

func (e *AnalysisError) Error() string {
	var serverErr *ServerError
	if errors.As(e.Cause, &serverErr) && serverErr.Detail != "" {
		return serverErr.Detail
	}
	var connErr *ConnectivityError
	if errors.As(e.Cause, &connErr) {
		return connErr.Error()
	}
	return fmt.Sprintf(connectivityMessageTemplate, e.BaseURL)
}

func (e *AnalysisError) Unwrap() error { return e.Cause }
