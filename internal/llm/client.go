// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm provides chat-completion clients for the hosted and local
// model providers used for scoring and report generation.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Client sends a single prompt to a model and returns its reply. Each
// provider implements this interface; the provider is chosen once by
// NewClient from configuration.
type Client interface {
	Name() string
	Complete(ctx context.Context, req Request) (Response, error)
}

// Request is one completion call.
type Request struct {
	System string
	Prompt string
	// MaxTokens limits the reply; 0 uses the client default.
	MaxTokens   int
	Temperature float32
	// JSON asks the provider for a JSON object reply where supported.
	JSON bool
}

// Response is the model reply.
type Response struct {
	Text       string
	Model      string
	TokensUsed int
}

// StatusError is returned when a provider answers with a non-2xx status.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 300 {
		body = body[:300]
	}
	return fmt.Sprintf("%s returned HTTP %d: %s", e.Provider, e.Code, body)
}

// ErrorClass groups provider failures by how callers should react.
type ErrorClass string

const (
	ErrorQuota     ErrorClass = "quota"
	ErrorRate      ErrorClass = "rate"
	ErrorTimeout   ErrorClass = "timeout"
	ErrorTransient ErrorClass = "transient"
	ErrorPermanent ErrorClass = "permanent"
)

// Retryable reports whether a call that failed with this class may succeed
// when repeated.
func (c ErrorClass) Retryable() bool {
	switch c {
	case ErrorRate, ErrorTimeout, ErrorTransient:
		return true
	}
	return false
}

// Classify maps a provider error to an ErrorClass. HTTP status codes are
// used when the error carries one; otherwise the message is inspected.
func Classify(err error) ErrorClass {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTimeout
	}

	code := 0
	var se *StatusError
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &se):
		code = se.Code
	case errors.As(err, &apiErr):
		code = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		code = reqErr.HTTPStatusCode
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient_quota"), strings.Contains(msg, "quota"), strings.Contains(msg, "credit balance"):
		return ErrorQuota
	case code == http.StatusTooManyRequests, strings.Contains(msg, "rate limit"):
		return ErrorRate
	case code == http.StatusRequestTimeout, code == http.StatusGatewayTimeout, strings.Contains(msg, "timeout"):
		return ErrorTimeout
	case code >= 500, strings.Contains(msg, "temporarily"), strings.Contains(msg, "unavailable"), strings.Contains(msg, "overloaded"):
		return ErrorTransient
	}
	return ErrorPermanent
}
