package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	goopenai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// ErrorKind classifies a failed provider call.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindAuthentication
	KindConnection
	KindTimeout
	KindRateLimit
	KindStatus
	KindAPI
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication error"
	case KindConnection:
		return "connection error"
	case KindTimeout:
		return "timeout"
	case KindRateLimit:
		return "rate limit exceeded"
	case KindStatus:
		return "status error"
	case KindAPI:
		return "API error"
	}
	return "unexpected error"
}

// statusCoder is implemented by hand-rolled provider clients.
type statusCoder interface {
	HTTPStatus() int
}

// Classify inspects errors returned by go-openai and genai.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return kindForStatus(apiErr.HTTPStatusCode, KindAPI)
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == 0 {
			return KindConnection
		}
		return kindForStatus(reqErr.HTTPStatusCode, KindStatus)
	}
	var gErr genai.APIError
	if errors.As(err, &gErr) {
		return kindForStatus(gErr.Code, KindAPI)
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		return kindForStatus(sc.HTTPStatus(), KindAPI)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindConnection
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return KindConnection
	}
	return KindUnknown
}

func kindForStatus(code int, fallback ErrorKind) ErrorKind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAuthentication
	case code == http.StatusTooManyRequests:
		return KindRateLimit
	case code >= 400:
		return KindStatus
	}
	return fallback
}

// Detail is the provider message carried by err, without request internals.
func Detail(err error) string {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	var gErr genai.APIError
	if errors.As(err, &gErr) && gErr.Message != "" {
		return gErr.Message
	}
	return err.Error()
}

// UserMessage renders err the way it is shown to the user.
func UserMessage(p fmt.Stringer, err error) string {
	return fmt.Sprintf("%s %s: %s", p, Classify(err), Detail(err))
}
