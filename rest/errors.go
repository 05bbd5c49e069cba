package rest

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/WelcomerTeam/Sandwich-Gateway/discord"
	"github.com/WelcomerTeam/Sandwich-Gateway/sandwichjson"
)

var (
	ErrGlobalLockAlreadyLocked = errors.New("global lock is already locked")
	ErrRetriesExhausted        = errors.New("request failed after exhausting retries")
	ErrInvalidToken            = errors.New("token passed is not valid")
)

// ErrHTTP is matched by every status error.
var ErrHTTP = errors.New("http error")

// Client errors. Every 4xx error also matches ErrBadRequest.
var (
	ErrBadRequest          = errors.New("bad request")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrNotFound            = errors.New("not found")
	ErrMethodNotAllowed    = errors.New("method not allowed")
	ErrUnprocessableEntity = errors.New("unprocessable entity")
	ErrTooManyRequests     = errors.New("too many requests")
)

// Server errors. Every 5xx error also matches ErrServerError.
var (
	ErrServerError        = errors.New("server error")
	ErrBadGateway         = errors.New("bad gateway")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrGatewayTimeout     = errors.New("gateway timeout")
)

var statusErrors = map[int]error{
	http.StatusBadRequest:          ErrBadRequest,
	http.StatusUnauthorized:        ErrUnauthorized,
	http.StatusForbidden:           ErrForbidden,
	http.StatusNotFound:            ErrNotFound,
	http.StatusMethodNotAllowed:    ErrMethodNotAllowed,
	http.StatusUnprocessableEntity: ErrUnprocessableEntity,
	http.StatusTooManyRequests:     ErrTooManyRequests,
	http.StatusInternalServerError: ErrServerError,
	http.StatusBadGateway:          ErrBadGateway,
	http.StatusServiceUnavailable:  ErrServiceUnavailable,
	http.StatusGatewayTimeout:      ErrGatewayTimeout,
}

// RestError is returned for non-2xx responses and carries the response it was built from.
type RestError struct {
	Request  *http.Request
	Response *Response
	Message  *discord.ErrorMessage
	Status   int
}

// NewRestError builds a RestError, decoding the platform's error body when there is one.
func NewRestError(req *http.Request, resp *Response) *RestError {
	restError := &RestError{
		Request:  req,
		Response: resp,
		Status:   resp.StatusCode,
	}

	var message discord.ErrorMessage
	if err := sandwichjson.Unmarshal(resp.Body, &message); err == nil {
		restError.Message = &message
	}

	return restError
}

func (e *RestError) Error() string {
	if e.Message != nil && e.Message.Message != "" {
		return fmt.Sprintf("%d %s: %s (code %d)", e.Status, http.StatusText(e.Status), e.Message.Message, e.Message.Code)
	}

	return fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status))
}

// Unwrap exposes the status sentinel together with its family so errors.Is
// matches ErrNotFound, ErrBadRequest and ErrHTTP for a 404.
func (e *RestError) Unwrap() []error {
	errs := []error{ErrHTTP}

	switch {
	case e.Status >= 500:
		errs = append(errs, ErrServerError)
	case e.Status >= 400:
		errs = append(errs, ErrBadRequest)
	}

	if specific, ok := statusErrors[e.Status]; ok {
		errs = append(errs, specific)
	}

	return errs
}
