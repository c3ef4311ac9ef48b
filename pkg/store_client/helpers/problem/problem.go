package problem

import (
	"net/http"
	"strconv"
)

type InvalidParam struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// APIError implementeert error + Problem Details (RFC 7807)
type APIError struct {
	Type          string         `json:"type"`
	Title         string         `json:"title"`
	Status        int            `json:"status"`
	Detail        string         `json:"detail"`
	Instance      string         `json:"instance,omitempty"`
	InvalidParams []InvalidParam `json:"invalidParams,omitempty"`
}

func (e APIError) Error() string { return e.Detail }

func newError(status int, detail string, params ...InvalidParam) APIError {
	return APIError{
		Type:          "https://developer.mozilla.org/en-US/docs/Web/HTTP/Reference/Status/" + strconv.Itoa(status),
		Title:         http.StatusText(status),
		Status:        status,
		Detail:        detail,
		InvalidParams: params,
	}
}

// Constructor voor 400 Bad Request
func NewBadRequest(detail string, params ...InvalidParam) APIError {
	return newError(http.StatusBadRequest, detail, params...)
}

func NewUnauthorized(detail string) APIError {
	return newError(http.StatusUnauthorized, detail)
}

func NewForbidden(detail string) APIError {
	return newError(http.StatusForbidden, detail)
}

// Constructor voor 404 Not Found
func NewNotFound(detail string, params ...InvalidParam) APIError {
	return newError(http.StatusNotFound, detail, params...)
}

func NewConflict(detail string, params ...InvalidParam) APIError {
	return newError(http.StatusConflict, detail, params...)
}

// NewBadGateway is used when a remote catalog cannot be fetched.
func NewBadGateway(detail string) APIError {
	return newError(http.StatusBadGateway, detail)
}

func NewInternalServerError(detail string) APIError {
	return newError(http.StatusInternalServerError, detail)
}
