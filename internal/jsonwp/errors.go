package jsonwp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Package-level sentinel errors that are not protocol errors.
var (
	// ErrInvalidRouteTable is returned when a route table fails validation.
	ErrInvalidRouteTable = errors.New("jsonwp: invalid route table")

	// ErrInvalidAvoidRule is returned for malformed proxy avoid rules.
	// It is a configuration error, never a per-request failure.
	ErrInvalidAvoidRule = errors.New("jsonwp: invalid proxy avoid rule")

	// ErrMissingDriver is returned when a Dispatcher is built without a driver.
	ErrMissingDriver = errors.New("jsonwp: driver is required")
)

// ErrorKind is one member of the closed set of protocol errors.
// Kinds are values; two kinds are equal when all fields are equal.
type ErrorKind struct {
	Name       string
	Code       int
	Message    string
	HTTPStatus int
}

// unknownErrorCode is the protocol code shared by the catch-all kinds.
const unknownErrorCode = 13

// The protocol error kinds. Names and codes are part of the wire contract.
var (
	KindNoSuchDriver = ErrorKind{"NoSuchDriverError", 6,
		"A session is either terminated or not started", http.StatusInternalServerError}
	KindNoSuchElement = ErrorKind{"NoSuchElementError", 7,
		"An element could not be located on the page using the given search parameters.", http.StatusInternalServerError}
	KindNoSuchFrame = ErrorKind{"NoSuchFrameError", 8,
		"A request to switch to a frame could not be satisfied because the frame could not be found.", http.StatusInternalServerError}
	KindUnknownCommand = ErrorKind{"UnknownCommandError", 9,
		"The requested resource could not be found, or a request was received using an HTTP method that is not supported by the mapped resource.", http.StatusInternalServerError}
	KindStaleElementReference = ErrorKind{"StaleElementReferenceError", 10,
		"An element command failed because the referenced element is no longer attached to the DOM.", http.StatusInternalServerError}
	KindElementNotVisible = ErrorKind{"ElementNotVisibleError", 11,
		"An element command could not be completed because the element is not visible on the page.", http.StatusInternalServerError}
	KindInvalidElementState = ErrorKind{"InvalidElementStateError", 12,
		"An element command could not be completed because the element is in an invalid state (e.g. attempting to click a disabled element).", http.StatusInternalServerError}
	KindUnknownError = ErrorKind{"UnknownError", unknownErrorCode,
		"An unknown server-side error occurred while processing the command.", http.StatusInternalServerError}
	KindElementIsNotSelectable = ErrorKind{"ElementIsNotSelectableError", 15,
		"An attempt was made to select an element that cannot be selected.", http.StatusInternalServerError}
	KindJavaScriptError = ErrorKind{"JavaScriptError", 17,
		"An error occurred while executing user supplied JavaScript.", http.StatusInternalServerError}
	KindXPathLookupError = ErrorKind{"XPathLookupError", 19,
		"An error occurred while searching for an element by XPath.", http.StatusInternalServerError}
	KindTimeout = ErrorKind{"TimeoutError", 21,
		"An operation did not complete before its timeout expired.", http.StatusInternalServerError}
	KindNoSuchWindow = ErrorKind{"NoSuchWindowError", 23,
		"A request to switch to a different window could not be satisfied because the window could not be found.", http.StatusInternalServerError}
	KindInvalidCookieDomain = ErrorKind{"InvalidCookieDomainError", 24,
		"An illegal attempt was made to set a cookie under a different domain than the current page.", http.StatusInternalServerError}
	KindUnableToSetCookie = ErrorKind{"UnableToSetCookieError", 25,
		"A request to set a cookie's value could not be satisfied.", http.StatusInternalServerError}
	KindUnexpectedAlertOpen = ErrorKind{"UnexpectedAlertOpenError", 26,
		"A modal dialog was open, blocking this operation", http.StatusInternalServerError}
	KindNoAlertOpen = ErrorKind{"NoAlertOpenError", 27,
		"An attempt was made to operate on a modal dialog when one was not open.", http.StatusInternalServerError}
	KindScriptTimeout = ErrorKind{"ScriptTimeoutError", 28,
		"A script did not complete before its timeout expired.", http.StatusInternalServerError}
	KindInvalidElementCoordinates = ErrorKind{"InvalidElementCoordinatesError", 29,
		"The coordinates provided to an interactions operation are invalid.", http.StatusInternalServerError}
	KindIMENotAvailable = ErrorKind{"IMENotAvailableError", 30,
		"IME was not available.", http.StatusInternalServerError}
	KindIMEEngineActivationFailed = ErrorKind{"IMEEngineActivationFailedError", 31,
		"An IME engine could not be started.", http.StatusInternalServerError}
	KindInvalidSelector = ErrorKind{"InvalidSelectorError", 32,
		"Argument was an invalid selector (e.g. XPath/CSS).", http.StatusInternalServerError}
	KindSessionNotCreated = ErrorKind{"SessionNotCreatedError", 33,
		"A new session could not be created.", http.StatusInternalServerError}
	KindMoveTargetOutOfBounds = ErrorKind{"MoveTargetOutOfBoundsError", 34,
		"Target provided for a move action is out of bounds.", http.StatusInternalServerError}
	KindNoSuchContext = ErrorKind{"NoSuchContextError", 35,
		"No such context found.", http.StatusInternalServerError}
	KindNotYetImplemented = ErrorKind{"NotYetImplementedError", unknownErrorCode,
		"Method has not yet been implemented", http.StatusNotImplemented}
	KindNotImplemented = ErrorKind{"NotImplementedError", unknownErrorCode,
		"Method is not implemented", http.StatusNotImplemented}
	KindBadParameters = ErrorKind{"BadParametersError", unknownErrorCode,
		"Parameters were incorrect.", http.StatusBadRequest}
	KindProxyRequest = ErrorKind{"ProxyRequestError", unknownErrorCode,
		"The proxy request could not be completed.", http.StatusInternalServerError}
)

// allKinds lists the closed set in protocol-code order.
var allKinds = []ErrorKind{
	KindNoSuchDriver,
	KindNoSuchElement,
	KindNoSuchFrame,
	KindUnknownCommand,
	KindStaleElementReference,
	KindElementNotVisible,
	KindInvalidElementState,
	KindUnknownError,
	KindElementIsNotSelectable,
	KindJavaScriptError,
	KindXPathLookupError,
	KindTimeout,
	KindNoSuchWindow,
	KindInvalidCookieDomain,
	KindUnableToSetCookie,
	KindUnexpectedAlertOpen,
	KindNoAlertOpen,
	KindScriptTimeout,
	KindInvalidElementCoordinates,
	KindIMENotAvailable,
	KindIMEEngineActivationFailed,
	KindInvalidSelector,
	KindSessionNotCreated,
	KindMoveTargetOutOfBounds,
	KindNoSuchContext,
	KindNotYetImplemented,
	KindNotImplemented,
	KindBadParameters,
	KindProxyRequest,
}

// kindsByCode maps a protocol code to the kind a client should see.
// Code 13 maps to UnknownError.
var kindsByCode map[int]ErrorKind

func init() {
	kindsByCode = make(map[int]ErrorKind, len(allKinds))
	for _, k := range allKinds {
		if k.Code == unknownErrorCode {
			continue
		}
		kindsByCode[k.Code] = k
	}
	kindsByCode[unknownErrorCode] = KindUnknownError
}

// Kinds returns a copy of the closed set of error kinds.
func Kinds() []ErrorKind {
	out := make([]ErrorKind, len(allKinds))
	copy(out, allKinds)
	return out
}

// Error is a protocol error: a kind plus an optional specific message.
type Error struct {
	Kind    ErrorKind
	message string
	cause   error
}

// Error returns the specific message, or the kind's canonical message.
func (e *Error) Error() string {
	if e.message != "" {
		return e.message
	}
	return e.Kind.Message
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error of the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinel protocol errors for use with errors.Is.
//
//	if errors.Is(err, jsonwp.ErrNoSuchDriver) {
//	    // session is gone
//	}
var (
	ErrNoSuchDriver      = NewError(KindNoSuchDriver)
	ErrNoSuchElement     = NewError(KindNoSuchElement)
	ErrUnknownCommand    = NewError(KindUnknownCommand)
	ErrUnknown           = NewError(KindUnknownError)
	ErrTimeout           = NewError(KindTimeout)
	ErrSessionNotCreated = NewError(KindSessionNotCreated)
	ErrNotYetImplemented = NewError(KindNotYetImplemented)
	ErrNotImplemented    = NewError(KindNotImplemented)
	ErrBadParameters     = NewError(KindBadParameters)
	ErrProxyRequest      = NewError(KindProxyRequest)
)

// NewError returns an error of the given kind with its canonical message.
func NewError(kind ErrorKind) *Error {
	return &Error{Kind: kind}
}

// Errorf returns an error of the given kind with a specific message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, message: fmt.Sprintf(format, args...)}
}

// NewBadParametersError reports a body whose fields match none of the
// accepted parameter sets.
func NewBadParametersError(params *PayloadParams, received []string) *Error {
	wanted, err := json.Marshal(params)
	if err != nil {
		wanted = []byte("{}")
	}
	if received == nil {
		received = []string{}
	}
	sent, err := json.Marshal(received)
	if err != nil {
		sent = []byte("[]")
	}
	return Errorf(KindBadParameters, "Parameters were incorrect. We wanted %s and you sent %s", wanted, sent)
}

// NewUnknownError wraps an error from outside the taxonomy.
func NewUnknownError(cause error) *Error {
	return &Error{
		Kind:    KindUnknownError,
		message: fmt.Sprintf("%s Original error: %s", KindUnknownError.Message, cause.Error()),
		cause:   cause,
	}
}

// NewProxyRequestError wraps a failure of a delegated proxy exchange.
func NewProxyRequestError(cause error) *Error {
	var pe *Error
	if errors.As(cause, &pe) && pe.Kind == KindProxyRequest {
		return pe
	}
	return &Error{
		Kind:    KindProxyRequest,
		message: "Could not proxy. Proxy error: " + cause.Error(),
		cause:   cause,
	}
}

// ErrorFromCode converts a protocol status code reported by an upstream
// server back into an error. Unknown codes become UnknownError.
// An empty message selects the kind's canonical message.
func ErrorFromCode(code int, message string) *Error {
	kind, ok := kindsByCode[code]
	if !ok {
		kind = KindUnknownError
	}
	return &Error{Kind: kind, message: message}
}

// IsKind reports whether err is a protocol error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == kind
}

// AsProtocolError returns err as a protocol error, wrapping anything from
// outside the taxonomy into UnknownError. The boolean is false when wrapping
// happened, so callers can log unanticipated failures.
func AsProtocolError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return NewUnknownError(err), false
}

// ResponseForError computes the HTTP response for err.
//
// Bad parameters map to 400 and not-implemented kinds to 501, both with the
// raw message as a text body. Every other kind maps to its HTTP status with
// the {status, value: {message}} envelope. sessionID fills the envelope's
// sessionId field and may be nil.
func ResponseForError(err error, sessionID *string) Outcome {
	pe, _ := AsProtocolError(err)

	switch pe.Kind {
	case KindBadParameters:
		return Outcome{HTTPStatus: http.StatusBadRequest, Text: pe.Error()}
	case KindNotImplemented, KindNotYetImplemented:
		return Outcome{HTTPStatus: http.StatusNotImplemented, Text: pe.Error()}
	}

	status := pe.Kind.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Outcome{
		HTTPStatus: status,
		Envelope: &Envelope{
			Status:    pe.Kind.Code,
			Value:     map[string]string{"message": pe.Error()},
			SessionID: sessionID,
		},
	}
}
