package library

import (
	"fmt"
)

type ErrResponse struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_message"`
}

func (e ErrResponse) Error() string {
	return e.Message
}

var ErrResponseEntryBlankFields = ErrResponse{100, "required fields are missing or blank."}
var ErrResponseBookNotFound = ErrResponse{101, "book not found"}
var ErrResponseEntryInvalidJSON = ErrResponse{102, "invalid json request."}
var ErrResponseIdInvalidFormat = ErrResponse{103, "the endpoint is not a valid format ID. Must be a uuid"}
var ErrResponseQueryAuthorsInvalid = ErrResponse{104, "query parameter 'authors' must be a comma separated list of uuids."}
var ErrResponseQueryUserIdInvalid = ErrResponse{105, "query parameter 'user_id' must be a uuid."}
var ErrResponseQueryPageInvalid = ErrResponse{106, "query parameter 'page' must be an int starting in 1. 'page_size' must be an int beetween 1 and the page size limit."}
var ErrResponseQueryPageOutOfRange = ErrResponse{107, "page out of range."}
var ErrResponseFromRespository = ErrResponse{108, "error from repository: "}
var ErrResponseRequestTimeout = ErrResponse{109, "context deadline exceeded"}
var ErrResponseBorrowingNotFound = ErrResponse{110, "borrowing not found"}
var ErrResponseAuthorNotFound = ErrResponse{111, "author not found"}
var ErrResponseQueryIsActiveInvalid = ErrResponse{112, "query parameter 'is_active' must be true or false."}
var ErrResponseUnauthenticated = ErrResponse{113, "authentication credentials were not provided or are invalid."}
var ErrResponseForbidden = ErrResponse{114, "you do not have permission to perform this action."}

// Codes carried by ValidationError values.
const (
	CodeInvalidField       = 120
	CodeReturnDateInvalid  = 121
	CodeInventoryExhausted = 122
	CodeAlreadyReturned    = 123
)

// ValidationError reports a rejected input value together with the name of
// the field it belongs to, as seen by API clients.
type ValidationError struct {
	Code    int    `json:"error_code"`
	Field   string `json:"field"`
	Message string `json:"error_message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(code int, field, message string) ValidationError {
	return ValidationError{Code: code, Field: field, Message: message}
}

type ErrNotificationFailed struct {
	statusCode int
}

func (e ErrNotificationFailed) Error() string {
	return fmt.Sprintf("notification wrong response - want: 200 OK, got: %d", e.statusCode)
}

func NewErrNotificationFailed(statusCode int) ErrNotificationFailed {
	return ErrNotificationFailed{statusCode: statusCode}
}
