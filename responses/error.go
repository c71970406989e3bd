package responses

import "fmt"

// Error codes
const (
	CodeUnknownRoute  = 1
	CodeInvalidJSON   = 2
	CodeInternal      = 3
	CodeInvalidHeader = 4
	CodeInvalidInput  = 5
	CodeNotConfirmed  = 6
)

// Error describes an error for humans and machines
type Error struct {
	Status  int    `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e Error) Error() string {
	return fmt.Sprintf("status:%d, code:%d, message:%q", e.Status, e.Code, e.Message)
}

// NewError - a brand new internal error
func NewError(code int, message string) *Error {
	return NewStatusError(500, code, message)
}

// NewStatusError - a brand new error with a http status
func NewStatusError(status, code int, message string) *Error {
	return &Error{
		Status:  status,
		Code:    code,
		Message: message,
	}
}
