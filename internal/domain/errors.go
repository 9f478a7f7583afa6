package domain

import (
	"fmt"
	"net/http"
)

// Error codes returned in the {ok:false, error:{code,...}} envelope. Clients
// branch on the code, never on the message.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeUomNotRegistered  = "UOM_NOT_REGISTERED"
	CodeUnknownUom        = "UNKNOWN_UOM"
	CodeLocationNotFound  = "LOCATION_NOT_FOUND"
	CodeStockInsufficient = "STOCK_INSUFFICIENT"
	CodeOverReturn        = "OVER_RETURN"
	CodeDuplicate         = "DUPLICATE"
	CodeNotFound          = "NOT_FOUND"
	CodeForbidden         = "FORBIDDEN"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeRateLimit         = "RATE_LIMIT"
	CodeInternal          = "INTERNAL_ERROR"
)

// Error is a domain failure with a stable code, an HTTP status, and optional
// structured details (shortage lists, over-return violations).
type Error struct {
	Code    string
	Status  int
	Message string
	Details any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewError(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Status: http.StatusNotFound, Message: fmt.Sprintf(format, args...)}
}

func UomNotRegistered(productID, uom string) *Error {
	return &Error{
		Code:    CodeUomNotRegistered,
		Status:  http.StatusBadRequest,
		Message: fmt.Sprintf("uom %q is not registered for product %s", uom, productID),
	}
}

func UnknownUom(productID, uom string) *Error {
	return &Error{
		Code:    CodeUnknownUom,
		Status:  http.StatusBadRequest,
		Message: fmt.Sprintf("uom %q is not registered for product %s", uom, productID),
	}
}

func LocationNotFound(code string) *Error {
	return &Error{
		Code:    CodeLocationNotFound,
		Status:  http.StatusBadRequest,
		Message: fmt.Sprintf("unknown location code %q", code),
	}
}

// StockInsufficient carries the shortage list for every failing line, not
// just the first.
func StockInsufficient(shortages []Shortage) *Error {
	return &Error{
		Code:    CodeStockInsufficient,
		Status:  http.StatusBadRequest,
		Message: "insufficient stock for one or more lines",
		Details: shortages,
	}
}

func OverReturnError(violations []OverReturn) *Error {
	return &Error{
		Code:    CodeOverReturn,
		Status:  http.StatusBadRequest,
		Message: "return quantity exceeds returnable remainder",
		Details: violations,
	}
}

func Duplicatef(format string, args ...any) *Error {
	return &Error{Code: CodeDuplicate, Status: http.StatusConflict, Message: fmt.Sprintf(format, args...)}
}
