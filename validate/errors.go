// Package validate implements the Validator (spec.md §4.2): strict,
// per-operation schema and semantic validation producing either a
// normalized parameter record or a composed error of the shape spec.md §7
// defines.
//
// Named parameter records (ProvisionParams, UpdateParams, AddNicsParams,
// …) replace the teacher's "dynamic parameter objects" (design note §9
// item 4): every action the Composer dispatches has its own Go struct
// here rather than a map[string]interface{} threaded through untyped.
package validate

import "fmt"

// FieldError is one entry of an Error's errors[] array. Type/ID are set
// only for reference-conflict errors like P5's "ip already in use", whose
// wire shape names the owning resource.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
	Type    string `json:"type,omitempty"`
	ID      string `json:"id,omitempty"`
}

// Error is the {code, message, errors[]} shape spec.md §7 mandates for
// every validation failure. Error implements the standard error interface
// so validators can return it directly.
type Error struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Errors  []FieldError `json:"errors,omitempty"`
	// HTTPStatus is not serialized; the gateway reads it to pick the
	// response status code.
	HTTPStatus int `json:"-"`
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

// Error codes from spec.md §7.
const (
	CodeValidationFailed        = "ValidationFailed"
	CodeInvalidParameters       = "InvalidParameters"
	CodeUnprocessableEntity     = "UnprocessableEntityError"
	CodeUnallocatedVM           = "UnallocatedVM"
	CodeVMNotRunning            = "VmNotRunning"
	CodeVMNotStopped            = "VmNotStopped"
	CodeBrandNotSupported       = "BrandNotSupported"
	CodeVMWithoutFlexibleDisk   = "VmWithoutFlexibleDiskSize"
	CodeInsufficientDiskSpace   = "InsufficientDiskSpace"
)

func validationFailed(message string, errs ...FieldError) *Error {
	return &Error{Code: CodeValidationFailed, Message: message, Errors: errs, HTTPStatus: 409}
}

func invalidParameters(message string, errs ...FieldError) *Error {
	return &Error{Code: CodeInvalidParameters, Message: message, Errors: errs, HTTPStatus: 422}
}

func unprocessableEntity(message string) *Error {
	return &Error{Code: CodeUnprocessableEntity, Message: message, HTTPStatus: 422}
}
