package model

// Status tags the outcome of a tool-style operation
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusInfo    Status = "info"
	StatusWarning Status = "warning"
)

// Result is the machine-readable payload returned by tool-style operations.
// It always carries "status" and "message" keys.
type Result map[string]any

// NewResult creates a Result with the given status, message and extra fields
func NewResult(status Status, message string, fields map[string]any) Result {
	r := Result{
		"status":  string(status),
		"message": message,
	}
	for k, v := range fields {
		r[k] = v
	}
	return r
}

// ErrorResult is a shorthand for a status "error" Result
func ErrorResult(message string, fields map[string]any) Result {
	return NewResult(StatusError, message, fields)
}

// Status returns the status tag of the result
func (r Result) Status() Status {
	s, _ := r["status"].(string)
	return Status(s)
}

// Message returns the human-readable message of the result
func (r Result) Message() string {
	s, _ := r["message"].(string)
	return s
}

// OK reports whether the operation did not fail
func (r Result) OK() bool {
	return r.Status() != StatusError
}
