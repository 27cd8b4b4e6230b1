package models

// Result is the outcome of a registration or login attempt.
// Only Success and Failure construct one.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Success returns a successful result carrying msg
func Success(msg string) Result {
	return Result{Success: true, Message: msg}
}

// Failure returns a failed result carrying msg
func Failure(msg string) Result {
	return Result{Success: false, Message: msg}
}
