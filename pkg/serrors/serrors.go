package serrors

import "fmt"

// Base is a stable, machine-readable error carrying a code alongside the
// human message. API controllers map Base errors onto the JSON envelope.
type Base struct {
	Code    string
	Message string
	Details string
}

func NewError(code, message, details string) *Base {
	return &Base{Code: code, Message: message, Details: details}
}

func (e *Base) Error() string {
	if e.Details == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, e.Details)
}

func (e *Base) WithDetails(format string, args ...any) *Base {
	return &Base{Code: e.Code, Message: e.Message, Details: fmt.Sprintf(format, args...)}
}

// Is matches on code so wrapped copies with differing details still compare.
func (e *Base) Is(target error) bool {
	t, ok := target.(*Base)
	return ok && t.Code == e.Code
}
