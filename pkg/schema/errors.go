package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeSyntax         = "SYNTAX_ERROR"
	ErrCodeEvaluation     = "EVALUATION_ERROR"
	ErrCodeLimit          = "LIMIT_ERROR"
	ErrCodeRuleDefinition = "RULE_DEFINITION_ERROR"
	ErrCodeActionRender   = "ACTION_RENDER_ERROR"
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeNotFound       = "NOT_FOUND"
)

// AdvisorError is the structured error type for all advisor operations.
// The Code is stable and machine-readable so a calling layer can map it
// to a response without string matching.
type AdvisorError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	RuleID  string         `json:"rule_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *AdvisorError) Error() string {
	if e.RuleID != "" {
		return fmt.Sprintf("[%s] rule %s: %s", e.Code, e.RuleID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AdvisorError) Unwrap() error {
	return e.Cause
}

// NewError creates a new AdvisorError.
func NewError(code, message string) *AdvisorError {
	return &AdvisorError{Code: code, Message: message}
}

// NewErrorf creates a new AdvisorError with a formatted message.
func NewErrorf(code, format string, args ...any) *AdvisorError {
	return &AdvisorError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithRule attaches a rule ID to the error.
func (e *AdvisorError) WithRule(ruleID string) *AdvisorError {
	e.RuleID = ruleID
	return e
}

// WithCause attaches an underlying cause.
func (e *AdvisorError) WithCause(err error) *AdvisorError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *AdvisorError) WithDetails(details map[string]any) *AdvisorError {
	e.Details = details
	return e
}

// CodeOf returns the structured code of err, or "" when err is not an AdvisorError.
func CodeOf(err error) string {
	if ae, ok := err.(*AdvisorError); ok {
		return ae.Code
	}
	return ""
}
