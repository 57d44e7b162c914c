package errors

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"
)

// ErrorCode represents a unique error code for categorizing errors
type ErrorCode string

const (
	// Connection errors (1xxx)
	ErrCodeConnectionFailed     ErrorCode = "FVE1001"
	ErrCodeConnectionTimeout    ErrorCode = "FVE1002"
	ErrCodeAuthenticationFailed ErrorCode = "FVE1003"
	ErrCodeNetworkUnavailable   ErrorCode = "FVE1004"

	// Configuration errors (2xxx)
	ErrCodeConfigNotFound ErrorCode = "FVE2001"
	ErrCodeConfigInvalid  ErrorCode = "FVE2002"
	ErrCodeConfigMissing  ErrorCode = "FVE2003"

	// Repository errors (3xxx)
	ErrCodeRepoNotFound     ErrorCode = "FVE3001"
	ErrCodeRevisionNotFound ErrorCode = "FVE3005"

	// SQL execution errors (4xxx)
	ErrCodeSQLSyntax         ErrorCode = "FVE4001"
	ErrCodeSQLPermission     ErrorCode = "FVE4002"
	ErrCodeSQLTimeout        ErrorCode = "FVE4003"
	ErrCodeSQLObjectNotFound ErrorCode = "FVE4005"
	ErrCodeSQLExecution      ErrorCode = "FVE4006"
	ErrCodeDeploymentHalted  ErrorCode = "FVE4010"

	// File system errors (5xxx)
	ErrCodeFileNotFound   ErrorCode = "FVE5001"
	ErrCodeFilePermission ErrorCode = "FVE5002"
	ErrCodeFileOperation  ErrorCode = "FVE5005"

	// Validation errors (6xxx)
	ErrCodeValidationFailed ErrorCode = "FVE6001"
	ErrCodeInvalidInput     ErrorCode = "FVE6002"
	ErrCodeRequiredField    ErrorCode = "FVE6003"
	ErrCodeUserInput        ErrorCode = "FVE6004"
	ErrCodeDependencyOrder  ErrorCode = "FVE6005"

	// Security errors (7xxx)
	ErrCodeEncryptionFailed ErrorCode = "FVE7002"
	ErrCodeKeyGeneration    ErrorCode = "FVE7004"
	ErrCodeInvalidKey       ErrorCode = "FVE7005"

	// History errors (8xxx)
	ErrCodeNotFound ErrorCode = "FVE8004"

	// System errors (9xxx)
	ErrCodeInternal           ErrorCode = "FVE9001"
	ErrCodeTimeout            ErrorCode = "FVE9002"
	ErrCodeResourceExhausted  ErrorCode = "FVE9003"
	ErrCodeServiceUnavailable ErrorCode = "FVE9004"
	ErrCodeCancelled          ErrorCode = "FVE9008"
)

// ErrorSeverity represents the severity level of an error
type ErrorSeverity string

const (
	SeverityCritical ErrorSeverity = "CRITICAL" // System failure, requires immediate attention
	SeverityError    ErrorSeverity = "ERROR"    // Operation failed, but system continues
	SeverityWarning  ErrorSeverity = "WARNING"  // Operation succeeded with issues
	SeverityInfo     ErrorSeverity = "INFO"     // Informational, not an error
)

// AppError represents a structured application error with context
type AppError struct {
	Code        ErrorCode
	Message     string
	Severity    ErrorSeverity
	Context     map[string]interface{}
	Cause       error
	Stack       string
	Timestamp   time.Time
	Recoverable bool
	Suggestions []string
}

// Error implements the error interface
func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s] %s: %s", e.Code, e.Severity, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("\nCaused by: %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\nSuggestions:")
		for i, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  %d. %s", i+1, suggestion))
		}
	}

	return b.String()
}

// Unwrap returns the cause of the error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// ContextKeys returns the context keys in sorted order.
func (e *AppError) ContextKeys() []string {
	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:        code,
		Message:     message,
		Severity:    SeverityError,
		Context:     make(map[string]interface{}),
		Stack:       captureStack(),
		Timestamp:   time.Now(),
		Recoverable: false,
	}
}

// Wrap wraps an existing error with AppError
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}

	appErr := New(code, message)
	appErr.Cause = err

	// If wrapping another AppError, inherit some properties
	var ae *AppError
	if errors.As(err, &ae) {
		for k, v := range ae.Context {
			appErr.Context[k] = v
		}
	}

	return appErr
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithSeverity sets the error severity
func (e *AppError) WithSeverity(severity ErrorSeverity) *AppError {
	e.Severity = severity
	return e
}

// WithSuggestions adds recovery suggestions
func (e *AppError) WithSuggestions(suggestions ...string) *AppError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// AsRecoverable marks the error as recoverable
func (e *AppError) AsRecoverable() *AppError {
	e.Recoverable = true
	return e
}

// captureStack captures the current stack trace
func captureStack() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])

	var b strings.Builder
	frames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			b.WriteString(fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}

	return b.String()
}

// Common error constructors

// ConnectionError creates a connection-related error
func ConnectionError(message string, cause error) *AppError {
	return Wrap(cause, ErrCodeConnectionFailed, message).
		WithSeverity(SeverityError).
		WithSuggestions(
			"Check your network connection",
			"Verify the Snowflake account identifier (orgname-accountname)",
			"Check firewall and proxy settings",
		)
}

// ConfigError creates a configuration-related error
func ConfigError(message string, field string) *AppError {
	return New(ErrCodeConfigInvalid, message).
		WithContext("field", field).
		WithSuggestions(
			fmt.Sprintf("Set '%s' in config.yaml or the matching environment variable", field),
			"Run 'flakeview config show' to see the resolved configuration",
		)
}

// SQLError creates an SQL execution error. The code is refined from the
// driver message so callers can branch on it.
func SQLError(message string, query string, cause error) *AppError {
	err := Wrap(cause, ErrCodeSQLExecution, message).
		WithContext("query", truncateString(strings.TrimSpace(query), 200))

	detail := strings.ToLower(message)
	if cause != nil {
		detail += " " + strings.ToLower(cause.Error())
	}

	switch {
	case strings.Contains(detail, "does not exist") || strings.Contains(detail, "not found"):
		err.Code = ErrCodeSQLObjectNotFound
		_ = err.WithSuggestions(
			"Verify the referenced object exists in the target database/schema",
			"Check that views are deployed in dependency order",
			"Ensure the role can see the marketplace share",
		)
	case strings.Contains(detail, "syntax error"):
		err.Code = ErrCodeSQLSyntax
		_ = err.WithSuggestions(
			"Check SQL syntax near the error location",
			"Verify Snowflake-specific syntax requirements",
		)
	case strings.Contains(detail, "permission") || strings.Contains(detail, "access denied") ||
		strings.Contains(detail, "insufficient privileges"):
		err.Code = ErrCodeSQLPermission
		_ = err.WithSuggestions(
			"Verify the role has CREATE VIEW on the target schema",
			"Contact your Snowflake administrator",
		)
	case strings.Contains(detail, "timeout") || strings.Contains(detail, "deadline exceeded"):
		err.Code = ErrCodeSQLTimeout
		_ = err.WithSuggestions(
			"Increase the query timeout setting",
			"Check Snowflake warehouse size",
		)
	}

	return err
}

// IsRecoverable checks if an error is recoverable
func IsRecoverable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Recoverable
	}
	return false
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// As is a re-export of the standard library helper so callers importing this
// package under the errors name keep access to it.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Is re-exports errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// truncateString truncates a string to maxLen characters
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
