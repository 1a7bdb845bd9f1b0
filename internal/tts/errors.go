package tts

import (
	"context"
	"errors"
	"fmt"
)

// Common TTS errors
var (
	// ErrNoEngineConfigured indicates no synthesis engine has been selected
	ErrNoEngineConfigured = errors.New("no TTS engine configured - specify --engine cartesia or --engine mock")

	// ErrInvalidEngine indicates an unknown engine was specified
	ErrInvalidEngine = errors.New("invalid TTS engine specified")

	// ErrNoSynthesizer indicates a pipeline was built without a synthesizer
	ErrNoSynthesizer = errors.New("pipeline requires a synthesizer")

	// ErrCanceled indicates an operation was canceled
	ErrCanceled = errors.New("operation canceled")
)

// TTSError represents a TTS-specific error with additional context
type TTSError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *TTSError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *TTSError) Unwrap() error {
	return e.Cause
}

// ErrorCode identifies specific error types
type ErrorCode string

const (
	// Configuration errors
	ErrorCodeMissingAPIKey  ErrorCode = "MISSING_API_KEY"
	ErrorCodeMissingVoiceID ErrorCode = "MISSING_VOICE_ID"
	ErrorCodeMissingText    ErrorCode = "MISSING_TEXT"
	ErrorCodeInvalidFormat  ErrorCode = "INVALID_FORMAT"

	// I/O errors
	ErrorCodeFileRead  ErrorCode = "FILE_READ"
	ErrorCodeFileWrite ErrorCode = "FILE_WRITE"

	// Synthesis errors
	ErrorCodeTTSAPI    ErrorCode = "TTS_API"
	ErrorCodeTTSStream ErrorCode = "TTS_STREAM"

	// Annotation errors
	ErrorCodeAnnotation          ErrorCode = "ANNOTATION"
	ErrorCodeUnsupportedProvider ErrorCode = "UNSUPPORTED_PROVIDER"

	// System errors
	ErrorCodeCanceled ErrorCode = "CANCELED"
)

// Context keys
const (
	ContextPath     = "path"
	ContextSegment  = "segment"
	ContextProvider = "provider"
)

// ErrorKind groups error codes by the subsystem that raised them.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindConfig
	KindIO
	KindSynthesis
	KindAnnotation
	KindCanceled
)

// String returns the string representation of the kind
func (k ErrorKind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindIO:
		return "io"
	case KindSynthesis:
		return "synthesis"
	case KindAnnotation:
		return "annotation"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// NewTTSError creates a new TTS error with context
func NewTTSError(code ErrorCode, message string, cause error) *TTSError {
	return &TTSError{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds context to the error
func (e *TTSError) WithContext(key string, value interface{}) *TTSError {
	e.Context[key] = value
	return e
}

// Kind returns the subsystem the error belongs to.
func (e *TTSError) Kind() ErrorKind {
	switch e.Code {
	case ErrorCodeMissingAPIKey, ErrorCodeMissingVoiceID, ErrorCodeMissingText, ErrorCodeInvalidFormat:
		return KindConfig
	case ErrorCodeFileRead, ErrorCodeFileWrite:
		return KindIO
	case ErrorCodeTTSAPI, ErrorCodeTTSStream:
		return KindSynthesis
	case ErrorCodeAnnotation, ErrorCodeUnsupportedProvider:
		return KindAnnotation
	case ErrorCodeCanceled:
		return KindCanceled
	default:
		return KindUnknown
	}
}

// Path returns the file path attached to an I/O error.
func (e *TTSError) Path() string {
	p, _ := e.Context[ContextPath].(string)
	return p
}

// Segment returns the segment index attached to a stream error, or -1.
func (e *TTSError) Segment() int {
	if i, ok := e.Context[ContextSegment].(int); ok {
		return i
	}
	return -1
}

// IsRetryable returns true if repeating the operation may succeed
func (e *TTSError) IsRetryable() bool {
	switch e.Code {
	case ErrorCodeTTSAPI,
		ErrorCodeTTSStream,
		ErrorCodeAnnotation:
		return true
	default:
		return false
	}
}

// NewFileReadError reports a failure to read path.
func NewFileReadError(path string, cause error) *TTSError {
	return NewTTSError(ErrorCodeFileRead, "failed to read file", cause).WithContext(ContextPath, path)
}

// NewFileWriteError reports a failure to write path.
func NewFileWriteError(path string, cause error) *TTSError {
	return NewTTSError(ErrorCodeFileWrite, "failed to write file", cause).WithContext(ContextPath, path)
}

// NewStreamError reports a failure while streaming the audio of a segment.
func NewStreamError(segment int, cause error) *TTSError {
	return NewTTSError(ErrorCodeTTSStream, "audio stream failed", cause).WithContext(ContextSegment, segment)
}

// NewUnsupportedProviderError reports an unknown annotation provider.
func NewUnsupportedProviderError(provider string) *TTSError {
	return NewTTSError(ErrorCodeUnsupportedProvider, "unsupported annotation provider", nil).WithContext(ContextProvider, provider)
}

// AsTTSError returns err as a *TTSError when it is one, or wraps it with code.
// Context cancellation is always reported as CANCELED.
func AsTTSError(err error, code ErrorCode, message string) *TTSError {
	var te *TTSError
	if errors.As(err, &te) {
		return te
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewTTSError(ErrorCodeCanceled, "operation canceled", err)
	}
	return NewTTSError(code, message, err)
}

// CodeOf returns the code of the first TTSError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var te *TTSError
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}
