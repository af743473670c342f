// 错误分类与处理
package errors

import (
	"context"
	"errors"
)

// ErrorLevel 错误级别
type ErrorLevel int

const (
	// L1Recoverable 可恢复错误 - 自动重试
	L1Recoverable ErrorLevel = iota + 1
	// L2Intervention 需要人工干预 (调用方修正输入)
	L2Intervention
	// L3Fatal 致命错误 - 熔断告警
	L3Fatal
)

func (l ErrorLevel) String() string {
	switch l {
	case L1Recoverable:
		return "L1_RECOVERABLE"
	case L2Intervention:
		return "L2_INTERVENTION"
	case L3Fatal:
		return "L3_FATAL"
	default:
		return "UNKNOWN"
	}
}

// 预定义错误类型
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrValidationFailed = errors.New("validation failed")
	ErrNotFound         = errors.New("not found")
	ErrConfigInvalid    = errors.New("invalid configuration")
	ErrCacheUnavailable = errors.New("cache unavailable")
	ErrWorkflowFailed   = errors.New("workflow execution failed")
)

// ClassifiedError 分类后的错误
type ClassifiedError struct {
	Level      ErrorLevel
	Code       string
	Message    string
	Cause      error
	Retryable  bool
	MaxRetries int
	Metadata   map[string]interface{}
}

func (e *ClassifiedError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClassifiedError) Unwrap() error {
	return e.Cause
}

// ClassifyError 对错误进行分类
func ClassifyError(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	// 检查是否已经是 ClassifiedError
	var classifiedErr *ClassifiedError
	if errors.As(err, &classifiedErr) {
		return classifiedErr
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &ClassifiedError{
			Level:      L1Recoverable,
			Code:       "TIMEOUT",
			Message:    "Operation timed out",
			Cause:      err,
			Retryable:  true,
			MaxRetries: 3,
		}

	case errors.Is(err, context.Canceled):
		return &ClassifiedError{
			Level:     L1Recoverable,
			Code:      "CANCELED",
			Message:   "Operation canceled",
			Cause:     err,
			Retryable: false,
		}

	case errors.Is(err, ErrCacheUnavailable):
		return &ClassifiedError{
			Level:      L1Recoverable,
			Code:       "CACHE_UNAVAILABLE",
			Message:    "Cache service unavailable",
			Cause:      err,
			Retryable:  true,
			MaxRetries: 3,
		}

	case errors.Is(err, ErrInvalidInput):
		return &ClassifiedError{
			Level:     L2Intervention,
			Code:      "INVALID_INPUT",
			Message:   "Caller supplied malformed input",
			Cause:     err,
			Retryable: false,
		}

	case errors.Is(err, ErrValidationFailed):
		return &ClassifiedError{
			Level:     L2Intervention,
			Code:      "VALIDATION_FAILED",
			Message:   "Data validation failed",
			Cause:     err,
			Retryable: false,
		}

	case errors.Is(err, ErrNotFound):
		return &ClassifiedError{
			Level:     L2Intervention,
			Code:      "NOT_FOUND",
			Message:   "Resource not found",
			Cause:     err,
			Retryable: false,
		}

	case errors.Is(err, ErrWorkflowFailed):
		return &ClassifiedError{
			Level:      L2Intervention,
			Code:       "WORKFLOW_FAILED",
			Message:    "Workflow step failed",
			Cause:      err,
			Retryable:  true,
			MaxRetries: 1,
			Metadata:   map[string]interface{}{"compensate": true},
		}

	case errors.Is(err, ErrConfigInvalid):
		return &ClassifiedError{
			Level:     L3Fatal,
			Code:      "FATAL_CONFIG",
			Message:   "Fatal configuration error",
			Cause:     err,
			Retryable: false,
		}

	default:
		return &ClassifiedError{
			Level:      L1Recoverable,
			Code:       "UNKNOWN",
			Message:    "Unknown error",
			Cause:      err,
			Retryable:  true,
			MaxRetries: 1,
		}
	}
}

// NewClassifiedError 创建分类错误
func NewClassifiedError(level ErrorLevel, code, message string, cause error) *ClassifiedError {
	return &ClassifiedError{
		Level:   level,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}
