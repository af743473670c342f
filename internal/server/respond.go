package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/biovalue-ai/fairvalue/internal/valuation"
	apperrors "github.com/biovalue-ai/fairvalue/pkg/errors"
	"github.com/biovalue-ai/fairvalue/pkg/logging"
	"github.com/biovalue-ai/fairvalue/pkg/metrics"
)

// ErrorResponse 错误响应体
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor 分类错误码映射为 HTTP 状态码
func statusFor(code string) int {
	switch code {
	case "INVALID_INPUT":
		return http.StatusBadRequest
	case "NOT_FOUND":
		return http.StatusNotFound
	case "CACHE_UNAVAILABLE":
		return http.StatusServiceUnavailable
	case "TIMEOUT":
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	classified := apperrors.ClassifyError(err)
	status := statusFor(classified.Code)

	resp := ErrorResponse{Error: err.Error(), Code: classified.Code}
	var inputErr *valuation.InputError
	if errors.As(err, &inputErr) {
		resp.Field = inputErr.Field
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", append(logging.ErrorFields(err), zap.String("path", r.URL.Path))...)
		metrics.RecordError(err)
		resp.Error = classified.Message
	}
	writeJSON(w, status, resp)
}

// decode 解析请求体，未知字段与多余内容视为非法输入
func decode(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed request body: %v", apperrors.ErrInvalidInput, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: request body must contain a single JSON object", apperrors.ErrInvalidInput)
	}
	return nil
}
