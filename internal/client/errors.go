package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/containerd/errdefs"
)

// APIError 规范化后的 API 错误
//
// Message 优先取服务端错误信封（{"error": …} 或 {"detail": …}）中的
// 可读信息，缺失时回退到通用提示。通过 errors.Is 可按类别判断：
//
//	errdefs.IsNotFound(err)         // 404
//	errdefs.IsPermissionDenied(err) // 401 / 403
type APIError struct {
	Status  int    // HTTP 状态码
	Message string // 用户可读信息
	class   error  // errdefs 分类
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.class
}

// errorEnvelope 服务端错误信封
//
// 两种字段都见于后端：mock-server 与网关用 "error"，上游评测服务用 "detail"。
type errorEnvelope struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

// newAPIError 从非 2xx 响应构造 APIError，读取并关闭响应体
func newAPIError(resp *http.Response) *APIError {
	message := ""
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err == nil && len(body) > 0 {
		var envelope errorEnvelope
		if json.Unmarshal(body, &envelope) == nil {
			if envelope.Error != "" {
				message = envelope.Error
			} else if envelope.Detail != "" {
				message = envelope.Detail
			}
		}
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
		if message == "" {
			message = "request failed"
		}
	}

	return &APIError{
		Status:  resp.StatusCode,
		Message: message,
		class:   classify(resp.StatusCode),
	}
}

// classify 将 HTTP 状态码映射到 errdefs 错误类别
func classify(status int) error {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return errdefs.ErrInvalidArgument
	case http.StatusUnauthorized, http.StatusForbidden:
		return errdefs.ErrPermissionDenied
	case http.StatusNotFound:
		return errdefs.ErrNotFound
	case http.StatusConflict:
		return errdefs.ErrConflict
	case http.StatusTooManyRequests:
		return errdefs.ErrResourceExhausted
	case http.StatusNotImplemented:
		return errdefs.ErrNotImplemented
	case http.StatusServiceUnavailable:
		return errdefs.ErrUnavailable
	}
	if status >= 500 {
		return errdefs.ErrInternal
	}
	return errdefs.ErrUnknown
}

// normalizeTransportError 规范化传输层错误（连接失败、超时、取消）
//
// 取消与超时原样透传，调用方用 errors.Is(err, context.Canceled) 判断；
// 其余一律归为服务不可达。
func normalizeTransportError(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %v", errdefs.ErrUnavailable, err)
	}
}

// IsAuthError 是否为认证/授权类错误（401/403）
func IsAuthError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden
	}
	return false
}

// StatusOf 提取错误中的 HTTP 状态码，非 API 错误返回 0
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}
