// Package client 评测平台 API 客户端
//
// 本包是对远端 REST API 的类型化封装，按领域拆分模块：
//   - client.go:     基础客户端、请求辅助函数
//   - errors.go:     错误规范化（APIError + 错误分类）
//   - metrics_prom.go: Prometheus 指标
//   - auth.go:       认证接口
//   - dataset.go:    数据集接口
//   - evaluation.go: 评测接口
//   - file.go:       文件接口
//   - metric.go:     指标接口
//
// 所有方法只做参数整形与响应解析，不含业务逻辑；
// 输入约束由服务端校验，客户端仅靠类型系统约束。
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"eval-console/pkg/logging"
)

// TokenSource 提供当前请求应携带的访问令牌
//
// 由会话存储实现；返回空字符串表示未登录，此时不附加认证头。
type TokenSource interface {
	Token() string
}

// Config 客户端配置
type Config struct {
	BaseURL    string            // API 基地址，如 http://localhost:8000/api/v1
	Timeout    time.Duration     // 单请求超时
	Tokens     TokenSource       // 令牌来源（可为 nil，匿名访问）
	HTTPClient *http.Client      // 自定义 HTTP 客户端（可选，用于测试注入）
	Logger     *logging.Logger   // 日志器（可选）
}

// Client 评测平台 API 客户端
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
	metrics    *Metrics
}

// New 创建客户端实例
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if httpClient.Timeout == 0 {
		httpClient.Timeout = 30 * time.Second
	}

	// 注入 Authorization header
	// 必须包装在最外层，保证所有模块共享同一个带令牌的 httpClient
	if cfg.Tokens != nil {
		base := httpClient.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		httpClient = &http.Client{
			Timeout:   httpClient.Timeout,
			Jar:       httpClient.Jar,
			Transport: &tokenTransport{base: base, tokens: cfg.Tokens},
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default("client")
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
		metrics:    defaultMetrics(),
	}
}

// BaseURL 返回 API 基地址
func (c *Client) BaseURL() string {
	return c.baseURL
}

// tokenTransport 包装 http.RoundTripper，自动注入 Authorization header
type tokenTransport struct {
	base   http.RoundTripper
	tokens TokenSource
}

func (t *tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if token := t.tokens.Token(); token != "" {
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return t.base.RoundTrip(req)
}

// ============================================================================
// 请求辅助函数
// ============================================================================

// doJSON 发起请求并将响应体解析到 out
//
// body 非 nil 时序列化为 JSON 请求体；out 为 nil 时丢弃响应体。
// 非 2xx 响应规范化为 *APIError。
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.requestURL(path, query), reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.observe(method, path, resp, err, time.Since(start))
	if err != nil {
		return normalizeTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// doRaw 发起请求并返回原始响应，调用方负责关闭 Body
//
// 用于 blob 下载等需要流式读取的场景。
func (c *Client) doRaw(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.requestURL(path, query), body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.observe(method, path, resp, err, time.Since(start))
	if err != nil {
		return nil, normalizeTransportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, newAPIError(resp)
	}
	return resp, nil
}

func (c *Client) requestURL(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// decodeJSON 解析 JSON 响应体
func decodeJSON(r io.Reader, out interface{}) error {
	if err := json.NewDecoder(r).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	return c.doJSON(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	return c.doJSON(ctx, http.MethodPost, path, nil, body, out)
}

func (c *Client) put(ctx context.Context, path string, body, out interface{}) error {
	return c.doJSON(ctx, http.MethodPut, path, nil, body, out)
}

func (c *Client) delete(ctx context.Context, path string) error {
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil, nil)
}
