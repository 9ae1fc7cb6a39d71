package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
)

// downloadGET 以 GET 方式下载响应体到本地文件
//
// 浏览器端对应"创建 object URL → 触发下载 → 撤销 URL"的副作用链，
// 这里的等价物是写临时文件后原子改名。单发不重试。
func (c *Client) downloadGET(ctx context.Context, path string, query url.Values, destPath string) error {
	resp, err := c.doRaw(ctx, http.MethodGet, path, query, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return writeToFile(resp.Body, destPath)
}

// downloadJSONBody 以 POST + JSON 请求体方式下载响应体到本地文件
func (c *Client) downloadJSONBody(ctx context.Context, path string, body interface{}, destPath string) error {
	var reqBody io.Reader
	contentType := ""
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
		contentType = "application/json"
	}

	resp, err := c.doRaw(ctx, http.MethodPost, path, nil, reqBody, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return writeToFile(resp.Body, destPath)
}

// writeToFile 将 r 写入 destPath（先写临时文件再改名）
func writeToFile(r io.Reader, destPath string) error {
	dir := filepath.Dir(destPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), destPath)
}
