package client

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"eval-console/internal/model"
)

// ProgressFunc 上传进度回调，percent ∈ [0,100]
//
// 由传输层在读取请求体时同步调用，回调内不应做耗时操作。
type ProgressFunc func(percent int)

// UploadImage 上传单张图片
func (c *Client) UploadImage(ctx context.Context, filePath string) (*model.FileUploadResponse, error) {
	var resp model.FileUploadResponse
	if err := c.uploadFiles(ctx, "/files/upload/image", "file", []string{filePath}, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UploadImages 批量上传图片，onProgress 报告整体进度
func (c *Client) UploadImages(ctx context.Context, filePaths []string, onProgress ProgressFunc) (*model.BatchUploadResponse, error) {
	var resp model.BatchUploadResponse
	if err := c.uploadFiles(ctx, "/files/upload/images/batch", "files", filePaths, onProgress, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UploadDocument 上传文档（PDF、Word 等）
func (c *Client) UploadDocument(ctx context.Context, filePath string) (*model.FileUploadResponse, error) {
	var resp model.FileUploadResponse
	if err := c.uploadFiles(ctx, "/files/upload/document", "file", []string{filePath}, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// uploadFiles 以 multipart 单发上传若干文件
//
// 无分块无背压：整个请求一次性发出，进度来自读取端计数。
func (c *Client) uploadFiles(ctx context.Context, path, fieldName string, filePaths []string, onProgress ProgressFunc, out interface{}) error {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	var total int64
	for _, fp := range filePaths {
		info, err := os.Stat(fp)
		if err != nil {
			return fmt.Errorf("stat %s: %w", fp, err)
		}
		total += info.Size()
	}

	go func() {
		for _, fp := range filePaths {
			f, err := os.Open(fp)
			if err != nil {
				pw.CloseWithError(err)
				return
			}
			part, err := writer.CreateFormFile(fieldName, filepath.Base(fp))
			if err != nil {
				f.Close()
				pw.CloseWithError(err)
				return
			}
			if _, err := io.Copy(part, f); err != nil {
				f.Close()
				pw.CloseWithError(err)
				return
			}
			f.Close()
		}
		pw.CloseWithError(writer.Close())
	}()

	var body io.Reader = pr
	if onProgress != nil && total > 0 {
		body = &progressReader{r: pr, total: total, onProgress: onProgress}
	}

	resp, err := c.doRaw(ctx, http.MethodPost, path, nil, body, writer.FormDataContentType())
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.metrics.UploadBytes.Add(float64(total))

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return decodeJSON(resp.Body, out)
}

// progressReader 包装 Reader，按读取字节数报告进度百分比
type progressReader struct {
	r          io.Reader
	total      int64
	read       int64
	lastPct    int
	onProgress ProgressFunc
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.read += int64(n)
		pct := int(p.read * 100 / p.total)
		if pct > 100 {
			pct = 100
		}
		if pct != p.lastPct {
			p.lastPct = pct
			p.onProgress(pct)
		}
	}
	return n, err
}

// ListFiles 获取文件列表
func (c *Client) ListFiles(ctx context.Context, q *model.FileQuery) ([]model.FileRecord, error) {
	query := url.Values{}
	if q != nil {
		if q.FileType != "" {
			query.Set("file_type", string(q.FileType))
		}
		if q.Limit > 0 {
			query.Set("limit", strconv.Itoa(q.Limit))
		}
		if q.Offset > 0 {
			query.Set("offset", strconv.Itoa(q.Offset))
		}
	}

	var files []model.FileRecord
	if err := c.get(ctx, "/files/list", query, &files); err != nil {
		return nil, err
	}
	return files, nil
}

// GetFileStats 获取文件统计信息
func (c *Client) GetFileStats(ctx context.Context) (*model.FileStats, error) {
	var stats model.FileStats
	if err := c.get(ctx, "/files/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// DownloadURL 返回文件的下载地址
func (c *Client) DownloadURL(fileID int64) string {
	return fmt.Sprintf("%s/files/%d/download", c.baseURL, fileID)
}

// DownloadFile 下载文件到本地
func (c *Client) DownloadFile(ctx context.Context, fileID int64, destPath string) error {
	if destPath == "" {
		destPath = fmt.Sprintf("file_%d", fileID)
	}
	return c.downloadGET(ctx, fmt.Sprintf("/files/%d/download", fileID), nil, destPath)
}

// DeleteFile 删除文件
func (c *Client) DeleteFile(ctx context.Context, fileID int64) error {
	return c.delete(ctx, fmt.Sprintf("/files/%d", fileID))
}

// DeleteFiles 批量删除文件
//
// 全有或全无语义：逐个删除，遇到第一个错误即返回，不做部分失败核算。
func (c *Client) DeleteFiles(ctx context.Context, fileIDs []int64) error {
	for _, id := range fileIDs {
		if err := c.DeleteFile(ctx, id); err != nil {
			return fmt.Errorf("delete file %d: %w", id, err)
		}
	}
	return nil
}

// ValidateFileType 校验扩展名是否在允许列表内
func ValidateFileType(filename string, allowedExts []string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowed := range allowedExts {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

// ValidateFileSize 校验文件大小是否不超过 maxSizeMB
func ValidateFileSize(size int64, maxSizeMB int64) bool {
	return size <= maxSizeMB*1024*1024
}

// FormatFileSize 格式化文件大小
func FormatFileSize(bytes int64) string {
	if bytes == 0 {
		return "0 B"
	}
	units := []string{"B", "KB", "MB", "GB", "TB"}
	size := float64(bytes)
	i := 0
	for size >= 1024 && i < len(units)-1 {
		size /= 1024
		i++
	}
	return fmt.Sprintf("%.2f %s", size, units[i])
}
