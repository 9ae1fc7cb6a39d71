package model

import "time"

// FileType 文件分类
type FileType string

const (
	FileTypeImage    FileType = "image"
	FileTypeDocument FileType = "document"
)

// FileRecord 服务端保存的文件记录
type FileRecord struct {
	ID               int64     `json:"id"`
	UserID           int64     `json:"user_id"`
	Filename         string    `json:"filename"`
	OriginalFilename string    `json:"original_filename"`
	FilePath         string    `json:"file_path"`
	FileSize         int64     `json:"file_size"`
	FileType         FileType  `json:"file_type"`
	CreatedAt        time.Time `json:"created_at"`
}

// FileUploadResponse 单文件上传响应
type FileUploadResponse struct {
	ID               int64    `json:"id"`
	Filename         string   `json:"filename"`
	OriginalFilename string   `json:"original_filename"`
	FilePath         string   `json:"file_path"`
	FileSize         int64    `json:"file_size"`
	FileType         FileType `json:"file_type"`
	URL              string   `json:"url"`
}

// BatchUploadResponse 批量上传响应
type BatchUploadResponse struct {
	SuccessCount int                  `json:"success_count"`
	FailedCount  int                  `json:"failed_count"`
	Files        []FileUploadResponse `json:"files"`
}

// FileStats 文件统计
type FileStats struct {
	TotalCount    int   `json:"total_count"`
	TotalSize     int64 `json:"total_size"`
	ImageCount    int   `json:"image_count"`
	DocumentCount int   `json:"document_count"`
}

// FileQuery 文件列表查询参数
type FileQuery struct {
	FileType FileType
	Limit    int
	Offset   int
}
