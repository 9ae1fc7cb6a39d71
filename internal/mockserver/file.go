package mockserver

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"eval-console/internal/model"
)

// maxUploadBytes 单请求上传上限（32MB）
const maxUploadBytes = 32 << 20

// UploadImage 上传单张图片
//
// 路由: POST /api/v1/files/upload/image
func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	h.uploadSingle(w, r, "file", model.FileTypeImage)
}

// UploadDocument 上传文档
//
// 路由: POST /api/v1/files/upload/document
func (h *Handler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	h.uploadSingle(w, r, "file", model.FileTypeDocument)
}

func (h *Handler) uploadSingle(w http.ResponseWriter, r *http.Request, field string, ftype model.FileType) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "multipart 解析失败")
		return
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "缺少文件字段")
		return
	}
	defer file.Close()

	resp, err := h.storeFile(file, header.Filename, ftype)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "文件保存失败")
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// UploadImages 批量上传图片
//
// 路由: POST /api/v1/files/upload/images/batch
func (h *Handler) UploadImages(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "multipart 解析失败")
		return
	}

	var resp model.BatchUploadResponse
	resp.Files = []model.FileUploadResponse{}
	for _, header := range r.MultipartForm.File["files"] {
		file, err := header.Open()
		if err != nil {
			resp.FailedCount++
			continue
		}
		uploaded, err := h.storeFile(file, header.Filename, model.FileTypeImage)
		file.Close()
		if err != nil {
			resp.FailedCount++
			continue
		}
		resp.Files = append(resp.Files, *uploaded)
		resp.SuccessCount++
	}

	writeJSON(w, http.StatusCreated, resp)
}

// storeFile 保存文件内容到内存
func (h *Handler) storeFile(src io.Reader, originalName string, ftype model.FileType) (*model.FileUploadResponse, error) {
	content, err := io.ReadAll(io.LimitReader(src, maxUploadBytes))
	if err != nil {
		return nil, err
	}

	h.state.mu.Lock()
	defer h.state.mu.Unlock()

	id := h.state.nextIDLocked()
	record := model.FileRecord{
		ID:               id,
		Filename:         fmt.Sprintf("%d_%s", id, originalName),
		OriginalFilename: originalName,
		FilePath:         fmt.Sprintf("/uploads/%s/%d_%s", ftype, id, originalName),
		FileSize:         int64(len(content)),
		FileType:         ftype,
		CreatedAt:        time.Now(),
	}
	h.state.files[id] = &fileEntry{record: record, content: content}

	return &model.FileUploadResponse{
		ID:               record.ID,
		Filename:         record.Filename,
		OriginalFilename: record.OriginalFilename,
		FilePath:         record.FilePath,
		FileSize:         record.FileSize,
		FileType:         record.FileType,
		URL:              fmt.Sprintf("/api/v1/files/%d/download", record.ID),
	}, nil
}

// ListFiles 文件列表
//
// 路由: GET /api/v1/files/list
func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	ftype := model.FileType(r.URL.Query().Get("file_type"))

	h.state.mu.RLock()
	out := make([]model.FileRecord, 0, len(h.state.files))
	for _, f := range h.state.files {
		if ftype != "" && f.record.FileType != ftype {
			continue
		}
		out = append(out, f.record)
	}
	h.state.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	writeJSON(w, http.StatusOK, paginate(out, queryInt(r, "limit", 0), queryInt(r, "offset", 0)))
}

// FileStats 文件统计
//
// 路由: GET /api/v1/files/stats
func (h *Handler) FileStats(w http.ResponseWriter, r *http.Request) {
	h.state.mu.RLock()
	var stats model.FileStats
	for _, f := range h.state.files {
		stats.TotalCount++
		stats.TotalSize += f.record.FileSize
		switch f.record.FileType {
		case model.FileTypeImage:
			stats.ImageCount++
		case model.FileTypeDocument:
			stats.DocumentCount++
		}
	}
	h.state.mu.RUnlock()

	writeJSON(w, http.StatusOK, stats)
}

// DownloadFile 下载文件内容
//
// 路由: GET /api/v1/files/{id}/download
func (h *Handler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "非法的文件 ID")
		return
	}

	h.state.mu.RLock()
	f, ok := h.state.files[id]
	h.state.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusNotFound, "文件不存在")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename=%q`, f.record.OriginalFilename))
	w.Write(f.content)
}

// DeleteFile 删除文件
//
// 路由: DELETE /api/v1/files/{id}
func (h *Handler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "非法的文件 ID")
		return
	}

	h.state.mu.Lock()
	_, exists := h.state.files[id]
	delete(h.state.files, id)
	h.state.mu.Unlock()

	if !exists {
		writeError(w, http.StatusNotFound, "文件不存在")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "已删除"})
}
