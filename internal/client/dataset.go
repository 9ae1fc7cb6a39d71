package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"eval-console/internal/model"
)

// ListDatasets 获取数据集列表
func (c *Client) ListDatasets(ctx context.Context, q *model.DatasetQuery) ([]model.Dataset, error) {
	query := url.Values{}
	if q != nil {
		if q.TaskID > 0 {
			query.Set("task_id", strconv.FormatInt(q.TaskID, 10))
		}
		if q.Keyword != "" {
			query.Set("keyword", q.Keyword)
		}
		if q.Limit > 0 {
			query.Set("limit", strconv.Itoa(q.Limit))
		}
		if q.Offset > 0 {
			query.Set("offset", strconv.Itoa(q.Offset))
		}
		if q.SortBy != "" {
			query.Set("sort_by", q.SortBy)
		}
		if q.SortOrder != "" {
			query.Set("sort_order", q.SortOrder)
		}
	}

	var datasets []model.Dataset
	if err := c.get(ctx, "/datasets", query, &datasets); err != nil {
		return nil, err
	}
	return datasets, nil
}

// GetDataset 获取数据集详情
func (c *Client) GetDataset(ctx context.Context, datasetID int64) (*model.Dataset, error) {
	var dataset model.Dataset
	if err := c.get(ctx, fmt.Sprintf("/datasets/%d", datasetID), nil, &dataset); err != nil {
		return nil, err
	}
	return &dataset, nil
}

// CreateDataset 创建数据集
func (c *Client) CreateDataset(ctx context.Context, req model.CreateDatasetRequest) (*model.Dataset, error) {
	var dataset model.Dataset
	if err := c.post(ctx, "/datasets", req, &dataset); err != nil {
		return nil, err
	}
	return &dataset, nil
}

// UpdateDataset 更新数据集
func (c *Client) UpdateDataset(ctx context.Context, datasetID int64, req model.UpdateDatasetRequest) (*model.Dataset, error) {
	var dataset model.Dataset
	if err := c.put(ctx, fmt.Sprintf("/datasets/%d", datasetID), req, &dataset); err != nil {
		return nil, err
	}
	return &dataset, nil
}

// DeleteDataset 删除数据集
func (c *Client) DeleteDataset(ctx context.Context, datasetID int64) error {
	return c.delete(ctx, fmt.Sprintf("/datasets/%d", datasetID))
}

// ListDatasetItems 获取条目列表
func (c *Client) ListDatasetItems(ctx context.Context, q *model.DatasetItemQuery) ([]model.DatasetItem, error) {
	query := url.Values{}
	if q != nil {
		if q.DatasetID > 0 {
			query.Set("dataset_id", strconv.FormatInt(q.DatasetID, 10))
		}
		if q.TaskID > 0 {
			query.Set("task_id", strconv.FormatInt(q.TaskID, 10))
		}
		if q.Label != "" {
			query.Set("label", q.Label)
		}
		if q.Limit > 0 {
			query.Set("limit", strconv.Itoa(q.Limit))
		}
		if q.Offset > 0 {
			query.Set("offset", strconv.Itoa(q.Offset))
		}
	}

	var items []model.DatasetItem
	if err := c.get(ctx, "/datasets/items", query, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// GetDatasetItem 获取单个条目
func (c *Client) GetDatasetItem(ctx context.Context, itemID int64) (*model.DatasetItem, error) {
	var item model.DatasetItem
	if err := c.get(ctx, fmt.Sprintf("/datasets/items/%d", itemID), nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// AddDatasetItem 添加条目
func (c *Client) AddDatasetItem(ctx context.Context, datasetID int64, item model.DatasetItemInput) (*model.DatasetItem, error) {
	var created model.DatasetItem
	if err := c.post(ctx, fmt.Sprintf("/datasets/%d/items", datasetID), item, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// BatchAddItems 批量添加条目
func (c *Client) BatchAddItems(ctx context.Context, datasetID int64, items []model.DatasetItemInput) (*model.BatchOperationResult, error) {
	body := map[string]interface{}{"items": items}
	var result model.BatchOperationResult
	if err := c.post(ctx, fmt.Sprintf("/datasets/%d/items/batch", datasetID), body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UpdateDatasetItem 更新条目
func (c *Client) UpdateDatasetItem(ctx context.Context, itemID int64, item model.DatasetItemInput) (*model.DatasetItem, error) {
	var updated model.DatasetItem
	if err := c.put(ctx, fmt.Sprintf("/datasets/items/%d", itemID), item, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteDatasetItem 删除条目
func (c *Client) DeleteDatasetItem(ctx context.Context, itemID int64) error {
	return c.delete(ctx, fmt.Sprintf("/datasets/items/%d", itemID))
}

// GetDatasetStatistics 获取数据集统计信息
func (c *Client) GetDatasetStatistics(ctx context.Context, datasetID int64) (*model.DatasetStatistics, error) {
	var stats model.DatasetStatistics
	if err := c.get(ctx, fmt.Sprintf("/datasets/%d/statistics", datasetID), nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// ValidateDataset 校验数据集
func (c *Client) ValidateDataset(ctx context.Context, datasetID int64) (*model.DatasetValidationResult, error) {
	var result model.DatasetValidationResult
	if err := c.post(ctx, fmt.Sprintf("/datasets/%d/validate", datasetID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SplitDataset 划分数据集
func (c *Client) SplitDataset(ctx context.Context, datasetID int64, cfg model.DatasetSplitConfig) (*model.DatasetSplitResult, error) {
	var result model.DatasetSplitResult
	if err := c.post(ctx, fmt.Sprintf("/datasets/%d/split", datasetID), cfg, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ExportDataset 导出数据集到本地文件
//
// 对应浏览器端的 blob 下载：流式写入 destPath，单发不重试。
func (c *Client) ExportDataset(ctx context.Context, datasetID int64, cfg *model.DatasetExportConfig, destPath string) error {
	format := "json"
	if cfg != nil && cfg.Format != "" {
		format = cfg.Format
	}
	path := fmt.Sprintf("/datasets/%d/export", datasetID)
	if destPath == "" {
		destPath = fmt.Sprintf("dataset_%d.%s", datasetID, format)
	}
	return c.downloadJSONBody(ctx, path, cfg, destPath)
}

// DuplicateDataset 复制数据集
func (c *Client) DuplicateDataset(ctx context.Context, datasetID int64, newName string) (*model.Dataset, error) {
	body := map[string]string{}
	if newName != "" {
		body["name"] = newName
	}
	var dataset model.Dataset
	if err := c.post(ctx, fmt.Sprintf("/datasets/%d/duplicate", datasetID), body, &dataset); err != nil {
		return nil, err
	}
	return &dataset, nil
}

// GetLabelDistribution 获取标签分布
func (c *Client) GetLabelDistribution(ctx context.Context, datasetID int64) (map[string]int, error) {
	var dist map[string]int
	if err := c.get(ctx, fmt.Sprintf("/datasets/%d/label-distribution", datasetID), nil, &dist); err != nil {
		return nil, err
	}
	return dist, nil
}

// SearchDatasetItems 搜索条目
func (c *Client) SearchDatasetItems(ctx context.Context, datasetID int64, keyword string) ([]model.DatasetItem, error) {
	query := url.Values{"q": {keyword}}
	var items []model.DatasetItem
	if err := c.get(ctx, fmt.Sprintf("/datasets/%d/search", datasetID), query, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// PreviewDataset 预览数据集前若干条
func (c *Client) PreviewDataset(ctx context.Context, datasetID int64, limit int) ([]model.DatasetItem, error) {
	if limit <= 0 {
		limit = 10
	}
	query := url.Values{"limit": {strconv.Itoa(limit)}}
	var items []model.DatasetItem
	if err := c.get(ctx, fmt.Sprintf("/datasets/%d/preview", datasetID), query, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// BatchOperation 条目批量操作
func (c *Client) BatchOperation(ctx context.Context, req model.BatchOperationRequest) (*model.BatchOperationResult, error) {
	var result model.BatchOperationResult
	if err := c.post(ctx, "/datasets/items/batch-operation", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
