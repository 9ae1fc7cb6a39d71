package model

import (
	"encoding/json"
	"time"
)

// Dataset 数据集基础信息
type Dataset struct {
	ID          int64      `json:"id"`
	TaskID      int64      `json:"task_id"`
	TaskName    string     `json:"task_name,omitempty"`
	Name        string     `json:"name,omitempty"`
	Description string     `json:"description,omitempty"`
	DataCount   int        `json:"data_count,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// DatasetItem 数据集条目：一对输入与标准答案
type DatasetItem struct {
	ID          int64           `json:"id"`
	TaskID      int64           `json:"task_id"`
	DatasetID   int64           `json:"dataset_id,omitempty"`
	InputData   json.RawMessage `json:"input_data"`
	GroundTruth json.RawMessage `json:"ground_truth"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// CreateDatasetRequest 创建数据集请求
type CreateDatasetRequest struct {
	TaskID      int64              `json:"task_id"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Items       []DatasetItemInput `json:"items"`
}

// DatasetItemInput 新建条目的输入（无 ID 与时间戳）
type DatasetItemInput struct {
	InputData   json.RawMessage `json:"input_data"`
	GroundTruth json.RawMessage `json:"ground_truth"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// UpdateDatasetRequest 更新数据集请求
type UpdateDatasetRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// DatasetQuery 数据集列表查询参数
type DatasetQuery struct {
	TaskID    int64
	Keyword   string
	Limit     int
	Offset    int
	SortBy    string // created_at | updated_at | name
	SortOrder string // asc | desc
}

// DatasetItemQuery 条目列表查询参数
type DatasetItemQuery struct {
	DatasetID int64
	TaskID    int64
	Label     string
	Limit     int
	Offset    int
}

// DatasetStatistics 数据集统计信息
type DatasetStatistics struct {
	TotalCount        int            `json:"total_count"`
	LabelDistribution map[string]int `json:"label_distribution"`
	FileSizeTotal     int64          `json:"file_size_total,omitempty"`
}

// ValidationIssue 数据集校验问题（错误或警告）
type ValidationIssue struct {
	ItemIndex int    `json:"item_index"`
	Field     string `json:"field"`
	Message   string `json:"message"`
}

// DatasetValidationResult 数据集校验结果
type DatasetValidationResult struct {
	IsValid    bool              `json:"is_valid"`
	Errors     []ValidationIssue `json:"errors"`
	Warnings   []ValidationIssue `json:"warnings"`
	Statistics struct {
		TotalItems   int `json:"total_items"`
		ValidItems   int `json:"valid_items"`
		InvalidItems int `json:"invalid_items"`
	} `json:"statistics"`
}

// DatasetSplitConfig 数据集划分配置，比例之和应为 1
type DatasetSplitConfig struct {
	TrainRatio float64 `json:"train_ratio"`
	ValRatio   float64 `json:"val_ratio"`
	TestRatio  float64 `json:"test_ratio"`
	RandomSeed *int64  `json:"random_seed,omitempty"`
	Stratify   bool    `json:"stratify,omitempty"`
}

// DatasetSplitResult 数据集划分结果（按条目 ID 分组）
type DatasetSplitResult struct {
	Train      []int64 `json:"train"`
	Validation []int64 `json:"validation"`
	Test       []int64 `json:"test"`
	Statistics struct {
		TrainCount int `json:"train_count"`
		ValCount   int `json:"val_count"`
		TestCount  int `json:"test_count"`
	} `json:"statistics"`
}

// DatasetExportConfig 数据集导出配置
type DatasetExportConfig struct {
	Format          string `json:"format"` // json | csv | excel
	IncludeMetadata bool   `json:"include_metadata,omitempty"`
}

// BatchOperationRequest 条目批量操作请求
type BatchOperationRequest struct {
	Operation string          `json:"operation"` // delete | update | export | move
	ItemIDs   []int64         `json:"item_ids"`
	Params    json.RawMessage `json:"params,omitempty"`
}

// BatchOperationResult 批量操作结果
type BatchOperationResult struct {
	SuccessCount int `json:"success_count"`
	FailedCount  int `json:"failed_count"`
	Errors       []struct {
		ItemID int64  `json:"item_id"`
		Error  string `json:"error"`
	} `json:"errors,omitempty"`
}
