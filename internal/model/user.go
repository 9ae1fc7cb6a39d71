// Package model 定义评测平台的核心数据模型
//
// 这些类型与远端 API 的传输格式一一对应，本模块不拥有数据，
// 只持有服务端真值的客户端副本。
//
// 文件组织：
//   - user.go:       用户与认证
//   - evaluation.go: 评测运行、进度、任务与规则
//   - dataset.go:    数据集与条目
//   - file.go:       文件上传与记录
//   - metric.go:     指标与对比
package model

// UserRole 用户角色
type UserRole string

const (
	// UserRoleAdmin 管理员：可管理用户、重算指标
	UserRoleAdmin UserRole = "admin"

	// UserRoleUser 普通用户：可创建数据集和评测
	UserRoleUser UserRole = "user"

	// UserRoleViewer 只读用户：仅可查看
	UserRoleViewer UserRole = "viewer"
)

// User 用户信息
//
// 客户端视角下用户是只读的，仅管理员更新接口可修改。
type User struct {
	ID       int64    `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	FullName *string  `json:"full_name,omitempty"`
	Role     UserRole `json:"role"`
	IsActive bool     `json:"is_active"`
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// RegisterRequest 注册请求
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name,omitempty"`
}
