// Package store 控制台客户端状态
//
// 浏览器端的全局状态在这里落成三个互斥锁保护的 store：
//   - SessionStore:    会话与认证状态
//   - EvaluationStore: 评测运行列表、筛选排序、选中集与实时合并
//   - UIStore:         界面偏好
//
// 需要跨会话保留的片段通过 persist.Persister 落盘，读取失败一律
// 回退默认值，不阻塞启动。
package store

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode"

	"github.com/golang-jwt/jwt/v5"

	"eval-console/internal/client"
	"eval-console/internal/model"
	"eval-console/internal/store/persist"
	"eval-console/pkg/logging"
)

// 持久化 key
const (
	keySessionToken    = "session.token"
	keySessionRemember = "session.remember"
	keySessionHistory  = "session.history"
)

// expiryWarningLead 过期预警提前量
const expiryWarningLead = 5 * time.Minute

// maxLoginHistory 登录历史上限
const maxLoginHistory = 5

// LoginRecord 一次成功登录的记录
type LoginRecord struct {
	Username string    `json:"username"`
	LoginAt  time.Time `json:"login_at"`
}

// SessionStore 会话状态
//
// 只持久化令牌本身；用户信息每次启动都通过 FetchUser 重新获取，
// 获取失败按未登录处理（fail-closed）。
type SessionStore struct {
	mu      sync.RWMutex
	api     *client.Client
	persist persist.Persister
	logger  *logging.Logger

	token          string
	user           *model.User
	rememberedUser string
	history        []LoginRecord
}

// NewSession 创建会话 store 并恢复持久化片段
func NewSession(api *client.Client, p persist.Persister, logger *logging.Logger) *SessionStore {
	if logger == nil {
		logger = logging.Default("session")
	}
	s := &SessionStore{api: api, persist: p, logger: logger}

	var token string
	if err := p.Get(keySessionToken, &token); err == nil {
		s.token = token
	}
	var remembered string
	if err := p.Get(keySessionRemember, &remembered); err == nil {
		s.rememberedUser = remembered
	}
	var history []LoginRecord
	if err := p.Get(keySessionHistory, &history); err == nil {
		s.history = history
	}
	return s
}

// SetClient 注入 API 客户端
//
// 会话实现 client.TokenSource，客户端又依赖会话取令牌，
// 装配时先建会话、再建客户端、最后回填。
func (s *SessionStore) SetClient(api *client.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.api = api
}

// Token 返回当前访问令牌，实现 client.TokenSource
func (s *SessionStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// IsAuthenticated 是否已认证（有令牌且已取到用户信息）
func (s *SessionStore) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != "" && s.user != nil
}

// User 返回当前用户信息副本，未登录返回 nil
func (s *SessionStore) User() *model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// IsAdmin 当前用户是否为管理员
func (s *SessionStore) IsAdmin() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil && s.user.Role == model.UserRoleAdmin
}

// SetToken 设置访问令牌并持久化
func (s *SessionStore) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	if err := s.persist.Set(keySessionToken, token); err != nil {
		s.logger.WithError(err).Warn("持久化令牌失败")
	}
}

// SetUser 设置当前用户信息
func (s *SessionStore) SetUser(u *model.User) {
	s.mu.Lock()
	s.user = u
	s.mu.Unlock()
}

// Login 登录并建立会话
//
// remember 为 true 时记住用户名；登录成功后立即拉取用户信息，
// 拉取失败视同登录失败并清空会话。
func (s *SessionStore) Login(ctx context.Context, username, password string, remember bool) error {
	resp, err := s.api.Login(ctx, model.LoginRequest{Username: username, Password: password})
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	s.SetToken(resp.AccessToken)

	if err := s.FetchUser(ctx); err != nil {
		return fmt.Errorf("fetch user after login: %w", err)
	}

	s.mu.Lock()
	if remember {
		s.rememberedUser = username
	} else {
		s.rememberedUser = ""
	}
	s.history = appendLoginHistory(s.history, LoginRecord{Username: username, LoginAt: time.Now()})
	history := append([]LoginRecord(nil), s.history...)
	remembered := s.rememberedUser
	s.mu.Unlock()

	if err := s.persist.Set(keySessionRemember, remembered); err != nil {
		s.logger.WithError(err).Warn("持久化记住的用户名失败")
	}
	if err := s.persist.Set(keySessionHistory, history); err != nil {
		s.logger.WithError(err).Warn("持久化登录历史失败")
	}

	s.logger.Info("登录成功", "username", username)
	return nil
}

// appendLoginHistory 追加登录记录，按用户名去重、新的在前、上限 5 条
func appendLoginHistory(history []LoginRecord, rec LoginRecord) []LoginRecord {
	out := []LoginRecord{rec}
	for _, h := range history {
		if h.Username == rec.Username {
			continue
		}
		out = append(out, h)
		if len(out) == maxLoginHistory {
			break
		}
	}
	return out
}

// FetchUser 拉取当前用户信息
//
// 任何失败（网络错误、401、解析失败）都清空会话：宁可要求重新
// 登录，也不带着无法验证的令牌继续操作。
func (s *SessionStore) FetchUser(ctx context.Context) error {
	user, err := s.api.CurrentUser(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("获取用户信息失败，清空会话")
		s.Logout()
		return err
	}
	s.SetUser(user)
	return nil
}

// Logout 退出登录，清空内存状态与持久化令牌
func (s *SessionStore) Logout() {
	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.mu.Unlock()
	if err := s.persist.Delete(keySessionToken); err != nil {
		s.logger.WithError(err).Warn("清除持久化令牌失败")
	}
}

// CheckExpiry 检查令牌有效期，返回会话是否仍然有效
//
// 客户端没有签名密钥，只解码 exp 声明不做验证。已过期、无法解析
// 或缺失 exp 的令牌一律按失效处理并强制退出登录。
func (s *SessionStore) CheckExpiry() bool {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()
	if token == "" {
		return false
	}

	exp, err := tokenExpiry(token)
	if err != nil {
		s.logger.WithError(err).Warn("令牌无法解析，强制退出")
		s.Logout()
		return false
	}
	if time.Now().After(exp) {
		s.logger.Info("令牌已过期，强制退出")
		s.Logout()
		return false
	}
	return true
}

// ExpiryWarning 返回应提示"即将过期"的时间点
//
// 第二个返回值为 false 表示无有效令牌或已进入预警窗口之内。
func (s *SessionStore) ExpiryWarning() (time.Time, bool) {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()
	if token == "" {
		return time.Time{}, false
	}

	exp, err := tokenExpiry(token)
	if err != nil {
		return time.Time{}, false
	}
	warnAt := exp.Add(-expiryWarningLead)
	if time.Now().After(warnAt) {
		return time.Time{}, false
	}
	return warnAt, true
}

// tokenExpiry 解码 JWT 的 exp 声明（不验证签名）
func tokenExpiry(token string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("token has no exp claim")
	}
	return claims.ExpiresAt.Time, nil
}

// RememberedUsername 返回记住的用户名
func (s *SessionStore) RememberedUsername() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rememberedUser
}

// LoginHistory 返回登录历史副本（新的在前）
func (s *SessionStore) LoginHistory() []LoginRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]LoginRecord(nil), s.history...)
}

// ============================================================================
// 密码强度
// ============================================================================

// PasswordStrength 密码强度等级
type PasswordStrength string

const (
	StrengthWeak   PasswordStrength = "weak"
	StrengthMedium PasswordStrength = "medium"
	StrengthStrong PasswordStrength = "strong"
)

// CheckPasswordStrength 评估密码强度
//
// 五项各计一分：长度 ≥8、小写、大写、数字、符号。
// 得分 ≤2 弱、3 中、≥4 强。
func CheckPasswordStrength(password string) PasswordStrength {
	score := 0
	if len(password) >= 8 {
		score++
	}
	var hasLower, hasUpper, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}
	for _, ok := range []bool{hasLower, hasUpper, hasDigit, hasSymbol} {
		if ok {
			score++
		}
	}

	switch {
	case score <= 2:
		return StrengthWeak
	case score == 3:
		return StrengthMedium
	default:
		return StrengthStrong
	}
}
