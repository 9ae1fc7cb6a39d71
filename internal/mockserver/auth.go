package mockserver

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"eval-console/internal/model"
)

// ============================================================================
// 密码与令牌
// ============================================================================

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func checkPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// authClaims JWT 声明
type authClaims struct {
	jwt.RegisteredClaims
	Username string         `json:"username"`
	Role     model.UserRole `json:"role"`
}

// generateToken 签发访问令牌
func (h *Handler) generateToken(u *mockUser) (string, error) {
	claims := authClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(h.cfg.AccessTokenTTL)),
		},
		Username: u.Username,
		Role:     u.Role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.cfg.JWTSecret))
}

// parseToken 解析并验证访问令牌
func (h *Handler) parseToken(tokenString string) (*authClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &authClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(h.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*authClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// requireAuth 认证中间件，校验 Bearer 令牌
func (h *Handler) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := h.authenticate(r); err != nil {
			writeError(w, http.StatusUnauthorized, "未认证或令牌无效")
			return
		}
		next(w, r)
	}
}

// authenticate 从请求头解出当前用户
func (h *Handler) authenticate(r *http.Request) (*mockUser, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return nil, fmt.Errorf("missing bearer token")
	}
	claims, err := h.parseToken(token)
	if err != nil {
		return nil, err
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad subject: %w", err)
	}

	h.state.mu.RLock()
	defer h.state.mu.RUnlock()
	user, ok := h.state.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d not found", id)
	}
	return user, nil
}

// ============================================================================
// Handlers
// ============================================================================

// Register 注册新用户
//
// 路由: POST /api/v1/auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "请求体格式错误")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusUnprocessableEntity, "用户名和密码不能为空")
		return
	}
	if len(req.Password) < 6 {
		writeError(w, http.StatusUnprocessableEntity, "密码长度至少 6 位")
		return
	}

	h.state.mu.Lock()
	defer h.state.mu.Unlock()

	for _, u := range h.state.users {
		if u.Username == req.Username {
			writeError(w, http.StatusConflict, "用户名已存在")
			return
		}
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "密码哈希失败")
		return
	}

	user := &mockUser{
		User: model.User{
			ID:       h.state.nextIDLocked(),
			Username: req.Username,
			Email:    req.Email,
			Role:     model.UserRoleUser,
			IsActive: true,
		},
		PasswordHash: hash,
	}
	if req.FullName != "" {
		user.FullName = &req.FullName
	}
	h.state.users[user.ID] = user

	writeJSON(w, http.StatusCreated, user.User)
}

// Login 登录，签发访问令牌
//
// 路由: POST /api/v1/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "请求体格式错误")
		return
	}

	h.state.mu.RLock()
	var user *mockUser
	for _, u := range h.state.users {
		if u.Username == req.Username {
			user = u
			break
		}
	}
	h.state.mu.RUnlock()

	if user == nil || !checkPassword(req.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "用户名或密码错误")
		return
	}
	if !user.IsActive {
		writeError(w, http.StatusForbidden, "账号已停用")
		return
	}

	token, err := h.generateToken(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "令牌签发失败")
		return
	}

	h.logger.Info("用户登录", "username", user.Username)
	writeJSON(w, http.StatusOK, model.LoginResponse{AccessToken: token, TokenType: "bearer"})
}

// Me 返回当前登录用户信息
//
// 路由: GET /api/v1/auth/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "未认证或令牌无效")
		return
	}
	writeJSON(w, http.StatusOK, user.User)
}
