package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eval-console/internal/client"
	"eval-console/internal/model"
	"eval-console/internal/store/persist"
)

func signedToken(t *testing.T, expiresIn time.Duration) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "admin",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func newSessionWithServer(t *testing.T, handler http.Handler) (*SessionStore, persist.Persister) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p := persist.NewMemory()
	s := NewSession(nil, p, nil)
	api := client.New(client.Config{BaseURL: srv.URL + "/api/v1", Tokens: s})
	s.SetClient(api)
	return s, p
}

func TestSessionLoginSuccess(t *testing.T) {
	token := signedToken(t, time.Hour)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req model.LoginRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Username != "admin" || req.Password != "admin123" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "用户名或密码错误"})
			return
		}
		json.NewEncoder(w).Encode(model.LoginResponse{AccessToken: token, TokenType: "bearer"})
	})
	mux.HandleFunc("GET /api/v1/auth/me", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(model.User{ID: 1, Username: "admin", Role: model.UserRoleAdmin})
	})

	s, p := newSessionWithServer(t, mux)

	require.NoError(t, s.Login(context.Background(), "admin", "admin123", true))
	assert.True(t, s.IsAuthenticated())
	assert.True(t, s.IsAdmin())
	assert.Equal(t, token, s.Token())
	assert.Equal(t, "admin", s.RememberedUsername())

	// 令牌已持久化
	var persisted string
	require.NoError(t, p.Get("session.token", &persisted))
	assert.Equal(t, token, persisted)
}

func TestSessionLoginWrongPassword(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "用户名或密码错误"})
	})

	s, _ := newSessionWithServer(t, mux)

	err := s.Login(context.Background(), "admin", "wrong", false)
	require.Error(t, err)
	assert.True(t, client.IsAuthError(err))
	assert.False(t, s.IsAuthenticated())
	assert.Empty(t, s.Token())
}

func TestFetchUserFailClosed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/auth/me", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	s, p := newSessionWithServer(t, mux)
	s.SetToken(signedToken(t, time.Hour))

	// 获取用户信息失败 → 会话整体清空，持久化令牌一并删除
	require.Error(t, s.FetchUser(context.Background()))
	assert.False(t, s.IsAuthenticated())
	assert.Empty(t, s.Token())

	var persisted string
	assert.ErrorIs(t, p.Get("session.token", &persisted), persist.ErrNotFound)
}

func TestCheckExpiry(t *testing.T) {
	t.Run("有效令牌", func(t *testing.T) {
		s := NewSession(nil, persist.NewMemory(), nil)
		s.SetToken(signedToken(t, time.Hour))
		assert.True(t, s.CheckExpiry())
		assert.NotEmpty(t, s.Token())
	})

	t.Run("过期令牌强制退出", func(t *testing.T) {
		p := persist.NewMemory()
		s := NewSession(nil, p, nil)
		s.SetToken(signedToken(t, -time.Minute))

		assert.False(t, s.CheckExpiry())
		assert.Empty(t, s.Token())
		var persisted string
		assert.ErrorIs(t, p.Get("session.token", &persisted), persist.ErrNotFound)
	})

	t.Run("畸形令牌按失效处理", func(t *testing.T) {
		s := NewSession(nil, persist.NewMemory(), nil)
		s.SetToken("not-a-jwt")
		assert.False(t, s.CheckExpiry())
		assert.Empty(t, s.Token())
	})

	t.Run("无 exp 声明按失效处理", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256,
			jwt.RegisteredClaims{Subject: "admin"}).SignedString([]byte("k"))
		require.NoError(t, err)

		s := NewSession(nil, persist.NewMemory(), nil)
		s.SetToken(token)
		assert.False(t, s.CheckExpiry())
	})

	t.Run("无令牌", func(t *testing.T) {
		s := NewSession(nil, persist.NewMemory(), nil)
		assert.False(t, s.CheckExpiry())
	})
}

func TestExpiryWarning(t *testing.T) {
	t.Run("距过期一小时", func(t *testing.T) {
		s := NewSession(nil, persist.NewMemory(), nil)
		s.SetToken(signedToken(t, time.Hour))

		warnAt, ok := s.ExpiryWarning()
		require.True(t, ok)
		// 预警点应落在 55 分钟附近
		assert.WithinDuration(t, time.Now().Add(55*time.Minute), warnAt, 10*time.Second)
	})

	t.Run("已进入预警窗口", func(t *testing.T) {
		s := NewSession(nil, persist.NewMemory(), nil)
		s.SetToken(signedToken(t, 2*time.Minute))
		_, ok := s.ExpiryWarning()
		assert.False(t, ok)
	})
}

func TestSessionRestoreFromPersist(t *testing.T) {
	token := signedToken(t, time.Hour)
	p := persist.NewMemory()
	require.NoError(t, p.Set("session.token", token))
	require.NoError(t, p.Set("session.remember", "admin"))

	s := NewSession(nil, p, nil)
	assert.Equal(t, token, s.Token())
	assert.Equal(t, "admin", s.RememberedUsername())
	// 用户信息不持久化，重启后必须重新获取
	assert.False(t, s.IsAuthenticated())
}

func TestLoginHistory(t *testing.T) {
	history := []LoginRecord{}
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		history = appendLoginHistory(history, LoginRecord{Username: name})
	}
	require.Len(t, history, 5)
	assert.Equal(t, "e", history[0].Username)

	// 重复用户名去重并置顶
	history = appendLoginHistory(history, LoginRecord{Username: "c"})
	require.Len(t, history, 5)
	assert.Equal(t, "c", history[0].Username)

	// 超过上限挤掉最旧的
	history = appendLoginHistory(history, LoginRecord{Username: "f"})
	require.Len(t, history, 5)
	assert.Equal(t, "f", history[0].Username)
	for _, h := range history {
		assert.NotEqual(t, "a", h.Username)
	}
}

func TestCheckPasswordStrength(t *testing.T) {
	tests := []struct {
		password string
		want     PasswordStrength
	}{
		{"abc", StrengthWeak},
		{"abcdefgh", StrengthWeak},
		{"abcdefg1", StrengthMedium},
		{"Abcdefg1", StrengthStrong},
		{"Abcdef1!", StrengthStrong},
		{"Ab1!", StrengthStrong},
		{"", StrengthWeak},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CheckPasswordStrength(tt.password), "password %q", tt.password)
	}
}
