// Package persist 控制台本地状态持久化
//
// 各 store 把需要跨会话保留的片段（会话令牌、筛选条件、界面偏好）
// 序列化为 JSON 后按 key 存入本地 SQLite。写入即落盘，进程退出
// 不丢数据；读取失败视同无数据，由 store 回退到默认值。
package persist

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// SchemaVersion 当前状态库 schema 版本
//
// 每次不兼容变更递增，并在 migrations 中补充对应迁移步骤。
const SchemaVersion = 2

// ErrNotFound key 不存在
var ErrNotFound = errors.New("persist: key not found")

// ErrNewerSchema 状态库由更新版本的程序写入，拒绝降级读取
var ErrNewerSchema = errors.New("persist: state written by newer version")

// Persister 状态持久化接口
//
// value 为任意可 JSON 序列化的结构；Get 把存储值解析到 out。
type Persister interface {
	Get(key string, out interface{}) error
	Set(key string, value interface{}) error
	Delete(key string) error
	Close() error
}

// ============================================================================
// SQLite 实现
// ============================================================================

// Store 基于 SQLite 的 KV 持久化
type Store struct {
	db *sql.DB
}

var _ Persister = (*Store)(nil)

const stateSchema = `
CREATE TABLE IF NOT EXISTS schema_meta (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS state (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at DATETIME DEFAULT (datetime('now'))
);
`

// Open 打开状态库
// dsn 示例: "~/.eval-console/state.db" 或 ":memory:"
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// SQLite 优化设置
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", p, err)
		}
	}

	if _, err := db.Exec(stateSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// migrate 把状态库升级到当前 schema 版本
//
// 版本号高于程序支持的版本时报错退出，避免旧程序破坏新格式。
func migrate(db *sql.DB) error {
	var version int
	err := db.QueryRow("SELECT version FROM schema_meta WHERE id = 1").Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		version = 0
	case err != nil:
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if version > SchemaVersion {
		return fmt.Errorf("%w: found v%d, supported v%d", ErrNewerSchema, version, SchemaVersion)
	}

	for v := version; v < SchemaVersion; v++ {
		step, ok := migrations[v]
		if !ok {
			continue
		}
		if err := step(db); err != nil {
			return fmt.Errorf("failed to migrate state v%d -> v%d: %w", v, v+1, err)
		}
	}

	_, err = db.Exec(`
		INSERT INTO schema_meta (id, version) VALUES (1, ?)
		ON CONFLICT (id) DO UPDATE SET version = excluded.version`,
		SchemaVersion)
	if err != nil {
		return fmt.Errorf("failed to write schema version: %w", err)
	}
	return nil
}

// migrations 迁移步骤表，migrations[n] 把 vn 升级到 v(n+1)
var migrations = map[int]func(*sql.DB) error{
	// v0 -> v1: 初始版本，建表即完成
	0: func(db *sql.DB) error { return nil },
	// v1 -> v2: 评测筛选条件的日期范围由字符串数组改为结构体，
	// 旧值直接丢弃，让 store 回退默认筛选
	1: func(db *sql.DB) error {
		_, err := db.Exec("DELETE FROM state WHERE key = 'evaluation.filter'")
		return err
	},
}

func (s *Store) Get(key string, out interface{}) error {
	var raw string
	err := s.db.QueryRow("SELECT value FROM state WHERE key = ?", key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read state %q: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("failed to decode state %q: %w", key, err)
	}
	return nil
}

func (s *Store) Set(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode state %q: %w", key, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO state (key, value, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(raw))
	if err != nil {
		return fmt.Errorf("failed to write state %q: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(key string) error {
	if _, err := s.db.Exec("DELETE FROM state WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete state %q: %w", key, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ============================================================================
// 内存实现
// ============================================================================

// Memory 内存 KV，用于测试和禁用持久化的场景
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

var _ Persister = (*Memory)(nil)

// NewMemory 创建内存持久化
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(key string, out interface{}) error {
	m.mu.RLock()
	raw, ok := m.data[key]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal([]byte(raw), out)
}

func (m *Memory) Set(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[key] = string(raw)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error {
	return nil
}
