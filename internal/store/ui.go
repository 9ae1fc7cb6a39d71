package store

import (
	"sync"
	"time"

	"eval-console/internal/store/persist"
	"eval-console/pkg/logging"
)

// 持久化 key
const (
	keyUISettings = "ui.settings"
	keyUIRecent   = "ui.recent_pages"
)

// maxRecentPages 最近访问页面上限
const maxRecentPages = 10

// Theme 主题模式
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
	ThemeAuto  Theme = "auto"
)

// LayoutMode 布局模式
type LayoutMode string

const (
	LayoutSide LayoutMode = "side"
	LayoutTop  LayoutMode = "top"
)

// TableSettings 表格显示设置
type TableSettings struct {
	PageSize   int    `json:"page_size"`
	Bordered   bool   `json:"bordered"`
	Size       string `json:"size"` // small | middle | large
	ShowIndex  bool   `json:"show_index"`
	StripeRows bool   `json:"stripe_rows"`
}

// ChartSettings 图表显示设置
type ChartSettings struct {
	Palette       string `json:"palette"`
	ShowLegend    bool   `json:"show_legend"`
	ShowDataLabel bool   `json:"show_data_label"`
	Animation     bool   `json:"animation"`
}

// Preferences 行为偏好
type Preferences struct {
	AutoRefresh     bool `json:"auto_refresh"`
	RefreshInterval int  `json:"refresh_interval"` // 秒
	ConfirmDelete   bool `json:"confirm_delete"`
	ShowWelcome     bool `json:"show_welcome"`
}

// UISettings 全部界面设置，整体持久化
type UISettings struct {
	Theme        Theme         `json:"theme"`
	PrimaryColor string        `json:"primary_color"`
	Layout       LayoutMode    `json:"layout"`
	Collapsed    bool          `json:"collapsed"`
	Language     string        `json:"language"`
	Table        TableSettings `json:"table"`
	Chart        ChartSettings `json:"chart"`
	Prefs        Preferences   `json:"prefs"`
}

// DefaultUISettings 默认界面设置
func DefaultUISettings() UISettings {
	return UISettings{
		Theme:        ThemeLight,
		PrimaryColor: "#1890ff",
		Layout:       LayoutSide,
		Language:     "zh-CN",
		Table: TableSettings{
			PageSize: 10,
			Size:     "middle",
		},
		Chart: ChartSettings{
			Palette:    "default",
			ShowLegend: true,
			Animation:  true,
		},
		Prefs: Preferences{
			AutoRefresh:     true,
			RefreshInterval: 5,
			ConfirmDelete:   true,
			ShowWelcome:     true,
		},
	}
}

// RecentPage 最近访问的页面
type RecentPage struct {
	Path      string    `json:"path"`
	Title     string    `json:"title"`
	VisitedAt time.Time `json:"visited_at"`
}

// UIStore 界面偏好状态
type UIStore struct {
	mu      sync.RWMutex
	persist persist.Persister
	logger  *logging.Logger

	settings UISettings
	recent   []RecentPage
}

// NewUI 创建界面偏好 store 并恢复持久化设置
func NewUI(p persist.Persister, logger *logging.Logger) *UIStore {
	if logger == nil {
		logger = logging.Default("ui-store")
	}
	s := &UIStore{persist: p, logger: logger, settings: DefaultUISettings()}

	var settings UISettings
	if err := p.Get(keyUISettings, &settings); err == nil && settings.Theme != "" {
		s.settings = settings
	}
	var recent []RecentPage
	if err := p.Get(keyUIRecent, &recent); err == nil {
		s.recent = recent
	}
	return s
}

// Settings 返回当前设置副本
func (s *UIStore) Settings() UISettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// SetSettings 整体替换设置并持久化
func (s *UIStore) SetSettings(settings UISettings) {
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
	s.save()
}

// Update 在锁内修改设置并持久化
func (s *UIStore) Update(fn func(*UISettings)) {
	s.mu.Lock()
	fn(&s.settings)
	s.mu.Unlock()
	s.save()
}

// SetTheme 切换主题
func (s *UIStore) SetTheme(theme Theme) {
	s.Update(func(u *UISettings) { u.Theme = theme })
}

// ToggleCollapsed 切换侧栏折叠
func (s *UIStore) ToggleCollapsed() {
	s.Update(func(u *UISettings) { u.Collapsed = !u.Collapsed })
}

// Reset 恢复默认设置
func (s *UIStore) Reset() {
	s.SetSettings(DefaultUISettings())
}

func (s *UIStore) save() {
	s.mu.RLock()
	settings := s.settings
	s.mu.RUnlock()
	if err := s.persist.Set(keyUISettings, settings); err != nil {
		s.logger.WithError(err).Warn("持久化界面设置失败")
	}
}

// VisitPage 记录一次页面访问
//
// 按路径去重、新的在前、上限 10 条。
func (s *UIStore) VisitPage(path, title string) {
	s.mu.Lock()
	out := []RecentPage{{Path: path, Title: title, VisitedAt: time.Now()}}
	for _, p := range s.recent {
		if p.Path == path {
			continue
		}
		out = append(out, p)
		if len(out) == maxRecentPages {
			break
		}
	}
	s.recent = out
	recent := append([]RecentPage(nil), out...)
	s.mu.Unlock()

	if err := s.persist.Set(keyUIRecent, recent); err != nil {
		s.logger.WithError(err).Warn("持久化最近页面失败")
	}
}

// RecentPages 返回最近访问页面副本（新的在前）
func (s *UIStore) RecentPages() []RecentPage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]RecentPage(nil), s.recent...)
}
