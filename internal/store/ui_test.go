package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eval-console/internal/store/persist"
)

func TestUIDefaults(t *testing.T) {
	s := NewUI(persist.NewMemory(), nil)
	settings := s.Settings()
	assert.Equal(t, ThemeLight, settings.Theme)
	assert.Equal(t, LayoutSide, settings.Layout)
	assert.Equal(t, 10, settings.Table.PageSize)
	assert.True(t, settings.Prefs.AutoRefresh)
}

func TestUIRoundTripThroughReopenedStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	p, err := persist.Open(path)
	require.NoError(t, err)

	s := NewUI(p, nil)
	s.SetTheme(ThemeDark)
	s.Update(func(u *UISettings) {
		u.PrimaryColor = "#f5222d"
		u.Table.PageSize = 50
		u.Prefs.RefreshInterval = 30
	})
	s.VisitPage("/evaluations/1", "评测详情")
	require.NoError(t, p.Close())

	// 重新打开状态库，设置原样恢复
	p, err = persist.Open(path)
	require.NoError(t, err)
	defer p.Close()

	s2 := NewUI(p, nil)
	settings := s2.Settings()
	assert.Equal(t, ThemeDark, settings.Theme)
	assert.Equal(t, "#f5222d", settings.PrimaryColor)
	assert.Equal(t, 50, settings.Table.PageSize)
	assert.Equal(t, 30, settings.Prefs.RefreshInterval)

	recent := s2.RecentPages()
	require.Len(t, recent, 1)
	assert.Equal(t, "/evaluations/1", recent[0].Path)
}

func TestRecentPages(t *testing.T) {
	s := NewUI(persist.NewMemory(), nil)

	for i := 0; i < 12; i++ {
		s.VisitPage(filepath.Join("/page", string(rune('a'+i))), "页面")
	}
	recent := s.RecentPages()
	require.Len(t, recent, maxRecentPages)
	assert.Equal(t, "/page/l", recent[0].Path)

	// 重复路径去重并置顶
	s.VisitPage("/page/h", "页面")
	recent = s.RecentPages()
	require.Len(t, recent, maxRecentPages)
	assert.Equal(t, "/page/h", recent[0].Path)

	seen := map[string]int{}
	for _, r := range recent {
		seen[r.Path]++
	}
	assert.Equal(t, 1, seen["/page/h"])
}

func TestToggleCollapsedAndReset(t *testing.T) {
	s := NewUI(persist.NewMemory(), nil)
	assert.False(t, s.Settings().Collapsed)
	s.ToggleCollapsed()
	assert.True(t, s.Settings().Collapsed)

	s.SetTheme(ThemeDark)
	s.Reset()
	assert.Equal(t, DefaultUISettings(), s.Settings())
}
