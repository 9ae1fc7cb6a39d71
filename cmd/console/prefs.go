package main

import (
	"fmt"
	"strconv"

	"eval-console/internal/store"
)

// cmdPrefs 界面偏好
//
// 偏好全部存在本地状态库，不需要登录。
func (a *app) cmdPrefs(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("用法: console prefs <get|set|reset> [键] [值]")
	}

	switch args[0] {
	case "get":
		return a.prefsGet(args[1:])
	case "set":
		return a.prefsSet(args[1:])
	case "reset":
		a.ui.Reset()
		fmt.Println("已恢复默认偏好")
		return nil
	default:
		return fmt.Errorf("未知子命令: prefs %s", args[0])
	}
}

// prefsGet 查看偏好（不带键时列出全部）
func (a *app) prefsGet(args []string) error {
	settings := a.ui.Settings()
	all := map[string]string{
		"theme":            string(settings.Theme),
		"language":         settings.Language,
		"layout":           string(settings.Layout),
		"primary-color":    settings.PrimaryColor,
		"page-size":        strconv.Itoa(settings.Table.PageSize),
		"auto-refresh":     strconv.FormatBool(settings.Prefs.AutoRefresh),
		"refresh-interval": strconv.Itoa(settings.Prefs.RefreshInterval),
		"confirm-delete":   strconv.FormatBool(settings.Prefs.ConfirmDelete),
	}

	if len(args) > 0 {
		value, ok := all[args[0]]
		if !ok {
			return fmt.Errorf("未知偏好键: %s", args[0])
		}
		fmt.Println(value)
		return nil
	}

	for _, key := range []string{
		"theme", "language", "layout", "primary-color",
		"page-size", "auto-refresh", "refresh-interval", "confirm-delete",
	} {
		fmt.Printf("%-16s %s\n", key, all[key])
	}
	return nil
}

// prefsSet 修改单个偏好
func (a *app) prefsSet(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("用法: console prefs set <键> <值>")
	}
	key, value := args[0], args[1]

	var err error
	a.ui.Update(func(s *store.UISettings) {
		switch key {
		case "theme":
			switch store.Theme(value) {
			case store.ThemeLight, store.ThemeDark, store.ThemeAuto:
				s.Theme = store.Theme(value)
			default:
				err = fmt.Errorf("theme 取值: light | dark | auto")
			}
		case "language":
			s.Language = value
		case "layout":
			switch store.LayoutMode(value) {
			case store.LayoutSide, store.LayoutTop:
				s.Layout = store.LayoutMode(value)
			default:
				err = fmt.Errorf("layout 取值: side | top")
			}
		case "primary-color":
			s.PrimaryColor = value
		case "page-size":
			n, e := strconv.Atoi(value)
			if e != nil || n <= 0 {
				err = fmt.Errorf("page-size 需要正整数")
				return
			}
			s.Table.PageSize = n
		case "auto-refresh":
			b, e := strconv.ParseBool(value)
			if e != nil {
				err = fmt.Errorf("auto-refresh 取值: true | false")
				return
			}
			s.Prefs.AutoRefresh = b
		case "refresh-interval":
			n, e := strconv.Atoi(value)
			if e != nil || n <= 0 {
				err = fmt.Errorf("refresh-interval 需要正整数（秒）")
				return
			}
			s.Prefs.RefreshInterval = n
		case "confirm-delete":
			b, e := strconv.ParseBool(value)
			if e != nil {
				err = fmt.Errorf("confirm-delete 取值: true | false")
				return
			}
			s.Prefs.ConfirmDelete = b
		default:
			err = fmt.Errorf("未知偏好键: %s", key)
		}
	})
	if err != nil {
		return err
	}

	fmt.Printf("%s = %s\n", key, value)
	return nil
}
