package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"eval-console/internal/store"
)

// cmdLogin 登录
func (a *app) cmdLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	username := fs.String("u", a.session.RememberedUsername(), "用户名")
	password := fs.String("p", "", "密码（不传则交互输入）")
	remember := fs.Bool("remember", false, "记住用户名")
	fs.Parse(args)

	if *username == "" {
		return fmt.Errorf("用户名不能为空（-u）")
	}
	if *password == "" {
		fmt.Printf("密码 (%s): ", *username)
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("读取密码失败: %w", err)
		}
		*password = strings.TrimRight(line, "\r\n")
	}
	if *password == "" {
		return fmt.Errorf("密码不能为空")
	}
	if store.CheckPasswordStrength(*password) == store.StrengthWeak {
		fmt.Fprintln(os.Stderr, "提示: 当前密码强度较弱，建议尽快修改")
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.API.Timeout)
	defer cancel()

	if err := a.session.Login(ctx, *username, *password, *remember); err != nil {
		return fmt.Errorf("登录失败: %w", err)
	}

	user := a.session.User()
	fmt.Printf("已登录: %s (%s)\n", user.Username, user.Role)
	return nil
}

// cmdLogout 退出登录
func (a *app) cmdLogout(args []string) error {
	a.session.Logout()
	fmt.Println("已退出登录")
	return nil
}

// cmdWhoami 当前用户信息
func (a *app) cmdWhoami(args []string) error {
	if err := a.requireAuth(); err != nil {
		return err
	}

	user := a.session.User()
	fmt.Printf("用户名: %s\n", user.Username)
	fmt.Printf("邮箱:   %s\n", user.Email)
	fmt.Printf("角色:   %s\n", user.Role)
	if user.FullName != nil {
		fmt.Printf("姓名:   %s\n", *user.FullName)
	}

	if warnAt, ok := a.session.ExpiryWarning(); !ok {
		fmt.Println("提示:   令牌即将过期，请重新登录")
	} else {
		fmt.Printf("令牌:   %s 前有效\n", warnAt.Format("2006-01-02 15:04"))
	}

	if history := a.session.LoginHistory(); len(history) > 0 {
		fmt.Println("最近登录:")
		for _, rec := range history {
			fmt.Printf("  %s  %s\n", rec.LoginAt.Format(time.DateTime), rec.Username)
		}
	}
	return nil
}
