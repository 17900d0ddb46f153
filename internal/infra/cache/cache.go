// Package cache 缓存详情阶段的原始响应（HTML/JSON），重复运行时避免重复抓取。
//
// 约束：
// - 只缓存 2xx 的原始 payload；抽取结果不缓存（抽取是纯函数，重算即可）
// - dry-run：只读（ReadOnly=true），Put 返回 ErrReadOnly
// - 缓存故障不应让条目失败：调用方把 Get/Put 错误记日志后按未命中处理
package cache

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/John-Robertt/movieingest/internal/provider"
)

// Cache 是详情 payload 缓存的统一接口。
type Cache interface {
	// Get 命中时 ok=true；未命中/过期返回 ok=false, err=nil。
	Get(ctx context.Context, source, id string) (raw provider.RawDetail, ok bool, err error)
	Put(ctx context.Context, raw provider.RawDetail) error
}

var ErrReadOnly = errors.New("cache: read-only")

// Off 是不缓存的实现（cache.driver=off）。
type Off struct{}

func (Off) Get(context.Context, string, string) (provider.RawDetail, bool, error) {
	return provider.RawDetail{}, false, nil
}

func (Off) Put(context.Context, provider.RawDetail) error { return nil }

var (
	sourceNameRE = regexp.MustCompile(`^[a-z0-9_]+$`)
	detailIDRE   = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// cleanKey 校验 source/id，避免路径穿越与 key 注入。
func cleanKey(source, id string) (string, string, error) {
	s := strings.ToLower(strings.TrimSpace(source))
	if s == "" {
		return "", "", fmt.Errorf("source 不能为空")
	}
	if !sourceNameRE.MatchString(s) {
		return "", "", fmt.Errorf("非法 source：%q", source)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", "", fmt.Errorf("id 不能为空")
	}
	if !detailIDRE.MatchString(id) {
		return "", "", fmt.Errorf("非法 id：%q", id)
	}
	return s, id, nil
}

func isJSON(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "json")
}
