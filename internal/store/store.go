// Package store 定义电影记录的持久化接口，并提供内存实现（dry-run 与测试使用）。
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/John-Robertt/movieingest/internal/domain"
)

// Store 是调度器依赖的持久化接口。
//
// 约束：
// - Upsert 以 identity key 去重；按字段“非空新值覆盖，否则保留旧值”
// - 错误统一包装为 *PersistenceError
type Store interface {
	Upsert(ctx context.Context, key domain.IdentityKey, rec domain.MovieRecord) error
	Count(ctx context.Context, f CountFilter) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

// CountFilter 的各项为 AND 关系；全部为 false 时统计总数。
type CountFilter struct {
	WithPoster      bool `json:"with_poster"`
	WithDescription bool `json:"with_description"`
	WithCast        bool `json:"with_cast"`
}

// PersistenceError 表示存储层失败。
type PersistenceError struct {
	Op  string // "upsert" / "count" / "ping" / "open"
	Key domain.IdentityKey
	Err error
}

func (e *PersistenceError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("store %s key=%s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// ErrClosed 表示在 Close 之后继续使用。
var ErrClosed = errors.New("store closed")
