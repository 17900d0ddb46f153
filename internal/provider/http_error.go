package provider

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind 是来源错误的分类，调度器据此决定是否重试。
type Kind string

const (
	// KindTransient：网络错误、超时、5xx、限流；可在同一阶段重试。
	KindTransient Kind = "transient"
	// KindPermanent：404、其它 4xx 等；重试无意义。
	KindPermanent Kind = "permanent"
	// KindParse：拿到了响应但在传输层无法解码（例如 JSON 损坏）。
	KindParse Kind = "parse"
)

var (
	// ErrNotFound 表示来源明确回答“没有这个条目”。
	ErrNotFound = errors.New("not found")
	// ErrMissingIdentity 表示抽取结果缺少任何外部 ID。
	ErrMissingIdentity = errors.New("missing identity")
)

// HTTPStatusError 表示站点返回了非 2xx 的 HTTP 状态码。
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Location   string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	loc := strings.TrimSpace(e.Location)
	if loc == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d location=%s", e.StatusCode, loc)
}

// BlockedError 表示请求被站点引导到了“验证/拦截”页面。
// 不尝试绕过；按限流处理（冷却后重试）。
type BlockedError struct {
	URL    string
	Reason string // 例如 "waf-challenge"
}

func (e *BlockedError) Error() string {
	if e == nil || strings.TrimSpace(e.Reason) == "" {
		return "blocked"
	}
	return "blocked: " + strings.TrimSpace(e.Reason)
}

// SourceError 是适配器对外暴露的唯一网络/传输层错误类型。
type SourceError struct {
	Source string // 适配器名（小写）
	Op     string // "listing" 或 "detail"
	URL    string
	Kind   Kind

	StatusCode int
	// Throttled 表示限流（429 或拦截页）；调度器会使用更长的冷却时间。
	Throttled  bool
	RetryAfter time.Duration

	Err error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source=%s op=%s kind=%s: %v", e.Source, e.Op, e.Kind, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Transient 构造可重试错误。
func Transient(source, op, url string, err error) *SourceError {
	return &SourceError{Source: source, Op: op, URL: url, Kind: KindTransient, Err: err}
}

// Permanent 构造不可重试错误。
func Permanent(source, op, url string, err error) *SourceError {
	return &SourceError{Source: source, Op: op, URL: url, Kind: KindPermanent, Err: err}
}

// ParseFailure 构造传输层解码失败错误。
func ParseFailure(source, op, url string, err error) *SourceError {
	return &SourceError{Source: source, Op: op, URL: url, Kind: KindParse, Err: err}
}

// KindOf 提取错误分类；不是 *SourceError 时 ok=false。
func KindOf(err error) (Kind, bool) {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return "", false
}

func IsTransient(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindTransient
}

func IsPermanent(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindPermanent
}

func IsParseFailure(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindParse
}

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// Throttle 返回限流信息：是否限流，以及来源建议的等待时间（可能为 0）。
func Throttle(err error) (time.Duration, bool) {
	var se *SourceError
	if errors.As(err, &se) && se.Throttled {
		return se.RetryAfter, true
	}
	return 0, false
}

// ExtractionError 表示纯函数抽取阶段的失败。
type ExtractionError struct {
	Source string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("source=%s extract: %v", e.Source, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// MissingIdentity 构造“缺少外部 ID”的抽取错误（调度器据此把条目记为 skipped）。
func MissingIdentity(source string) error {
	return &ExtractionError{Source: source, Err: ErrMissingIdentity}
}

func IsMissingIdentity(err error) bool { return errors.Is(err, ErrMissingIdentity) }
