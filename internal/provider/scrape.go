package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// maxBodyBytes 限制单次响应体大小（详情页通常 < 2MB）。
const maxBodyBytes = 16 << 20

// Request 描述一次 GET 往返。
type Request struct {
	Source string
	Op     string // "listing" 或 "detail"
	URL    string
	// LogURL 用于错误信息（例如去掉 api_key 的 URL）；为空时使用 URL。
	LogURL string
	Header http.Header
}

func (r Request) logURL() string {
	if r.LogURL != "" {
		return r.LogURL
	}
	return r.URL
}

// Response 是成功（2xx）的响应。
type Response struct {
	URL         string
	ContentType string
	Body        []byte
}

// Get 执行一次 GET 并把结果归类为 transient/permanent 错误。
//
// 分类规则（固定）：
// - 网络错误 / 超时 / 408 / 5xx：transient
// - 429 / WAF 拦截页：transient + Throttled（RetryAfter 取自响应头）
// - 404 / 410：permanent（包裹 ErrNotFound）
// - 其它非 2xx：permanent
func Get(ctx context.Context, c *http.Client, r Request) (Response, error) {
	logURL := r.logURL()
	if c == nil {
		return Response{}, Permanent(r.Source, r.Op, logURL, errors.New("http client 不能为空"))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return Response{}, Permanent(r.Source, r.Op, logURL, errors.New("无效 URL"))
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return Response{}, err
		}
		return Response{}, Transient(r.Source, r.Op, logURL, describeNetError(logURL, err))
	}
	defer resp.Body.Close()

	if waf := resp.Header.Get("X-Amzn-Waf-Action"); waf != "" {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		se := Transient(r.Source, r.Op, logURL, &BlockedError{URL: logURL, Reason: "waf-" + strings.ToLower(waf)})
		se.StatusCode = resp.StatusCode
		se.Throttled = true
		return Response{}, se
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return Response{}, classifyStatus(r, resp)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Response{}, Transient(r.Source, r.Op, logURL, fmt.Errorf("读取响应失败：%w", err))
	}
	return Response{
		URL:         logURL,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func classifyStatus(r Request, resp *http.Response) *SourceError {
	u := r.logURL()
	hs := &HTTPStatusError{URL: u, StatusCode: resp.StatusCode, Location: resp.Header.Get("Location")}
	var se *SourceError
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		se = Transient(r.Source, r.Op, u, hs)
		se.Throttled = true
		se.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode >= 500:
		se = Transient(r.Source, r.Op, u, hs)
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		se = Permanent(r.Source, r.Op, u, &notFoundError{status: hs})
	default:
		se = Permanent(r.Source, r.Op, u, hs)
	}
	se.StatusCode = resp.StatusCode
	return se
}

// parseRetryAfter 支持秒数与 HTTP-date 两种形式；无法解析返回 0。
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if n, err := strconv.Atoi(v); err == nil {
		if n < 0 {
			return 0
		}
		return time.Duration(n) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// describeNetError 去掉 *url.Error 自带的完整 URL（可能含 api_key），换成 logURL。
func describeNetError(logURL string, err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		err = ue.Err
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("GET %s 超时：%w", logURL, err)
	}
	return fmt.Errorf("GET %s：%w", logURL, err)
}

// notFoundError 同时满足 errors.Is(ErrNotFound) 与 errors.As(*HTTPStatusError)。
type notFoundError struct {
	status *HTTPStatusError
}

func (e *notFoundError) Error() string { return ErrNotFound.Error() + ": " + e.status.Error() }

func (e *notFoundError) Is(target error) bool { return target == ErrNotFound }

func (e *notFoundError) Unwrap() error { return e.status }

// ResolveURL 以 base 为基准解析 href；协议相对链接补 https。
func ResolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	bu, err := url.Parse(base)
	if err != nil {
		return href
	}
	ru, err := url.Parse(href)
	if err != nil {
		return href
	}
	return bu.ResolveReference(ru).String()
}

// FirstInt 返回文本中第一段连续数字；没有则返回 0。
func FirstInt(s string) int {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			break
		}
	}
	if b.Len() == 0 {
		return 0
	}
	n, _ := strconv.Atoi(b.String())
	return n
}
