package run

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/John-Robertt/movieingest/internal/domain"
	"github.com/John-Robertt/movieingest/internal/provider"
	"github.com/John-Robertt/movieingest/internal/store"
)

var errMissingTitle = errors.New("缺少标题")

// classify 把错误映射为条目状态与错误码。
func classify(err error) (status, code string) {
	switch {
	case provider.IsMissingIdentity(err):
		return domain.StatusSkipped, domain.ErrCodeMissingIdentity
	case store.IsPersistence(err):
		return domain.StatusErrored, domain.ErrCodePersistFailed
	case provider.IsNotFound(err):
		return domain.StatusErrored, domain.ErrCodeNotFound
	case provider.IsParseFailure(err):
		return domain.StatusErrored, domain.ErrCodeParseFailed
	}
	var ee *provider.ExtractionError
	if errors.As(err, &ee) {
		return domain.StatusErrored, domain.ErrCodeExtractFailed
	}
	return domain.StatusErrored, domain.ErrCodeFetchFailed
}

// fail 填充条目的失败字段。
func fail(res *domain.ItemResult, stage, source string, err error) {
	res.Stage = stage
	res.Status, res.ErrorCode = classify(err)
	switch res.ErrorCode {
	case domain.ErrCodeFetchFailed, domain.ErrCodeNotFound:
		res.ErrorMsg = humanizeFetchError(source, err)
	case domain.ErrCodeParseFailed:
		res.ErrorMsg = fmt.Sprintf("%s 解析失败（站点结构可能变化或返回了非预期内容）：%v", source, err)
	default:
		res.ErrorMsg = err.Error()
	}
}

func humanizeFetchError(source string, err error) string {
	var be *provider.BlockedError
	if errors.As(err, &be) {
		return fmt.Sprintf("%s 被站点拦截（%s）。建议降低并发、调大 min_delay 或配置 proxy.url。", source, be.Reason)
	}

	var hs *provider.HTTPStatusError
	if errors.As(err, &hs) {
		switch hs.StatusCode {
		case 401:
			return fmt.Sprintf("%s 返回 HTTP 401（API key 无效或缺失）。", source)
		case 403, 429:
			return fmt.Sprintf("%s 返回 HTTP %d（可能触发反爬/限流）。建议降低并发或配置 proxy.url。", source, hs.StatusCode)
		case 404:
			return fmt.Sprintf("%s 返回 HTTP 404（条目不存在或已下架）。", source)
		default:
			return fmt.Sprintf("%s 返回 HTTP %d。", source, hs.StatusCode)
		}
	}

	low := strings.ToLower(err.Error())
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(low, "timeout") {
		return fmt.Sprintf("%s 抓取超时。建议检查网络/代理，或降低并发后重试。", source)
	}
	if strings.Contains(low, "tls") || strings.Contains(low, "handshake") {
		return fmt.Sprintf("%s 连接失败（TLS/SSL）。建议配置 proxy.url 或稍后重试。", source)
	}
	return fmt.Sprintf("%s 抓取失败：%v", source, err)
}
