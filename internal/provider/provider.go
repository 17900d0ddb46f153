package provider

import (
	"context"
	"strconv"
	"time"

	"github.com/John-Robertt/movieingest/internal/domain"
)

// 适配器把“站点变化”限制在 provider 包内部；调度器只依赖统一接口与稳定的 MovieRecord。
//
// 约束：
// - Fetch* 每次调用只做一次网络往返；不做缓存、不做重试、不做节奏控制（由调度器统一实现）
// - Extract* 必须是纯函数：相同输入 => 相同输出
// - 失败以 *SourceError / *ExtractionError 表达

// ListingQuery 是列表阶段的一个分段（通常是一个年份）。
type ListingQuery struct {
	Year  int
	Label string // 无年份时的分段名（例如 "in-theaters"）
}

func (q ListingQuery) String() string {
	if q.Year > 0 {
		return strconv.Itoa(q.Year)
	}
	if q.Label != "" {
		return q.Label
	}
	return "all"
}

// RawListingItem 是列表页中单个条目的原始片段（HTML 片段或 JSON 对象）。
type RawListingItem struct {
	Source      string
	ContentType string
	Body        []byte
}

// ListingPage 是一页列表结果；NextPageToken 为空表示没有下一页。
type ListingPage struct {
	Items         []RawListingItem
	NextPageToken string
}

// RawDetail 是详情请求的原始响应。
type RawDetail struct {
	Source      string
	ID          string
	URL         string
	ContentType string
	Body        []byte
}

// Lister 提供批量目录（按年份分页等）。
type Lister interface {
	Name() string
	// Segments 返回本次运行要遍历的分段（按处理顺序）。
	Segments(yearsBack int, now time.Time) []ListingQuery
	FetchListing(ctx context.Context, q ListingQuery, pageToken string) (ListingPage, error)
	ExtractListing(item RawListingItem) (domain.MovieRecord, error)
}

// PageLimiter 由每个分段页数固定的 Lister 实现（例如单页列表）。
type PageLimiter interface {
	MaxPages() int
}

// PagesPerSegment 返回每个分段实际会请求的最大页数：limit 与 Lister 自身上限取小。
func PagesPerSegment(l Lister, limit int) int {
	if pl, ok := l.(PageLimiter); ok {
		if n := pl.MaxPages(); n > 0 && n < limit {
			return n
		}
	}
	return limit
}

// Detailer 提供单条记录的详情补充。
type Detailer interface {
	Name() string
	// DetailID 返回该来源用于定位详情的 ID；不支持该记录时 ok=false。
	DetailID(rec domain.MovieRecord) (id string, ok bool)
	FetchDetail(ctx context.Context, id string) (RawDetail, error)
	ExtractDetail(raw RawDetail) (domain.MovieRecord, error)
}

// YearSegments 返回从今年开始往前 yearsBack 个年份（含今年）。
func YearSegments(yearsBack int, now time.Time) []ListingQuery {
	if yearsBack < 1 {
		yearsBack = 1
	}
	y := now.Year()
	out := make([]ListingQuery, 0, yearsBack)
	for i := 0; i < yearsBack; i++ {
		out = append(out, ListingQuery{Year: y - i})
	}
	return out
}
