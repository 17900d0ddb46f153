// Package idlist 把一份显式的 IMDb ID 列表包装成 provider.Lister。
//
// 不访问网络：列表条目只有 IMDb ID，标题等字段由详情阶段补齐。
package idlist

import (
	"bufio"
	"context"
	"io"
	"strings"
	"time"

	"github.com/John-Robertt/movieingest/internal/domain"
	"github.com/John-Robertt/movieingest/internal/provider"
)

// Lister 按输入顺序产出去重后的 ID；全部条目位于同一页。
type Lister struct {
	ids []string
}

// New 去掉重复 ID（忽略大小写与空白，保留首次出现的顺序）。
// 非法 ID 原样保留，抽取阶段会把它们记为 skipped。
func New(ids []string) *Lister {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, raw := range ids {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		k := strings.ToLower(s)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	return &Lister{ids: out}
}

// ReadIDs 读取 ID 文件：每行一个或多个（逗号/空白分隔），# 之后为注释。
func ReadIDs(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		for _, f := range strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' }) {
			out = append(out, f)
		}
	}
	return out, sc.Err()
}

func (*Lister) Name() string { return "idlist" }

// Len 返回去重后的条目数。
func (l *Lister) Len() int { return len(l.ids) }

func (*Lister) Segments(int, time.Time) []provider.ListingQuery {
	return []provider.ListingQuery{{Label: "list"}}
}

// MaxPages：整份列表作为一页返回。
func (*Lister) MaxPages() int { return 1 }

func (l *Lister) FetchListing(ctx context.Context, _ provider.ListingQuery, pageToken string) (provider.ListingPage, error) {
	if err := ctx.Err(); err != nil {
		return provider.ListingPage{}, err
	}
	if pageToken != "" {
		return provider.ListingPage{}, nil
	}
	items := make([]provider.RawListingItem, 0, len(l.ids))
	for _, id := range l.ids {
		items = append(items, provider.RawListingItem{
			Source:      l.Name(),
			ContentType: "text/plain",
			Body:        []byte(id),
		})
	}
	return provider.ListingPage{Items: items}, nil
}

func (l *Lister) ExtractListing(item provider.RawListingItem) (domain.MovieRecord, error) {
	id, ok := domain.ParseIMDbID(string(item.Body))
	if !ok {
		return domain.MovieRecord{}, provider.MissingIdentity(l.Name())
	}
	return domain.MovieRecord{IMDbID: id}, nil
}
