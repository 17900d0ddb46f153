package imdb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/movieingest/internal/domain"
	"github.com/John-Robertt/movieingest/internal/provider"
)

// 列表卡片选择器：新版搜索页 / 旧版搜索页 / 海报卡片（近期上映页）。
const cardSelector = `li.ipc-metadata-list-summary-item, div.lister-item, div.ipc-poster-card`

// DefaultPageSize 是搜索页每页条目数。
const DefaultPageSize = 50

// SearchLister 按年份翻阅 IMDb 的高级搜索结果：
// <base>/search/title/?title_type=feature&release_date=<Y>-01-01,<Y>-12-31&start=<N>
//
// page token 是 1 起始的 start 偏移。
type SearchLister struct {
	*Client
	PageSize int
}

func NewSearchLister(c *Client) *SearchLister { return &SearchLister{Client: c, PageSize: DefaultPageSize} }

func (l *SearchLister) Segments(yearsBack int, now time.Time) []provider.ListingQuery {
	return provider.YearSegments(yearsBack, now)
}

func (l *SearchLister) pageSize() int {
	if l.PageSize <= 0 {
		return DefaultPageSize
	}
	return l.PageSize
}

func (l *SearchLister) FetchListing(ctx context.Context, q provider.ListingQuery, pageToken string) (provider.ListingPage, error) {
	if q.Year <= 0 {
		return provider.ListingPage{}, provider.Permanent(l.Name(), "listing", "", errors.New("按年份搜索需要 year"))
	}
	start := 1
	if strings.TrimSpace(pageToken) != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil || n < 1 {
			return provider.ListingPage{}, provider.Permanent(l.Name(), "listing", "", fmt.Errorf("非法 page token：%q", pageToken))
		}
		start = n
	}

	params := url.Values{}
	params.Set("title_type", "feature")
	params.Set("release_date", fmt.Sprintf("%d-01-01,%d-12-31", q.Year, q.Year))
	params.Set("start", strconv.Itoa(start))
	params.Set("count", strconv.Itoa(l.pageSize()))

	resp, err := l.get(ctx, "listing", l.baseURL()+"/search/title/?"+params.Encode())
	if err != nil {
		return provider.ListingPage{}, err
	}
	page, err := l.splitCards(resp)
	if err != nil {
		return provider.ListingPage{}, err
	}
	if len(page.Items) >= l.pageSize() {
		page.NextPageToken = strconv.Itoa(start + len(page.Items))
	}
	return page, nil
}

// RecentLister 读取“正在上映”与“即将上映”两个页面，各为一个分段，每段只有一页。
type RecentLister struct {
	*Client
}

func NewRecentLister(c *Client) *RecentLister { return &RecentLister{Client: c} }

var recentPages = map[string]string{
	"in-theaters": "/movies-in-theaters/",
	"coming-soon": "/movies-coming-soon/",
}

// Segments 固定返回两个分段；yearsBack 不适用。
func (l *RecentLister) Segments(int, time.Time) []provider.ListingQuery {
	return []provider.ListingQuery{{Label: "in-theaters"}, {Label: "coming-soon"}}
}

func (*RecentLister) MaxPages() int { return 1 }

func (l *RecentLister) FetchListing(ctx context.Context, q provider.ListingQuery, pageToken string) (provider.ListingPage, error) {
	path, ok := recentPages[q.Label]
	if !ok {
		return provider.ListingPage{}, provider.Permanent(l.Name(), "listing", "", fmt.Errorf("未知分段：%q", q.Label))
	}
	if strings.TrimSpace(pageToken) != "" {
		return provider.ListingPage{}, nil
	}
	resp, err := l.get(ctx, "listing", l.baseURL()+path)
	if err != nil {
		return provider.ListingPage{}, err
	}
	return l.splitCards(resp)
}

// splitCards 把列表页切成单个卡片的 HTML 片段。
func (c *Client) splitCards(resp provider.Response) (provider.ListingPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return provider.ListingPage{}, provider.ParseFailure(c.Name(), "listing", resp.URL, err)
	}
	var out provider.ListingPage
	doc.Find(cardSelector).Each(func(_ int, s *goquery.Selection) {
		// 嵌套命中（例如列表项里再套海报卡片）只保留外层。
		if s.ParentsFiltered(cardSelector).Length() > 0 {
			return
		}
		html, err := goquery.OuterHtml(s)
		if err != nil {
			return
		}
		out.Items = append(out.Items, provider.RawListingItem{
			Source:      c.Name(),
			ContentType: "text/html",
			Body:        []byte(html),
		})
	})
	return out, nil
}

var rankPrefixRE = regexp.MustCompile(`^\d+\.\s+`)

// ExtractListing 解析单个卡片片段（搜索页与近期上映页共用）。
//
// 字段优先级：
// - id：第一个 /title/tt... 链接
// - title：ipc-poster-card-title > ipc-title__text > 旧版 lister-item-header（去掉 "1. " 排名前缀）
// - release：dli-title-metadata-item 第一项 > lister-item-year（只有年份）
// - poster：第一个 img 的 src
// - description：ipc-html-content-inner-div > 旧版 p.text-muted
func (c *Client) ExtractListing(item provider.RawListingItem) (domain.MovieRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(item.Body))
	if err != nil {
		return domain.MovieRecord{}, provider.ParseFailure(c.Name(), "listing", "", err)
	}

	id := ""
	doc.Find(`a[href*="/title/tt"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if v, ok := domain.IMDbIDFromHref(href); ok {
			id = v
			return false
		}
		return true
	})
	if id == "" {
		return domain.MovieRecord{}, provider.MissingIdentity(c.Name())
	}

	title := firstText(doc,
		`a[data-testid="ipc-poster-card-title"]`,
		`h3.ipc-title__text`,
		`h3.lister-item-header a`,
	)
	title = rankPrefixRE.ReplaceAllString(title, "")

	yearText := firstText(doc, `span.dli-title-metadata-item`, `span.lister-item-year`)
	release := domain.ParseDate(strings.NewReplacer("(", " ", ")", " ").Replace(yearText))

	desc := firstText(doc, `div.ipc-html-content-inner-div`, `div.lister-item-content p.text-muted:not(.text-small)`)

	rec := domain.MovieRecord{
		Title:       title,
		ReleaseDate: release,
		Description: desc,
		PosterURL:   firstAttr(doc, "src", `img`),
		IMDbID:      id,
	}
	return rec.Normalize(c.CastLimit), nil
}
