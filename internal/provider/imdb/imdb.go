// Package imdb 实现 IMDb 的详情页解析，以及“按年份搜索 / 近期上映”两种列表来源。
package imdb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/movieingest/internal/domain"
	"github.com/John-Robertt/movieingest/internal/provider"
)

const DefaultBaseURL = "https://www.imdb.com"

// Client 实现 provider.Detailer：title/<tt>/ 详情页。
//
// 约束：
// - IMDb 没有公开 API，只解析 HTML；JSON-LD 优先，DOM 选择器兜底
// - ExtractDetail 必须是纯函数（只依赖 raw + CastLimit）
type Client struct {
	// BaseURL 为空时使用 https://www.imdb.com。
	BaseURL   string
	CastLimit int

	http *http.Client
}

func New(baseURL string, c *http.Client) *Client {
	return &Client{BaseURL: baseURL, http: c}
}

func (*Client) Name() string { return "imdb" }

func (c *Client) baseURL() string {
	u := strings.TrimSpace(c.BaseURL)
	if u == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(u, "/")
}

// DetailID 只支持带合法 IMDb ID 的记录。
func (c *Client) DetailID(rec domain.MovieRecord) (string, bool) {
	return domain.ParseIMDbID(rec.IMDbID)
}

// FetchDetail 请求 <base>/title/<tt>/。
func (c *Client) FetchDetail(ctx context.Context, id string) (provider.RawDetail, error) {
	tt, ok := domain.ParseIMDbID(id)
	if !ok {
		return provider.RawDetail{}, provider.Permanent(c.Name(), "detail", "", fmt.Errorf("非法 IMDb ID：%q", id))
	}
	resp, err := c.get(ctx, "detail", c.baseURL()+"/title/"+tt+"/")
	if err != nil {
		return provider.RawDetail{}, err
	}
	return provider.RawDetail{
		Source:      c.Name(),
		ID:          tt,
		URL:         resp.URL,
		ContentType: resp.ContentType,
		Body:        resp.Body,
	}, nil
}

func (c *Client) get(ctx context.Context, op, u string) (provider.Response, error) {
	return provider.Get(ctx, c.http, provider.Request{
		Source: c.Name(),
		Op:     op,
		URL:    u,
		Header: http.Header{"Accept": []string{"text/html,application/xhtml+xml"}},
	})
}

// ExtractDetail 把详情页 HTML 解析为 MovieRecord。
//
// 字段优先级（从高到低）：
// - id：raw.ID > link[rel=canonical] > og:url
// - title：h1 hero__pageTitle > h1 hero-title-block__title > JSON-LD name
// - release：JSON-LD datePublished > title-details-releasedate > releaseinfo 链接（只有年份）
// - director：JSON-LD director > principal credit > 第一个 /name/ 链接
// - description：plot-xl > plot-l > plot > JSON-LD description > meta description
// - poster：hero-media__poster > hero-image__poster > JSON-LD image > img.ipc-image
// - genres：DOM genres > JSON-LD genre
// - cast：title-cast-item__actor > JSON-LD actor
// - runtime：JSON-LD duration > title-techspec_runtime
func (c *Client) ExtractDetail(raw provider.RawDetail) (domain.MovieRecord, error) {
	if len(bytes.TrimSpace(raw.Body)) == 0 {
		return domain.MovieRecord{}, &provider.ExtractionError{Source: c.Name(), Err: errors.New("html 为空")}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw.Body))
	if err != nil {
		return domain.MovieRecord{}, provider.ParseFailure(c.Name(), "detail", raw.URL, err)
	}

	id, ok := domain.ParseIMDbID(raw.ID)
	if !ok {
		id = identityFromDoc(doc)
	}
	if id == "" {
		return domain.MovieRecord{}, provider.MissingIdentity(c.Name())
	}

	ld := findJSONLD(doc)

	rec := domain.MovieRecord{
		Title: firstText(doc,
			`h1[data-testid="hero__pageTitle"] span.hero__primary-text`,
			`h1[data-testid="hero__pageTitle"]`,
			`h1[data-testid="hero-title-block__title"]`,
		),
		IMDbID: id,
	}
	if rec.Title == "" {
		rec.Title = ld.Name
	}

	rec.ReleaseDate = domain.ParseDate(ld.DatePublished)
	if rec.ReleaseDate.IsZero() {
		rec.ReleaseDate = domain.ParseDate(firstText(doc,
			`li[data-testid="title-details-releasedate"] .ipc-metadata-list-item__list-content-item`,
			`a[href*="releaseinfo"]`,
		))
	}

	rec.Director = ld.firstDirector()
	if rec.Director == "" {
		rec.Director = firstText(doc,
			`li[data-testid="title-pc-principal-credit"] a[href*="/name/"]`,
			`a[href*="/name/"]`,
		)
	}

	rec.Description = firstText(doc,
		`span[data-testid="plot-xl"]`,
		`span[data-testid="plot-l"]`,
		`span[data-testid="plot"]`,
	)
	if rec.Description == "" {
		rec.Description = ld.Description
	}
	if rec.Description == "" {
		rec.Description = firstAttr(doc, "content", `meta[name="description"]`)
	}

	rec.PosterURL = firstAttr(doc, "src",
		`div[data-testid="hero-media__poster"] img`,
		`img[data-testid="hero-image__poster"]`,
	)
	if rec.PosterURL == "" {
		rec.PosterURL = ld.Image
	}
	if rec.PosterURL == "" {
		rec.PosterURL = firstAttr(doc, "src", `img.ipc-image`)
	}

	rec.Genres = allText(doc, `div[data-testid="genres"] a`, `a[href*="/search/title?genres="]`, `a[href*="/search/title/?genres="]`)
	if len(rec.Genres) == 0 {
		rec.Genres = ld.Genre.values()
	}

	rec.Cast = allText(doc, `a[data-testid="title-cast-item__actor"]`)
	if len(rec.Cast) == 0 {
		rec.Cast = ld.actorNames()
	}

	rec.RuntimeMin = parseISODuration(ld.Duration)
	if rec.RuntimeMin == 0 {
		s := doc.Find(`li[data-testid="title-techspec_runtime"]`).First()
		rec.RuntimeMin = parseRuntime(s.Find("div").Last().Text())
		if rec.RuntimeMin == 0 {
			rec.RuntimeMin = parseRuntime(s.Text())
		}
	}

	return rec.Normalize(c.CastLimit), nil
}

func identityFromDoc(doc *goquery.Document) string {
	for _, sel := range []struct{ q, attr string }{
		{`link[rel="canonical"]`, "href"},
		{`meta[property="og:url"]`, "content"},
	} {
		if v, ok := doc.Find(sel.q).First().Attr(sel.attr); ok {
			if id, ok := domain.IMDbIDFromHref(v); ok {
				return id
			}
		}
	}
	return ""
}

// firstText 返回第一个命中且文本非空的选择器结果。
func firstText(doc *goquery.Document, selectors ...string) string {
	for _, q := range selectors {
		if s := domain.NormalizeText(doc.Find(q).First().Text()); s != "" {
			return s
		}
	}
	return ""
}

func firstAttr(doc *goquery.Document, attr string, selectors ...string) string {
	for _, q := range selectors {
		if v, ok := doc.Find(q).First().Attr(attr); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

// allText 返回第一个有结果的选择器命中的全部文本。
func allText(doc *goquery.Document, selectors ...string) []string {
	for _, q := range selectors {
		var out []string
		doc.Find(q).Each(func(_ int, s *goquery.Selection) {
			if t := domain.NormalizeText(s.Text()); t != "" {
				out = append(out, t)
			}
		})
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

var (
	isoDurationRE = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?`)
	hoursRE       = regexp.MustCompile(`(\d+)\s*h`)
	minutesRE     = regexp.MustCompile(`(\d+)\s*m`)
)

// parseISODuration 解析 JSON-LD 的 "PT2H16M"；无法解析返回 0。
func parseISODuration(s string) int {
	m := isoDurationRE.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(s)))
	if m == nil {
		return 0
	}
	h, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	return h*60 + mins
}

// parseRuntime 支持 "2h 16m" / "2 hours 16 minutes" / "136 min"。
func parseRuntime(s string) int {
	s = strings.ToLower(domain.NormalizeText(s))
	if s == "" {
		return 0
	}
	total := 0
	matched := false
	if m := hoursRE.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		total += h * 60
		matched = true
	}
	if m := minutesRE.FindStringSubmatch(s); m != nil {
		mins, _ := strconv.Atoi(m[1])
		total += mins
		matched = true
	}
	if !matched {
		return provider.FirstInt(s)
	}
	return total
}
