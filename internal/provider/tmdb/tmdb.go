// Package tmdb 实现 TMDB（The Movie Database）的批量目录与详情来源。
package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/John-Robertt/movieingest/internal/domain"
	"github.com/John-Robertt/movieingest/internal/provider"
)

const (
	DefaultBaseURL = "https://api.themoviedb.org/3"
	ImageBaseURL   = "https://image.tmdb.org/t/p/w500"

	// discover 最多允许翻到第 500 页。
	maxDiscoverPages = 500

	defaultRPS   = 20.0
	defaultBurst = 10
)

// Client 同时实现 provider.Lister（discover 按年份分页）与 provider.Detailer（movie/{id}）。
//
// 约束：
// - Fetch* 每次一次往返；本地限速只是对 API 配额的自我保护，不替代调度器的节奏控制
// - Extract* 为纯函数（只依赖输入 + CastLimit）
type Client struct {
	APIKey    string
	BaseURL   string
	CastLimit int

	http    *http.Client
	limiter *rate.Limiter
}

// New 构造 TMDB client；rps<=0 时使用默认限速。
func New(apiKey, baseURL string, c *http.Client, rps float64) *Client {
	if rps <= 0 {
		rps = defaultRPS
	}
	return &Client{
		APIKey:  strings.TrimSpace(apiKey),
		BaseURL: baseURL,
		http:    c,
		limiter: rate.NewLimiter(rate.Limit(rps), defaultBurst),
	}
}

func (c *Client) Name() string { return "tmdb" }

func (c *Client) baseURL() string {
	u := strings.TrimSpace(c.BaseURL)
	if u == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(u, "/")
}

func (c *Client) Segments(yearsBack int, now time.Time) []provider.ListingQuery {
	return provider.YearSegments(yearsBack, now)
}

// FetchListing 请求 discover/movie 的一页：
// <base>/discover/movie?primary_release_year=<Y>&sort_by=popularity.desc&page=<N>
func (c *Client) FetchListing(ctx context.Context, q provider.ListingQuery, pageToken string) (provider.ListingPage, error) {
	page := 1
	if strings.TrimSpace(pageToken) != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil || n < 1 {
			return provider.ListingPage{}, provider.Permanent(c.Name(), "listing", "", fmt.Errorf("非法 page token：%q", pageToken))
		}
		page = n
	}

	params := url.Values{}
	params.Set("sort_by", "popularity.desc")
	params.Set("include_adult", "false")
	params.Set("language", "en-US")
	params.Set("page", strconv.Itoa(page))
	if q.Year > 0 {
		params.Set("primary_release_year", strconv.Itoa(q.Year))
	}

	resp, err := c.get(ctx, "listing", "/discover/movie", params)
	if err != nil {
		return provider.ListingPage{}, err
	}

	var body discoverResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return provider.ListingPage{}, provider.ParseFailure(c.Name(), "listing", resp.URL, err)
	}

	out := provider.ListingPage{Items: make([]provider.RawListingItem, 0, len(body.Results))}
	for _, raw := range body.Results {
		out.Items = append(out.Items, provider.RawListingItem{
			Source:      c.Name(),
			ContentType: "application/json",
			Body:        append([]byte(nil), raw...),
		})
	}
	if body.Page < body.TotalPages && body.Page < maxDiscoverPages {
		out.NextPageToken = strconv.Itoa(body.Page + 1)
	}
	return out, nil
}

// ExtractListing 解析 discover 结果中的单个 movie 对象。
//
// 字段优先级：title > original_title。
func (c *Client) ExtractListing(item provider.RawListingItem) (domain.MovieRecord, error) {
	var m listingMovie
	if err := json.Unmarshal(item.Body, &m); err != nil {
		return domain.MovieRecord{}, provider.ParseFailure(c.Name(), "listing", "", err)
	}
	if m.ID <= 0 {
		return domain.MovieRecord{}, provider.MissingIdentity(c.Name())
	}

	genres := make([]string, 0, len(m.GenreIDs))
	for _, id := range m.GenreIDs {
		if name, ok := genreNames[id]; ok {
			genres = append(genres, name)
		}
	}

	rec := domain.MovieRecord{
		Title:       firstNonEmpty(m.Title, m.OriginalTitle),
		ReleaseDate: domain.ParseDate(m.ReleaseDate),
		Description: m.Overview,
		PosterURL:   posterURL(m.PosterPath),
		TMDBID:      m.ID,
		Genres:      genres,
	}
	return rec.Normalize(c.CastLimit), nil
}

// DetailID 只支持带 TMDB ID 的记录。
func (c *Client) DetailID(rec domain.MovieRecord) (string, bool) {
	if rec.TMDBID <= 0 {
		return "", false
	}
	return strconv.FormatInt(rec.TMDBID, 10), true
}

// FetchDetail 请求 <base>/movie/<id>?append_to_response=credits,external_ids。
func (c *Client) FetchDetail(ctx context.Context, id string) (provider.RawDetail, error) {
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return provider.RawDetail{}, provider.Permanent(c.Name(), "detail", "", fmt.Errorf("非法 TMDB ID：%q", id))
	}
	params := url.Values{}
	params.Set("append_to_response", "credits,external_ids")
	params.Set("language", "en-US")

	resp, err := c.get(ctx, "detail", "/movie/"+id, params)
	if err != nil {
		return provider.RawDetail{}, err
	}
	return provider.RawDetail{
		Source:      c.Name(),
		ID:          id,
		URL:         resp.URL,
		ContentType: "application/json",
		Body:        resp.Body,
	}, nil
}

// ExtractDetail 解析 movie/{id} 响应。
//
// 字段优先级：
// - title > original_title
// - imdb_id > external_ids.imdb_id
// - director：crew 中第一个 job=Director
// - cast：按 credits.cast[].order 升序
func (c *Client) ExtractDetail(raw provider.RawDetail) (domain.MovieRecord, error) {
	var m detailMovie
	if err := json.Unmarshal(raw.Body, &m); err != nil {
		return domain.MovieRecord{}, provider.ParseFailure(c.Name(), "detail", raw.URL, err)
	}

	imdbID, _ := domain.ParseIMDbID(firstNonEmpty(m.IMDbID, m.ExternalIDs.IMDbID))
	if m.ID <= 0 && imdbID == "" {
		return domain.MovieRecord{}, provider.MissingIdentity(c.Name())
	}

	genres := make([]string, 0, len(m.Genres))
	for _, g := range m.Genres {
		genres = append(genres, g.Name)
	}

	cast := append([]castMember(nil), m.Credits.Cast...)
	sort.SliceStable(cast, func(i, j int) bool { return cast[i].Order < cast[j].Order })
	names := make([]string, 0, len(cast))
	for _, cm := range cast {
		names = append(names, cm.Name)
	}

	director := ""
	for _, cm := range m.Credits.Crew {
		if cm.Job == "Director" {
			director = cm.Name
			break
		}
	}

	rec := domain.MovieRecord{
		Title:       firstNonEmpty(m.Title, m.OriginalTitle),
		ReleaseDate: domain.ParseDate(m.ReleaseDate),
		Director:    director,
		Description: m.Overview,
		PosterURL:   posterURL(m.PosterPath),
		IMDbID:      imdbID,
		TMDBID:      m.ID,
		Genres:      genres,
		Cast:        names,
		RuntimeMin:  m.Runtime,
	}
	return rec.Normalize(c.CastLimit), nil
}

func (c *Client) get(ctx context.Context, op, path string, params url.Values) (provider.Response, error) {
	if c.APIKey == "" {
		return provider.Response{}, provider.Permanent(c.Name(), op, path, errors.New("未配置 tmdb.api_key"))
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return provider.Response{}, fmt.Errorf("rate limit wait: %w", err)
	}

	logURL := c.baseURL() + path + "?" + params.Encode()
	params.Set("api_key", c.APIKey)
	return provider.Get(ctx, c.http, provider.Request{
		Source: c.Name(),
		Op:     op,
		URL:    c.baseURL() + path + "?" + params.Encode(),
		LogURL: logURL,
		Header: http.Header{"Accept": []string{"application/json"}},
	})
}

func posterURL(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	return ImageBaseURL + path
}

func firstNonEmpty(xs ...string) string {
	for _, x := range xs {
		if s := strings.TrimSpace(x); s != "" {
			return s
		}
	}
	return ""
}
