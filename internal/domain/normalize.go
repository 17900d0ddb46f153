package domain

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultCastLimit 是 cast 列表的默认上限。
const DefaultCastLimit = 20

// NormalizeText 去掉首尾空白并把内部连续空白折叠为一个空格。
func NormalizeText(s string) string { return strings.Join(strings.Fields(s), " ") }

// NormalizeList 规范化每个元素，丢弃空串，并按“忽略大小写/空白”去重（保留首次出现的写法与顺序）。
func NormalizeList(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = NormalizeText(s)
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
	if len(out) == 0 {
		return nil
	}
	return out
}

// CapList 截断到最多 n 个元素；n<=0 表示不截断。
func CapList(in []string, n int) []string {
	if n <= 0 || len(in) <= n {
		return in
	}
	return in[:n]
}

// Normalize 返回规范化后的副本：文本折叠空白、列表去重截断、非法 ID/时长视为缺失、日期归一到 UTC 零点。
func (r MovieRecord) Normalize(castLimit int) MovieRecord {
	if castLimit <= 0 {
		castLimit = DefaultCastLimit
	}
	out := MovieRecord{
		Title:       NormalizeText(r.Title),
		Director:    NormalizeText(r.Director),
		Description: NormalizeText(r.Description),
		PosterURL:   strings.TrimSpace(r.PosterURL),
		Genres:      NormalizeList(r.Genres),
		Cast:        CapList(NormalizeList(r.Cast), castLimit),
	}
	if !r.ReleaseDate.IsZero() {
		out.ReleaseDate = DateOnly(r.ReleaseDate)
	}
	if id, ok := ParseIMDbID(r.IMDbID); ok {
		out.IMDbID = id
	}
	if r.TMDBID > 0 {
		out.TMDBID = r.TMDBID
	}
	if r.RuntimeMin > 0 {
		out.RuntimeMin = r.RuntimeMin
	}
	return out
}

// DateOnly 截掉时分秒，转为 UTC 零点。
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateFromYear 把年份转换为当年 1 月 1 日（UTC）。
func DateFromYear(year int) time.Time {
	if year <= 0 {
		return time.Time{}
	}
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
}

const monthNames = `(?:January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Oct|Nov|Dec)`

var (
	parenRE = regexp.MustCompile(`\([^)]*\)`)
	yearRE  = regexp.MustCompile(`\b(1[89][0-9]{2}|2[0-9]{3})\b`)

	// dateShapeRE 匹配“看起来是完整日期”的片段：2024-02-30、July 21, 2023、21 July 2023。
	dateShapeRE = regexp.MustCompile(`(?i)\b(?:[0-9]{4}-[0-9]{2}-[0-9]{2}|` + monthNames + ` [0-9]{1,2}, [0-9]{4}|[0-9]{1,2} ` + monthNames + ` [0-9]{4})\b`)
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"January 2006",
	"Jan 2006",
}

// ParseDate 宽松解析日期：依次尝试固定格式；文本中嵌有完整日期时只认该日期；
// 没有任何日期形状时才退化为文本中出现的年份。失败返回零值（缺失），从不报错。
//
// 形状像日期但不合法（例如 2024-02-30）视为缺失，不退化为年份。
func ParseDate(s string) time.Time {
	s = NormalizeText(parenRE.ReplaceAllString(s, " "))
	if s == "" {
		return time.Time{}
	}
	if t, ok := parseLayouts(s); ok {
		return t
	}
	if m := dateShapeRE.FindString(s); m != "" {
		t, _ := parseLayouts(m)
		return t
	}
	if m := yearRE.FindString(s); m != "" {
		y, _ := strconv.Atoi(m)
		return DateFromYear(y)
	}
	return time.Time{}
}

func parseLayouts(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOnly(t), true
		}
	}
	return time.Time{}, false
}
