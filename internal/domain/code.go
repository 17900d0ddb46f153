package domain

import (
	"regexp"
	"strings"
)

// IMDb 标题 ID 形如 tt0111161（7~10 位数字），是电影记录的主外部 ID。
//
// 约束：要么得到合法 ID，要么失败；宁可 skipped，也不允许写错主键。
var (
	imdbIDRE   = regexp.MustCompile(`^tt[0-9]{7,10}$`)
	imdbHrefRE = regexp.MustCompile(`/title/(tt[0-9]{7,10})`)
)

// ParseIMDbID 校验并规范化 IMDb ID（大小写不敏感，输出小写）。
func ParseIMDbID(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if !imdbIDRE.MatchString(s) {
		return "", false
	}
	return s, true
}

// IMDbIDFromHref 从链接（相对或绝对）中提取 /title/ttNNN 片段。
func IMDbIDFromHref(href string) (string, bool) {
	m := imdbHrefRE.FindStringSubmatch(strings.TrimSpace(href))
	if len(m) < 2 {
		return "", false
	}
	return ParseIMDbID(m[1])
}
