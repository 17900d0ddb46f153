// Package enrich 合并列表阶段的基础记录与详情阶段的补充记录。
package enrich

import (
	"github.com/John-Robertt/movieingest/internal/domain"
)

// Merge 逐字段合并：detail 的非空值优先，否则保留 base。
// 身份字段（IMDbID/TMDBID）同样遵循该规则。
//
// 约束：
// - 纯函数：不修改 base/detail，结果不与任一输入共享切片
// - 幂等：Merge(Merge(a, b), b) == Merge(a, b)
func Merge(base, detail domain.MovieRecord) domain.MovieRecord {
	out := base.Clone()

	if detail.Title != "" {
		out.Title = detail.Title
	}
	if !detail.ReleaseDate.IsZero() {
		out.ReleaseDate = detail.ReleaseDate
	}
	if detail.Director != "" {
		out.Director = detail.Director
	}
	if detail.Description != "" {
		out.Description = detail.Description
	}
	if detail.PosterURL != "" {
		out.PosterURL = detail.PosterURL
	}
	if detail.IMDbID != "" {
		out.IMDbID = detail.IMDbID
	}
	if detail.TMDBID > 0 {
		out.TMDBID = detail.TMDBID
	}
	if len(detail.Genres) > 0 {
		out.Genres = append([]string(nil), detail.Genres...)
	}
	if len(detail.Cast) > 0 {
		out.Cast = append([]string(nil), detail.Cast...)
	}
	if detail.RuntimeMin > 0 {
		out.RuntimeMin = detail.RuntimeMin
	}
	return out
}
