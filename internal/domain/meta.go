package domain

import (
	"strconv"
	"strings"
	"time"
)

// MovieRecord 是适配器解析得到、并最终写入存储的结构化电影记录。
//
// 约束：
// - 至少有一个外部 ID（IMDbID 或 TMDBID），否则不可持久化
// - 非身份字段缺失允许为空（零值即“缺失”），不是错误
// - 记录按值传递；构造完成后不再原地修改
type MovieRecord struct {
	Title       string    `json:"title"`
	ReleaseDate time.Time `json:"release_date,omitzero"` // UTC 零点；只有年份时取 1 月 1 日
	Director    string    `json:"director,omitempty"`
	Description string    `json:"description,omitempty"`
	PosterURL   string    `json:"poster_url,omitempty"`

	IMDbID string `json:"imdb_id,omitempty"`
	TMDBID int64  `json:"tmdb_id,omitempty"`

	Genres     []string `json:"genres,omitempty"`
	Cast       []string `json:"cast,omitempty"`
	RuntimeMin int      `json:"runtime_min,omitempty"`
}

// IdentityKey 是存储层的去重键：优先 IMDb ID，其次 "tmdb:<id>"。
type IdentityKey string

func (k IdentityKey) String() string { return string(k) }

// Identity 返回记录的去重键；两个外部 ID 都缺失时 ok=false。
func (r MovieRecord) Identity() (IdentityKey, bool) {
	if id := strings.TrimSpace(r.IMDbID); id != "" {
		return IdentityKey(id), true
	}
	if r.TMDBID > 0 {
		return IdentityKey("tmdb:" + strconv.FormatInt(r.TMDBID, 10)), true
	}
	return "", false
}

// HasIdentity 等价于 Identity 的 ok。
func (r MovieRecord) HasIdentity() bool {
	_, ok := r.Identity()
	return ok
}

// Clone 深拷贝切片字段，保证返回值与 r 不共享底层数组。
func (r MovieRecord) Clone() MovieRecord {
	out := r
	out.Genres = cloneStrings(r.Genres)
	out.Cast = cloneStrings(r.Cast)
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
