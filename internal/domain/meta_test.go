package domain

import (
	"reflect"
	"testing"
	"time"
)

func TestIdentity_PrimaryThenSecondary(t *testing.T) {
	cases := []struct {
		rec  MovieRecord
		want IdentityKey
		ok   bool
	}{
		{MovieRecord{IMDbID: "tt0111161", TMDBID: 278}, "tt0111161", true},
		{MovieRecord{TMDBID: 278}, "tmdb:278", true},
		{MovieRecord{Title: "x"}, "", false},
	}
	for _, c := range cases {
		got, ok := c.rec.Identity()
		if got != c.want || ok != c.ok {
			t.Fatalf("Identity(%+v)=%q,%v；期望 %q,%v", c.rec, got, ok, c.want, c.ok)
		}
	}
}

func TestParseIMDbID(t *testing.T) {
	if id, ok := ParseIMDbID(" TT0111161 "); !ok || id != "tt0111161" {
		t.Fatalf("期望 tt0111161，实际 %q ok=%v", id, ok)
	}
	if _, ok := ParseIMDbID("tt12"); ok {
		t.Fatalf("过短的 ID 不应通过")
	}
	if id, ok := IMDbIDFromHref("/title/tt15398776/?ref_=fn_al_tt_1"); !ok || id != "tt15398776" {
		t.Fatalf("期望 tt15398776，实际 %q ok=%v", id, ok)
	}
	if _, ok := IMDbIDFromHref("/name/nm0000123/"); ok {
		t.Fatalf("/name/ 链接不应被识别为标题 ID")
	}
}

func TestNormalize_ListsAndFields(t *testing.T) {
	cast := make([]string, 0, 30)
	for i := 0; i < 30; i++ {
		cast = append(cast, "Actor "+string(rune('A'+i%26))+string(rune('a'+i/26)))
	}
	in := MovieRecord{
		Title:       "  The   Matrix \n",
		Genres:      []string{"Action", " action ", "", "Sci-Fi", "SCI-FI"},
		Cast:        cast,
		IMDbID:      "TT0133093",
		RuntimeMin:  -3,
		ReleaseDate: time.Date(1999, 3, 31, 15, 4, 5, 0, time.FixedZone("X", -7*3600)),
	}
	out := in.Normalize(0)

	if out.Title != "The Matrix" {
		t.Fatalf("标题未规范化：%q", out.Title)
	}
	if !reflect.DeepEqual(out.Genres, []string{"Action", "Sci-Fi"}) {
		t.Fatalf("genres 去重不符合预期：%v", out.Genres)
	}
	if len(out.Cast) != DefaultCastLimit {
		t.Fatalf("cast 应截断为 %d，实际 %d", DefaultCastLimit, len(out.Cast))
	}
	if out.IMDbID != "tt0133093" {
		t.Fatalf("IMDbID 未规范化：%q", out.IMDbID)
	}
	if out.RuntimeMin != 0 {
		t.Fatalf("非正时长应视为缺失：%d", out.RuntimeMin)
	}
	want := time.Date(1999, 3, 31, 0, 0, 0, 0, time.UTC)
	if !out.ReleaseDate.Equal(want) || out.ReleaseDate.Location() != time.UTC {
		t.Fatalf("日期应为 UTC 零点：%v", out.ReleaseDate)
	}
	if in.Title != "  The   Matrix \n" {
		t.Fatalf("Normalize 不应修改输入")
	}
}

func TestParseDate_Permissive(t *testing.T) {
	cases := map[string]time.Time{
		"2023-07-21":                       time.Date(2023, 7, 21, 0, 0, 0, 0, time.UTC),
		"July 21, 2023 (United States)":    time.Date(2023, 7, 21, 0, 0, 0, 0, time.UTC),
		"21 July 2023":                     time.Date(2023, 7, 21, 0, 0, 0, 0, time.UTC),
		"2023":                             time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		"Coming 2024 to theaters":          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		"2019-05-03T10:00:00+02:00":        time.Date(2019, 5, 3, 0, 0, 0, 0, time.UTC),
		"":                                 {},
		"not a date":                       {},
		"Released July 21, 2023 worldwide": time.Date(2023, 7, 21, 0, 0, 0, 0, time.UTC),
		"2024-02-30":                       {},
		"February 30, 2024":                {},
		"Sept 2020":                        time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	for in, want := range cases {
		got := ParseDate(in)
		if !got.Equal(want) {
			t.Fatalf("ParseDate(%q)=%v，期望 %v", in, got, want)
		}
	}
}

func TestClone_DoesNotAlias(t *testing.T) {
	a := MovieRecord{Genres: []string{"Drama"}}
	b := a.Clone()
	b.Genres[0] = "Comedy"
	if a.Genres[0] != "Drama" {
		t.Fatalf("Clone 不应共享切片")
	}
}
