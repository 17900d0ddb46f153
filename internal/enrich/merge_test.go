package enrich

import (
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/John-Robertt/movieingest/internal/domain"
)

func TestMerge_DetailWinsPerField(t *testing.T) {
	base := domain.MovieRecord{
		Title:       "Listing Title",
		ReleaseDate: time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC),
		PosterURL:   "https://img.test/listing.jpg",
		TMDBID:      27205,
		Genres:      []string{"Action"},
	}
	detail := domain.MovieRecord{
		Title:       "Inception",
		ReleaseDate: time.Date(2010, 7, 16, 0, 0, 0, 0, time.UTC),
		Director:    "Christopher Nolan",
		IMDbID:      "tt1375666",
		Cast:        []string{"Leonardo DiCaprio"},
		RuntimeMin:  148,
	}

	got := Merge(base, detail)
	want := domain.MovieRecord{
		Title:       "Inception",
		ReleaseDate: time.Date(2010, 7, 16, 0, 0, 0, 0, time.UTC),
		Director:    "Christopher Nolan",
		PosterURL:   "https://img.test/listing.jpg",
		IMDbID:      "tt1375666",
		TMDBID:      27205,
		Genres:      []string{"Action"},
		Cast:        []string{"Leonardo DiCaprio"},
		RuntimeMin:  148,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("合并结果不符合预期：\n got=%+v\nwant=%+v", got, want)
	}
}

func TestMerge_EmptyDetailKeepsBase(t *testing.T) {
	base := domain.MovieRecord{Title: "A", IMDbID: "tt0000001", Genres: []string{"Drama"}}
	got := Merge(base, domain.MovieRecord{})
	if !reflect.DeepEqual(got, base) {
		t.Fatalf("空 detail 不应改变 base：%+v", got)
	}
}

func TestMerge_DoesNotAliasInputs(t *testing.T) {
	base := domain.MovieRecord{Genres: []string{"Drama"}}
	detail := domain.MovieRecord{Cast: []string{"X"}}
	got := Merge(base, detail)
	got.Genres[0] = "Comedy"
	got.Cast[0] = "Y"
	if base.Genres[0] != "Drama" || detail.Cast[0] != "X" {
		t.Fatalf("Merge 结果不应与输入共享切片")
	}
}

func TestMerge_Idempotent(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		a := randomRecord(rnd)
		b := randomRecord(rnd)
		once := Merge(a, b)
		twice := Merge(once, b)
		if !reflect.DeepEqual(once, twice) {
			t.Fatalf("第 %d 组不幂等：\nonce=%+v\ntwice=%+v", i, once, twice)
		}
	}
}

func randomRecord(rnd *rand.Rand) domain.MovieRecord {
	pick := func(s string) string {
		if rnd.Intn(2) == 0 {
			return ""
		}
		return s
	}
	var r domain.MovieRecord
	r.Title = pick("T")
	r.Director = pick("D")
	r.Description = pick("desc")
	r.PosterURL = pick("https://img.test/p.jpg")
	r.IMDbID = pick("tt0000042")
	if rnd.Intn(2) == 0 {
		r.TMDBID = int64(rnd.Intn(1000) + 1)
	}
	if rnd.Intn(2) == 0 {
		r.ReleaseDate = domain.DateFromYear(1990 + rnd.Intn(30))
	}
	if rnd.Intn(2) == 0 {
		r.Genres = []string{"Drama", "Crime"}
	}
	if rnd.Intn(2) == 0 {
		r.Cast = []string{"A", "B"}
	}
	if rnd.Intn(2) == 0 {
		r.RuntimeMin = 90 + rnd.Intn(60)
	}
	return r
}
