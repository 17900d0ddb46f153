package idlist

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/John-Robertt/movieingest/internal/provider"
)

func TestNew_DedupesKeepingOrder(t *testing.T) {
	l := New([]string{"tt15398776", " tt6166392", "TT15398776", "", "tt6166392", "bogus"})
	if l.Len() != 3 {
		t.Fatalf("期望 3 条，实际 %d", l.Len())
	}

	segs := l.Segments(5, time.Now())
	if len(segs) != 1 {
		t.Fatalf("期望 1 个分段，实际 %d", len(segs))
	}
	if n := provider.PagesPerSegment(l, 5); n != 1 {
		t.Fatalf("单页列表每段应只请求 1 页，实际 %d", n)
	}
	page, err := l.FetchListing(context.Background(), segs[0], "")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if page.NextPageToken != "" || len(page.Items) != 3 {
		t.Fatalf("期望单页 3 条：%+v", page)
	}

	rec, err := l.ExtractListing(page.Items[0])
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if rec.IMDbID != "tt15398776" {
		t.Fatalf("期望 tt15398776，实际 %q", rec.IMDbID)
	}
	if _, err := l.ExtractListing(page.Items[2]); !provider.IsMissingIdentity(err) {
		t.Fatalf("非法 ID 应视为缺少身份，实际 %v", err)
	}
}

func TestFetchListing_SecondPageEmpty(t *testing.T) {
	l := New([]string{"tt0133093"})
	page, err := l.FetchListing(context.Background(), provider.ListingQuery{Label: "list"}, "next")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(page.Items) != 0 {
		t.Fatalf("第二页应为空，实际 %d", len(page.Items))
	}
}

func TestReadIDs(t *testing.T) {
	in := "# 2024\ntt15398776, tt6166392  # Dune, Wonka\n\n\ttt1517268\n"
	ids, err := ReadIDs(strings.NewReader(in))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if got := strings.Join(ids, ","); got != "tt15398776,tt6166392,tt1517268" {
		t.Fatalf("解析结果不符合预期：%q", got)
	}
}
