package imdb

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// jsonLD 是详情页 <script type="application/ld+json"> 中 Movie 对象的子集。
type jsonLD struct {
	Type          string       `json:"@type"`
	Name          string       `json:"name"`
	Description   string       `json:"description"`
	Image         string       `json:"image"`
	DatePublished string       `json:"datePublished"`
	Duration      string       `json:"duration"`
	Genre         stringOrMany `json:"genre"`
	Director      people       `json:"director"`
	Actor         people       `json:"actor"`
}

type person struct {
	Name string `json:"name"`
}

// people 兼容单个对象与数组两种写法。
type people []person

func (p *people) UnmarshalJSON(b []byte) error {
	b = []byte(strings.TrimSpace(string(b)))
	if len(b) > 0 && b[0] == '{' {
		var one person
		if err := json.Unmarshal(b, &one); err != nil {
			return err
		}
		*p = people{one}
		return nil
	}
	var many []person
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*p = many
	return nil
}

// stringOrMany 兼容 "Drama" 与 ["Drama","Sci-Fi"]。
type stringOrMany []string

func (s *stringOrMany) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*s = stringOrMany{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

func (s stringOrMany) values() []string {
	if len(s) == 0 {
		return nil
	}
	return append([]string(nil), s...)
}

func (ld jsonLD) firstDirector() string {
	for _, p := range ld.Director {
		if n := strings.TrimSpace(p.Name); n != "" {
			return n
		}
	}
	return ""
}

func (ld jsonLD) actorNames() []string {
	out := make([]string, 0, len(ld.Actor))
	for _, p := range ld.Actor {
		out = append(out, p.Name)
	}
	return out
}

// findJSONLD 返回第一个可解析的 Movie 对象；没有时返回零值（所有字段缺失）。
func findJSONLD(doc *goquery.Document) jsonLD {
	var out jsonLD
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var v jsonLD
		if err := json.Unmarshal([]byte(s.Text()), &v); err != nil {
			return true
		}
		if v.Type != "" && v.Type != "Movie" {
			return true
		}
		out = v
		return false
	})
	return out
}
