package provider

import (
	"fmt"
	"strings"

	"github.com/John-Robertt/movieingest/internal/domain"
)

// Registry 是详情来源的只读注册表。
// 注册顺序就是选择优先级：For 返回第一个支持该记录的来源。
type Registry struct {
	order  []Detailer
	byName map[string]Detailer
}

func NewRegistry(detailers ...Detailer) (Registry, error) {
	byName := make(map[string]Detailer, len(detailers))
	order := make([]Detailer, 0, len(detailers))
	for _, d := range detailers {
		if d == nil {
			return Registry{}, fmt.Errorf("detailer 不能为空")
		}
		name := strings.ToLower(strings.TrimSpace(d.Name()))
		if name == "" {
			return Registry{}, fmt.Errorf("detailer.Name 不能为空")
		}
		if _, ok := byName[name]; ok {
			return Registry{}, fmt.Errorf("重复的 detailer：%q", name)
		}
		byName[name] = d
		order = append(order, d)
	}
	return Registry{order: order, byName: byName}, nil
}

func (r Registry) Get(name string) (Detailer, bool) {
	if r.byName == nil {
		return nil, false
	}
	d, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return d, ok
}

// For 选出第一个支持 rec 的详情来源及其详情 ID。
func (r Registry) For(rec domain.MovieRecord) (Detailer, string, bool) {
	for _, d := range r.order {
		if id, ok := d.DetailID(rec); ok {
			return d, id, true
		}
	}
	return nil, "", false
}

// Names 按优先级返回已注册来源名。
func (r Registry) Names() []string {
	out := make([]string, 0, len(r.order))
	for _, d := range r.order {
		out = append(out, strings.ToLower(d.Name()))
	}
	return out
}

func (r Registry) Len() int { return len(r.order) }
