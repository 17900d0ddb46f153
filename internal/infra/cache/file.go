package cache

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/John-Robertt/movieingest/internal/infra/fsx"
	"github.com/John-Robertt/movieingest/internal/provider"
)

// File 把 payload 存到 <Root>/providers/<source>/<id>.{html,json}。
type File struct {
	Root     string
	ReadOnly bool
	// TTL<=0 表示永不过期；过期依据文件 mtime。
	TTL time.Duration

	now func() time.Time
}

func NewFile(root string, ttl time.Duration, readOnly bool) *File {
	return &File{
		Root:     filepath.Clean(strings.TrimSpace(root)),
		ReadOnly: readOnly,
		TTL:      ttl,
		now:      time.Now,
	}
}

// Path 返回 payload 的绝对路径。
func (f *File) Path(source, id, contentType string) (string, error) {
	s, id, err := cleanKey(source, id)
	if err != nil {
		return "", err
	}
	return filepath.Join(f.Root, "providers", s, id+ext(contentType)), nil
}

func (f *File) Get(_ context.Context, source, id string) (provider.RawDetail, bool, error) {
	s, id, err := cleanKey(source, id)
	if err != nil {
		return provider.RawDetail{}, false, err
	}
	// JSON 优先：同一来源不会同时产出两种格式。
	for _, ct := range []string{"application/json", "text/html"} {
		path := filepath.Join(f.Root, "providers", s, id+ext(ct))
		b, ok, err := fsx.ReadFileFresh(path, f.TTL, f.clock())
		if err != nil {
			return provider.RawDetail{}, false, err
		}
		if ok {
			return provider.RawDetail{Source: s, ID: id, URL: "file://" + path, ContentType: ct, Body: b}, true, nil
		}
	}
	return provider.RawDetail{}, false, nil
}

func (f *File) Put(_ context.Context, raw provider.RawDetail) error {
	if f.ReadOnly {
		return ErrReadOnly
	}
	path, err := f.Path(raw.Source, raw.ID, raw.ContentType)
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomicReplace(filepath.Dir(path), filepath.Base(path), raw.Body)
}

func (f *File) clock() time.Time {
	if f.now == nil {
		return time.Now()
	}
	return f.now()
}

func ext(contentType string) string {
	if isJSON(contentType) {
		return ".json"
	}
	return ".html"
}
