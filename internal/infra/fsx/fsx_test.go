package fsx

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWriteFileAtomicReplace_OverwritesAndNoTempLeft(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "runs")

	if err := WriteFileAtomicReplace(dir, "a.json", []byte("old")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if err := WriteFileAtomicReplace(dir, "a.json", []byte("new")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "a.json"))
	if err != nil {
		t.Fatalf("读取文件失败：%v", err)
	}
	if string(b) != "new" {
		t.Fatalf("期望覆盖为 new，实际 %q", string(b))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir 失败：%v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".a.json.tmp-") {
			t.Fatalf("临时文件未清理：%q", e.Name())
		}
	}
}

func TestWriteFileAtomicReplace_RenameFail_CleanupTemp(t *testing.T) {
	dir := t.TempDir()

	old := renameFunc
	renameFunc = func(oldpath, newpath string) error {
		return os.ErrPermission
	}
	defer func() { renameFunc = old }()

	if err := WriteFileAtomicReplace(dir, "a.json", []byte("hello")); err == nil {
		t.Fatalf("期望失败，但得到 nil")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir 失败：%v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("rename 失败后目录应为空，实际 %d 项", len(entries))
	}
}

func TestReadFileFresh(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.html")

	if _, ok, err := ReadFileFresh(path, time.Hour, time.Now()); err != nil || ok {
		t.Fatalf("不存在的文件应 ok=false err=nil，实际 ok=%v err=%v", ok, err)
	}

	if err := WriteFileAtomicReplace(dir, "x.html", []byte("<html/>")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("Chtimes 失败：%v", err)
	}

	if _, ok, _ := ReadFileFresh(path, time.Hour, time.Now()); ok {
		t.Fatalf("过期文件应 ok=false")
	}
	b, ok, err := ReadFileFresh(path, 0, time.Now())
	if err != nil || !ok || string(b) != "<html/>" {
		t.Fatalf("ttl=0 应永不过期：ok=%v err=%v body=%q", ok, err, string(b))
	}
}

func TestReadFileFresh_DirIsError(t *testing.T) {
	if _, _, err := ReadFileFresh(t.TempDir(), 0, time.Now()); err == nil {
		t.Fatalf("目录应返回错误")
	}
}
