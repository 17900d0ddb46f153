// Package report 把运行汇总写成 <dir>/runs/<id>.json（原子替换）。
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/John-Robertt/movieingest/internal/domain"
	"github.com/John-Robertt/movieingest/internal/infra/fsx"
)

// Path 返回汇总文件路径。
func Path(dir, id string) string {
	return filepath.Join(dir, "runs", id+".json")
}

// Save 写入汇总并返回文件路径。
func Save(dir string, r domain.IngestionRun) (string, error) {
	if r.ID == "" {
		return "", fmt.Errorf("report: run id 不能为空")
	}
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	b = append(b, '\n')

	runsDir := filepath.Join(dir, "runs")
	if err := os.MkdirAll(runsDir, 0o755); err != nil {
		return "", err
	}
	if err := fsx.WriteFileAtomicReplace(runsDir, r.ID+".json", b); err != nil {
		return "", err
	}
	return Path(dir, r.ID), nil
}

// Load 读取已保存的汇总。
func Load(dir, id string) (domain.IngestionRun, error) {
	var r domain.IngestionRun
	b, err := os.ReadFile(Path(dir, id))
	if err != nil {
		return r, err
	}
	err = json.Unmarshal(b, &r)
	return r, err
}
