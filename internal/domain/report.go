package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusSaved   = "saved"
	StatusSkipped = "skipped"
	StatusErrored = "errored"
)

const (
	ErrCodeMissingIdentity = "missing_identity"
	ErrCodeDuplicate       = "duplicate"
	ErrCodeNotFound        = "not_found"
	ErrCodeFetchFailed     = "fetch_failed"
	ErrCodeParseFailed     = "parse_failed"
	ErrCodeExtractFailed   = "extract_failed"
	ErrCodePersistFailed   = "persist_failed"
	ErrCodeConfigNotFound  = "config_not_found"
	ErrCodeConfigInvalid   = "config_invalid"
)

// IngestionRun 是一次摄取运行的汇总（stdout JSON / runs/<id>.json / API 响应共用该结构）。
//
// 约束：
// - Found = Saved + Skipped + Errored + 未处理（仅在取消时可能 >0）
// - 运行结束后只读；对外返回的都是 Clone 出来的独立副本
type IngestionRun struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	DryRun bool   `json:"dry_run"`

	// Requested 是请求的列表页数（segments × maxPagesPerYear）。
	Requested     int  `json:"requested"`
	Found         int  `json:"found"`
	Saved         int  `json:"saved"`
	Skipped       int  `json:"skipped"`
	Errored       int  `json:"errored"`
	ListingErrors int  `json:"listing_errors"`
	Cancelled     bool `json:"cancelled"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`

	// Failures 记录所有未保存的条目（skipped/errored），便于定位。
	Failures []ItemResult `json:"failures"`
}

// ItemResult 是单个条目的最终结果。
type ItemResult struct {
	Key          string `json:"key"`
	Title        string `json:"title"`
	Source       string `json:"source"`
	DetailSource string `json:"detail_source,omitempty"`

	Status    string `json:"status"`
	Stage     string `json:"stage"`
	ErrorCode string `json:"error_code,omitempty"`
	ErrorMsg  string `json:"error_msg,omitempty"`
	Attempts  int    `json:"attempts"`
}

// Progress 是运行过程中对外发出的进度快照。
type Progress struct {
	Processed int  `json:"processed"`
	Total     int  `json:"total"`
	Saved     int  `json:"saved"`
	Skipped   int  `json:"skipped"`
	Errored   int  `json:"errored"`
	Done      bool `json:"done"`
}

// Record 把一个条目结果计入计数器。
func (r *IngestionRun) Record(res ItemResult) {
	switch res.Status {
	case StatusSaved:
		r.Saved++
		return
	case StatusSkipped:
		r.Skipped++
	case StatusErrored:
		r.Errored++
	default:
		return
	}
	r.Failures = append(r.Failures, res)
}

// Processed 返回已得出最终结果的条目数。
func (r IngestionRun) Processed() int { return r.Saved + r.Skipped + r.Errored }

// Progress 返回当前计数的快照。
func (r IngestionRun) Progress(done bool) Progress {
	return Progress{
		Processed: r.Processed(),
		Total:     r.Found,
		Saved:     r.Saved,
		Skipped:   r.Skipped,
		Errored:   r.Errored,
		Done:      done,
	}
}

// Finalize 做两件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) failures 稳定排序：按 key 字典序；key=="" 的条目排在最后
func (r *IngestionRun) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	if !r.FinishedAt.IsZero() {
		r.FinishedAt = r.FinishedAt.UTC()
	}
	if r.Failures == nil {
		r.Failures = []ItemResult{}
	}
	sort.SliceStable(r.Failures, func(i, j int) bool {
		a := r.Failures[i].Key
		b := r.Failures[j].Key
		if a == "" {
			return false
		}
		if b == "" {
			return true
		}
		return a < b
	})
}

// Clone 返回与 r 不共享 Failures 底层数组的副本。
func (r IngestionRun) Clone() IngestionRun {
	out := r
	if r.Failures != nil {
		out.Failures = make([]ItemResult, len(r.Failures))
		copy(out.Failures, r.Failures)
	}
	return out
}

// MarshalJSON 保证 failures 永远输出为数组（而不是 null）。
func (r IngestionRun) MarshalJSON() ([]byte, error) {
	type Alias IngestionRun
	if r.Failures == nil {
		r.Failures = []ItemResult{}
	}
	return json.Marshal(Alias(r))
}
