// Package events 把摄取运行的事件（开始/阶段/条目结果/结束）发布到 Kafka。
//
// Publisher 实现 run.Observer：回调只做内存追加，网络写入在后台批量进行；
// Kafka 不可用时只记日志并丢弃事件，不影响运行本身。
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/John-Robertt/movieingest/internal/app/run"
	"github.com/John-Robertt/movieingest/internal/domain"
)

// 事件类型。
const (
	TypeRunStarted  = "run.started"
	TypePhaseDone   = "phase.done"
	TypeItemDone    = "item.done"
	TypeRunFinished = "run.finished"
)

// Event 是写入 Kafka 的消息体（JSON）。
type Event struct {
	Type   string    `json:"type"`
	RunID  string    `json:"run_id"`
	Source string    `json:"source,omitempty"`
	At     time.Time `json:"at"`

	Phase      string         `json:"phase,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
	DurationMS int64          `json:"duration_ms,omitempty"`

	Progress *domain.Progress     `json:"progress,omitempty"`
	Item     *domain.ItemResult   `json:"item,omitempty"`
	Run      *domain.IngestionRun `json:"run,omitempty"`
}

// Options 是 Kafka 发布参数。
type Options struct {
	Brokers []string
	Topic   string
	// BatchSize / FlushInterval 控制本地缓冲：满批或到时即写。
	BatchSize     int
	FlushInterval time.Duration
}

// writer 是 *kafka.Writer 的最小子集（测试用假实现替换）。
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher 缓冲事件并批量写入 Kafka。
type Publisher struct {
	w             writer
	logger        *slog.Logger
	batchSize     int
	flushInterval time.Duration
	now           func() time.Time

	mu      sync.Mutex
	buf     []kafka.Message
	runID   string
	source  string
	dropped int

	kick chan struct{}
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

var _ run.Observer = (*Publisher)(nil)

// New 创建连接到 opts.Brokers 的 Publisher，并启动后台写入循环。
func New(opts Options, logger *slog.Logger) *Publisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(opts.Brokers...),
		Topic:        opts.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
	}
	if logger == nil {
		logger = slog.Default()
	}
	return newPublisher(w, opts, logger.With("component", "events", "topic", opts.Topic))
}

func newPublisher(w writer, opts Options, logger *slog.Logger) *Publisher {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Second
	}
	p := &Publisher{
		w:             w,
		logger:        logger,
		batchSize:     opts.BatchSize,
		flushInterval: opts.FlushInterval,
		now:           time.Now,
		buf:           make([]kafka.Message, 0, opts.BatchSize),
		kick:          make(chan struct{}, 1),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go p.loop()
	return p
}

func (p *Publisher) loop() {
	defer close(p.done)
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.flush()
		case <-p.kick:
			p.flush()
		case <-p.stop:
			p.flush()
			return
		}
	}
}

// Flush 立即写出缓冲中的事件。
func (p *Publisher) Flush() { p.flush() }

func (p *Publisher) flush() {
	p.mu.Lock()
	if len(p.buf) == 0 {
		p.mu.Unlock()
		return
	}
	msgs := p.buf
	p.buf = make([]kafka.Message, 0, p.batchSize)
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.w.WriteMessages(ctx, msgs...); err != nil {
		p.mu.Lock()
		p.dropped += len(msgs)
		p.mu.Unlock()
		p.logger.Warn("failed to publish events",
			"count", len(msgs),
			"error", err,
		)
		return
	}
	p.logger.Debug("events published", "count", len(msgs))
}

// Dropped 返回因写入失败被丢弃的事件数。
func (p *Publisher) Dropped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Close 写出剩余事件并关闭底层 writer。
func (p *Publisher) Close() error {
	p.once.Do(func() { close(p.stop) })
	<-p.done
	return p.w.Close()
}

func (p *Publisher) track(key string, ev Event) {
	p.mu.Lock()
	if ev.RunID == "" {
		ev.RunID = p.runID
	}
	if ev.Source == "" {
		ev.Source = p.source
	}
	p.mu.Unlock()
	ev.At = p.now().UTC()

	value, err := json.Marshal(ev)
	if err != nil {
		p.logger.Warn("failed to encode event", "type", ev.Type, "error", err)
		return
	}
	if key == "" {
		key = ev.RunID
	}

	p.mu.Lock()
	p.buf = append(p.buf, kafka.Message{Key: []byte(key), Value: value})
	full := len(p.buf) >= p.batchSize
	p.mu.Unlock()

	if full {
		select {
		case p.kick <- struct{}{}:
		default:
		}
	}
}

func (p *Publisher) OnStart(r domain.IngestionRun, _ run.Config) {
	p.mu.Lock()
	p.runID, p.source = r.ID, r.Source
	p.mu.Unlock()
	p.track(r.ID, Event{Type: TypeRunStarted, RunID: r.ID, Source: r.Source, Run: &r})
}

func (p *Publisher) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.track("", Event{Type: TypePhaseDone, Phase: name, Fields: fields, DurationMS: dur.Milliseconds()})
}

// OnFetch 不发布：单次请求粒度过细，由 metrics 统计。
func (p *Publisher) OnFetch(string, string, int, error, time.Duration) {}

func (p *Publisher) OnItemDone(prog domain.Progress, res domain.ItemResult, dur time.Duration) {
	p.track(res.Key, Event{Type: TypeItemDone, Progress: &prog, Item: &res, DurationMS: dur.Milliseconds()})
}

// OnFinish 发布汇总并立即写出，保证运行结束时事件已落到 Kafka。
func (p *Publisher) OnFinish(r domain.IngestionRun) {
	p.track(r.ID, Event{Type: TypeRunFinished, RunID: r.ID, Source: r.Source, Run: &r})
	p.flush()
}
