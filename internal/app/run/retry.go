package run

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/John-Robertt/movieingest/internal/provider"
)

// 退避抖动比例：±10%。
const jitterFraction = 0.1

// backoff 计算第 attempt 次失败（1 起始）之后的等待：base·2^(attempt-1)，封顶 max，再加抖动。
func backoff(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	d := float64(base) * math.Pow(2, float64(attempt-1))
	if max > 0 && d > float64(max) {
		d = float64(max)
	}
	d += d * jitterFraction * (rand.Float64()*2 - 1)
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// cooldown 是限流后的冷却时间：max(factor·minDelay, retryAfter)。
func cooldown(factor float64, minDelay, retryAfter time.Duration) time.Duration {
	d := time.Duration(factor * float64(minDelay))
	if retryAfter > d {
		d = retryAfter
	}
	return d
}

// sleep 等待 d；ctx 取消时提前返回 false。
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// call 执行一次外部调用，并按错误分类决定是否在同一阶段重试。
//
// 约束：
// - 网络请求本身不跟随 ctx 取消（在途请求跑完）；取消只会缩短等待、阻止下一次尝试
// - 每次调用之后等待 pace（节奏控制），无论成败
// - 只有 transient 错误会重试；最多 1+MaxRetries 次
//
// 返回值 attempts 为实际发起的请求次数。
func (r *runner) call(ctx context.Context, source, op string, pace time.Duration, fn func(context.Context) error) (attempts int, err error) {
	netCtx := context.WithoutCancel(ctx)
	for attempt := 1; ; attempt++ {
		start := time.Now()
		err = fn(netCtx)
		r.deps.Observer.OnFetch(source, op, attempt, err, time.Since(start))
		sleep(ctx, pace)

		if err == nil || !provider.IsTransient(err) || attempt > r.cfg.MaxRetries {
			return attempt, err
		}

		wait := backoff(r.cfg.RetryBaseDelay, r.cfg.MaxBackoff, attempt)
		if retryAfter, ok := provider.Throttle(err); ok {
			wait = cooldown(r.cfg.RateLimitFactor, r.cfg.MinDelay, retryAfter)
		}
		r.log.Debug("retry scheduled",
			"source", source,
			"op", op,
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
		if !sleep(ctx, wait) {
			return attempt, err
		}
	}
}
