package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/movieingest/internal/app/run"
	"github.com/John-Robertt/movieingest/internal/domain"
	"github.com/John-Robertt/movieingest/internal/provider"
)

func TestObserver_CountsRunLifecycle(t *testing.T) {
	m := New()

	m.OnStart(domain.IngestionRun{Source: "tmdb"}, run.DefaultConfig())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsActive))

	m.OnFetch("tmdb", "detail", 1, nil, 20*time.Millisecond)
	throttled := provider.Transient("tmdb", "detail", "", errors.New("HTTP 429"))
	throttled.Throttled = true
	m.OnFetch("tmdb", "detail", 2, throttled, time.Millisecond)
	m.OnFetch("imdb", "detail", 1, provider.Permanent("imdb", "detail", "", provider.ErrNotFound), time.Millisecond)

	m.OnItemDone(domain.Progress{}, domain.ItemResult{Status: domain.StatusSaved}, time.Second)
	m.OnItemDone(domain.Progress{}, domain.ItemResult{Status: domain.StatusErrored, ErrorCode: domain.ErrCodeNotFound}, time.Second)
	m.OnPhaseDone("listing", nil, 3*time.Second)

	m.OnFinish(domain.IngestionRun{Source: "tmdb", ListingErrors: 2, Cancelled: true, FinishedAt: time.Unix(1700000000, 0)})

	assert.Equal(t, 0.0, testutil.ToFloat64(m.RunsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("tmdb", "cancelled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchTotal.WithLabelValues("tmdb", "detail", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchTotal.WithLabelValues("tmdb", "detail", "throttled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchTotal.WithLabelValues("imdb", "detail", "permanent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RetriesTotal.WithLabelValues("tmdb", "detail")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ItemsTotal.WithLabelValues(domain.StatusSaved, "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ItemsTotal.WithLabelValues(domain.StatusErrored, domain.ErrCodeNotFound)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ListingErrors.WithLabelValues("tmdb")))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(m.LastRunFinished))
}

func TestNew_IndependentRegistries(t *testing.T) {
	// 两个实例不应互相冲突（全局 registry 会 panic）。
	a, b := New(), New()
	a.RunsActive.Inc()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.RunsActive))
}

func TestHandler_ExposesMetrics(t *testing.T) {
	m := New()
	m.OnItemDone(domain.Progress{}, domain.ItemResult{Status: domain.StatusSaved}, time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `movieingest_items_total{code="",status="saved"} 1`), "输出中缺少 items_total")
	assert.True(t, strings.Contains(string(body), "go_goroutines"), "输出中缺少运行时指标")
}
