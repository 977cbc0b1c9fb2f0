package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pair-agent/internal/domain"
	"pair-agent/internal/ledger"
	"pair-agent/internal/metrics"
	"pair-agent/internal/orchestrator"
	"pair-agent/internal/storage/memory"
)

type fakeScheduler struct {
	status  orchestrator.Status
	cycle   *orchestrator.CycleReport
	exit    orchestrator.ExitReport
	err     error
	cycles  int
	exitRun int
}

func (f *fakeScheduler) Status() orchestrator.Status { return f.status }

func (f *fakeScheduler) TriggerCycle(context.Context) (*orchestrator.CycleReport, error) {
	f.cycles++
	return f.cycle, f.err
}

func (f *fakeScheduler) TriggerExitChecks(context.Context) (orchestrator.ExitReport, error) {
	f.exitRun++
	return f.exit, f.err
}

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, sched *fakeScheduler) (*Server, *ledger.Ledger) {
	t.Helper()
	ids := []string{"pos-1", "pos-2"}
	l := ledger.New(memory.NewPositionStore(), ledger.DefaultExitConfig(),
		ledger.WithClock(func() time.Time { return t0 }),
		ledger.WithIDGenerator(func() string {
			id := ids[0]
			ids = ids[1:]
			return id
		}),
	)
	ctx := context.Background()

	_, err := l.Open(ctx, ledger.OpenRequest{
		Pair: domain.NewPair("BTCUSDT", "ETHUSDT"), Direction: domain.SignalShort,
		PriceA: 100, PriceB: 50, ZScore: 2.4, HedgeRatio: 1.1, HalfLife: 12, SizeFraction: 0.1,
	})
	require.NoError(t, err)
	_, err = l.Open(ctx, ledger.OpenRequest{
		Pair: domain.NewPair("SOLUSDT", "AVAXUSDT"), Direction: domain.SignalLong,
		PriceA: 20, PriceB: 10, ZScore: -2.2, HedgeRatio: 0.9, HalfLife: 30, SizeFraction: 0.1,
	})
	require.NoError(t, err)
	closed, err := l.Close(ctx, "pos-2", domain.CloseReasonMeanReversion, 0.3, t0.Add(6*time.Hour))
	require.NoError(t, err)
	require.True(t, closed)

	agg := metrics.NewAggregator(l, nil, 1)
	agg.SetClock(func() time.Time { return t0.Add(7 * time.Hour) })

	return NewServer(DefaultConfig(), sched, l, agg, nil), l
}

func do(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, &fakeScheduler{})

	rec := do(t, s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestMetrics(t *testing.T) {
	s, _ := newTestServer(t, &fakeScheduler{})

	rec := do(t, s, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pair_agent_")
}

func TestStatus(t *testing.T) {
	sched := &fakeScheduler{status: orchestrator.Status{
		Cycles:      2,
		ExitPasses:  5,
		LastCycleAt: t0,
		LastCycle: &orchestrator.CycleReport{
			Scanned:  4,
			Rejected: map[string]int{"low_correlation": 3},
			Opened:   &domain.Position{ID: "pos-1"},
		},
	}}
	s, _ := newTestServer(t, sched)

	rec := do(t, s, http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Cycles)
	assert.Equal(t, 5, resp.ExitPasses)
	assert.Equal(t, 1, resp.OpenPositions)
	require.NotNil(t, resp.LastCycleAt)
	assert.True(t, resp.LastCycleAt.Equal(t0))
	assert.Nil(t, resp.LastExitAt)
	require.NotNil(t, resp.LastCycle)
	assert.Equal(t, "pos-1", resp.LastCycle.OpenedID)
	assert.Equal(t, 3, resp.LastCycle.Rejected["low_correlation"])
}

func TestPositions(t *testing.T) {
	s, _ := newTestServer(t, &fakeScheduler{})

	tests := []struct {
		query string
		ids   []string
	}{
		{"", []string{"pos-1", "pos-2"}},
		{"?status=open", []string{"pos-1"}},
		{"?status=closed", []string{"pos-2"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := do(t, s, http.MethodGet, "/positions"+tt.query)
			require.Equal(t, http.StatusOK, rec.Code)

			var views []PositionView
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
			var ids []string
			for _, v := range views {
				ids = append(ids, v.ID)
			}
			assert.ElementsMatch(t, tt.ids, ids)
		})
	}

	rec := do(t, s, http.MethodGet, "/positions?status=pending")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPosition(t *testing.T) {
	s, _ := newTestServer(t, &fakeScheduler{})

	rec := do(t, s, http.MethodGet, "/positions/pos-2")
	require.Equal(t, http.StatusOK, rec.Code)

	var v PositionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, "SOLUSDT/AVAXUSDT", v.Pair)
	assert.Equal(t, "closed", v.Status)
	assert.Equal(t, "mean reversion", v.CloseReason)
	assert.Equal(t, "SOLUSDT", v.LongAsset)
	require.NotNil(t, v.HalfLife)
	assert.Equal(t, 30.0, *v.HalfLife)

	rec = do(t, s, http.MethodGet, "/positions/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPerformance(t *testing.T) {
	s, _ := newTestServer(t, &fakeScheduler{})

	rec := do(t, s, http.MethodGet, "/performance")
	require.Equal(t, http.StatusOK, rec.Code)

	var v PerformanceView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, 1, v.TotalTrades)
	assert.Equal(t, 1, v.OpenPositions)
	assert.Equal(t, 1.0, v.Leverage)
}

func TestTriggers(t *testing.T) {
	sched := &fakeScheduler{
		cycle: &orchestrator.CycleReport{Scanned: 7},
		exit:  orchestrator.ExitReport{Checked: 2, Closed: 1},
	}
	s, _ := newTestServer(t, sched)

	rec := do(t, s, http.MethodPost, "/runs/cycle")
	require.Equal(t, http.StatusOK, rec.Code)
	var cycle CycleView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cycle))
	assert.Equal(t, 7, cycle.Scanned)

	rec = do(t, s, http.MethodPost, "/runs/exits")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"checked":2,"closed":1,"failed":0}`, rec.Body.String())

	sched.err = orchestrator.ErrBusy
	rec = do(t, s, http.MethodPost, "/runs/cycle")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 2, sched.cycles)

	rec = do(t, s, http.MethodGet, "/runs/cycle")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestNotFound(t *testing.T) {
	s, _ := newTestServer(t, &fakeScheduler{})

	rec := do(t, s, http.MethodGet, "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "not found"))
}
