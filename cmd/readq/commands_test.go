package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/readq/internal/bulk"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	mu       sync.Mutex
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.mu.Lock()
		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})
		ts.mu.Unlock()

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"item nope not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

func (ts *testServer) last(t *testing.T) recordedRequest {
	t.Helper()
	ts.mu.Lock()
	defer ts.mu.Unlock()
	require.NotEmpty(t, ts.requests)
	return ts.requests[len(ts.requests)-1]
}

var testCtx = context.Background()

func init() {
	noColor = true
}

func TestListQueue(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /queue": `[{"id":"doc-1","sourceDocumentId":"","title":"A long read","itemType":"document","dueDate":"2026-01-02T00:00:00Z","estimatedMinutes":12,"tags":[],"priorityRating":0,"prioritySlider":0,"progressPercent":0,"suspended":true}]`,
	})
	var out bytes.Buffer
	require.NoError(t, listQueue(testCtx, ts.client(), &out, 10, 5))

	r := ts.last(t)
	assert.Equal(t, "Bearer test-token", r.Auth)
	assert.Equal(t, "/queue?limit=10&offset=5", r.Path)
	assert.Contains(t, out.String(), "doc-1")
	assert.Contains(t, out.String(), "document")
	assert.Contains(t, out.String(), "A long read (suspended)")
}

func TestListQueue_Empty(t *testing.T) {
	ts := newTestServer(t, map[string]string{"GET /queue": `[]`})
	var out bytes.Buffer
	require.NoError(t, listQueue(testCtx, ts.client(), &out, 0, 0))
	assert.Equal(t, "Queue is empty.\n", out.String())
}

func TestQueueStats(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /queue/stats": `{"totalItems":7,"dueToday":2,"overdue":1,"newItems":3,"learningItems":1,"reviewItems":2,"totalEstimatedMinutes":42.5,"suspended":1}`,
	})
	var out bytes.Buffer
	require.NoError(t, queueStats(testCtx, ts.client(), &out))
	assert.Contains(t, out.String(), "Total items")
	assert.Contains(t, out.String(), "42.5")
}

func TestRankedQueue_Limit(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /queue/ranked": `[
			{"item":{"id":"a","itemType":"document"},"vector":{"retentionRisk":0,"cognitiveLoad":0,"timeEfficiency":0,"userIntent":0,"overduePenalty":0},"score":90},
			{"item":{"id":"b","itemType":"extract"},"vector":{"retentionRisk":0,"cognitiveLoad":0,"timeEfficiency":0,"userIntent":0,"overduePenalty":0},"score":80}
		]`,
	})
	var out bytes.Buffer
	require.NoError(t, rankedQueue(testCtx, ts.client(), &out, "minimize-time", 1))
	assert.Equal(t, "/queue/ranked?preset=minimize-time", ts.last(t).Path)
	assert.Contains(t, out.String(), "90")
	assert.NotContains(t, out.String(), "extract")
}

func TestPlanSession(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /sessions/blocks": `[{"id":"overdue-rescue","title":"Overdue rescue","timeBudgetMinutes":10,"items":[{"id":"c1","title":"Card","itemType":"learning-item"}],"safeStopCount":1}]`,
	})
	var out bytes.Buffer
	require.NoError(t, planSession(testCtx, ts.client(), &out, "exploratory"))
	assert.JSONEq(t, `{"preset":"exploratory"}`, ts.last(t).Body)
	assert.Contains(t, out.String(), "Overdue rescue (overdue-rescue, 10 min, safe stop after 1)")
	assert.Contains(t, out.String(), "c1")
}

func TestShowStream_ReviewPercentage(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /stream": `[{"id":"rss:blog:1","title":"Post","itemType":"document","kind":"rss","category":"news","engagementScore":0.7}]`,
	})
	var out bytes.Buffer
	pct := 40.0
	require.NoError(t, showStream(testCtx, ts.client(), &out, &pct))
	assert.JSONEq(t, `{"reviewPercentage":40}`, ts.last(t).Body)
	assert.Contains(t, out.String(), "rss:blog:1")

	require.NoError(t, showStream(testCtx, ts.client(), &out, nil))
	assert.JSONEq(t, `{}`, ts.last(t).Body)
}

func TestRateItem(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /items/card 1/rating": `{"algorithm":"sm2","easeFactor":2.5,"intervalDays":1,"repetitions":1,"lapses":0,"dueDate":"2026-01-03T00:00:00Z"}`,
	})
	require.NoError(t, rateItem(testCtx, ts.client(), "card 1", "good"))
	r := ts.last(t)
	assert.Equal(t, "/items/card%201/rating", r.Path)
	assert.JSONEq(t, `{"rating":3}`, r.Body)
}

func TestRateItem_InvalidRatingSendsNothing(t *testing.T) {
	ts := newTestServer(t, nil)
	require.Error(t, rateItem(testCtx, ts.client(), "card-1", "perfect"))
	assert.Empty(t, ts.requests)
}

func TestPostponeItem(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /queue/doc-1/postpone": `{"id":"doc-1","dueDate":"2026-02-01T00:00:00Z"}`,
	})
	require.NoError(t, postponeItem(testCtx, ts.client(), "doc-1", 3))
	assert.JSONEq(t, `{"days":3}`, ts.last(t).Body)

	require.Error(t, postponeItem(testCtx, ts.client(), "doc-1", 0))
	require.Error(t, postponeItem(testCtx, ts.client(), "doc-1", 366))
	assert.Len(t, ts.requests, 1)
}

func TestPostponeItem_NotFound(t *testing.T) {
	ts := newTestServer(t, nil)
	err := postponeItem(testCtx, ts.client(), "nope", 3)
	require.Error(t, err)
	assert.Equal(t, "server returned 404: item nope not found", err.Error())
}

func TestBulkApply(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /queue/bulk/suspend": `{"succeeded":["a"],"failed":["b"],"errors":["b: not found"]}`,
		"POST /queue/bulk/delete":  `{"succeeded":[],"failed":["b"],"errors":["b: not found"]}`,
	})
	var out bytes.Buffer
	require.NoError(t, bulkApply(testCtx, ts.client(), &out, bulk.Suspend, []string{"a", "b"}))
	assert.JSONEq(t, `{"ids":["a","b"]}`, ts.last(t).Body)

	err := bulkApply(testCtx, ts.client(), &out, bulk.Delete, []string{"b"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "failed for all 1 items"))
}

func TestRunOptimize(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /algorithm/optimize": `{"bestParams":{"minEaseFactor":1.4,"initialEaseFactor":2.6,"desiredRetention":0.88},"expectedRetention":0.91,"iterations":12,"converged":true}`,
	})
	var out bytes.Buffer
	require.NoError(t, runOptimize(testCtx, ts.client(), &out, false))
	assert.Contains(t, out.String(), "0.880")
	assert.Contains(t, out.String(), "0.910")
	assert.Empty(t, ts.last(t).Body)
}

func TestRunOptimize_Async(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /algorithm/optimize": `{"jobId":"job-1","status":"queued"}`,
	})
	var out bytes.Buffer
	require.NoError(t, runOptimize(testCtx, ts.client(), &out, true))
	assert.Equal(t, "/algorithm/optimize?async=true", ts.last(t).Path)
}

func TestDecodeJSON_UnknownResponseField(t *testing.T) {
	ts := newTestServer(t, map[string]string{"GET /queue/stats": `{"mystery":1}`})
	var out bytes.Buffer
	assert.Error(t, queueStats(testCtx, ts.client(), &out))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
	assert.Equal(t, "ééé…", truncate("éééééé", 4))
}

func TestRootCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"start"}, {"stop"}, {"status"},
		{"queue", "list"}, {"queue", "stats"}, {"queue", "ranked"},
		{"session", "plan"}, {"stream"}, {"rate"}, {"postpone"},
		{"bulk", "suspend"}, {"bulk", "unsuspend"}, {"bulk", "delete"},
		{"optimize"}, {"config", "show"}, {"config", "set"},
	} {
		cmd, rest, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Empty(t, rest, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}
