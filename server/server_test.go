package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/mempirate/delver/agent"
	"github.com/mempirate/delver/config"
	"github.com/mempirate/delver/report"
	"github.com/mempirate/delver/store"
)

// runnerScript is a Runner that replays canned events and then either blocks
// on release or returns its result.
type runnerScript struct {
	events  []agent.Event
	result  *agent.Result
	err     error
	release chan struct{}
}

func (rs *runnerScript) run(ctx context.Context, topic string, sink agent.Sink) (*agent.Result, error) {
	for _, ev := range rs.events {
		sink(ev)
	}

	if rs.release != nil {
		<-rs.release
	}

	if rs.err != nil {
		return nil, rs.err
	}

	return rs.result, nil
}

func testResult(topic string) *agent.Result {
	return &agent.Result{
		Report: &report.Report{
			Topic:       topic,
			Body:        "# Findings\n\nAll good.",
			GeneratedAt: time.Now(),
		},
		State: &agent.State{Topic: topic},
	}
}

func newTestServer(t *testing.T, runner Runner, rpm int) (*httptest.Server, *store.FileStore) {
	t.Helper()

	fs, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	s := New(config.ServerConfig{Addr: ":0", RequestsPerMinute: rpm}, runner, fs)
	ts := httptest.NewServer(s.Routes())
	t.Cleanup(ts.Close)

	return ts, fs
}

func postTopic(t *testing.T, ts *httptest.Server, topic string) *http.Response {
	t.Helper()

	body, _ := json.Marshal(map[string]string{"topic": topic})
	resp, err := http.Post(ts.URL+"/api/v1/reports", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}

	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatal(err)
	}

	return v
}

func waitForStatus(t *testing.T, ts *httptest.Server, id, want string) jobDetail {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(ts.URL + "/api/v1/reports/" + id)
		if err != nil {
			t.Fatal(err)
		}

		d := decodeJSON[jobDetail](t, resp)
		if d.Status == want {
			return d
		}

		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("job %s never reached status %s", id, want)
	return jobDetail{}
}

func TestCreateAndComplete(t *testing.T) {
	rs := &runnerScript{
		events: []agent.Event{
			{Kind: agent.KindPlanCreated, Queries: []string{"q1", "q2"}},
			{Kind: agent.KindQueryStarted, Query: "q1"},
			{Kind: agent.KindReportReady},
		},
		result: testResult("test topic"),
	}

	ts, fs := newTestServer(t, rs.run, 0)

	resp := postTopic(t, ts, "test topic")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}

	created := decodeJSON[createResponse](t, resp)
	if created.ID == "" {
		t.Fatal("empty job id")
	}

	detail := waitForStatus(t, ts, created.ID, StatusDone)
	if detail.Topic != "test topic" {
		t.Errorf("unexpected topic: %q", detail.Topic)
	}
	if len(detail.Plan) != 2 {
		t.Errorf("plan not captured: %v", detail.Plan)
	}
	if detail.Events != 3 {
		t.Errorf("expected 3 events, got %d", detail.Events)
	}

	// The report is persisted under the job id.
	ok, err := fs.Contains(created.ID + ".md")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("report not persisted to store")
	}

	// Listing shows the job.
	listResp, err := http.Get(ts.URL + "/api/v1/reports")
	if err != nil {
		t.Fatal(err)
	}
	list := decodeJSON[[]jobInfo](t, listResp)
	if len(list) != 1 || list[0].ID != created.ID {
		t.Errorf("unexpected list: %+v", list)
	}
}

func TestCreateValidation(t *testing.T) {
	ts, _ := newTestServer(t, (&runnerScript{result: testResult("t")}).run, 0)

	resp := postTopic(t, ts, "   ")
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty topic: expected 400, got %d", resp.StatusCode)
	}

	resp, err := http.Post(ts.URL+"/api/v1/reports", "application/json", strings.NewReader("{broken"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("broken JSON: expected 400, got %d", resp.StatusCode)
	}
}

func TestDetailNotFound(t *testing.T) {
	ts, _ := newTestServer(t, (&runnerScript{result: testResult("t")}).run, 0)

	resp, err := http.Get(ts.URL + "/api/v1/reports/nope")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestRunFailure(t *testing.T) {
	rs := &runnerScript{err: errors.New("planner failed")}
	ts, _ := newTestServer(t, rs.run, 0)

	created := decodeJSON[createResponse](t, postTopic(t, ts, "doomed topic"))

	detail := waitForStatus(t, ts, created.ID, StatusFailed)
	if detail.Error != "planner failed" {
		t.Errorf("unexpected error detail: %q", detail.Error)
	}

	// No document for a failed run.
	resp, err := http.Get(ts.URL + "/api/v1/reports/" + created.ID + "/document")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409, got %d", resp.StatusCode)
	}
}

func TestDocumentFormats(t *testing.T) {
	rs := &runnerScript{result: testResult("doc topic")}
	ts, _ := newTestServer(t, rs.run, 0)

	created := decodeJSON[createResponse](t, postTopic(t, ts, "doc topic"))
	waitForStatus(t, ts, created.ID, StatusDone)

	base := ts.URL + "/api/v1/reports/" + created.ID + "/document"

	resp, err := http.Get(base)
	if err != nil {
		t.Fatal(err)
	}
	md, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if !strings.Contains(string(md), "topic: doc topic") || !strings.Contains(string(md), "# Findings") {
		t.Errorf("unexpected markdown document:\n%s", md)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Errorf("unexpected content type: %s", ct)
	}

	resp, err = http.Get(base + "?format=html")
	if err != nil {
		t.Fatal(err)
	}
	html, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if !strings.Contains(string(html), "<h1") || !strings.Contains(string(html), "font-family: Helvetica") {
		t.Errorf("unexpected html document:\n%s", html)
	}

	resp, err = http.Get(base + "?format=docx")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown format, got %d", resp.StatusCode)
	}
}

func TestEventStream(t *testing.T) {
	release := make(chan struct{})
	rs := &runnerScript{
		events: []agent.Event{
			{Kind: agent.KindPlanCreated, Queries: []string{"q1"}},
			{Kind: agent.KindQueryStarted, Query: "q1"},
		},
		result:  testResult("sse topic"),
		release: release,
	}

	ts, _ := newTestServer(t, rs.run, 0)

	created := decodeJSON[createResponse](t, postTopic(t, ts, "sse topic"))

	// Wait until both events are buffered, then attach.
	deadline := time.Now().Add(3 * time.Second)
	for {
		resp, err := http.Get(ts.URL + "/api/v1/reports/" + created.ID)
		if err != nil {
			t.Fatal(err)
		}
		if d := decodeJSON[jobDetail](t, resp); d.Events == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("events never buffered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Get(ts.URL + "/api/v1/reports/" + created.ID + "/events")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type: %s", ct)
	}

	// Unblock the runner so the stream terminates.
	close(release)

	var kinds []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			kinds = append(kinds, strings.TrimPrefix(line, "event: "))
		}
	}

	want := fmt.Sprintf("%s %s", agent.KindPlanCreated, agent.KindQueryStarted)
	if got := strings.Join(kinds, " "); got != want {
		t.Errorf("unexpected event kinds: %q, want %q", got, want)
	}
}

func TestRateLimit(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	rs := &runnerScript{result: testResult("t"), release: release}
	ts, _ := newTestServer(t, rs.run, 1)

	resp := postTopic(t, ts, "first")
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("first request: expected 202, got %d", resp.StatusCode)
	}

	resp = postTopic(t, ts, "second")
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("second request: expected 429, got %d", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t, (&runnerScript{result: testResult("t")}).run, 0)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, (&runnerScript{result: testResult("t")}).run, 0)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !bytes.Contains(body, []byte("go_goroutines")) {
		t.Error("metrics output missing standard collectors")
	}
}
