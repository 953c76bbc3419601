package tui

import (
	"context"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"

	"github.com/mempirate/delver/agent"
	"github.com/mempirate/delver/report"
)

type fakeStore struct {
	files map[string]string
}

func (f *fakeStore) List() ([]string, error) {
	names := make([]string, 0, len(f.files))
	for name := range f.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (f *fakeStore) Contains(name string) (bool, error) {
	_, ok := f.files[name]
	return ok, nil
}

func (f *fakeStore) Store(name string, content io.Reader) error {
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	f.files[name] = string(data)
	return nil
}

func (f *fakeStore) Get(name string) (io.ReadCloser, error) {
	content, ok := f.files[name]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(strings.NewReader(content)), nil
}

func (f *fakeStore) Path(name string) string { return name }

func testModel() model {
	runner := func(ctx context.Context, topic string, sink agent.Sink) (*agent.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return newModel(Deps{Runner: runner, Store: &fakeStore{files: map[string]string{}}})
}

func update(t *testing.T, m model, msg tea.Msg) model {
	t.Helper()
	mm, _ := m.Update(msg)
	out, ok := mm.(model)
	if !ok {
		t.Fatalf("Update returned %T, want model", mm)
	}
	return out
}

func key(k tea.KeyType) tea.KeyMsg {
	return tea.KeyMsg{Type: k}
}

func TestResearchFlow(t *testing.T) {
	m := testModel()

	m = update(t, m, key(tea.KeyEnter))
	if m.scr != screenTopic {
		t.Fatalf("scr = %d, want topic screen", m.scr)
	}

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("Go generics")})
	m = update(t, m, key(tea.KeyEnter))
	if m.scr != screenRunning {
		t.Fatalf("scr = %d, want running screen", m.scr)
	}
	if m.topic != "Go generics" {
		t.Errorf("topic = %q, want %q", m.topic, "Go generics")
	}
	if m.cancel == nil {
		t.Fatal("running model has no cancel func")
	}
	defer m.cancel()

	m = update(t, m, researchEventMsg{gen: m.gen, ev: agent.Event{
		Kind:    agent.KindPlanCreated,
		Queries: []string{"generics basics", "generics performance"},
	}})
	if len(m.plan) != 2 {
		t.Fatalf("plan has %d queries, want 2", len(m.plan))
	}
	if len(m.lines) != 1 {
		t.Fatalf("log has %d lines, want 1", len(m.lines))
	}

	rep := &report.Report{
		Topic:       "Go generics",
		Body:        "# Generics in Practice\n\nFindings.",
		GeneratedAt: time.Now(),
	}
	m = update(t, m, researchDoneMsg{gen: m.gen, result: &agent.Result{Report: rep}})
	if m.scr != screenReport {
		t.Fatalf("scr = %d, want report screen", m.scr)
	}
	if !m.unsaved {
		t.Error("fresh report should be marked unsaved")
	}
	if m.viewTitle != "Generics in Practice" {
		t.Errorf("viewTitle = %q, want %q", m.viewTitle, "Generics in Practice")
	}
}

func TestEmptyTopicIgnored(t *testing.T) {
	m := testModel()

	m = update(t, m, key(tea.KeyEnter))
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("   ")})
	m = update(t, m, key(tea.KeyEnter))

	if m.scr != screenTopic {
		t.Errorf("scr = %d, blank topic should stay on the topic screen", m.scr)
	}
}

func TestCancelDropsStaleMessages(t *testing.T) {
	m := testModel()

	m = update(t, m, key(tea.KeyEnter))
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("stale run")})
	m = update(t, m, key(tea.KeyEnter))

	oldGen := m.gen
	m = update(t, m, key(tea.KeyEsc))
	if m.scr != screenHome {
		t.Fatalf("scr = %d, want home screen after cancel", m.scr)
	}

	rep := &report.Report{Topic: "stale run", Body: "late", GeneratedAt: time.Now()}
	m = update(t, m, researchDoneMsg{gen: oldGen, result: &agent.Result{Report: rep}})
	if m.scr != screenHome {
		t.Errorf("scr = %d, stale done message should be dropped", m.scr)
	}
}

func TestRunFailureShowsStatus(t *testing.T) {
	m := testModel()

	m = update(t, m, key(tea.KeyEnter))
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("doomed")})
	m = update(t, m, key(tea.KeyEnter))

	m = update(t, m, researchDoneMsg{gen: m.gen, err: errors.New("planner unavailable")})
	if m.scr != screenHome {
		t.Fatalf("scr = %d, want home screen after failure", m.scr)
	}
	if !strings.Contains(m.status, "planner unavailable") {
		t.Errorf("status = %q, want the run error surfaced", m.status)
	}
}

func TestEventLine(t *testing.T) {
	tests := []struct {
		ev   agent.Event
		want string
	}{
		{agent.Event{Kind: agent.KindPlanCreated, Queries: []string{"a", "b", "c"}}, "plan ready: 3 queries"},
		{agent.Event{Kind: agent.KindQueryStarted, Query: "langchain"}, `researching "langchain"`},
		{agent.Event{Kind: agent.KindSourceScraped, URL: "https://example.com", Chars: 420}, "  + https://example.com (420 chars)"},
		{agent.Event{Kind: agent.KindSourceSkipped, URL: "https://example.com", Reason: "fetch failed"}, "  - https://example.com: fetch failed"},
		{agent.Event{Kind: agent.KindQuerySummarized}, "  summary ready"},
		{agent.Event{Kind: agent.KindQuerySummarized, Null: true}, "  no sources, recording an empty summary"},
		{agent.Event{Kind: agent.KindWriteStarted}, "writing final report"},
		{agent.Event{Kind: agent.KindReportReady}, "report ready"},
	}

	for _, test := range tests {
		if got := eventLine(test.ev); got != test.want {
			t.Errorf("eventLine(%s) = %q, want %q", test.ev.Kind, got, test.want)
		}
	}
}

func TestSaveReport(t *testing.T) {
	st := &fakeStore{files: map[string]string{}}
	rep := &report.Report{
		Topic:       "Go Generics",
		Body:        "# Generics\n\nFindings.",
		GeneratedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	msg := saveReport(st, rep)()
	saved, ok := msg.(reportSavedMsg)
	if !ok {
		t.Fatalf("saveReport returned %T, want reportSavedMsg", msg)
	}
	if saved.err != nil {
		t.Fatalf("saveReport: %v", saved.err)
	}
	if saved.name != "go-generics.md" {
		t.Errorf("name = %q, want %q", saved.name, "go-generics.md")
	}

	content, ok := st.files["go-generics.md"]
	if !ok {
		t.Fatal("report not written to the store")
	}
	if !strings.Contains(content, "# Generics") {
		t.Errorf("stored content missing body:\n%s", content)
	}
}
