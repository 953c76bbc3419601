package tui

import (
	"context"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mempirate/delver/agent"
	"github.com/mempirate/delver/report"
	"github.com/mempirate/delver/store"
)

// EVENT_BUFFER is sized well above the number of events a single run emits, so
// the final done message always fits even when nobody is draining the channel
// anymore.
const EVENT_BUFFER = 64

// startResearch launches the runner in a goroutine and returns the channel its
// progress arrives on, plus the command that reads the first message.
func startResearch(ctx context.Context, runner agent.RunFunc, topic string, gen int) (chan tea.Msg, tea.Cmd) {
	ch := make(chan tea.Msg, EVENT_BUFFER)

	go func() {
		defer close(ch)

		sink := func(ev agent.Event) {
			select {
			case ch <- researchEventMsg{gen: gen, ev: ev}:
			default:
			}
		}

		res, err := runner(ctx, topic, sink)
		ch <- researchDoneMsg{gen: gen, result: res, err: err}
	}()

	return ch, listenResearch(ch)
}

// listenResearch reads one message from the run channel. The model re-arms it
// after every message until the done message arrives.
func listenResearch(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

func loadReports(st store.LocalStore) tea.Cmd {
	return func() tea.Msg {
		names, err := st.List()
		return reportsLoadedMsg{names: names, err: err}
	}
}

func loadReport(st store.LocalStore, name string) tea.Cmd {
	return func() tea.Msg {
		rc, err := st.Get(name)
		if err != nil {
			return reportLoadedMsg{name: name, err: err}
		}
		defer rc.Close()

		content, err := io.ReadAll(rc)
		if err != nil {
			return reportLoadedMsg{name: name, err: err}
		}

		return reportLoadedMsg{name: name, content: string(content)}
	}
}

func saveReport(st store.LocalStore, rep *report.Report) tea.Cmd {
	return func() tea.Msg {
		name := rep.FileName()

		md, err := rep.Markdown()
		if err != nil {
			return reportSavedMsg{name: name, err: err}
		}

		if err := st.Store(name, strings.NewReader(md)); err != nil {
			return reportSavedMsg{name: name, err: err}
		}

		return reportSavedMsg{name: name}
	}
}
