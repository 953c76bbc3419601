// Package tui implements the interactive terminal frontend: enter a topic,
// watch the research progress live, then read and save the finished report.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mempirate/delver/agent"
	"github.com/mempirate/delver/store"
)

// MAX_LOG_LINES bounds the progress log shown on the running screen.
const MAX_LOG_LINES = 12

type screen int

const (
	screenHome screen = iota
	screenTopic
	screenRunning
	screenReport
	screenSaved
)

type menuItem struct {
	title string
	desc  string
}

func (m menuItem) Title() string       { return m.title }
func (m menuItem) Description() string { return m.desc }
func (m menuItem) FilterValue() string { return m.title }

type reportItem string

func (r reportItem) Title() string       { return string(r) }
func (r reportItem) Description() string { return "saved report" }
func (r reportItem) FilterValue() string { return string(r) }

type Deps struct {
	Runner agent.RunFunc
	Store  store.LocalStore
}

type model struct {
	theme Theme
	deps  Deps

	scr   screen
	menu  list.Model
	saved list.Model
	input textinput.Model
	spin  spinner.Model
	view  viewport.Model

	// gen counts started runs; messages carrying a stale gen are dropped.
	gen    int
	topic  string
	plan   []string
	lines  []string
	events chan tea.Msg
	cancel context.CancelFunc

	result    *agent.Result
	viewTitle string
	unsaved   bool
	status    string
}

// Run starts the program and blocks until the user quits.
func Run(deps Deps) error {
	m := newModel(deps)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func newModel(deps Deps) model {
	t := DefaultTheme()

	items := []list.Item{
		menuItem{"New research", "Plan, search, scrape, and write a report"},
		menuItem{"Saved reports", "Browse reports stored on disk"},
		menuItem{"Quit", "Exit delver"},
	}

	menu := list.New(items, list.NewDefaultDelegate(), 0, 0)
	menu.Title = "Delver"
	menu.SetShowStatusBar(false)
	menu.SetFilteringEnabled(false)
	menu.SetShowHelp(false)

	saved := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	saved.Title = "Saved reports"
	saved.SetShowStatusBar(false)
	saved.SetFilteringEnabled(false)
	saved.SetShowHelp(false)

	input := textinput.New()
	input.Placeholder = "Latest developments in LangChain"
	input.CharLimit = 200
	input.Width = 60

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = t.Accent

	return model{
		theme: t,
		deps:  deps,
		scr:   screenHome,
		menu:  menu,
		saved: saved,
		input: input,
		spin:  sp,
		view:  viewport.New(0, 0),
	}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.menu.SetSize(msg.Width-4, msg.Height-10)
		m.saved.SetSize(msg.Width-4, msg.Height-10)
		m.input.Width = msg.Width - 12
		m.view.Width = msg.Width - 4
		m.view.Height = msg.Height - 10
		return m, nil

	case tea.KeyMsg:
		return m.updateKey(msg)

	case spinner.TickMsg:
		if m.scr != screenRunning {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case researchEventMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		m.apply(msg.ev)
		return m, listenResearch(m.events)

	case researchDoneMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		return m.finishResearch(msg)

	case reportsLoadedMsg:
		if msg.err != nil {
			m.scr = screenHome
			m.status = m.theme.Err.Render("failed to list reports: " + msg.err.Error())
			return m, nil
		}
		items := make([]list.Item, 0, len(msg.names))
		for _, name := range msg.names {
			items = append(items, reportItem(name))
		}
		return m, m.saved.SetItems(items)

	case reportLoadedMsg:
		if msg.err != nil {
			m.status = m.theme.Err.Render("failed to open report: " + msg.err.Error())
			return m, nil
		}
		m.scr = screenReport
		m.viewTitle = msg.name
		m.result = nil
		m.unsaved = false
		m.status = ""
		m.view.SetContent(msg.content)
		m.view.GotoTop()
		return m, nil

	case reportSavedMsg:
		if msg.err != nil {
			m.status = m.theme.Err.Render("save failed: " + msg.err.Error())
			return m, nil
		}
		m.unsaved = false
		m.status = m.theme.Help.Render("saved " + msg.name)
		return m, nil
	}

	return m.updateFocused(msg)
}

func (m model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		if m.cancel != nil {
			m.cancel()
		}
		return m, tea.Quit
	}

	switch m.scr {
	case screenHome:
		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "enter":
			it, ok := m.menu.SelectedItem().(menuItem)
			if !ok {
				return m, nil
			}
			switch it.title {
			case "New research":
				m.scr = screenTopic
				m.status = ""
				m.input.SetValue("")
				return m, m.input.Focus()
			case "Saved reports":
				m.scr = screenSaved
				m.status = ""
				return m, loadReports(m.deps.Store)
			case "Quit":
				return m, tea.Quit
			}
			return m, nil
		}

	case screenTopic:
		switch msg.String() {
		case "esc":
			m.scr = screenHome
			m.input.Blur()
			return m, nil
		case "enter":
			topic := strings.TrimSpace(m.input.Value())
			if topic == "" {
				return m, nil
			}
			m.input.Blur()
			return m.startRun(topic)
		}

	case screenRunning:
		if msg.String() == "esc" {
			return m.cancelRun()
		}
		return m, nil

	case screenReport:
		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "esc", "b":
			m.scr = screenHome
			m.status = ""
			return m, nil
		case "s":
			if m.unsaved && m.result != nil {
				return m, saveReport(m.deps.Store, m.result.Report)
			}
			return m, nil
		}

	case screenSaved:
		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "esc", "b":
			m.scr = screenHome
			m.status = ""
			return m, nil
		case "enter":
			it, ok := m.saved.SelectedItem().(reportItem)
			if !ok {
				return m, nil
			}
			return m, loadReport(m.deps.Store, string(it))
		}
	}

	return m.updateFocused(msg)
}

// updateFocused forwards a message to whichever component owns the current
// screen.
func (m model) updateFocused(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.scr {
	case screenHome:
		m.menu, cmd = m.menu.Update(msg)
	case screenTopic:
		m.input, cmd = m.input.Update(msg)
	case screenReport:
		m.view, cmd = m.view.Update(msg)
	case screenSaved:
		m.saved, cmd = m.saved.Update(msg)
	}
	return m, cmd
}

func (m model) startRun(topic string) (tea.Model, tea.Cmd) {
	ctx, cancel := context.WithCancel(context.Background())

	m.gen++
	ch, cmd := startResearch(ctx, m.deps.Runner, topic, m.gen)

	m.scr = screenRunning
	m.topic = topic
	m.plan = nil
	m.lines = nil
	m.result = nil
	m.unsaved = false
	m.status = ""
	m.events = ch
	m.cancel = cancel

	return m, tea.Batch(m.spin.Tick, cmd)
}

func (m model) cancelRun() (tea.Model, tea.Cmd) {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}

	// Bump the generation so anything still in flight from this run is
	// dropped.
	m.gen++
	m.events = nil
	m.scr = screenHome
	m.status = m.theme.Help.Render("research canceled")
	return m, nil
}

func (m model) finishResearch(msg researchDoneMsg) (tea.Model, tea.Cmd) {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.events = nil

	if msg.err != nil {
		m.scr = screenHome
		m.status = m.theme.Err.Render("research failed: " + msg.err.Error())
		return m, nil
	}

	body, err := msg.result.Report.Markdown()
	if err != nil {
		m.scr = screenHome
		m.status = m.theme.Err.Render("research failed: " + err.Error())
		return m, nil
	}

	m.result = msg.result
	m.viewTitle = msg.result.Report.Title()
	m.unsaved = true
	m.status = ""
	m.scr = screenReport
	m.view.SetContent(body)
	m.view.GotoTop()
	return m, nil
}

func (m *model) apply(ev agent.Event) {
	if ev.Kind == agent.KindPlanCreated {
		m.plan = ev.Queries
	}

	line := eventLine(ev)
	if line == "" {
		return
	}

	m.lines = append(m.lines, line)
	if len(m.lines) > MAX_LOG_LINES {
		m.lines = m.lines[len(m.lines)-MAX_LOG_LINES:]
	}
}

func eventLine(ev agent.Event) string {
	switch ev.Kind {
	case agent.KindPlanCreated:
		return fmt.Sprintf("plan ready: %d queries", len(ev.Queries))
	case agent.KindQueryStarted:
		return fmt.Sprintf("researching %q", ev.Query)
	case agent.KindSourceScraped:
		return fmt.Sprintf("  + %s (%d chars)", ev.URL, ev.Chars)
	case agent.KindSourceSkipped:
		return fmt.Sprintf("  - %s: %s", ev.URL, ev.Reason)
	case agent.KindQuerySummarized:
		if ev.Null {
			return "  no sources, recording an empty summary"
		}
		return "  summary ready"
	case agent.KindWriteStarted:
		return "writing final report"
	case agent.KindReportReady:
		return "report ready"
	}
	return ""
}

func (m model) View() string {
	wrap := lipgloss.NewStyle().Padding(1, 2)
	header := m.theme.Title.Render("Delver") + "\n" +
		m.theme.Subtitle.Render("Deep research from your terminal") + "\n"

	status := ""
	if m.status != "" {
		status = m.status + "\n"
	}

	switch m.scr {
	case screenHome:
		help := m.theme.Help.Render("↑/↓ navigate • enter select • q quit")
		return wrap.Render(header + "\n" + status + m.theme.Card.Render(m.menu.View()) + "\n" + help)

	case screenTopic:
		card := m.theme.Card.Render("What should I research?\n\n" + m.input.View())
		help := m.theme.Help.Render("enter start • esc back")
		return wrap.Render(header + "\n" + card + "\n" + help)

	case screenRunning:
		var b strings.Builder
		b.WriteString(m.spin.View())
		b.WriteString(" researching ")
		b.WriteString(m.theme.Accent.Render(m.topic))
		b.WriteString("\n")
		if len(m.plan) > 0 {
			b.WriteString("\n")
			for i, q := range m.plan {
				fmt.Fprintf(&b, "%d. %s\n", i+1, q)
			}
		}
		if len(m.lines) > 0 {
			b.WriteString("\n")
			b.WriteString(strings.Join(m.lines, "\n"))
			b.WriteString("\n")
		}
		help := m.theme.Help.Render("esc cancel • ctrl+c quit")
		return wrap.Render(header + "\n" + m.theme.Card.Render(b.String()) + "\n" + help)

	case screenReport:
		hint := "esc back • q quit"
		if m.unsaved {
			hint = "s save • " + hint
		}
		help := m.theme.Help.Render(hint)
		title := m.theme.Title.Render(m.viewTitle)
		return wrap.Render(header + "\n" + title + "\n\n" + m.view.View() + "\n" + status + help)

	case screenSaved:
		help := m.theme.Help.Render("enter open • esc back • q quit")
		return wrap.Render(header + "\n" + status + m.theme.Card.Render(m.saved.View()) + "\n" + help)
	}

	return wrap.Render(header)
}
