package tui

import "github.com/mempirate/delver/agent"

// Messages from a research run carry the generation counter of the run that
// produced them, so events from a canceled run cannot leak into a newer one.

type researchEventMsg struct {
	gen int
	ev  agent.Event
}

type researchDoneMsg struct {
	gen    int
	result *agent.Result
	err    error
}

type reportsLoadedMsg struct {
	names []string
	err   error
}

type reportLoadedMsg struct {
	name    string
	content string
	err     error
}

type reportSavedMsg struct {
	name string
	err  error
}
