package server

import (
	"sort"
	"sync"
	"time"

	"github.com/mempirate/delver/agent"
)

// Job statuses.
const (
	StatusQueued  = "queued"
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// SUB_BUFFER is the per-subscriber event buffer. A run emits a few dozen
// events at most, so slow readers only lose events in pathological cases.
const SUB_BUFFER = 64

// job tracks one research run: its status, every event emitted so far and
// the live subscribers. Events are buffered for replay, so a client can
// attach at any point and see the full stream.
type job struct {
	mu sync.RWMutex

	id      string
	topic   string
	seq     int64
	created time.Time

	status string
	err    string
	plan   []string

	events []agent.Event
	subs   map[chan agent.Event]struct{}

	result *agent.Result
}

func newJob(id, topic string, seq int64) *job {
	return &job{
		id:      id,
		topic:   topic,
		seq:     seq,
		created: time.Now(),
		status:  StatusQueued,
		subs:    make(map[chan agent.Event]struct{}),
	}
}

func (j *job) setRunning() {
	j.mu.Lock()
	j.status = StatusRunning
	j.mu.Unlock()
}

// appendEvent records the event and fans it out. It is the job's agent.Sink.
func (j *job) appendEvent(ev agent.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.events = append(j.events, ev)
	if ev.Kind == agent.KindPlanCreated {
		j.plan = ev.Queries
	}

	for ch := range j.subs {
		select {
		case ch <- ev:
		default:
			// Subscriber not keeping up; it still has the replay buffer.
		}
	}
}

// finish moves the job to a terminal state and closes all subscriber
// channels, which lets SSE handlers drain and return.
func (j *job) finish(result *agent.Result, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err != nil {
		j.status = StatusFailed
		j.err = err.Error()
	} else {
		j.status = StatusDone
		j.result = result
	}

	for ch := range j.subs {
		close(ch)
	}
	j.subs = nil
}

// subscribe returns the events so far and a channel for what follows. The
// channel is closed when the job reaches a terminal state. The cancel func
// must be called when the subscriber goes away.
func (j *job) subscribe() ([]agent.Event, <-chan agent.Event, func()) {
	j.mu.Lock()
	defer j.mu.Unlock()

	replay := make([]agent.Event, len(j.events))
	copy(replay, j.events)

	if j.subs == nil {
		// Terminal state: everything is in the replay.
		ch := make(chan agent.Event)
		close(ch)
		return replay, ch, func() {}
	}

	ch := make(chan agent.Event, SUB_BUFFER)
	j.subs[ch] = struct{}{}

	cancel := func() {
		j.mu.Lock()
		defer j.mu.Unlock()
		if j.subs != nil {
			delete(j.subs, ch)
		}
	}

	return replay, ch, cancel
}

func (j *job) detail() jobDetail {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return jobDetail{
		ID:        j.id,
		Topic:     j.topic,
		Status:    j.status,
		CreatedAt: j.created,
		Plan:      j.plan,
		Error:     j.err,
		Events:    len(j.events),
	}
}

func (j *job) info() jobInfo {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return jobInfo{
		ID:        j.id,
		Topic:     j.topic,
		Status:    j.status,
		CreatedAt: j.created,
	}
}

func (j *job) report() (*agent.Result, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.status != StatusDone || j.result == nil {
		return nil, false
	}
	return j.result, true
}

type jobInfo struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type jobDetail struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	Plan      []string  `json:"plan,omitempty"`
	Error     string    `json:"error,omitempty"`
	Events    int       `json:"events"`
}

// registry is the in-memory job index.
type registry struct {
	mu   sync.RWMutex
	seq  int64
	jobs map[string]*job
}

func newRegistry() *registry {
	return &registry{jobs: make(map[string]*job)}
}

func (r *registry) create(id, topic string) *job {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	j := newJob(id, topic, r.seq)
	r.jobs[id] = j

	return j
}

func (r *registry) get(id string) *job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.jobs[id]
}

// list returns job infos, newest first.
func (r *registry) list() []jobInfo {
	r.mu.RLock()
	jobs := make([]*job, 0, len(r.jobs))
	for _, j := range r.jobs {
		jobs = append(jobs, j)
	}
	r.mu.RUnlock()

	sort.Slice(jobs, func(i, k int) bool { return jobs[i].seq > jobs[k].seq })

	infos := make([]jobInfo, 0, len(jobs))
	for _, j := range jobs {
		infos = append(infos, j.info())
	}

	return infos
}
