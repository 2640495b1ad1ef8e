package threadsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/threadsync/internal/thread"
)

var errBackend = errors.New("backend unavailable")

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// listCall identifies one ListMessages request.
type listCall struct {
	threadID string
	page     int
}

// fakeTransport is an in-memory backend. Hooks let tests hold a request in
// flight or make it fail.
type fakeTransport struct {
	mu       sync.Mutex
	messages map[string][]thread.Message
	calls    []listCall
	sends    int
	seq      int

	// hook runs before a ListMessages answer is computed. It may block.
	hook func(call listCall)

	// fail returns an error to fail a ListMessages call with.
	fail func(call listCall) error

	// sendHook runs before a SendMessage is stored. It may block.
	sendHook func()

	// failSend fails every SendMessage when set.
	failSend error

	// raw serves pages in storage order instead of newest first.
	raw bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		messages: make(map[string][]thread.Message),
	}
}

func (f *fakeTransport) seed(threadID string, n int) []thread.Message {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]thread.Message, n)
	for i := range out {
		out[i] = f.newMessageLocked(threadID, fmt.Sprintf("m%d", i+1))
	}
	f.messages[threadID] = append(f.messages[threadID], out...)

	return out
}

func (f *fakeTransport) newMessageLocked(threadID,
	content string) thread.Message {

	f.seq++

	return thread.Message{
		ID:        fmt.Sprintf("%s-%04d", threadID, f.seq),
		ThreadID:  threadID,
		Direction: thread.DirectionOutgoing,
		Status:    "delivered",
		CreatedAt: baseTime.Add(time.Duration(f.seq) * time.Second),
		CreatedBy: "agent",
		Content:   content,
		Metadata:  fn.None[thread.Metadata](),
		Logs:      fn.None[[]thread.LogEntry](),
	}
}

func (f *fakeTransport) setHook(hook func(listCall)) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.hook = hook
}

func (f *fakeTransport) setSendHook(hook func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sendHook = hook
}

func (f *fakeTransport) setFail(fail func(listCall) error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fail = fail
}

func (f *fakeTransport) listCalls() []listCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]listCall(nil), f.calls...)
}

func (f *fakeTransport) countPage(threadID string, page int) int {
	n := 0
	for _, c := range f.listCalls() {
		if c.threadID == threadID && c.page == page {
			n++
		}
	}

	return n
}

func (f *fakeTransport) ListMessages(ctx context.Context, threadID string,
	page, pageSize int) ([]thread.Message, error) {

	call := listCall{threadID: threadID, page: page}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	hook, fail := f.hook, f.fail
	f.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if fail != nil {
		if err := fail(call); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// Pages are cut newest first, like the real backend.
	all := thread.SortNewestFirst(f.messages[threadID])
	if f.raw {
		all = f.messages[threadID]
	}
	offset := (page - 1) * pageSize
	if offset >= len(all) {
		return []thread.Message{}, nil
	}

	return all[offset:min(offset+pageSize, len(all))], nil
}

func (f *fakeTransport) SendMessage(_ context.Context, threadID string,
	payload thread.SendPayload) (thread.Message, error) {

	f.mu.Lock()
	hook := f.sendHook
	f.mu.Unlock()

	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.sends++
	if f.failSend != nil {
		return thread.Message{}, f.failSend
	}

	msg := f.newMessageLocked(threadID, payload.Content)
	msg.Direction = payload.Direction
	if msg.Direction == "" {
		msg.Direction = thread.DirectionIncoming
	}
	f.messages[threadID] = append(f.messages[threadID], msg)

	return msg, nil
}

// gate holds requests matching a predicate until released.
type gate struct {
	entered chan listCall
	release chan struct{}
	match   func(listCall) bool
}

func newGate(match func(listCall) bool) *gate {
	return &gate{
		entered: make(chan listCall, 8),
		release: make(chan struct{}),
		match:   match,
	}
}

func (g *gate) hook(call listCall) {
	if !g.match(call) {
		return
	}
	g.entered <- call
	<-g.release
}

// recordingNotifier collects every error message.
type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingNotifier) ShowError(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.messages = append(r.messages, message)
}

func (r *recordingNotifier) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.messages...)
}

type staleRecorder struct {
	mu    sync.Mutex
	stale map[string]int
	ticks map[string]int
}

func (s *staleRecorder) ObserveRequest(string, time.Duration, error) {}

func (s *staleRecorder) ObserveTick(outcome string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticks == nil {
		s.ticks = make(map[string]int)
	}
	s.ticks[outcome]++
}

func (s *staleRecorder) ObserveStale(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stale == nil {
		s.stale = make(map[string]int)
	}
	s.stale[op]++
}

func (s *staleRecorder) staleCount(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stale[op]
}

func (s *staleRecorder) tickCount(outcome string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ticks[outcome]
}
