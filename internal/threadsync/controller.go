// Package threadsync keeps the message collection of one active thread in
// sync with the backend. It pages backwards through history on request,
// refreshes the newest page on a bounded polling window and exposes a newest
// first view to the presentation layer.
//
// All state lives behind one mutex that is never held across a network call.
// Every asynchronous operation captures a generation number when it starts
// and drops its result if a thread switch or Close bumped it in the meantime.
package threadsync

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"

	"github.com/roasbeef/threadsync/internal/metrics"
	"github.com/roasbeef/threadsync/internal/poller"
	"github.com/roasbeef/threadsync/internal/thread"
)

// DefaultPageSize is the number of messages requested per page.
const DefaultPageSize = 15

// Operation names used in logs and stale response metrics.
const (
	opLoadInitial = "load_initial"
	opLoadOlder   = "load_older"
	opPoll        = "poll"
	opSend        = "send"
)

// Transport is the part of the backend client the controller needs.
type Transport interface {
	// ListMessages returns one newest first page of a thread.
	ListMessages(ctx context.Context, threadID string, page,
		pageSize int) ([]thread.Message, error)

	// SendMessage posts a message and returns the stored copy.
	SendMessage(ctx context.Context, threadID string,
		payload thread.SendPayload) (thread.Message, error)
}

// Notifier receives a user facing message for every failed fetch.
type Notifier interface {
	ShowError(message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(message string)

// ShowError implements Notifier.
func (f NotifierFunc) ShowError(message string) {
	f(message)
}

type noopNotifier struct{}

func (noopNotifier) ShowError(string) {}

// Config holds the controller settings.
type Config struct {
	// PageSize is the number of messages per page. A page shorter than
	// this is the end of history.
	PageSize int

	// Poll configures the refresh window.
	Poll poller.Config
}

// DefaultConfig returns pages of 15 and the default polling window.
func DefaultConfig() Config {
	return Config{
		PageSize: DefaultPageSize,
		Poll:     poller.DefaultConfig(),
	}
}

// Option customizes a Controller.
type Option func(*Controller)

// WithNotifier routes error messages to n. A nil n is ignored.
func WithNotifier(n Notifier) Option {
	return func(c *Controller) {
		if n != nil {
			c.notifier = n
		}
	}
}

// WithRecorder reports stale responses and poll ticks to r.
func WithRecorder(r metrics.Recorder) Option {
	return func(c *Controller) {
		c.recorder = metrics.OrNoop(r)
	}
}

// State is a copy of the controller state.
type State struct {
	// ThreadID is the active thread, empty before the first load.
	ThreadID string

	// Messages is the collection in display order, newest first.
	Messages []thread.Message

	// IsLoading is set while the first page of ThreadID is in flight.
	IsLoading bool

	// IsLoadingMore is set while an older page is in flight.
	IsLoadingMore bool

	// HasMore reports whether another older page may exist.
	HasMore bool

	// Error is the last failure message, empty after a success.
	Error string

	// Page is the last page loaded.
	Page int

	// IsPolling reports whether a refresh window is running.
	IsPolling bool
}

// Controller owns the message collection of the active thread.
type Controller struct {
	cfg       Config
	transport Transport
	notifier  Notifier
	recorder  metrics.Recorder
	poller    *poller.Poller

	mu          sync.Mutex
	gen         uint64
	threadID    string
	messages    []thread.Message
	page        int
	hasMore     bool
	loading     bool
	loadingMore bool
	errMsg      string
	closed      bool
	updates     chan struct{}
}

// New builds a controller with its own poller. Nothing is fetched until
// LoadInitial.
func New(transport Transport, cfg Config, opts ...Option) (*Controller,
	error) {

	if cfg.PageSize < 1 {
		return nil, ErrInvalidPageSize
	}

	c := &Controller{
		cfg:       cfg,
		transport: transport,
		notifier:  noopNotifier{},
		recorder:  metrics.Noop{},
		page:      1,
		hasMore:   true,
		updates:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}

	p, err := poller.New(
		cfg.Poll, c.pollFetch, poller.WithRecorder(c.recorder),
		poller.WithIdleHook(c.signal),
	)
	if err != nil {
		return nil, fmt.Errorf("create poller: %w", err)
	}
	c.poller = p

	return c, nil
}

// LoadInitial makes threadID the active thread and loads its newest page.
// Work still in flight for an earlier load is invalidated. Switching to a
// different thread clears the collection before the request goes out. On
// failure the collection is emptied and the error is reported through the
// notifier.
func (c *Controller) LoadInitial(ctx context.Context, threadID string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	c.gen++
	gen := c.gen

	if threadID != c.threadID {
		log.DebugS(ctx, "Switching thread", "from", c.threadID,
			"to", threadID)

		c.messages = nil
		c.page = 1
		c.hasMore = true
		c.errMsg = ""
	}
	c.threadID = threadID

	// An older page of the previous generation no longer owns the flag.
	c.loadingMore = false

	if threadID == "" {
		c.loading = false
		c.changedLocked()
		c.mu.Unlock()

		return
	}

	c.loading = true
	c.changedLocked()
	c.mu.Unlock()

	defer c.release(gen, &c.loading)

	msgs, err := c.transport.ListMessages(ctx, threadID, 1, c.cfg.PageSize)

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		c.stale(ctx, opLoadInitial, threadID)

		return
	}

	if err != nil {
		c.messages = nil
		c.page = 1
		c.hasMore = false
		c.errMsg = fmt.Sprintf("failed to load messages: %v", err)
		notice := c.errMsg
		c.loading = false
		c.changedLocked()
		c.mu.Unlock()

		log.WarnS(ctx, "Initial load failed", err, "thread_id",
			threadID)
		c.notifier.ShowError(notice)

		return
	}

	c.messages = thread.Dedupe(msgs)
	c.page = 1
	c.hasMore = len(msgs) == c.cfg.PageSize
	c.errMsg = ""
	c.loading = false
	c.changedLocked()
	c.mu.Unlock()

	log.DebugS(ctx, "Initial page loaded", "thread_id", threadID,
		"count", len(msgs), "has_more", len(msgs) == c.cfg.PageSize)
}

// LoadOlder fetches the page after the last one loaded and merges it into
// the collection. It returns immediately when there is no active thread,
// history is exhausted, or a load is already pending. A failure keeps the
// data loaded so far.
func (c *Controller) LoadOlder(ctx context.Context) {
	c.mu.Lock()
	if c.closed || c.threadID == "" || !c.hasMore || c.loading ||
		c.loadingMore {

		c.mu.Unlock()
		return
	}

	gen := c.gen
	threadID := c.threadID
	next := c.page + 1
	c.loadingMore = true
	c.changedLocked()
	c.mu.Unlock()

	defer c.release(gen, &c.loadingMore)

	msgs, err := c.transport.ListMessages(
		ctx, threadID, next, c.cfg.PageSize,
	)

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		c.stale(ctx, opLoadOlder, threadID)

		return
	}

	if err != nil {
		c.errMsg = fmt.Sprintf("failed to load older messages: %v", err)
		notice := c.errMsg
		c.loadingMore = false
		c.changedLocked()
		c.mu.Unlock()

		log.WarnS(ctx, "Older page failed", err, "thread_id", threadID,
			"page", next)
		c.notifier.ShowError(notice)

		return
	}

	c.messages = thread.MergeByID(c.messages, msgs)
	c.page = next
	c.hasMore = len(msgs) == c.cfg.PageSize
	c.errMsg = ""
	c.loadingMore = false
	c.changedLocked()
	c.mu.Unlock()

	log.DebugS(ctx, "Older page loaded", "thread_id", threadID,
		"page", next, "count", len(msgs))
}

// PollTick refreshes the newest page of threadID and applies it on top of
// the collection with thread.ReplaceHead. It is skipped while the initial
// load is pending, and its result is dropped if threadID stopped being the
// active thread. Failures are reported but leave the data in place.
func (c *Controller) PollTick(ctx context.Context, threadID string) {
	// Failures are already in State and sent to the notifier.
	_ = c.poll(ctx, threadID)
}

// pollFetch adapts poll to the poller callback.
func (c *Controller) pollFetch(ctx context.Context, threadID string,
	_ bool) error {

	return c.poll(ctx, threadID)
}

// poll is PollTick returning the transport error so the poller can count
// failed ticks.
func (c *Controller) poll(ctx context.Context, threadID string) error {
	c.mu.Lock()
	if c.closed || threadID == "" || threadID != c.threadID {
		c.mu.Unlock()
		c.stale(ctx, opPoll, threadID)

		return nil
	}
	if c.loading {
		c.mu.Unlock()
		log.TraceS(ctx, "Skipping poll during initial load",
			"thread_id", threadID)

		return nil
	}
	gen := c.gen
	c.mu.Unlock()

	msgs, err := c.transport.ListMessages(ctx, threadID, 1, c.cfg.PageSize)

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		c.stale(ctx, opPoll, threadID)

		return nil
	}

	if err != nil {
		c.errMsg = fmt.Sprintf("failed to refresh messages: %v", err)
		notice := c.errMsg
		c.changedLocked()
		c.mu.Unlock()

		c.notifier.ShowError(notice)

		return err
	}

	if len(msgs) > 0 {
		c.messages = thread.ReplaceHead(c.messages, msgs)
		if c.page == 1 {
			c.hasMore = len(msgs) == c.cfg.PageSize
		}
	}
	c.errMsg = ""
	c.changedLocked()
	c.mu.Unlock()

	return nil
}

// Send posts a message to the active thread, merges the stored copy into the
// collection and restarts the polling window so replies show up quickly. The
// error is returned as well as reported so the caller can keep its draft.
func (c *Controller) Send(ctx context.Context,
	payload thread.SendPayload) (thread.Message, error) {

	if strings.TrimSpace(payload.Content) == "" {
		return thread.Message{}, ErrEmptyContent
	}

	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return thread.Message{}, ErrClosed

	case c.threadID == "":
		c.mu.Unlock()
		return thread.Message{}, ErrNoActiveThread
	}
	gen := c.gen
	threadID := c.threadID
	c.mu.Unlock()

	msg, err := c.transport.SendMessage(ctx, threadID, payload)
	if err != nil {
		notice := fmt.Sprintf("failed to send message: %v", err)

		c.mu.Lock()
		if c.gen == gen {
			c.errMsg = notice
			c.changedLocked()
		}
		c.mu.Unlock()

		log.WarnS(ctx, "Send failed", err, "thread_id", threadID)
		c.notifier.ShowError(notice)

		return thread.Message{}, err
	}

	c.mu.Lock()
	if c.gen != gen {
		// A reload of the same thread may have missed the message, so a
		// refresh window still has to pick it up.
		active := !c.closed && c.threadID == threadID
		c.mu.Unlock()
		c.stale(ctx, opSend, threadID)

		if active {
			c.poller.Trigger(threadID)
		}

		return msg, nil
	}
	c.messages = thread.MergeByID(c.messages, []thread.Message{msg})
	c.errMsg = ""
	c.changedLocked()
	c.mu.Unlock()

	log.DebugS(ctx, "Message sent", "thread_id", threadID,
		"message_id", msg.ID)

	c.poller.Trigger(threadID)

	return msg, nil
}

// StartPolling starts a refresh window for threadID.
func (c *Controller) StartPolling(threadID string) {
	c.poller.Start(threadID)
	c.signal()
}

// StopPolling ends the refresh window.
func (c *Controller) StopPolling() {
	c.poller.Stop()
	c.signal()
}

// TriggerPolling restarts the refresh window for threadID.
func (c *Controller) TriggerPolling(threadID string) {
	c.poller.Trigger(threadID)
	c.signal()
}

// IsPolling reports whether a refresh window is running.
func (c *Controller) IsPolling() bool {
	return c.poller.IsPolling()
}

// SortedForDisplay returns the collection newest first. Each iteration
// sorts a fresh copy, so the sequence always reflects the state at the
// moment the range starts.
func (c *Controller) SortedForDisplay() iter.Seq[thread.Message] {
	return func(yield func(thread.Message) bool) {
		c.mu.Lock()
		snapshot := slices.Clone(c.messages)
		c.mu.Unlock()

		for _, m := range thread.SortNewestFirst(snapshot) {
			if !yield(m) {
				return
			}
		}
	}
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	s := State{
		ThreadID:      c.threadID,
		Messages:      thread.SortNewestFirst(c.messages),
		IsLoading:     c.loading,
		IsLoadingMore: c.loadingMore,
		HasMore:       c.hasMore,
		Error:         c.errMsg,
		Page:          c.page,
	}
	c.mu.Unlock()

	s.IsPolling = c.poller.IsPolling()

	return s
}

// Updates returns a channel that receives a value after state changes.
// Signals are coalesced; read State after each one. The channel is closed by
// Close.
func (c *Controller) Updates() <-chan struct{} {
	return c.updates
}

// Close stops polling, waits for the poll loop to exit and invalidates every
// request still in flight. It must not be called from a Notifier callback.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.gen++
	c.loading = false
	c.loadingMore = false
	close(c.updates)
	c.mu.Unlock()

	c.poller.Close()
}

// release clears flag if gen still owns it. It runs deferred so no exit path
// can leave a load marked as pending.
func (c *Controller) release(gen uint64, flag *bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen == gen && *flag {
		*flag = false
		c.changedLocked()
	}
}

func (c *Controller) stale(ctx context.Context, op, threadID string) {
	log.DebugS(ctx, "Discarding stale result", "op", op,
		"thread_id", threadID)

	c.recorder.ObserveStale(op)
}

func (c *Controller) signal() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.changedLocked()
}

// changedLocked posts a coalesced update signal. c.mu must be held.
func (c *Controller) changedLocked() {
	if c.closed {
		return
	}

	select {
	case c.updates <- struct{}{}:
	default:
	}
}
