// Package transporttest provides an in-memory workflow backend served over
// httptest, speaking the same REST contract as the real one.
package transporttest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/threadsync/internal/thread"
)

// Request is a record of one call the server received.
type Request struct {
	Method    string
	Path      string
	Query     string
	RequestID string
}

// Server is a fake backend. Its zero value is not usable; call NewServer.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	threads  map[string]thread.Thread
	byFlow   map[string][]string
	messages map[string][]thread.Message
	failures map[string]int
	requests []Request
	nextID   atomic.Int64
	now      time.Time
}

// NewServer starts a fake backend. Callers must Close it.
func NewServer() *Server {
	s := &Server{
		threads:  make(map[string]thread.Thread),
		byFlow:   make(map[string][]string),
		messages: make(map[string][]thread.Message),
		failures: make(map[string]int),
		now:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /workflows/{workflow}/threads", s.handleListThreads)
	mux.HandleFunc("POST /workflows/{workflow}/threads", s.handleCreateThread)
	mux.HandleFunc("GET /threads/{thread}", s.handleGetThread)
	mux.HandleFunc("GET /threads/{thread}/messages", s.handleListMessages)
	mux.HandleFunc("POST /threads/{thread}/messages", s.handleSendMessage)

	s.Server = httptest.NewServer(s.record(mux))

	return s
}

// AddThread stores a thread under a workflow.
func (s *Server) AddThread(workflowID string, th thread.Thread) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.threads[th.ID] = th
	s.byFlow[workflowID] = append(s.byFlow[workflowID], th.ID)
}

// AddMessages appends messages to a thread.
func (s *Server) AddMessages(threadID string, msgs ...thread.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages[threadID] = append(s.messages[threadID], msgs...)
}

// Seed creates count messages in a thread, one second apart, the newest last.
// It returns the created messages.
func (s *Server) Seed(threadID string, count int) []thread.Message {
	msgs := make([]thread.Message, count)
	for i := range msgs {
		msgs[i] = s.newMessage(threadID, thread.SendPayload{
			Content:   fmt.Sprintf("message %d", i+1),
			Direction: thread.DirectionOutgoing,
			CreatedBy: "agent",
		})
	}
	s.AddMessages(threadID, msgs...)

	return msgs
}

// FailNext makes the next n requests whose path has the given suffix answer
// with a 503.
func (s *Server) FailNext(pathSuffix string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures[pathSuffix] += n
}

// Requests returns a copy of every request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.requests)
}

// CountRequests returns how many requests hit paths with the given suffix.
func (s *Server) CountRequests(method, pathSuffix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, r := range s.requests {
		if r.Method == method && strings.HasSuffix(r.Path, pathSuffix) {
			n++
		}
	}

	return n
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method:    r.Method,
			Path:      r.URL.Path,
			Query:     r.URL.RawQuery,
			RequestID: r.Header.Get("X-Request-ID"),
		})

		failed := false
		for suffix, n := range s.failures {
			if n > 0 && strings.HasSuffix(r.URL.Path, suffix) {
				s.failures[suffix] = n - 1
				failed = true
				break
			}
		}
		s.mu.Unlock()

		if failed {
			http.Error(w, "backend unavailable",
				http.StatusServiceUnavailable)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) newMessage(threadID string,
	payload thread.SendPayload) thread.Message {

	s.mu.Lock()
	s.now = s.now.Add(time.Second)
	createdAt := s.now
	s.mu.Unlock()

	dir := payload.Direction
	if dir == "" {
		dir = thread.DirectionIncoming
	}

	msg := thread.Message{
		ID:        fmt.Sprintf("msg-%04d", s.nextID.Add(1)),
		ThreadID:  threadID,
		Direction: dir,
		Status:    "delivered",
		CreatedAt: createdAt,
		CreatedBy: payload.CreatedBy,
		Content:   payload.Content,
		Metadata:  fn.None[thread.Metadata](),
		Logs:      fn.None[[]thread.LogEntry](),
	}
	if payload.Metadata != nil {
		msg.Metadata = fn.Some(payload.Metadata)
	}

	return msg
}

func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	ids := s.byFlow[r.PathValue("workflow")]
	out := make([]thread.Thread, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.threads[id])
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	var payload thread.CreatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if payload.ParticipantID == "" {
		http.Error(w, "participantId required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.now = s.now.Add(time.Second)
	th := thread.Thread{
		ID:               fmt.Sprintf("thread-%04d", s.nextID.Add(1)),
		ParticipantID:    payload.ParticipantID,
		Title:            fn.None[string](),
		CreatedAt:        s.now,
		UpdatedAt:        s.now,
		IsInternalThread: payload.IsInternalThread,
	}
	if payload.Title != "" {
		th.Title = fn.Some(payload.Title)
	}
	s.mu.Unlock()

	s.AddThread(r.PathValue("workflow"), th)
	writeJSON(w, http.StatusCreated, th)
}

func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	th, ok := s.threads[r.PathValue("thread")]
	s.mu.Unlock()

	if !ok {
		http.Error(w, "thread not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, th)
}

// handleListMessages serves a newest first page. Like the real backend it
// answers with a bare array and no total count.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	s.mu.Lock()
	all := thread.SortNewestFirst(s.messages[r.PathValue("thread")])
	s.mu.Unlock()

	offset := (page - 1) * pageSize
	out := []thread.Message{}
	if offset < len(all) {
		out = all[offset:min(offset+pageSize, len(all))]
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("thread")

	var payload thread.SendPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(payload.Content) == "" {
		http.Error(w, "content required", http.StatusBadRequest)
		return
	}

	msg := s.newMessage(threadID, payload)
	s.AddMessages(threadID, msg)

	writeJSON(w, http.StatusCreated, msg)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
