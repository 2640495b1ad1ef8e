package transport_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/roasbeef/threadsync/internal/thread"
	"github.com/roasbeef/threadsync/internal/transport"
	"github.com/roasbeef/threadsync/internal/transport/transporttest"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	op  string
	err error
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (f *fakeRecorder) ObserveRequest(op string, _ time.Duration, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, recordedCall{op: op, err: err})
}

func (f *fakeRecorder) ObserveTick(string) {}

func (f *fakeRecorder) ObserveStale(string) {}

func newClient(t *testing.T, baseURL string,
	opts ...transport.Option) *transport.Client {

	t.Helper()

	cfg := transport.DefaultConfig()
	cfg.BaseURL = baseURL
	c, err := transport.New(cfg, opts...)
	require.NoError(t, err)

	return c
}

func TestNewValidatesBaseURL(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr error
	}{
		{name: "empty", baseURL: "  ", wantErr: transport.ErrEmptyBaseURL},
		{name: "bad scheme", baseURL: "ftp://example.com"},
		{name: "no scheme", baseURL: "example.com/api"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := transport.New(transport.Config{BaseURL: tc.baseURL})
			require.Error(t, err)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
			}
		})
	}
}

func TestListMessagesPaging(t *testing.T) {
	srv := transporttest.NewServer()
	defer srv.Close()

	seeded := srv.Seed("t1", 25)
	c := newClient(t, srv.URL)
	ctx := context.Background()

	first, err := c.ListMessages(ctx, "t1", 1, 15)
	require.NoError(t, err)
	require.Len(t, first, 15)
	require.Equal(t, seeded[24].ID, first[0].ID)
	require.True(t, thread.IsNewestFirst(first))

	second, err := c.ListMessages(ctx, "t1", 2, 15)
	require.NoError(t, err)
	require.Len(t, second, 10)
	require.Equal(t, seeded[0].ID, second[9].ID)

	third, err := c.ListMessages(ctx, "t1", 3, 15)
	require.NoError(t, err)
	require.Empty(t, third)

	reqs := srv.Requests()
	require.Len(t, reqs, 3)
	require.Equal(t, "/threads/t1/messages", reqs[0].Path)
	require.Equal(t, "page=1&pageSize=15", reqs[0].Query)
	require.Equal(t, "page=2&pageSize=15", reqs[1].Query)
	require.NotEmpty(t, reqs[0].RequestID)
	require.NotEqual(t, reqs[0].RequestID, reqs[1].RequestID)
}

func TestListMessagesValidation(t *testing.T) {
	srv := transporttest.NewServer()
	defer srv.Close()

	c := newClient(t, srv.URL)
	ctx := context.Background()

	tests := []struct {
		name     string
		threadID string
		page     int
		pageSize int
		wantErr  error
	}{
		{name: "empty id", threadID: "", page: 1, pageSize: 15,
			wantErr: transport.ErrEmptyID},
		{name: "page zero", threadID: "t1", page: 0, pageSize: 15,
			wantErr: transport.ErrInvalidPage},
		{name: "size zero", threadID: "t1", page: 1, pageSize: 0,
			wantErr: transport.ErrInvalidPage},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.ListMessages(
				ctx, tc.threadID, tc.page, tc.pageSize,
			)
			require.ErrorIs(t, err, tc.wantErr)

			var te *transport.TransportError
			require.ErrorAs(t, err, &te)
			require.Equal(t, transport.OpListMessages, te.Op)
		})
	}

	// Validation never reaches the server.
	require.Empty(t, srv.Requests())
}

func TestPathSegmentsAreEscaped(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.EscapedPath()
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte("[]"))
		},
	))
	defer srv.Close()

	c := newClient(t, srv.URL+"/api/")
	_, err := c.ListMessages(context.Background(), "a/b c", 1, 5)
	require.NoError(t, err)
	require.Equal(t, "/api/threads/a%2Fb%20c/messages", gotPath)
}

func TestHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			got = r.Header.Clone()
			_, _ = w.Write([]byte("[]"))
		},
	))
	defer srv.Close()

	cfg := transport.DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.Headers = map[string]string{"Authorization": "Bearer token"}
	c, err := transport.New(cfg)
	require.NoError(t, err)

	_, err = c.ListThreads(context.Background(), "wf")
	require.NoError(t, err)

	require.Equal(t, "application/json", got.Get("Accept"))
	require.Equal(t, transport.DefaultUserAgent, got.Get("User-Agent"))
	require.Equal(t, "Bearer token", got.Get("Authorization"))
	require.NotEmpty(t, got.Get("X-Request-ID"))
	require.Empty(t, got.Get("Content-Type"))
}

func TestNonSuccessStatus(t *testing.T) {
	srv := transporttest.NewServer()
	defer srv.Close()

	rec := &fakeRecorder{}
	c := newClient(t, srv.URL, transport.WithRecorder(rec))

	_, err := c.GetThread(context.Background(), "missing")
	require.Error(t, err)
	require.Equal(t, http.StatusNotFound, transport.StatusCode(err))

	var se *transport.StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "thread not found", se.Body)
	require.Contains(t, err.Error(), "get_thread")
	require.Contains(t, err.Error(), "404")

	srv.FailNext("/messages", 1)
	_, err = c.ListMessages(context.Background(), "t1", 1, 15)
	require.Equal(t, http.StatusServiceUnavailable, transport.StatusCode(err))

	require.Len(t, rec.calls, 2)
	require.Equal(t, transport.OpGetThread, rec.calls[0].op)
	require.Error(t, rec.calls[0].err)
	require.Equal(t, transport.OpListMessages, rec.calls[1].op)
}

func TestDecodeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"not": "an array"}`))
		},
	))
	defer srv.Close()

	c := newClient(t, srv.URL)
	_, err := c.ListMessages(context.Background(), "t1", 1, 15)
	require.ErrorContains(t, err, "decode response")
	require.Equal(t, http.StatusOK, transport.StatusCode(err))
}

func TestUnknownDirectionKeepsPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`[
				{"id":"m2","threadId":"t1","direction":"Escalated",
				 "createdAt":"2026-03-01T09:00:02Z"},
				{"id":"m1","threadId":"t1","direction":"Outgoing",
				 "createdAt":"2026-03-01T09:00:01Z"}
			]`))
		},
	))
	defer srv.Close()

	c := newClient(t, srv.URL)
	msgs, err := c.ListMessages(context.Background(), "t1", 1, 15)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.False(t, msgs[0].Direction.IsValid())
	require.Equal(t, thread.DirectionOutgoing, msgs[1].Direction)
}

func TestSendMessage(t *testing.T) {
	srv := transporttest.NewServer()
	defer srv.Close()

	rec := &fakeRecorder{}
	c := newClient(t, srv.URL, transport.WithRecorder(rec))

	msg, err := c.SendMessage(context.Background(), "t1", thread.SendPayload{
		Content:   "hello",
		CreatedBy: "operator",
	})
	require.NoError(t, err)
	require.Equal(t, "hello", msg.Content)
	require.Equal(t, "t1", msg.ThreadID)
	require.Equal(t, thread.DirectionIncoming, msg.Direction)
	require.NotEmpty(t, msg.ID)

	_, err = c.SendMessage(context.Background(), "t1", thread.SendPayload{})
	require.Equal(t, http.StatusBadRequest, transport.StatusCode(err))

	require.Equal(t, 2, srv.CountRequests(http.MethodPost, "/messages"))
	require.Len(t, rec.calls, 2)
	require.NoError(t, rec.calls[0].err)
}

func TestThreads(t *testing.T) {
	srv := transporttest.NewServer()
	defer srv.Close()

	c := newClient(t, srv.URL)
	ctx := context.Background()

	created, err := c.CreateThread(ctx, "wf-1", thread.CreatePayload{
		ParticipantID: "p-1",
		Title:         "Onboarding",
	})
	require.NoError(t, err)
	require.Equal(t, "Onboarding", created.DisplayName())

	untitled, err := c.CreateThread(ctx, "wf-1", thread.CreatePayload{
		ParticipantID: "p-2",
	})
	require.NoError(t, err)
	require.True(t, untitled.Title.IsNone())
	require.Equal(t, untitled.ID, untitled.DisplayName())

	list, err := c.ListThreads(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, list, 2)

	got, err := c.GetThread(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, created.ID, got.ID)
	require.Equal(t, "p-1", got.ParticipantID)

	_, err = c.CreateThread(ctx, "", thread.CreatePayload{})
	require.ErrorIs(t, err, transport.ErrEmptyID)
}

func TestRateLimiterHonorsContext(t *testing.T) {
	srv := transporttest.NewServer()
	defer srv.Close()

	cfg := transport.DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.RequestsPerSecond = 0.001
	cfg.Burst = 1
	c, err := transport.New(cfg)
	require.NoError(t, err)

	// The first call uses the burst token.
	_, err = c.ListThreads(context.Background(), "wf")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = c.ListThreads(ctx, "wf")
	require.Error(t, err)
	require.Zero(t, transport.StatusCode(err))
	require.Len(t, srv.Requests(), 1)
}

func TestCanceledContext(t *testing.T) {
	srv := transporttest.NewServer()
	defer srv.Close()

	c := newClient(t, srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ListMessages(ctx, "t1", 1, 15)
	require.True(t, errors.Is(err, context.Canceled))
}
