package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unk-user/upwork-sniper/internal/feed"
	"github.com/unk-user/upwork-sniper/internal/relay"
	logx "github.com/unk-user/upwork-sniper/pkg/logx"
)

type fakeDispatcher struct {
	mu      sync.Mutex
	batches [][]feed.Job
	err     error
}

func (f *fakeDispatcher) Ingest(_ context.Context, jobs []feed.Job) (relay.IngestStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return relay.IngestStats{}, f.err
	}
	f.batches = append(f.batches, jobs)
	return relay.IngestStats{Received: len(jobs)}, nil
}

func (f *fakeDispatcher) calls() [][]feed.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]feed.Job(nil), f.batches...)
}

func newTestServer(disp Dispatcher) *Server {
	return New(Config{Secret: "s3cret"}, disp, logx.Nop())
}

func do(t *testing.T, srv *Server, method, body, secret string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	if secret != "" {
		req.Header.Set("X-Secret-Key", secret)
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestUnauthorized(t *testing.T) {
	t.Parallel()
	disp := &fakeDispatcher{}
	srv := newTestServer(disp)

	for _, secret := range []string{"", "wrong"} {
		w := do(t, srv, http.MethodPost, `[{"uid":"a1"}]`, secret)
		require.Equal(t, http.StatusUnauthorized, w.Code)
	}
	require.Empty(t, disp.calls(), "rejected requests must not reach the dispatcher")
}

func TestUnconfiguredSecretNeverAuthorizes(t *testing.T) {
	t.Parallel()
	disp := &fakeDispatcher{}
	srv := New(Config{}, disp, logx.Nop())

	w := do(t, srv, http.MethodPost, `[]`, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestEmptyBodyIsNoOp(t *testing.T) {
	t.Parallel()
	disp := &fakeDispatcher{}
	srv := newTestServer(disp)

	w := do(t, srv, http.MethodPost, "", "s3cret")
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, w.Body.String())
	require.Empty(t, disp.calls())
}

func TestMalformedJSON(t *testing.T) {
	t.Parallel()
	disp := &fakeDispatcher{}
	srv := newTestServer(disp)

	w := do(t, srv, http.MethodPost, `{"not":"an array"`, "s3cret")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Empty(t, disp.calls())
}

func TestBatchDispatched(t *testing.T) {
	t.Parallel()
	disp := &fakeDispatcher{}
	srv := newTestServer(disp)

	body := `[{"uid":"a1","title":"Go dev","skills":["go","python"]}]`
	w := do(t, srv, http.MethodPost, body, "s3cret")
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, w.Body.String(), "success responses carry no body")

	calls := disp.calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0], 1)
	require.Equal(t, "a1", calls[0][0].UID)
	require.Equal(t, []string{"go", "python"}, calls[0][0].Skills)
}

func TestAnyMethodAccepted(t *testing.T) {
	t.Parallel()
	disp := &fakeDispatcher{}
	srv := newTestServer(disp)

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodPost} {
		w := do(t, srv, method, `[]`, "s3cret")
		require.Equal(t, http.StatusOK, w.Code, method)
	}
}

func TestDispatcherErrorIs500(t *testing.T) {
	t.Parallel()
	disp := &fakeDispatcher{err: errors.New("store down")}
	srv := newTestServer(disp)

	w := do(t, srv, http.MethodPost, `[{"uid":"a1"}]`, "s3cret")
	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	disp := &fakeDispatcher{}
	srv := New(Config{Addr: "127.0.0.1:0", Secret: "s3cret"}, disp, logx.Nop())

	require.NoError(t, srv.Start(context.Background()))
	addr := srv.Addr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
}
