package feed

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/modelsync/internal/core/observability/log"
	"github.com/zeusync/modelsync/internal/core/scheduler"
	"github.com/zeusync/modelsync/internal/core/tracker"
)

type staticSource struct {
	mu     sync.Mutex
	states []tracker.RenderState
}

func (s *staticSource) Snapshot() []tracker.RenderState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tracker.RenderState(nil), s.states...)
}

func newSource() (*staticSource, uuid.UUID) {
	zombie := uuid.New()
	return &staticSource{states: []tracker.RenderState{
		{TrackerID: uuid.New(), EntityID: zombie, ModelID: "zombie_elite", Scale: 1},
		{TrackerID: uuid.New(), EntityID: uuid.New(), ModelID: "skeleton", Scale: 2},
	}}, zombie
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f Frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestServer_StreamsFrames(t *testing.T) {
	source, _ := newSource()
	srv := NewServer(source, Options{}, log.NewNop())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dial(t, "ws"+strings.TrimPrefix(ts.URL, "http")+"/feed")

	first := readFrame(t, conn)
	require.Len(t, first.Trackers, 2)
	assert.Equal(t, "zombie_elite", first.Trackers[0].ModelID)

	require.Eventually(t, func() bool { return srv.Clients() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, srv.Broadcast())
	second := readFrame(t, conn)
	assert.Greater(t, second.Seq, first.Seq)
}

func TestServer_Filters(t *testing.T) {
	source, zombie := newSource()
	srv := NewServer(source, Options{Path: "/models"}, log.NewNop())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	base := "ws" + strings.TrimPrefix(ts.URL, "http") + "/models"

	byModel := readFrame(t, dial(t, base+"?model=skeleton"))
	require.Len(t, byModel.Trackers, 1)
	assert.Equal(t, "skeleton", byModel.Trackers[0].ModelID)

	byEntity := readFrame(t, dial(t, base+"?entity="+zombie.String()))
	require.Len(t, byEntity.Trackers, 1)
	assert.Equal(t, zombie, byEntity.Trackers[0].EntityID)

	none := readFrame(t, dial(t, base+"?model=dragon"))
	assert.Empty(t, none.Trackers)
}

func TestServer_DisconnectedViewerIsDropped(t *testing.T) {
	source, _ := newSource()
	srv := NewServer(source, Options{}, log.NewNop())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dial(t, "ws"+strings.TrimPrefix(ts.URL, "http")+"/feed")
	readFrame(t, conn)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool { return srv.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, srv.Broadcast())
}

func TestServer_StartStop(t *testing.T) {
	sched := scheduler.New(scheduler.Options{TickInterval: time.Millisecond, Workers: 1, Logger: log.NewNop()})
	defer func() { _ = sched.Close() }()

	source, _ := newSource()
	srv := NewServer(source, Options{Addr: "127.0.0.1:0", Period: 5}, log.NewNop())
	ctx := context.Background()

	require.NoError(t, srv.Start(ctx, sched))
	assert.ErrorIs(t, srv.Start(ctx, sched), ErrServerAlreadyRunning)

	require.NoError(t, srv.Stop(ctx))
	assert.ErrorIs(t, srv.Stop(ctx), ErrServerNotRunning)
}
