package websocket_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/payroll-import/pkg/importer/adapter/realtime/websocket"
	model "github.com/tigerroll/payroll-import/pkg/importer/core/domain/model"
)

func startHub(t *testing.T) (*websocket.Hub, string) {
	hub := websocket.NewHub("")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, strings.TrimPrefix(r.URL.Path, "/ws/importacion/"))
	}))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/importacion/"
}

func dial(t *testing.T, url string) *gws.Conn {
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHub_BroadcastReachesJobSubscribers(t *testing.T) {
	hub, base := startHub(t)
	conn := dial(t, base+"job-1")
	other := dial(t, base+"job-2")
	require.Eventually(t, func() bool {
		return hub.Subscribers("job-1") == 1 && hub.Subscribers("job-2") == 1
	}, 2*time.Second, 10*time.Millisecond)

	job := model.NewJob("job-1", "nomina.xlsx", "ops@example.com", "ref", 1)
	job.Status = model.JobStatusProcessing
	job.Total, job.Processed, job.Success, job.Errors = 2500, 1000, 999, 1
	hub.Broadcast(model.NewProgressUpdate(job, time.Now().UTC()))

	var got model.ProgressUpdate
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "job-1", got.JobID)
	assert.Equal(t, 1000, got.Processed)
	assert.Equal(t, 999, got.Success)
	assert.InDelta(t, 40.0, got.ProgressPct, 0.001)
	assert.Equal(t, model.JobStatusProcessing, got.Status)
	assert.Equal(t, "Processing: 1000 of 2500 records (40.0%)", got.Message)

	require.NoError(t, other.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, _, err := other.ReadMessage()
	assert.Error(t, err)
}

func TestHub_UnsubscribesOnDisconnect(t *testing.T) {
	hub, base := startHub(t)
	conn := dial(t, base+"job-3")
	require.Eventually(t, func() bool { return hub.Subscribers("job-3") == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Subscribers("job-3") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_BroadcastWithoutSubscribers(t *testing.T) {
	hub := websocket.NewHub("")
	assert.NotPanics(t, func() {
		hub.Broadcast(model.ProgressUpdate{JobID: "nobody"})
	})
	assert.Equal(t, 0, hub.Subscribers("nobody"))
}
