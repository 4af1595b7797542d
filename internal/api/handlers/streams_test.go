package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/artrack/internal/models"
	"github.com/your-org/artrack/internal/registry"
	"github.com/your-org/artrack/pkg/dto"
)

type fakePublisher struct {
	published [][]byte
	err       error
}

func (f *fakePublisher) PublishControl(data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, data)
	return nil
}

func newStreamRouter(reg *registry.Registry, pub ControlPublisher) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewStreamHandler(reg, pub)
	r.POST("/v1/streams", h.Create)
	r.GET("/v1/streams", h.List)
	r.GET("/v1/streams/:id", h.Get)
	r.GET("/v1/streams/:id/stats", h.Stats)
	r.POST("/v1/streams/:id/start", h.Start)
	r.POST("/v1/streams/:id/stop", h.Stop)
	r.DELETE("/v1/streams/:id", h.Delete)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestStreamCreateAndGet(t *testing.T) {
	reg := registry.New()
	r := newStreamRouter(reg, &fakePublisher{})

	w := doJSON(t, r, http.MethodPost, "/v1/streams", dto.CreateStreamRequest{
		Name:       "lobby",
		URL:        "rtsp://cam/1",
		StreamType: "rtsp",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created dto.StreamResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "lobby", created.Name)
	assert.Equal(t, "stopped", created.Status)
	assert.Equal(t, 10, created.FPS) // default

	w = doJSON(t, r, http.MethodGet, "/v1/streams/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStreamCreateRejectsBadType(t *testing.T) {
	r := newStreamRouter(registry.New(), &fakePublisher{})

	w := doJSON(t, r, http.MethodPost, "/v1/streams", dto.CreateStreamRequest{
		Name:       "bad",
		URL:        "rtsp://cam/1",
		StreamType: "webcam",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStreamStartPublishesCommand(t *testing.T) {
	reg := registry.New()
	pub := &fakePublisher{}
	r := newStreamRouter(reg, pub)

	st := reg.Create("gate", "rtsp://cam/2", models.StreamTypeRTSP, 15)

	w := doJSON(t, r, http.MethodPost, "/v1/streams/"+st.ID.String()+"/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, pub.published, 1)

	var cmd map[string]any
	require.NoError(t, json.Unmarshal(pub.published[0], &cmd))
	assert.Equal(t, "start", cmd["action"])
	assert.Equal(t, st.ID.String(), cmd["stream_id"])
	assert.Equal(t, "rtsp://cam/2", cmd["url"])
	assert.Equal(t, float64(15), cmd["fps"])

	got, err := reg.Get(st.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StreamStatusStarting, got.Status)
}

func TestStreamStartConflictWhenRunning(t *testing.T) {
	reg := registry.New()
	r := newStreamRouter(reg, &fakePublisher{})

	st := reg.Create("gate", "rtsp://cam/2", models.StreamTypeRTSP, 15)
	require.NoError(t, reg.SetStatus(st.ID, models.StreamStatusRunning, ""))

	w := doJSON(t, r, http.MethodPost, "/v1/streams/"+st.ID.String()+"/start", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestStreamStopUnknown(t *testing.T) {
	r := newStreamRouter(registry.New(), &fakePublisher{})

	w := doJSON(t, r, http.MethodPost, "/v1/streams/"+uuid.NewString()+"/stop", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStreamDeleteStopsRunning(t *testing.T) {
	reg := registry.New()
	pub := &fakePublisher{}
	r := newStreamRouter(reg, pub)

	st := reg.Create("gate", "rtsp://cam/2", models.StreamTypeRTSP, 15)
	require.NoError(t, reg.SetStatus(st.ID, models.StreamStatusRunning, ""))

	w := doJSON(t, r, http.MethodDelete, "/v1/streams/"+st.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, pub.published, 1)

	var cmd map[string]any
	require.NoError(t, json.Unmarshal(pub.published[0], &cmd))
	assert.Equal(t, "stop", cmd["action"])

	_, err := reg.Get(st.ID)
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestStreamStats(t *testing.T) {
	reg := registry.New()
	r := newStreamRouter(reg, &fakePublisher{})

	st := reg.Create("gate", "rtsp://cam/2", models.StreamTypeRTSP, 15)
	require.NoError(t, reg.SetStats(st.ID, models.StreamStats{
		FrameID:      7,
		Outcome:      "continued",
		ActiveTracks: 495,
		Quality:      0.88,
		UpdatedAt:    time.Now().UTC(),
	}))

	w := doJSON(t, r, http.MethodGet, "/v1/streams/"+st.ID.String()+"/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.StreamStatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, uint64(7), resp.FrameID)
	assert.Equal(t, "continued", resp.Outcome)
	assert.Equal(t, 495, resp.ActiveTracks)
	assert.InDelta(t, 0.88, resp.Quality, 1e-9)
	assert.NotEmpty(t, resp.UpdatedAt)

	w = doJSON(t, r, http.MethodGet, "/v1/streams/"+uuid.NewString()+"/stats", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
