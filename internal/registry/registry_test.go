package registry

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/artrack/internal/models"
)

func TestRegistryCRUD(t *testing.T) {
	r := New()

	s := r.Create("lobby", "rtsp://cam/1", models.StreamTypeRTSP, 10)
	require.NotEqual(t, uuid.Nil, s.ID)
	assert.Equal(t, models.StreamStatusStopped, s.Status)

	got, err := r.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, "lobby", got.Name)

	_, err = r.Get(uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, r.Delete(s.ID))
	_, err = r.Get(s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, r.Delete(s.ID), ErrNotFound)
}

func TestRegistryListOrdered(t *testing.T) {
	r := New()
	a := r.Create("a", "rtsp://cam/a", models.StreamTypeRTSP, 10)
	b := r.Create("b", "http://cam/b.mjpg", models.StreamTypeHTTP, 5)

	list := r.List()
	require.Len(t, list, 2)
	ids := []uuid.UUID{list[0].ID, list[1].ID}
	assert.Contains(t, ids, a.ID)
	assert.Contains(t, ids, b.ID)
	assert.False(t, list[1].CreatedAt.Before(list[0].CreatedAt))
}

func TestRegistryStatus(t *testing.T) {
	r := New()
	s := r.Create("yard", "file:///video.mp4", models.StreamTypeFile, 10)

	require.NoError(t, r.SetStatus(s.ID, models.StreamStatusError, "ffmpeg exited"))
	got, err := r.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StreamStatusError, got.Status)
	assert.Equal(t, "ffmpeg exited", got.ErrorMessage)

	assert.ErrorIs(t, r.SetStatus(uuid.New(), models.StreamStatusRunning, ""), ErrNotFound)
}

func TestRegistryStats(t *testing.T) {
	r := New()
	s := r.Create("gate", "rtsp://cam/2", models.StreamTypeRTSP, 15)

	_, err := r.Stats(uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	// Stats default to zero before the first worker report.
	stats, err := r.Stats(s.ID)
	require.NoError(t, err)
	assert.Zero(t, stats.ActiveTracks)

	now := time.Now().UTC()
	require.NoError(t, r.SetStats(s.ID, models.StreamStats{
		FrameID:      42,
		Outcome:      "continued",
		ActiveTracks: 480,
		Quality:      0.93,
		UpdatedAt:    now,
	}))

	stats, err = r.Stats(s.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), stats.FrameID)
	assert.Equal(t, 480, stats.ActiveTracks)
	assert.InDelta(t, 0.93, stats.Quality, 1e-9)
}
