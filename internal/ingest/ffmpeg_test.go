package ingest

import (
	"bufio"
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jpegBlob(payload ...byte) []byte {
	blob := []byte{0xFF, 0xD8}
	blob = append(blob, payload...)
	blob = append(blob, 0xFF, 0xD9)
	return blob
}

func TestReadJPEGFrames(t *testing.T) {
	var stream bytes.Buffer
	// Leading garbage before the first frame marker.
	stream.Write([]byte{0x00, 0x13, 0x37})
	first := jpegBlob(0x01, 0x02, 0x03)
	second := jpegBlob(0x0A, 0x0B)
	stream.Write(first)
	stream.Write(second)

	var frames [][]byte
	err := readJPEGFrames(context.Background(), &stream, func(data []byte) error {
		frames = append(frames, data)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, first, frames[0])
	assert.Equal(t, second, frames[1])
}

func TestReadJPEGFramesTruncatedTail(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(jpegBlob(0x42))
	// A frame that never reaches its end marker.
	stream.Write([]byte{0xFF, 0xD8, 0x10, 0x20})

	var frames int
	err := readJPEGFrames(context.Background(), &stream, func([]byte) error {
		frames++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, frames)
}

func TestFindJPEGStartSkipsPadding(t *testing.T) {
	r := bufio.NewReader(bytes.NewReader([]byte{0xFF, 0x00, 0xAA, 0xFF, 0xD8, 0x77}))
	require.NoError(t, findJPEGStart(r))

	next, err := r.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(0x77), next)
}

func TestReadJPEGFramesCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := readJPEGFrames(ctx, bytes.NewReader(jpegBlob(0x01)), func([]byte) error {
		t.Fatal("callback should not run after cancel")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
