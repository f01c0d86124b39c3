package httpfetcher

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpticalFlyer/tilecore/tilespec"
)

type recordingSink struct {
	mu       sync.Mutex
	finished []tilespec.Spec
	errored  []tilespec.Spec
	done     chan struct{}
}

func newRecordingSink(want int) *recordingSink {
	return &recordingSink{done: make(chan struct{}, want)}
}

func (s *recordingSink) TileFinished(spec tilespec.Spec, data []byte, format string) {
	s.mu.Lock()
	s.finished = append(s.finished, spec)
	s.mu.Unlock()
	s.done <- struct{}{}
}

func (s *recordingSink) TileError(spec tilespec.Spec, errMsg string) {
	s.mu.Lock()
	s.errored = append(s.errored, spec)
	s.mu.Unlock()
	s.done <- struct{}{}
}

func pngTile(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestFetchOneTileDeliversFinished(t *testing.T) {
	tile := pngTile(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tile)
	}))
	defer srv.Close()

	sink := newRecordingSink(1)
	f := New(Config{URLTemplate: srv.URL + "/{z}/{x}/{y}.png", Workers: 2}, sink)
	defer f.Close()

	spec := tilespec.New("osm", 1, 3, 1, 1, -1)
	f.UpdateTileRequests(tilespec.NewSet(spec), tilespec.NewSet())

	select {
	case <-sink.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tile fetch")
	}

	assert.Equal(t, []tilespec.Spec{spec}, sink.finished)
}

func TestFetchErrorsOnNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	sink := newRecordingSink(1)
	f := New(Config{URLTemplate: srv.URL + "/{z}/{x}/{y}.png", Workers: 1}, sink)
	defer f.Close()

	spec := tilespec.New("osm", 1, 3, 1, 1, -1)
	f.UpdateTileRequests(tilespec.NewSet(spec), tilespec.NewSet())

	select {
	case <-sink.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tile error")
	}

	assert.Equal(t, []tilespec.Spec{spec}, sink.errored)
}

func TestQuadKeyAddressing(t *testing.T) {
	assert.Equal(t, "0", quadKey(1, 0, 0))
	assert.Equal(t, "3", quadKey(1, 1, 1))
	assert.Equal(t, "33", quadKey(2, 3, 3))
	assert.Equal(t, "03", quadKey(2, 1, 1))
}
