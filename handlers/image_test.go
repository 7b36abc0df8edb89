package handlers

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gorilla/mux"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newImageRouter(t *testing.T, upstream http.HandlerFunc) (*mux.Router, *ImageHandler, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		upstream(w, r)
	}))
	t.Cleanup(srv.Close)

	handler := NewImageHandler(afero.NewMemMapFs(), srv.URL)
	r := mux.NewRouter()
	r.HandleFunc("/images/{size}/{file}", handler.Proxy).Methods(http.MethodGet)
	return r, handler, &hits
}

func TestImageProxyCachesPoster(t *testing.T) {
	poster := testPNG(t, 40, 60)
	r, handler, hits := newImageRouter(t, func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/w500/abc123.png", req.URL.Path)
		w.Write(poster)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/images/w500/abc123.png", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, poster, rec.Body.Bytes())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/images/w500/abc123.png", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))

	count, size := handler.CacheStats()
	assert.Equal(t, 1, count)
	assert.Equal(t, int64(len(poster)), size)

	require.NoError(t, handler.ClearCache())
	count, _ = handler.CacheStats()
	assert.Zero(t, count)
}

func TestImageProxyResizes(t *testing.T) {
	r, _, _ := newImageRouter(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write(testPNG(t, 200, 300))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/images/original/big.png?w=50", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Width)
	assert.Equal(t, 75, cfg.Height)
}

func TestImageProxyRejectsNonImages(t *testing.T) {
	r, handler, _ := newImageRouter(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("<html><body>rate limited</body></html>"))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/images/w500/fake.jpg", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	count, _ := handler.CacheStats()
	assert.Zero(t, count)
}

func TestImageProxyUpstreamError(t *testing.T) {
	r, _, _ := newImageRouter(t, func(w http.ResponseWriter, req *http.Request) {
		http.NotFound(w, req)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/images/w500/missing.jpg", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestImageProxyValidatesPath(t *testing.T) {
	r, _, hits := newImageRouter(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write(testPNG(t, 4, 4))
	})

	for _, target := range []string{
		"/images/w9999/abc.jpg",
		"/images/w500/abc.exe",
		"/images/w500/a%20b.jpg",
	} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
	}
	assert.Zero(t, atomic.LoadInt32(hits))
}
