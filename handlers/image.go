package handlers

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"
	"log"
	"net/http"
	"os"
	"path"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gorilla/mux"
	"github.com/spf13/afero"
	"golang.org/x/image/draw"
)

const maxPosterBytes = 10 << 20

// Poster sizes TMDB serves.
var posterSizes = map[string]bool{
	"w92": true, "w154": true, "w185": true, "w342": true, "w500": true, "w780": true, "original": true,
}

var posterFileRE = regexp.MustCompile(`^[A-Za-z0-9_-]+\.(jpg|jpeg|png|webp)$`)

// ImageHandler proxies TMDB posters through an on-disk cache.
type ImageHandler struct {
	fs         afero.Fs
	baseURL    string
	httpc      *http.Client
	mu         sync.Mutex
	inProgress map[string]chan struct{} // Prevent duplicate fetches
}

// NewImageHandler caches posters fetched from baseURL (e.g.
// https://image.tmdb.org/t/p) in fs.
func NewImageHandler(fs afero.Fs, baseURL string) *ImageHandler {
	if err := fs.MkdirAll("images", 0o755); err != nil {
		log.Printf("[ImageProxy] Warning: could not create cache dir: %v", err)
	}
	return &ImageHandler{
		fs:      fs,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc: &http.Client{
			Timeout: 30 * time.Second,
		},
		inProgress: make(map[string]chan struct{}),
	}
}

// Proxy serves /images/{size}/{file}. An optional ?w= downscales to that
// width and re-encodes as JPEG.
func (h *ImageHandler) Proxy(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	size, file := vars["size"], vars["file"]
	if !posterSizes[size] || !posterFileRE.MatchString(file) {
		http.Error(w, "unknown poster", http.StatusNotFound)
		return
	}

	targetWidth := 0
	if wStr := r.URL.Query().Get("w"); wStr != "" {
		if tw, err := strconv.Atoi(wStr); err == nil && tw > 0 && tw <= 2000 {
			targetWidth = tw
		}
	}

	cachePath := path.Join("images", size, file)
	if targetWidth > 0 {
		cachePath = path.Join("images", size, fmt.Sprintf("%d-%s.jpg", targetWidth, strings.TrimSuffix(file, path.Ext(file))))
	}

	if data, err := afero.ReadFile(h.fs, cachePath); err == nil {
		h.serve(w, data, "HIT")
		return
	}

	h.mu.Lock()
	if ch, exists := h.inProgress[cachePath]; exists {
		h.mu.Unlock()
		<-ch
		if data, err := afero.ReadFile(h.fs, cachePath); err == nil {
			h.serve(w, data, "HIT")
			return
		}
		http.Error(w, "Failed to load image", http.StatusBadGateway)
		return
	}
	ch := make(chan struct{})
	h.inProgress[cachePath] = ch
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.inProgress, cachePath)
		close(ch)
		h.mu.Unlock()
	}()

	data, err := h.fetch(r, size, file)
	if err != nil {
		log.Printf("[ImageProxy] %s/%s: %v", size, file, err)
		http.Error(w, "Failed to fetch image", http.StatusBadGateway)
		return
	}

	if targetWidth > 0 {
		if resized, err := resizeJPEG(data, targetWidth); err == nil {
			data = resized
		} else {
			log.Printf("[ImageProxy] resize %s/%s: %v", size, file, err)
		}
	}

	if err := h.store(cachePath, data); err != nil {
		log.Printf("[ImageProxy] Cache write error: %v", err)
		h.serve(w, data, "MISS-NOCACHE")
		return
	}
	h.serve(w, data, "MISS")
}

func (h *ImageHandler) fetch(r *http.Request, size, file string) ([]byte, error) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, h.baseURL+"/"+size+"/"+file, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source returned %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPosterBytes))
	if err != nil {
		return nil, err
	}
	if mt := mimetype.Detect(data); !strings.HasPrefix(mt.String(), "image/") {
		return nil, fmt.Errorf("source sent %s, not an image", mt.String())
	}
	return data, nil
}

func (h *ImageHandler) store(cachePath string, data []byte) error {
	if err := h.fs.MkdirAll(path.Dir(cachePath), 0o755); err != nil {
		return err
	}
	tmpPath := cachePath + ".tmp"
	if err := afero.WriteFile(h.fs, tmpPath, data, 0o644); err != nil {
		h.fs.Remove(tmpPath)
		return err
	}
	// Atomic rename
	if err := h.fs.Rename(tmpPath, cachePath); err != nil {
		h.fs.Remove(tmpPath)
		return err
	}
	return nil
}

func (h *ImageHandler) serve(w http.ResponseWriter, data []byte, cacheState string) {
	w.Header().Set("Content-Type", mimetype.Detect(data).String())
	w.Header().Set("Cache-Control", "public, max-age=2592000") // 30 days
	w.Header().Set("X-Cache", cacheState)
	w.Write(data)
}

// resizeJPEG downscales to width when the source is wider.
func resizeJPEG(data []byte, width int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	if width < bounds.Dx() {
		height := int(float64(bounds.Dy()) * float64(width) / float64(bounds.Dx()))
		dst := image.NewRGBA(image.Rect(0, 0, width, height))
		// CatmullRom for high quality downscaling
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		img = dst
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ClearCache removes all cached posters.
func (h *ImageHandler) ClearCache() error {
	if err := h.fs.RemoveAll("images"); err != nil {
		return err
	}
	return h.fs.MkdirAll("images", 0o755)
}

// CacheStats returns cache statistics
func (h *ImageHandler) CacheStats() (count int, sizeBytes int64) {
	afero.Walk(h.fs, "images", func(_ string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || strings.HasSuffix(info.Name(), ".tmp") {
			return nil
		}
		count++
		sizeBytes += info.Size()
		return nil
	})
	return
}
