package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/cwbudde/pixelsum/internal/bench"
	"github.com/cwbudde/pixelsum/internal/pixelsum"
)

// writeJSON encodes v with the given status code
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// intParam reads an integer query parameter, returning def when absent.
func intParam(r *http.Request, name string, def int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", name, s)
	}
	return v, nil
}

// requireInts reads integer query parameters that must all be present.
func requireInts(r *http.Request, names ...string) ([]int, error) {
	out := make([]int, len(names))
	for i, name := range names {
		if r.URL.Query().Get(name) == "" {
			return nil, fmt.Errorf("%s is required", name)
		}
		v, err := intParam(r, name, 0)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// bufferRequest is the JSON form of POST /api/v1/buffers.
type bufferRequest struct {
	Pattern string `json:"pattern"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Seed    int64  `json:"seed"`
}

var errTooLarge = errors.New("buffer exceeds the maximum size")

// readBuffer extracts a pixel buffer from a request body. Raw bytes
// (application/octet-stream) need width and height query parameters;
// image/* bodies are decoded and converted to gray; anything else is a
// JSON pattern request.
func readBuffer(r *http.Request) (pix []uint8, width, height int, err error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch {
	case mediaType == "application/octet-stream":
		dims, err := requireInts(r, "width", "height")
		if err != nil {
			return nil, 0, 0, err
		}
		pix, err = io.ReadAll(io.LimitReader(r.Body, pixelsum.MaxPixels+1))
		if err != nil {
			return nil, 0, 0, fmt.Errorf("failed to read body: %w", err)
		}
		if len(pix) > pixelsum.MaxPixels {
			return nil, 0, 0, errTooLarge
		}
		return pix, dims[0], dims[1], nil

	case strings.HasPrefix(mediaType, "image/"):
		// check the header before decoding allocates the pixels
		var head bytes.Buffer
		cfg, _, err := image.DecodeConfig(io.TeeReader(r.Body, &head))
		if err != nil {
			return nil, 0, 0, fmt.Errorf("failed to decode image: %w", err)
		}
		if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > pixelsum.MaxPixels/cfg.Height {
			return nil, 0, 0, errTooLarge
		}
		img, _, err := image.Decode(io.MultiReader(&head, r.Body))
		if err != nil {
			return nil, 0, 0, fmt.Errorf("failed to decode image: %w", err)
		}
		pix, width, height = bench.FromImage(img)
		return pix, width, height, nil
	}

	var req bufferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, 0, 0, fmt.Errorf("invalid JSON: %w", err)
	}
	pix, err = bench.Generate(req.Pattern, req.Width, req.Height, req.Seed)
	if err != nil {
		return nil, 0, 0, err
	}
	return pix, req.Width, req.Height, nil
}
