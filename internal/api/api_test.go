package api

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"hash/crc32"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/fpang/aop-fashion-mockup/internal/dataurl"
	"github.com/fpang/aop-fashion-mockup/internal/fusion"
	"github.com/fpang/aop-fashion-mockup/internal/metrics"
	"github.com/fpang/aop-fashion-mockup/internal/store"
	"github.com/fpang/aop-fashion-mockup/internal/studio"
)

func TestMain(m *testing.M) {
	metrics.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type fakeGenerator struct {
	result *fusion.Result
	err    error
	last   fusion.Request
}

func (f *fakeGenerator) Generate(_ context.Context, req fusion.Request) (*fusion.Result, error) {
	f.last = req
	return f.result, f.err
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newTestServer(t *testing.T, gen *fakeGenerator, cfg Config) http.Handler {
	t.Helper()
	if gen.result == nil && gen.err == nil {
		data := pngBytes(t)
		gen.result = &fusion.Result{
			Flat: dataurl.New("image/png", data),
			Worn: dataurl.New("image/png", data),
		}
	}
	cfg.Studio = studio.New(gen)
	return New(cfg).Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func patternURL(t *testing.T) string {
	return dataurl.New("image/png", pngBytes(t)).String()
}

func TestHealthAndGarments(t *testing.T) {
	h := newTestServer(t, &fakeGenerator{}, Config{Version: "v1"})

	rec := do(t, h, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
	if got := decode[map[string]string](t, rec); got["version"] != "v1" {
		t.Errorf("health = %v", got)
	}

	rec = do(t, h, http.MethodGet, "/api/garments", nil)
	got := decode[struct {
		Garments []string `json:"garments"`
		Default  string   `json:"default"`
	}](t, rec)
	if strings.Join(got.Garments, ",") != "T-shirt,Tank top,Polo Shirt,Hoodie" || got.Default != "T-shirt" {
		t.Errorf("garments = %+v", got)
	}
}

func TestCreateMockup_Success(t *testing.T) {
	gen := &fakeGenerator{}
	h := newTestServer(t, gen, Config{})

	rec := do(t, h, http.MethodPost, "/api/mockups", createMockupRequest{
		Pattern:     patternURL(t),
		Person:      patternURL(t),
		Garment:     "polo shirt",
		Description: "  urban editorial ",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	got := decode[mockupResponse](t, rec)
	if got.GarmentType != "Polo Shirt" || got.SubjectMode != "with_subject" || got.Style != "urban editorial" {
		t.Errorf("response = %+v", got)
	}
	if !strings.HasPrefix(got.FlatImageURL, "data:image/png;base64,") || !strings.HasPrefix(got.ModelImageURL, "data:image/png;base64,") {
		t.Error("response images are not data URLs")
	}
	if gen.last.Garment != "Polo Shirt" {
		t.Errorf("generator garment = %q", gen.last.Garment)
	}

	// History, single result, images, thumbnail, export.
	list := decode[struct {
		Mockups []mockupResponse `json:"mockups"`
	}](t, do(t, h, http.MethodGet, "/api/mockups", nil))
	if len(list.Mockups) != 1 || list.Mockups[0].ID != got.ID || list.Mockups[0].FlatImageURL != "" {
		t.Errorf("list = %+v", list)
	}

	if rec := do(t, h, http.MethodGet, "/api/mockups/"+got.ID, nil); rec.Code != http.StatusOK {
		t.Errorf("get status = %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, got.Links.Flat, nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Errorf("flat.png status = %d type = %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "garment-"+got.ID+".png") {
		t.Errorf("flat Content-Disposition = %q", cd)
	}
	rec = do(t, h, http.MethodGet, got.Links.Worn, nil)
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "editorial-"+got.ID+".png") {
		t.Errorf("worn Content-Disposition = %q", cd)
	}

	rec = do(t, h, http.MethodGet, got.Links.Thumbnail, nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/jpeg" {
		t.Errorf("thumbnail status = %d type = %s", rec.Code, rec.Header().Get("Content-Type"))
	}

	rec = do(t, h, http.MethodGet, "/api/export.zip", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/zip" {
		t.Errorf("export status = %d type = %s", rec.Code, rec.Header().Get("Content-Type"))
	}
}

func TestCreateMockup_InputErrors(t *testing.T) {
	h := newTestServer(t, &fakeGenerator{}, Config{})

	tests := []struct {
		name string
		body any
	}{
		{"missing pattern", createMockupRequest{Garment: "Hoodie"}},
		{"malformed pattern", createMockupRequest{Pattern: "data:image/png,notbase64", Garment: "Hoodie"}},
		{"unknown garment", createMockupRequest{Pattern: patternURL(t), Garment: "Kimono"}},
		{"bad json", "not an object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/mockups", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (body %s)", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestCreateMockup_GenerationFailure(t *testing.T) {
	h := newTestServer(t, &fakeGenerator{err: errors.New("upstream exploded")}, Config{})

	rec := do(t, h, http.MethodPost, "/api/mockups", createMockupRequest{Pattern: patternURL(t), Garment: "Hoodie"})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	got := decode[map[string]string](t, rec)
	if got["error"] != studio.FailureMessage {
		t.Errorf("error = %q, want the fixed message", got["error"])
	}

	state := decode[studio.GenerationState](t, do(t, h, http.MethodGet, "/api/state", nil))
	if state.IsGenerating || state.Error != studio.FailureMessage {
		t.Errorf("state = %+v", state)
	}

	list := decode[struct {
		Mockups []mockupResponse `json:"mockups"`
	}](t, do(t, h, http.MethodGet, "/api/mockups", nil))
	if len(list.Mockups) != 0 {
		t.Error("failed generation appeared in history")
	}
}

func TestNotFound(t *testing.T) {
	h := newTestServer(t, &fakeGenerator{}, Config{})

	for _, path := range []string{
		"/api/mockups/unknown",
		"/api/mockups/unknown/flat.png",
		"/api/mockups/unknown/thumbnail",
		"/api/export.zip",
		"/api/archive",
		"/api/nothing-here",
	} {
		if rec := do(t, h, http.MethodGet, path, nil); rec.Code != http.StatusNotFound {
			t.Errorf("%s status = %d, want 404", path, rec.Code)
		}
	}
}

func TestWrongMethodOnKnownRoute(t *testing.T) {
	frontend := fstest.MapFS{"index.html": {Data: []byte("<html>studio</html>")}}
	h := newTestServer(t, &fakeGenerator{}, Config{Frontend: frontend})

	for _, tc := range []struct{ method, path string }{
		{http.MethodDelete, "/api/mockups"},
		{http.MethodPut, "/api/state"},
		{http.MethodPost, "/api/health"},
	} {
		if rec := do(t, h, tc.method, tc.path, nil); rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s status = %d, want 405", tc.method, tc.path, rec.Code)
		}
	}
	if rec := do(t, h, http.MethodPost, "/api/nothing-here", nil); rec.Code != http.StatusNotFound {
		t.Errorf("POST unknown path status = %d, want 404", rec.Code)
	}
}

func TestCreateMockup_OversizedImage(t *testing.T) {
	gen := &fakeGenerator{}
	h := New(Config{Studio: studio.New(gen, studio.WithMaxInputDimension(2048))}).Handler()

	// PNG signature and an IHDR declaring 12000x12000 greyscale pixels.
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], 12000)
	binary.BigEndian.PutUint32(ihdr[4:8], 12000)
	ihdr[8] = 8
	chunk := append([]byte("IHDR"), ihdr...)
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	buf.Write(chunk)
	binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))

	rec := do(t, h, http.MethodPost, "/api/mockups", createMockupRequest{
		Pattern: dataurl.New("image/png", buf.Bytes()).String(),
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 (body %s)", rec.Code, rec.Body.String())
	}
	if gen.last.Pattern != nil {
		t.Error("model called for an oversized image")
	}
}

func TestArchiveRoutes(t *testing.T) {
	records := store.NewMemoryStore()
	records.PutRecord(context.Background(), &store.Record{ID: "r1", Garment: "Hoodie", FlatKey: "mockups/r1/flat.png"})
	h := newTestServer(t, &fakeGenerator{}, Config{Records: records})

	list := decode[struct {
		Mockups []archiveResponse `json:"mockups"`
	}](t, do(t, h, http.MethodGet, "/api/archive", nil))
	if len(list.Mockups) != 1 || list.Mockups[0].ID != "r1" {
		t.Errorf("archive list = %+v", list)
	}

	if rec := do(t, h, http.MethodGet, "/api/archive/r1", nil); rec.Code != http.StatusOK {
		t.Errorf("archive get status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/archive/zzz", nil); rec.Code != http.StatusNotFound {
		t.Errorf("archive missing status = %d", rec.Code)
	}
}

func TestOriginVerify(t *testing.T) {
	h := newTestServer(t, &fakeGenerator{}, Config{OriginVerifySecret: "s3cret"})

	if rec := do(t, h, http.MethodGet, "/api/health", nil); rec.Code != http.StatusForbidden {
		t.Errorf("without header status = %d, want 403", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("x-origin-verify", "s3cret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("with header status = %d, want 200", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	h := newTestServer(t, &fakeGenerator{}, Config{LocalCORS: true})

	req := httptest.NewRequest(http.MethodOptions, "/api/mockups", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Error("CORS origin not echoed")
	}
}

func TestFrontendFallback(t *testing.T) {
	frontend := fstest.MapFS{
		"index.html": {Data: []byte("<html>studio</html>")},
		"app.js":     {Data: []byte("console.log(1)")},
	}
	h := newTestServer(t, &fakeGenerator{}, Config{Frontend: frontend})

	rec := do(t, h, http.MethodGet, "/history", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "studio") {
		t.Errorf("SPA fallback status = %d body = %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("security headers missing")
	}

	rec = do(t, h, http.MethodGet, "/app.js", nil)
	if !strings.Contains(rec.Body.String(), "console.log") {
		t.Errorf("static file body = %q", rec.Body.String())
	}
}
