package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"remixai/config"
	"remixai/core/audio"
	"remixai/core/remix"
	"remixai/errs"
	"remixai/model"
	"remixai/store"

	"github.com/gorilla/mux"

	gaudio "github.com/go-audio/audio"
)

type noopSeparator struct{}

func (noopSeparator) Process(ctx context.Context, buf *gaudio.FloatBuffer) (map[string]*gaudio.FloatBuffer, error) {
	return map[string]*gaudio.FloatBuffer{}, nil
}

type noopGenerator struct{}

func (noopGenerator) Process(ctx context.Context, prompt string, durationSec int) (*gaudio.FloatBuffer, error) {
	return &gaudio.FloatBuffer{Format: &gaudio.Format{NumChannels: 1, SampleRate: 32000}}, nil
}

func newTestHandler(t *testing.T) *APIHandler {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		ProjectName:        "test-session",
		SampleRate:         32000,
		VocalGain:          0.85,
		AccompGain:         0.65,
		MinStemBytes:       1000,
		NormalizeCeiling:   0.9,
		GenerateDefaultSec: 30,
		GenerateMinSec:     5,
		GenerateMaxSec:     60,
		UploadDir:          filepath.Join(dir, "uploads"),
		OutputDir:          filepath.Join(dir, "output"),
		SnapshotPath:       filepath.Join(dir, "data", "project.json"),
		ModelWorkers:       1,
	}
	st := store.NewProjectStore(cfg.SnapshotPath, cfg.ProjectName, cfg.OutputDir)
	loader := audio.NewLoader("ffmpeg", cfg.SampleRate)
	p := remix.New(cfg, st, loader,
		func() (remix.Separator, error) { return noopSeparator{}, nil },
		func() (remix.Generator, error) { return noopGenerator{}, nil },
	)
	return NewAPIHandler(p, st, cfg)
}

func multipartUpload(t *testing.T, field, filename, payload string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte(payload)); err != nil {
		t.Fatal(err)
	}
	mw.Close()
	return &body, mw.FormDataContentType()
}

func TestSecurePath(t *testing.T) {
	root := "/srv/output"
	cases := []struct {
		requested string
		wantErr   bool
	}{
		{"track/mixes/final.wav", false},
		{"generated/accompaniment_abc.wav", false},
		{"../etc/passwd", true},
		{"..", true},
		{"track/../../secret.wav", true},
		{"/etc/passwd", true},
		{"track/../other/stem.wav", false},
	}
	for _, c := range cases {
		full, err := securePath(root, c.requested)
		if c.wantErr {
			if err == nil {
				t.Errorf("securePath(%q) accepted a path escaping the root: %q", c.requested, full)
			}
			continue
		}
		if err != nil {
			t.Errorf("securePath(%q) rejected a confined path: %v", c.requested, err)
			continue
		}
		if !strings.HasPrefix(full, root+string(filepath.Separator)) {
			t.Errorf("securePath(%q) = %q, not under root", c.requested, full)
		}
	}
}

func TestWriteErrorStatusMapping(t *testing.T) {
	cases := []struct {
		kind errs.Kind
		want int
	}{
		{errs.KindNotFound, http.StatusNotFound},
		{errs.KindInvalidInput, http.StatusBadRequest},
		{errs.KindBusy, http.StatusConflict},
		{errs.KindEmptyResult, http.StatusUnprocessableEntity},
		{errs.KindExternal, http.StatusBadGateway},
		{errs.KindPersistence, http.StatusInternalServerError},
		{errs.KindUnknown, http.StatusInternalServerError},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		writeError(rec, errs.E(c.kind, "test.op", "boom"))
		if rec.Code != c.want {
			t.Errorf("%v mapped to %d, want %d", c.kind, rec.Code, c.want)
		}
		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("non-JSON error body: %v", err)
		}
		if body["kind"] != c.kind.String() {
			t.Errorf("body kind = %q, want %q", body["kind"], c.kind.String())
		}
	}
}

func TestUploadRejectsDisallowedExtension(t *testing.T) {
	h := newTestHandler(t)
	body, contentType := multipartUpload(t, "audioFile", "malware.exe", "data")

	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.UploadSongHandler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUploadRejectsMissingFileField(t *testing.T) {
	h := newTestHandler(t)
	body, contentType := multipartUpload(t, "wrongField", "track.wav", "data")

	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.UploadSongHandler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUploadAcceptsAudioFile(t *testing.T) {
	h := newTestHandler(t)
	body, contentType := multipartUpload(t, "audioFile", "track.wav", strings.Repeat("x", 2000))

	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.UploadSongHandler(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("non-JSON body: %v", err)
	}
	if resp["fileName"] != "track.wav" || resp["format"] != "wav" {
		t.Fatalf("unexpected response: %v", resp)
	}
}

func TestSeparateRequiresFilename(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/api/separate", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.SeparateHandler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSeparateUnknownSongIs404(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/api/separate", strings.NewReader(`{"filename":"ghost.wav"}`))
	rec := httptest.NewRecorder()
	h.SeparateHandler(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestResolveTrackRefConfinesLiteralPaths(t *testing.T) {
	h := newTestHandler(t)
	stemPath := filepath.Join(h.cfg.OutputDir, "track", "stems", "vocals.wav")
	song := &model.Song{
		FilePath: filepath.Join(h.cfg.UploadDir, "track.wav"),
		Tracks:   []model.Track{{Kind: "vocals", FilePath: stemPath}},
	}

	if got, err := h.resolveTrackRef(song, "vocals"); err != nil || got != stemPath {
		t.Fatalf("kind label resolution = (%q, %v), want (%q, nil)", got, err, stemPath)
	}

	inside := filepath.Join(h.cfg.OutputDir, "generated", "accompaniment_abc.wav")
	if got, err := h.resolveTrackRef(song, inside); err != nil || got != inside {
		t.Fatalf("output-dir path rejected: (%q, %v)", got, err)
	}

	for _, ref := range []string{
		"/etc/passwd",
		filepath.Join(h.cfg.OutputDir, "..", "secret.wav"),
		filepath.Join(h.cfg.OutputDir, ".."),
	} {
		if got, err := h.resolveTrackRef(song, ref); !errs.Is(err, errs.KindInvalidInput) {
			t.Errorf("resolveTrackRef(%q) = (%q, %v), want invalid_input", ref, got, err)
		}
	}
}

func TestMixRejectsPathOutsideManagedDirs(t *testing.T) {
	h := newTestHandler(t)
	body, contentType := multipartUpload(t, "audioFile", "track.wav", strings.Repeat("x", 2000))
	upReq := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	upReq.Header.Set("Content-Type", contentType)
	upRec := httptest.NewRecorder()
	h.UploadSongHandler(upRec, upReq)
	if upRec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, want 201", upRec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/mix",
		strings.NewReader(`{"filename":"track.wav","trackA":"/etc/passwd","trackB":"/etc/hostname"}`))
	rec := httptest.NewRecorder()
	h.MixHandler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestMixRequiresFilename(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/api/mix", strings.NewReader(`{"trackA":"vocals","trackB":"generated"}`))
	rec := httptest.NewRecorder()
	h.MixHandler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestStatusWithoutCacheReportsUnknown(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/api/status/track.wav", nil)
	req = mux.SetURLVars(req, map[string]string{"filename": "track.wav"})
	rec := httptest.NewRecorder()
	h.StatusHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("non-JSON body: %v", err)
	}
	if body["status"] != "unknown" {
		t.Fatalf("status = %q, want unknown", body["status"])
	}
}

func TestListSongsEmptyProject(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/api/songs", nil)
	rec := httptest.NewRecorder()
	h.ListSongsHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Songs []interface{} `json:"songs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("non-JSON body: %v", err)
	}
	if len(body.Songs) != 0 {
		t.Fatalf("songs = %v, want empty", body.Songs)
	}
}
