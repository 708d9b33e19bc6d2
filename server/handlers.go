package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"remixai/cache"
	"remixai/config"
	"remixai/core/audio"
	"remixai/core/remix"
	"remixai/errs"
	"remixai/logger"
	"remixai/model"
	"remixai/store"

	"github.com/gorilla/mux"
)

// maxUploadBytes caps a single audio upload.
const maxUploadBytes = 100 << 20 // 100MB

// APIHandler serves the remix API: uploads, pipeline operations, listings
// and downloads.
type APIHandler struct {
	pipeline *remix.Pipeline
	store    *store.ProjectStore
	cfg      *config.Config
}

// NewAPIHandler creates the API handler.
func NewAPIHandler(pipeline *remix.Pipeline, st *store.ProjectStore, cfg *config.Config) *APIHandler {
	return &APIHandler{
		pipeline: pipeline,
		store:    st,
		cfg:      cfg,
	}
}

// writeJSON writes v as a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", logger.ErrorField(err))
	}
}

// writeError maps the error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	var status int
	switch errs.KindOf(err) {
	case errs.KindNotFound:
		status = http.StatusNotFound
	case errs.KindInvalidInput:
		status = http.StatusBadRequest
	case errs.KindBusy:
		status = http.StatusConflict
	case errs.KindEmptyResult:
		status = http.StatusUnprocessableEntity
	case errs.KindExternal:
		status = http.StatusBadGateway
	default:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"kind":  errs.KindOf(err).String(),
	})
}

// UploadSongHandler accepts a multipart audio upload and creates its Song.
func (h *APIHandler) UploadSongHandler(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > maxUploadBytes {
		writeError(w, errs.E(errs.KindInvalidInput, "server.upload",
			fmt.Sprintf("upload exceeds %d MB", maxUploadBytes>>20)))
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		logger.Warn("failed to parse upload form", logger.ErrorField(err))
		writeError(w, errs.Wrap(errs.KindInvalidInput, "server.upload", "malformed upload form", err))
		return
	}

	file, header, err := r.FormFile("audioFile")
	if err != nil {
		writeError(w, errs.Wrap(errs.KindInvalidInput, "server.upload", "missing audioFile field", err))
		return
	}
	defer file.Close()

	song, err := h.pipeline.Ingest(header.Filename, file)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"fileName":   song.Key(),
		"title":      song.Title,
		"format":     song.Format,
		"size":       song.Size,
		"uploadedAt": song.UploadedAt,
	})
}

// ListSongsHandler returns summaries of every song in the project.
func (h *APIHandler) ListSongsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"songs": h.store.ListSongs(),
	})
}

type separateRequest struct {
	Filename string `json:"filename"`
}

// SeparateHandler runs stem separation for a song.
func (h *APIHandler) SeparateHandler(w http.ResponseWriter, r *http.Request) {
	var req separateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.Wrap(errs.KindInvalidInput, "server.separate", "malformed request body", err))
		return
	}
	if req.Filename == "" {
		writeError(w, errs.E(errs.KindInvalidInput, "server.separate", "filename is required"))
		return
	}

	tracks, err := h.pipeline.Separate(r.Context(), req.Filename)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"stems":  tracks,
	})
}

type generateRequest struct {
	Filename string `json:"filename,omitempty"` // attach to this song when set
	Style    string `json:"style"`
	Duration int    `json:"duration,omitempty"`
}

// GenerateHandler synthesizes an accompaniment track, optionally attaching
// it to a song.
func (h *APIHandler) GenerateHandler(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.Wrap(errs.KindInvalidInput, "server.generate", "malformed request body", err))
		return
	}

	track, err := h.pipeline.Generate(r.Context(), req.Style, req.Duration)
	if err != nil {
		writeError(w, err)
		return
	}

	attached := false
	if req.Filename != "" {
		if err := h.pipeline.AttachGenerated(req.Filename, track); err != nil {
			writeError(w, err)
			return
		}
		attached = true
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"track":    track,
		"attached": attached,
	})
}

type mixRequest struct {
	Filename string `json:"filename"`
	TrackA   string `json:"trackA"` // track kind or file path
	TrackB   string `json:"trackB"`
	Output   string `json:"output,omitempty"`
}

// MixHandler combines two of a song's tracks into a final mix.
func (h *APIHandler) MixHandler(w http.ResponseWriter, r *http.Request) {
	var req mixRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.Wrap(errs.KindInvalidInput, "server.mix", "malformed request body", err))
		return
	}
	if req.Filename == "" {
		writeError(w, errs.E(errs.KindInvalidInput, "server.mix", "filename is required"))
		return
	}

	song, err := h.store.FindSongByFilename(req.Filename)
	if err != nil {
		writeError(w, err)
		return
	}

	inputs := make([]string, 0, 2)
	for _, ref := range []string{req.TrackA, req.TrackB} {
		if ref == "" {
			continue
		}
		path, err := h.resolveTrackRef(song, ref)
		if err != nil {
			writeError(w, err)
			return
		}
		inputs = append(inputs, path)
	}

	track, err := h.pipeline.Mix(r.Context(), song.Key(), inputs, req.Output)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"track":  track,
	})
}

// resolveTrackRef interprets a track reference as a kind label first
// ("vocals", "generated", ...), falling back to a literal path. Literal
// paths are confined to the upload and output directories; anything else
// the process could read must not be mixable into a downloadable file.
func (h *APIHandler) resolveTrackRef(song *model.Song, ref string) (string, error) {
	if tr := song.TrackByKind(ref); tr != nil {
		return tr.FilePath, nil
	}
	for _, root := range []string{h.cfg.OutputDir, h.cfg.UploadDir} {
		if underDir(root, ref) {
			return ref, nil
		}
	}
	return "", errs.E(errs.KindInvalidInput, "server.mix",
		fmt.Sprintf("unknown track reference %q", ref))
}

// underDir reports whether path stays inside root.
func underDir(root, path string) bool {
	rel, err := filepath.Rel(root, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !filepath.IsAbs(rel) &&
		!strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// StatusHandler reports the last recorded job state for a song.
func (h *APIHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	filename := vars["filename"]
	op := r.URL.Query().Get("op")
	if op == "" {
		op = "separate"
	}

	rec, err := cache.GetJobStatus(r.Context(), filename, op)
	if err != nil {
		writeError(w, err)
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "unknown"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// DownloadHandler streams a produced track. The requested path is confined
// to the output directory; traversal outside it is rejected.
func (h *APIHandler) DownloadHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	requested := vars["path"]

	full, err := securePath(h.cfg.OutputDir, requested)
	if err != nil {
		writeError(w, err)
		return
	}

	if !audio.AllowedExtension(full) {
		writeError(w, errs.E(errs.KindInvalidInput, "server.download", "not an audio file"))
		return
	}

	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", filepath.Base(full)))
	http.ServeFile(w, r, full)
}

// securePath joins a user-supplied relative path onto root and rejects any
// result escaping root.
func securePath(root, requested string) (string, error) {
	const op = "server.download"

	cleaned := filepath.Clean(filepath.FromSlash(requested))
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", errs.E(errs.KindInvalidInput, op, "path escapes the output directory")
	}

	full := filepath.Join(root, cleaned)
	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errs.E(errs.KindInvalidInput, op, "path escapes the output directory")
	}
	return full, nil
}
