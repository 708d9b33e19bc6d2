package model

import (
	"path/filepath"
	"time"
)

// Track is one derived audio asset belonging to a Song: a separated stem,
// a generated accompaniment or a final mix. Tracks are immutable once
// created; replacing one means appending a new Track.
type Track struct {
	Kind     string  `json:"kind"` // e.g. "vocals", "drums", "generated", "mix"
	FilePath string  `json:"filePath"`
	Duration float32 `json:"duration,omitempty"` // seconds, 0 when unknown
}

// Song is one uploaded audio asset plus the tracks derived from it.
// The basename of FilePath is the lookup key inside a Project and must be
// unique there. A Song is only ever mutated by appending Tracks.
type Song struct {
	Title      string            `json:"title"`
	FilePath   string            `json:"filePath"`
	Format     string            `json:"format"` // file extension without the dot
	Size       int64             `json:"size"`   // bytes
	UploadedAt time.Time         `json:"uploadedAt"`
	Tracks     []Track           `json:"tracks"`
	Meta       map[string]string `json:"meta,omitempty"`
}

// Key returns the basename used to resolve this song within a project.
func (s *Song) Key() string {
	return filepath.Base(s.FilePath)
}

// AddTrack appends a derived track. Insertion order is creation order.
func (s *Song) AddTrack(t Track) {
	s.Tracks = append(s.Tracks, t)
}

// TrackByKind returns the most recently appended track of the given kind,
// or nil if the song has none.
func (s *Song) TrackByKind(kind string) *Track {
	for i := len(s.Tracks) - 1; i >= 0; i-- {
		if s.Tracks[i].Kind == kind {
			return &s.Tracks[i]
		}
	}
	return nil
}

// Project is the root aggregate: one working session's songs.
// Songs are ordered by insertion and owned exclusively by the project.
type Project struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	OutputDir string    `json:"outputDir"`
	Songs     []*Song   `json:"songs"`
}

// NewProject creates an empty project.
func NewProject(name, outputDir string) *Project {
	return &Project{
		Name:      name,
		CreatedAt: time.Now(),
		OutputDir: outputDir,
		Songs:     []*Song{},
	}
}

// SongSummary is the read-only record returned by song listings.
type SongSummary struct {
	Title      string    `json:"title"`
	FileName   string    `json:"fileName"`
	Format     string    `json:"format"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploadedAt"`
	TrackCount int       `json:"trackCount"`
}
