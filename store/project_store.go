package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"remixai/errs"
	"remixai/logger"
	"remixai/model"
)

// ProjectStore owns the process-wide Project graph: the in-memory
// authoritative state plus its durable snapshot. All mutations go through
// one writer lock; reads may run concurrently and never observe a
// partially appended track list because lookups return copies.
type ProjectStore struct {
	mu      sync.RWMutex
	project *model.Project
	index   map[string]*model.Song // keyed by source basename
	path    string                 // snapshot file
}

// NewProjectStore creates a store around an empty project. Call Load to
// restore a previous snapshot.
func NewProjectStore(snapshotPath, projectName, outputDir string) *ProjectStore {
	return &ProjectStore{
		project: model.NewProject(projectName, outputDir),
		index:   make(map[string]*model.Song),
		path:    snapshotPath,
	}
}

// AddSong appends a song. Basenames are unique within the project;
// a duplicate is rejected and the collection is left unchanged. Upsert is
// deliberately not offered so track history stays append-only.
func (s *ProjectStore) AddSong(song *model.Song) error {
	const op = "store.add_song"

	key := song.Key()
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.index[key]; exists {
		return errs.E(errs.KindInvalidInput, op, fmt.Sprintf("song %q already exists", key))
	}
	s.project.Songs = append(s.project.Songs, song)
	s.index[key] = song
	return nil
}

// FindSongByFilename resolves a song by its source basename. The returned
// song is a copy; mutating it does not affect the store.
func (s *ProjectStore) FindSongByFilename(name string) (*model.Song, error) {
	const op = "store.find_song"

	s.mu.RLock()
	defer s.mu.RUnlock()

	song, ok := s.index[filepath.Base(name)]
	if !ok {
		return nil, errs.E(errs.KindNotFound, op, fmt.Sprintf("song %q not found", name))
	}
	return cloneSong(song), nil
}

// ListSongs returns read-only summaries in insertion order.
func (s *ProjectStore) ListSongs() []model.SongSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.SongSummary, 0, len(s.project.Songs))
	for _, song := range s.project.Songs {
		out = append(out, model.SongSummary{
			Title:      song.Title,
			FileName:   song.Key(),
			Format:     song.Format,
			Size:       song.Size,
			UploadedAt: song.UploadedAt,
			TrackCount: len(song.Tracks),
		})
	}
	return out
}

// AppendTracks atomically appends derived tracks to a song. Every track
// file must exist and be non-empty at this moment; enforcement happens
// here, never after attachment.
func (s *ProjectStore) AppendTracks(songKey string, tracks []model.Track) error {
	const op = "store.append_tracks"

	for _, tr := range tracks {
		info, err := os.Stat(tr.FilePath)
		if err != nil {
			return errs.Wrap(errs.KindNotFound, op, fmt.Sprintf("track file %s", tr.FilePath), err)
		}
		if info.Size() == 0 {
			return errs.E(errs.KindInvalidInput, op, fmt.Sprintf("track file %s is empty", tr.FilePath))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	song, ok := s.index[filepath.Base(songKey)]
	if !ok {
		return errs.E(errs.KindNotFound, op, fmt.Sprintf("song %q not found", songKey))
	}
	song.Tracks = append(song.Tracks, tracks...)
	return nil
}

// Project returns a deep copy of the current project graph.
func (s *ProjectStore) Project() *model.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneProject(s.project)
}

// Save writes the snapshot atomically: encode, write a temp file, rename
// over the target. A crash mid-write never leaves a half-written snapshot.
func (s *ProjectStore) Save() error {
	const op = "store.save"

	s.mu.RLock()
	data, err := Encode(s.project)
	s.mu.RUnlock()
	if err != nil {
		return errs.Wrap(errs.KindPersistence, op, "failed to encode snapshot", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errs.Wrap(errs.KindPersistence, op, "failed to create snapshot directory", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errs.Wrap(errs.KindPersistence, op, "failed to write snapshot", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return errs.Wrap(errs.KindPersistence, op, "failed to replace snapshot", err)
	}
	return nil
}

// Load restores the project from the snapshot file. A missing file means a
// fresh project; a malformed one is logged and replaced by a fresh project.
// Load never blocks startup.
func (s *ProjectStore) Load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		logger.Info("no snapshot found, starting with an empty project",
			logger.String("path", s.path))
		return nil
	}
	if err != nil {
		logger.Warn("snapshot unreadable, starting with an empty project",
			logger.String("path", s.path),
			logger.ErrorField(err))
		return nil
	}

	project, err := Decode(data)
	if err != nil {
		logger.Warn("snapshot malformed, starting with an empty project",
			logger.String("path", s.path),
			logger.ErrorField(err))
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.project = project
	s.index = make(map[string]*model.Song, len(project.Songs))
	for _, song := range project.Songs {
		s.index[song.Key()] = song
	}
	logger.Info("project restored from snapshot",
		logger.String("path", s.path),
		logger.Int("songs", len(project.Songs)))
	return nil
}

func cloneSong(song *model.Song) *model.Song {
	cp := *song
	cp.Tracks = make([]model.Track, len(song.Tracks))
	copy(cp.Tracks, song.Tracks)
	cp.Meta = make(map[string]string, len(song.Meta))
	for k, v := range song.Meta {
		cp.Meta[k] = v
	}
	return &cp
}

func cloneProject(p *model.Project) *model.Project {
	cp := *p
	cp.Songs = make([]*model.Song, len(p.Songs))
	for i, song := range p.Songs {
		cp.Songs[i] = cloneSong(song)
	}
	return &cp
}
