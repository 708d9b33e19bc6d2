package remix

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"remixai/cache"
	"remixai/config"
	"remixai/core/audio"
	"remixai/errs"
	"remixai/logger"
	"remixai/model"
	"remixai/storage"
	"remixai/store"

	gaudio "github.com/go-audio/audio"
	"github.com/google/uuid"
)

// Pipeline sequences separation, generation and mixing over the project
// store. Model capabilities are constructed lazily on first use and held
// for the process lifetime; model invocations run on a bounded set of
// worker slots so the serving layer stays responsive.
//
// Concurrency policy for separation: at most one separation per song; a
// second request for the same song while one is running is rejected with
// a Busy error rather than queued.
type Pipeline struct {
	cfg    *config.Config
	store  *store.ProjectStore
	loader *audio.Loader

	newSeparator func() (Separator, error)
	newGenerator func() (Generator, error)

	sepOnce sync.Once
	sep     Separator
	sepErr  error

	genOnce sync.Once
	gen     Generator
	genErr  error

	slots chan struct{}

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// New creates a pipeline. The separator/generator factories run at most
// once each, on first use, behind the pipeline's own guard.
func New(
	cfg *config.Config,
	st *store.ProjectStore,
	loader *audio.Loader,
	newSeparator func() (Separator, error),
	newGenerator func() (Generator, error),
) *Pipeline {
	workers := cfg.ModelWorkers
	if workers <= 0 {
		workers = 1
	}
	return &Pipeline{
		cfg:          cfg,
		store:        st,
		loader:       loader,
		newSeparator: newSeparator,
		newGenerator: newGenerator,
		slots:        make(chan struct{}, workers),
		inFlight:     make(map[string]struct{}),
	}
}

// Ingest validates and stores an uploaded file, creating its Song.
// This is the only place a Song is created.
func (p *Pipeline) Ingest(filename string, data io.Reader) (*model.Song, error) {
	const op = "pipeline.ingest"

	name := filepath.Base(strings.TrimSpace(filename))
	if name == "" || name == "." {
		return nil, errs.E(errs.KindInvalidInput, op, "empty filename")
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return nil, errs.E(errs.KindInvalidInput, op, "filename has no extension")
	}
	if !audio.AllowedExtension(name) {
		return nil, errs.E(errs.KindInvalidInput, op, fmt.Sprintf("extension %s not allowed (use mp3, wav, flac, ogg)", ext))
	}

	if err := os.MkdirAll(p.cfg.UploadDir, 0755); err != nil {
		return nil, errs.Wrap(errs.KindPersistence, op, "failed to create upload directory", err)
	}
	dst := filepath.Join(p.cfg.UploadDir, name)

	// Exclusive create: dst belongs to an existing song when it is already
	// present, so it must never be truncated. The os.Remove calls below are
	// safe because they only ever see a file this call created.
	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, errs.E(errs.KindInvalidInput, op, fmt.Sprintf("song %q already exists", name))
		}
		return nil, errs.Wrap(errs.KindPersistence, op, "failed to store upload", err)
	}
	size, err := io.Copy(f, data)
	f.Close()
	if err != nil {
		os.Remove(dst)
		return nil, errs.Wrap(errs.KindPersistence, op, "failed to store upload", err)
	}
	if size == 0 {
		os.Remove(dst)
		return nil, errs.E(errs.KindInvalidInput, op, "empty upload")
	}

	song := &model.Song{
		Title:      strings.TrimSuffix(name, ext),
		FilePath:   dst,
		Format:     strings.TrimPrefix(ext, "."),
		Size:       size,
		UploadedAt: time.Now(),
		Tracks:     []model.Track{},
		Meta:       map[string]string{},
	}

	if err := p.store.AddSong(song); err != nil {
		os.Remove(dst)
		return nil, err
	}
	p.persist(op)

	logger.Info("song ingested",
		logger.String("song", song.Key()),
		logger.String("format", song.Format),
		logger.Int64("size", size))
	return song, nil
}

// Separate runs stem separation for the song identified by its filename
// key and appends one Track per stem that survives validation. Stems are
// attached in sorted name order. If validation rejects every stem the
// song is left untouched and an EmptyResult error is returned.
func (p *Pipeline) Separate(ctx context.Context, songKey string) (map[string]model.Track, error) {
	const op = "pipeline.separate"

	song, err := p.store.FindSongByFilename(songKey)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(song.FilePath)
	if err != nil {
		return nil, errs.Wrap(errs.KindInvalidInput, op, "source file missing", err)
	}
	if info.Size() == 0 {
		return nil, errs.E(errs.KindInvalidInput, op, "source file is empty")
	}

	if !p.beginSong(songKey) {
		return nil, errs.E(errs.KindBusy, op, fmt.Sprintf("separation already running for %s", songKey))
	}
	defer p.endSong(songKey)

	if err := p.acquireSlot(ctx); err != nil {
		return nil, err
	}
	defer p.releaseSlot()

	cache.SetJobStatus(ctx, songKey, "separate", cache.StatusRunning, "")

	sep, err := p.separator()
	if err != nil {
		cache.SetJobStatus(ctx, songKey, "separate", cache.StatusFailed, err.Error())
		return nil, errs.Wrap(errs.KindExternal, op, "separator unavailable", err)
	}

	buf, err := p.loader.Load(song.FilePath)
	if err != nil {
		cache.SetJobStatus(ctx, songKey, "separate", cache.StatusFailed, err.Error())
		return nil, errs.Wrap(errs.KindInvalidInput, op, "failed to decode source", err)
	}

	stems, err := sep.Process(ctx, buf)
	if err != nil {
		cache.SetJobStatus(ctx, songKey, "separate", cache.StatusFailed, err.Error())
		return nil, errs.Wrap(errs.KindExternal, op, "separation failed", err)
	}

	stemDir := filepath.Join(p.songDir(songKey), "stems")
	written := make(map[string]string, len(stems))
	for _, name := range sortedStemNames(stems) {
		stemBuf := stems[name]
		if err := audio.CheckFinite(stemBuf); err != nil {
			logger.Warn("stem rejected, non-finite samples",
				logger.String("song", songKey),
				logger.String("stem", name),
				logger.ErrorField(err))
			continue
		}
		path := filepath.Join(stemDir, name+".wav")
		if err := p.loader.Save(path, stemBuf); err != nil {
			logger.Warn("failed to write stem",
				logger.String("song", songKey),
				logger.String("stem", name),
				logger.ErrorField(err))
			continue
		}
		written[name] = path
	}

	valid := ValidateStems(written, p.cfg.MinStemBytes)
	// Rejected stems must not stay in the output tree where the download
	// boundary could serve them.
	for name, path := range written {
		if _, ok := valid[name]; !ok {
			os.Remove(path)
		}
	}
	if len(valid) == 0 {
		os.Remove(stemDir)
		cache.SetJobStatus(ctx, songKey, "separate", cache.StatusFailed, "no valid stems")
		return nil, errs.E(errs.KindEmptyResult, op, "separation produced no valid stems")
	}

	names := make([]string, 0, len(valid))
	for name := range valid {
		names = append(names, name)
	}
	sort.Strings(names)

	tracks := make([]model.Track, 0, len(names))
	result := make(map[string]model.Track, len(names))
	for _, name := range names {
		tr := model.Track{
			Kind:     name,
			FilePath: valid[name],
			Duration: audio.DurationSec(stems[name]),
		}
		tracks = append(tracks, tr)
		result[name] = tr
	}

	// Append and persist as one logical transaction: the in-memory append
	// stands even if the snapshot write fails.
	if err := p.store.AppendTracks(songKey, tracks); err != nil {
		cache.SetJobStatus(ctx, songKey, "separate", cache.StatusFailed, err.Error())
		return nil, err
	}
	p.persist(op)

	for _, tr := range tracks {
		storage.ArchiveTrack(ctx, tr.FilePath, p.objectName(songKey, tr))
	}

	cache.SetJobStatus(ctx, songKey, "separate", cache.StatusCompleted,
		fmt.Sprintf("%d stems", len(tracks)))
	logger.Info("separation completed",
		logger.String("song", songKey),
		logger.Int("validStems", len(tracks)),
		logger.Int("rejectedStems", len(stems)-len(tracks)))
	return result, nil
}

// Generate synthesizes an accompaniment for the style prompt and writes it
// to the output directory. The returned Track is not attached to any song;
// attachment is explicit via AttachGenerated so that multi-song projects
// stay unambiguous. A durationSec of 0 selects the default.
func (p *Pipeline) Generate(ctx context.Context, style string, durationSec int) (model.Track, error) {
	const op = "pipeline.generate"

	if strings.TrimSpace(style) == "" {
		return model.Track{}, errs.E(errs.KindInvalidInput, op, "empty style prompt")
	}
	if durationSec == 0 {
		durationSec = p.cfg.GenerateDefaultSec
	}
	if durationSec < p.cfg.GenerateMinSec || durationSec > p.cfg.GenerateMaxSec {
		return model.Track{}, errs.E(errs.KindInvalidInput, op,
			fmt.Sprintf("duration %ds out of range %d-%ds", durationSec, p.cfg.GenerateMinSec, p.cfg.GenerateMaxSec))
	}

	if err := p.acquireSlot(ctx); err != nil {
		return model.Track{}, err
	}
	defer p.releaseSlot()

	gen, err := p.generator()
	if err != nil {
		return model.Track{}, errs.Wrap(errs.KindExternal, op, "generator unavailable", err)
	}

	prompt := fmt.Sprintf("background music in %s style", style)
	buf, err := gen.Process(ctx, prompt, durationSec)
	if err != nil {
		return model.Track{}, errs.Wrap(errs.KindExternal, op, "generation failed", err)
	}
	if err := audio.CheckFinite(buf); err != nil {
		return model.Track{}, errs.Wrap(errs.KindExternal, op, "generator returned corrupt audio", err)
	}
	if audio.IsSilent(buf) {
		return model.Track{}, errs.E(errs.KindExternal, op, "generator returned silence")
	}

	audio.Normalize(buf, p.cfg.NormalizeCeiling)

	out := filepath.Join(p.cfg.OutputDir, "generated",
		fmt.Sprintf("accompaniment_%s.wav", shortID()))
	if err := p.loader.Save(out, buf); err != nil {
		return model.Track{}, errs.Wrap(errs.KindPersistence, op, "failed to write generated audio", err)
	}

	tr := model.Track{
		Kind:     "generated",
		FilePath: out,
		Duration: audio.DurationSec(buf),
	}
	storage.ArchiveTrack(ctx, out, filepath.ToSlash(filepath.Join("generated", filepath.Base(out))))

	logger.Info("accompaniment generated",
		logger.String("style", style),
		logger.Int("durationSec", durationSec),
		logger.String("path", out))
	return tr, nil
}

// AttachGenerated appends a generated track to the song's history and
// persists the project.
func (p *Pipeline) AttachGenerated(songKey string, tr model.Track) error {
	const op = "pipeline.attach_generated"

	info, err := os.Stat(tr.FilePath)
	if err != nil {
		return errs.Wrap(errs.KindNotFound, op, "track file missing", err)
	}
	if info.Size() == 0 {
		return errs.E(errs.KindInvalidInput, op, "track file is empty")
	}
	if err := p.store.AppendTracks(songKey, []model.Track{tr}); err != nil {
		return err
	}
	p.persist(op)
	return nil
}

// Mix combines the input files, shortest-wins, with the configured gains
// (first input gets the vocal gain, the rest the accompaniment gain),
// peak-normalizes and writes the result. When songKey is non-empty the
// resulting "mix" Track is appended to that song's history.
func (p *Pipeline) Mix(ctx context.Context, songKey string, inputs []string, outName string) (model.Track, error) {
	const op = "pipeline.mix"

	if len(inputs) < 2 {
		return model.Track{}, errs.E(errs.KindInvalidInput, op,
			fmt.Sprintf("mix needs at least two inputs, got %d", len(inputs)))
	}
	for _, in := range inputs {
		if _, err := os.Stat(in); err != nil {
			return model.Track{}, errs.Wrap(errs.KindNotFound, op, fmt.Sprintf("mix input %s", in), err)
		}
	}

	loaded := make([]*gaudio.FloatBuffer, 0, len(inputs))
	gains := make([]float64, 0, len(inputs))
	for i, in := range inputs {
		b, err := p.loader.Load(in)
		if err != nil {
			return model.Track{}, errs.Wrap(errs.KindInvalidInput, op, fmt.Sprintf("failed to decode %s", in), err)
		}
		loaded = append(loaded, b)
		if i == 0 {
			gains = append(gains, p.cfg.VocalGain)
		} else {
			gains = append(gains, p.cfg.AccompGain)
		}
	}

	mixed, err := audio.Mix(loaded, gains, p.cfg.NormalizeCeiling)
	if err != nil {
		return model.Track{}, errs.Wrap(errs.KindInvalidInput, op, "mix failed", err)
	}

	if outName == "" {
		outName = fmt.Sprintf("final_remix_%s.wav", shortID())
	}
	var out string
	if songKey != "" {
		out = filepath.Join(p.songDir(songKey), "mixes", outName)
	} else {
		out = filepath.Join(p.cfg.OutputDir, "mixes", outName)
	}
	if err := p.loader.Save(out, mixed); err != nil {
		return model.Track{}, errs.Wrap(errs.KindPersistence, op, "failed to write mix", err)
	}

	tr := model.Track{
		Kind:     "mix",
		FilePath: out,
		Duration: audio.DurationSec(mixed),
	}

	if songKey != "" {
		if err := p.store.AppendTracks(songKey, []model.Track{tr}); err != nil {
			return model.Track{}, err
		}
		p.persist(op)
		storage.ArchiveTrack(ctx, out, p.objectName(songKey, tr))
	}

	logger.Info("mix written",
		logger.String("song", songKey),
		logger.String("path", out),
		logger.Int("inputs", len(inputs)))
	return tr, nil
}

// separator returns the lazily constructed separation capability.
func (p *Pipeline) separator() (Separator, error) {
	p.sepOnce.Do(func() {
		logger.Info("constructing separator (first use)")
		p.sep, p.sepErr = p.newSeparator()
	})
	return p.sep, p.sepErr
}

// generator returns the lazily constructed generation capability.
func (p *Pipeline) generator() (Generator, error) {
	p.genOnce.Do(func() {
		logger.Info("constructing generator (first use)")
		p.gen, p.genErr = p.newGenerator()
	})
	return p.gen, p.genErr
}

func (p *Pipeline) acquireSlot(ctx context.Context) error {
	select {
	case p.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		// Not Busy: that kind means a separation is already running for the
		// same song. Here the caller gave up while waiting for a slot.
		return fmt.Errorf("no worker slot acquired: %w", ctx.Err())
	}
}

func (p *Pipeline) releaseSlot() {
	<-p.slots
}

func (p *Pipeline) beginSong(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, running := p.inFlight[key]; running {
		return false
	}
	p.inFlight[key] = struct{}{}
	return true
}

func (p *Pipeline) endSong(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inFlight, key)
}

// persist snapshots the store. A failed snapshot does not roll back the
// in-memory mutation; recovery is retrying save alone.
func (p *Pipeline) persist(op string) {
	if err := p.store.Save(); err != nil {
		logger.Warn("snapshot write failed, in-memory state retained",
			logger.String("op", op),
			logger.ErrorField(err))
	}
}

func (p *Pipeline) songDir(songKey string) string {
	base := strings.TrimSuffix(songKey, filepath.Ext(songKey))
	return filepath.Join(p.cfg.OutputDir, base)
}

func (p *Pipeline) objectName(songKey string, tr model.Track) string {
	base := strings.TrimSuffix(songKey, filepath.Ext(songKey))
	return filepath.ToSlash(filepath.Join(base, tr.Kind, filepath.Base(tr.FilePath)))
}

func shortID() string {
	return uuid.NewString()[:8]
}

func sortedStemNames(stems map[string]*gaudio.FloatBuffer) []string {
	names := make([]string, 0, len(stems))
	for name := range stems {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
