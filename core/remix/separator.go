package remix

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"remixai/core/audio"
	"remixai/logger"

	gaudio "github.com/go-audio/audio"
)

// Separator isolates instrument/vocal stems from a mixed buffer.
// The stem name set is model-defined; callers must not assume any
// particular names beyond "stem names are strings".
type Separator interface {
	Process(ctx context.Context, buf *gaudio.FloatBuffer) (map[string]*gaudio.FloatBuffer, error)
}

// DemucsSeparator runs the demucs CLI through a python interpreter.
// The model process is expensive; construct once and reuse.
type DemucsSeparator struct {
	python string
	model  string
	loader *audio.Loader
}

// NewDemucsSeparator creates a separator bound to a python interpreter and
// demucs model name (e.g. "htdemucs").
func NewDemucsSeparator(python, model string, loader *audio.Loader) *DemucsSeparator {
	return &DemucsSeparator{python: python, model: model, loader: loader}
}

// Process writes the buffer to a temp file, runs demucs on it and loads
// every produced stem back at the working sample rate. Demucs offers no
// mid-flight cancellation; ctx cancellation kills the child process and
// the partial output directory is discarded.
func (d *DemucsSeparator) Process(ctx context.Context, buf *gaudio.FloatBuffer) (map[string]*gaudio.FloatBuffer, error) {
	workDir, err := os.MkdirTemp("", "remixai-demucs-")
	if err != nil {
		return nil, fmt.Errorf("failed to create demucs work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	inputPath := filepath.Join(workDir, "input.wav")
	if err := d.loader.Save(inputPath, buf); err != nil {
		return nil, fmt.Errorf("failed to stage demucs input: %w", err)
	}

	outDir := filepath.Join(workDir, "separated")
	args := []string{
		"-m", "demucs.separate",
		"-n", d.model,
		"-o", outDir,
		inputPath,
	}

	cmd := exec.CommandContext(ctx, d.python, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logger.Info("running demucs separation",
		logger.String("model", d.model),
		logger.Int("frames", audio.Frames(buf)))

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("demucs execution failed: %w\nDemucs Error: %s", err, stderr.String())
	}

	// Demucs writes <outDir>/<model>/<input-basename>/<stem>.wav.
	stemDir := filepath.Join(outDir, d.model, "input")
	paths, err := filepath.Glob(filepath.Join(stemDir, "*.wav"))
	if err != nil || len(paths) == 0 {
		return nil, fmt.Errorf("demucs produced no stems in %s\nDemucs Output: %s", stemDir, stderr.String())
	}

	stems := make(map[string]*gaudio.FloatBuffer, len(paths))
	for _, p := range paths {
		name := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		stemBuf, err := d.loader.Load(p)
		if err != nil {
			return nil, fmt.Errorf("failed to load stem %s: %w", name, err)
		}
		stems[name] = stemBuf
	}
	return stems, nil
}
