package audio

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// allowedExtensions is the upload/load allow-list. Anything else is
// rejected before a decode is attempted.
var allowedExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".flac": true,
	".ogg":  true,
}

// AllowedExtension reports whether the file name carries a supported
// audio extension.
func AllowedExtension(name string) bool {
	return allowedExtensions[strings.ToLower(filepath.Ext(name))]
}

// Loader reads and writes audio files at a fixed working sample rate.
// WAV files already at the working rate are decoded directly; everything
// else goes through ffmpeg for decode plus resample.
type Loader struct {
	ffmpeg     *FFmpeg
	sampleRate int
}

// NewLoader creates a loader bound to the working sample rate.
func NewLoader(ffmpegPath string, sampleRate int) *Loader {
	return &Loader{
		ffmpeg:     NewFFmpeg(ffmpegPath),
		sampleRate: sampleRate,
	}
}

// SampleRate returns the working sample rate.
func (l *Loader) SampleRate() int {
	return l.sampleRate
}

// Load decodes path into a float buffer at the working sample rate.
func (l *Loader) Load(path string) (*audio.FloatBuffer, error) {
	if !AllowedExtension(path) {
		return nil, fmt.Errorf("unsupported audio extension: %s", filepath.Ext(path))
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("audio file not readable: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".wav") {
		buf, err := decodeWAV(path)
		if err != nil {
			return nil, err
		}
		if buf.Format.SampleRate == l.sampleRate {
			return buf, nil
		}
		// Wrong rate, fall through to the ffmpeg resample path.
	}

	tmp, err := os.CreateTemp("", "remixai-*.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := l.ffmpeg.TranscodeToWAV(path, tmpPath, l.sampleRate); err != nil {
		return nil, err
	}
	return decodeWAV(tmpPath)
}

// Save writes the buffer to path as 16-bit PCM WAV, creating parent
// directories as needed.
func (l *Loader) Save(path string, buf *audio.FloatBuffer) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, buf.Format.SampleRate, 16, buf.Format.NumChannels, 1)
	intBuf := &audio.IntBuffer{
		Format:         buf.Format,
		SourceBitDepth: 16,
		Data:           make([]int, len(buf.Data)),
	}
	for i, s := range buf.Data {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		intBuf.Data[i] = int(math.Round(s * 32767))
	}
	if err := enc.Write(intBuf); err != nil {
		return fmt.Errorf("failed to write samples to %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize %s: %w", path, err)
	}
	return nil
}

// decodeWAV reads a whole WAV file into a normalized float buffer.
func decodeWAV(path string) (*audio.FloatBuffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("invalid wav file: %s", path)
	}
	intBuf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if intBuf == nil || intBuf.Format == nil || intBuf.Format.NumChannels < 1 {
		return nil, fmt.Errorf("empty wav buffer: %s", path)
	}

	bitDepth := int(dec.BitDepth)
	if bitDepth == 0 {
		bitDepth = 16
	}
	scale := float64(int(1) << (bitDepth - 1))

	out := &audio.FloatBuffer{
		Format: intBuf.Format,
		Data:   make([]float64, len(intBuf.Data)),
	}
	for i, s := range intBuf.Data {
		out.Data[i] = float64(s) / scale
	}
	return out, nil
}
