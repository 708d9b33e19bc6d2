package audio

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"remixai/logger"
)

// FFmpeg wraps the ffmpeg/ffprobe binaries for decode, resample and probe
// operations on formats the wav decoder cannot read directly.
type FFmpeg struct {
	ffmpegPath string
}

// NewFFmpeg creates a wrapper around the given ffmpeg binary path.
func NewFFmpeg(ffmpegPath string) *FFmpeg {
	return &FFmpeg{ffmpegPath: ffmpegPath}
}

// Path returns the configured ffmpeg binary path.
func (p *FFmpeg) Path() string {
	return p.ffmpegPath
}

// TranscodeToWAV decodes inputFile to 16-bit stereo PCM WAV at the given
// sample rate.
func (p *FFmpeg) TranscodeToWAV(inputFile, outputFile string, sampleRate int) error {
	outputDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
	}

	args := []string{
		"-y",
		"-i", inputFile,
		"-ac", "2",
		"-ar", strconv.Itoa(sampleRate),
		"-sample_fmt", "s16",
		"-f", "wav",
		outputFile,
	}

	cmd := exec.Command(p.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logger.Debug("transcoding audio",
		logger.String("input", inputFile),
		logger.String("output", outputFile),
		logger.Int("sampleRate", sampleRate))

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg execution failed for %s: %w\nFFmpeg Error: %s", inputFile, err, stderr.String())
	}
	return nil
}

// ffprobeOutput defines the structure for ffprobe JSON output.
type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Duration uses ffprobe to get the duration of an audio file in seconds.
func (p *FFmpeg) Duration(inputFile string) (float32, error) {
	ffprobePath := strings.Replace(p.ffmpegPath, "ffmpeg", "ffprobe", 1)

	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		inputFile,
	}

	cmd := exec.Command(ffprobePath, args...)
	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe execution failed for %s: %w\nFFprobe Error: %s", inputFile, err, stderr.String())
	}

	var probeData ffprobeOutput
	if err := json.Unmarshal(out.Bytes(), &probeData); err != nil {
		return 0, fmt.Errorf("failed to unmarshal ffprobe output for %s: %w\nFFprobe Output: %s", inputFile, err, out.String())
	}

	if probeData.Format.Duration == "" {
		return 0, fmt.Errorf("duration not found in ffprobe output for %s\nFFprobe Output: %s", inputFile, out.String())
	}

	duration, err := strconv.ParseFloat(probeData.Format.Duration, 32)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration string %q for %s: %w", probeData.Format.Duration, inputFile, err)
	}

	return float32(duration), nil
}
