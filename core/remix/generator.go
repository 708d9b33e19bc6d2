package remix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"remixai/core/audio"
	"remixai/logger"

	gaudio "github.com/go-audio/audio"
)

// Generator synthesizes an audio buffer from a text prompt.
type Generator interface {
	Process(ctx context.Context, prompt string, durationSec int) (*gaudio.FloatBuffer, error)
}

// MusicGenClient talks to a MusicGen inference server over HTTP.
// The server accepts a JSON request and answers with WAV bytes.
type MusicGenClient struct {
	baseURL    string
	httpClient *http.Client
	loader     *audio.Loader
}

// NewMusicGenClient creates a client for the given endpoint. Generation is
// slow; the timeout should cover a full model run.
func NewMusicGenClient(baseURL string, timeout time.Duration, loader *audio.Loader) *MusicGenClient {
	return &MusicGenClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		loader: loader,
	}
}

type generateRequest struct {
	Prompt   string `json:"prompt"`
	Duration int    `json:"duration"`
}

// Process requests durationSec seconds of audio for the prompt and decodes
// the response at the working sample rate.
func (c *MusicGenClient) Process(ctx context.Context, prompt string, durationSec int) (*gaudio.FloatBuffer, error) {
	body, err := json.Marshal(generateRequest{Prompt: prompt, Duration: durationSec})
	if err != nil {
		return nil, fmt.Errorf("failed to encode generation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build generation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	logger.Info("requesting accompaniment generation",
		logger.String("prompt", prompt),
		logger.Int("durationSec", durationSec))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		diag, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("generation server returned %d: %s", resp.StatusCode, string(diag))
	}

	// Stage the WAV response to disk so the loader resamples it to the
	// working rate if the server renders at a different one.
	tmp, err := os.CreateTemp("", "remixai-gen-*.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to stage generated audio: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to read generated audio: %w", err)
	}
	tmp.Close()

	buf, err := c.loader.Load(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("failed to decode generated audio: %w", err)
	}
	return buf, nil
}
