package audio

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
)

func TestAllowedExtension(t *testing.T) {
	cases := []struct {
		name string
		ok   bool
	}{
		{"song.mp3", true},
		{"song.WAV", true},
		{"song.flac", true},
		{"song.ogg", true},
		{"song.aiff", false},
		{"song", false},
		{"song.", false},
	}
	for _, c := range cases {
		if got := AllowedExtension(c.name); got != c.ok {
			t.Errorf("AllowedExtension(%q) = %v, want %v", c.name, got, c.ok)
		}
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	loader := NewLoader("ffmpeg", 32000)
	path := filepath.Join(t.TempDir(), "tone.wav")

	src := &audio.FloatBuffer{
		Format: &audio.Format{NumChannels: 1, SampleRate: 32000},
		Data:   make([]float64, 3200),
	}
	for i := range src.Data {
		src.Data[i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/32000)
	}

	if err := loader.Save(path, src); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := loader.Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got.Format.SampleRate != 32000 || got.Format.NumChannels != 1 {
		t.Fatalf("unexpected format: %+v", got.Format)
	}
	if len(got.Data) != len(src.Data) {
		t.Fatalf("sample count changed: got %d, want %d", len(got.Data), len(src.Data))
	}
	// 16-bit quantization bounds the round-trip error.
	for i := range src.Data {
		if math.Abs(got.Data[i]-src.Data[i]) > 1.0/32000 {
			t.Fatalf("sample %d drifted: got %f, want %f", i, got.Data[i], src.Data[i])
		}
	}
}

func TestSaveClampsOutOfRangeSamples(t *testing.T) {
	loader := NewLoader("ffmpeg", 32000)
	path := filepath.Join(t.TempDir(), "hot.wav")

	src := &audio.FloatBuffer{
		Format: &audio.Format{NumChannels: 1, SampleRate: 32000},
		Data:   []float64{2.0, -3.0, 0.25},
	}
	if err := loader.Save(path, src); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := loader.Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if Peak(got) > 1.0+1e-6 {
		t.Fatalf("clamping failed, peak=%f", Peak(got))
	}
}

func TestLoadRejectsUnsupportedExtension(t *testing.T) {
	loader := NewLoader("ffmpeg", 32000)
	if _, err := loader.Load(filepath.Join(t.TempDir(), "clip.aiff")); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	loader := NewLoader("ffmpeg", 32000)
	if _, err := loader.Load(filepath.Join(t.TempDir(), "nope.wav")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
