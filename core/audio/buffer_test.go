package audio

import (
	"math"
	"testing"

	"github.com/go-audio/audio"
)

func monoBuffer(samples []float64) *audio.FloatBuffer {
	return &audio.FloatBuffer{
		Format: &audio.Format{NumChannels: 1, SampleRate: 32000},
		Data:   samples,
	}
}

func constantBuffer(n int, val float64) *audio.FloatBuffer {
	data := make([]float64, n)
	for i := range data {
		data[i] = val
	}
	return monoBuffer(data)
}

func TestMixTruncatesToShortestInput(t *testing.T) {
	a := constantBuffer(100, 0.5)
	b := constantBuffer(150, 0.5)

	out, err := Mix([]*audio.FloatBuffer{a, b}, []float64{0.85, 0.65}, 0.9)
	if err != nil {
		t.Fatalf("mix failed: %v", err)
	}
	if got := len(out.Data); got != 100 {
		t.Fatalf("expected 100 samples after truncation, got %d", got)
	}
	if peak := Peak(out); peak > 1.0+1e-6 {
		t.Fatalf("mix output clips: peak=%f", peak)
	}
}

func TestMixNormalizesToCeiling(t *testing.T) {
	a := constantBuffer(64, 1.0)
	b := constantBuffer(64, 1.0)

	out, err := Mix([]*audio.FloatBuffer{a, b}, []float64{0.85, 0.65}, 0.9)
	if err != nil {
		t.Fatalf("mix failed: %v", err)
	}
	peak := Peak(out)
	if math.Abs(peak-0.9) > 1e-6 {
		t.Fatalf("expected peak 0.9 after normalization, got %f", peak)
	}
}

func TestMixRejectsSingleInput(t *testing.T) {
	a := constantBuffer(100, 0.5)
	if _, err := Mix([]*audio.FloatBuffer{a}, []float64{0.85}, 0.9); err == nil {
		t.Fatal("expected error for single-input mix")
	}
}

func TestMixRejectsNonFiniteSamples(t *testing.T) {
	a := constantBuffer(16, 0.5)
	b := constantBuffer(16, 0.5)
	b.Data[3] = math.NaN()

	if _, err := Mix([]*audio.FloatBuffer{a, b}, []float64{0.85, 0.65}, 0.9); err == nil {
		t.Fatal("expected error for NaN input")
	}
}

func TestMixRejectsFormatMismatch(t *testing.T) {
	a := constantBuffer(16, 0.5)
	b := &audio.FloatBuffer{
		Format: &audio.Format{NumChannels: 2, SampleRate: 32000},
		Data:   make([]float64, 32),
	}

	if _, err := Mix([]*audio.FloatBuffer{a, b}, []float64{0.85, 0.65}, 0.9); err == nil {
		t.Fatal("expected error for channel-count mismatch")
	}
}

func TestNormalizeOnSilenceStaysSilent(t *testing.T) {
	buf := constantBuffer(32, 0)
	Normalize(buf, 0.9)
	for i, s := range buf.Data {
		if s != 0 {
			t.Fatalf("silence gained amplitude at %d: %f", i, s)
		}
	}
}

func TestCheckFinite(t *testing.T) {
	buf := constantBuffer(8, 0.1)
	if err := CheckFinite(buf); err != nil {
		t.Fatalf("finite buffer rejected: %v", err)
	}
	buf.Data[5] = math.Inf(1)
	if err := CheckFinite(buf); err == nil {
		t.Fatal("expected error for Inf sample")
	}
}

func TestDurationSec(t *testing.T) {
	buf := constantBuffer(32000, 0.1)
	if d := DurationSec(buf); math.Abs(float64(d)-1.0) > 1e-6 {
		t.Fatalf("expected 1s duration, got %f", d)
	}

	stereo := &audio.FloatBuffer{
		Format: &audio.Format{NumChannels: 2, SampleRate: 32000},
		Data:   make([]float64, 64000),
	}
	if d := DurationSec(stereo); math.Abs(float64(d)-1.0) > 1e-6 {
		t.Fatalf("expected 1s stereo duration, got %f", d)
	}
}
