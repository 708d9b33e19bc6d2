package audio

import (
	"fmt"
	"math"

	"github.com/go-audio/audio"
)

// epsilon keeps peak division defined on silent buffers.
const epsilon = 1e-9

// Peak returns the largest absolute sample value in the buffer.
func Peak(buf *audio.FloatBuffer) float64 {
	var peak float64
	for _, s := range buf.Data {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	return peak
}

// Normalize scales the buffer in place so its peak lands on ceiling
// (fraction of full scale). Silence stays silence.
func Normalize(buf *audio.FloatBuffer, ceiling float64) {
	peak := Peak(buf)
	scale := ceiling / (peak + epsilon)
	for i := range buf.Data {
		buf.Data[i] *= scale
	}
}

// IsSilent reports whether every sample is exactly zero.
func IsSilent(buf *audio.FloatBuffer) bool {
	for _, s := range buf.Data {
		if s != 0 {
			return false
		}
	}
	return true
}

// CheckFinite rejects buffers containing NaN or Inf samples. Model output
// is never trusted; corrupt audio must not propagate downstream.
func CheckFinite(buf *audio.FloatBuffer) error {
	for i, s := range buf.Data {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return fmt.Errorf("non-finite sample at index %d", i)
		}
	}
	return nil
}

// Frames returns the per-channel sample count.
func Frames(buf *audio.FloatBuffer) int {
	if buf.Format == nil || buf.Format.NumChannels == 0 {
		return 0
	}
	return len(buf.Data) / buf.Format.NumChannels
}

// DurationSec returns the buffer duration in seconds.
func DurationSec(buf *audio.FloatBuffer) float32 {
	if buf.Format == nil || buf.Format.SampleRate == 0 {
		return 0
	}
	return float32(Frames(buf)) / float32(buf.Format.SampleRate)
}

// Mix combines the buffers with the given per-source gains, truncating all
// inputs to the shortest one (no padding; a lost silent tail is accepted),
// then peak-normalizes the sum to ceiling. All inputs must share channel
// count and sample rate.
func Mix(bufs []*audio.FloatBuffer, gains []float64, ceiling float64) (*audio.FloatBuffer, error) {
	if len(bufs) < 2 {
		return nil, fmt.Errorf("mix needs at least two inputs, got %d", len(bufs))
	}
	if len(gains) != len(bufs) {
		return nil, fmt.Errorf("gain count %d does not match input count %d", len(gains), len(bufs))
	}

	format := bufs[0].Format
	shortest := len(bufs[0].Data)
	for i, b := range bufs {
		if b.Format == nil || format == nil ||
			b.Format.NumChannels != format.NumChannels ||
			b.Format.SampleRate != format.SampleRate {
			return nil, fmt.Errorf("input %d format mismatch", i)
		}
		if err := CheckFinite(b); err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		if len(b.Data) < shortest {
			shortest = len(b.Data)
		}
	}
	// Keep whole frames only.
	shortest -= shortest % format.NumChannels

	out := &audio.FloatBuffer{
		Format: &audio.Format{
			NumChannels: format.NumChannels,
			SampleRate:  format.SampleRate,
		},
		Data: make([]float64, shortest),
	}
	for i, b := range bufs {
		g := gains[i]
		for j := 0; j < shortest; j++ {
			out.Data[j] += g * b.Data[j]
		}
	}

	Normalize(out, ceiling)
	return out, nil
}
