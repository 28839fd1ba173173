package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"time"
)

// Parameters of the new-order cue.
const (
	SampleRate     = 44100
	CueDuration    = 500 * time.Millisecond
	CueStartFreqHz = 800.0
	CueEndFreqHz   = 600.0
	CueStartGain   = 0.3
	CueEndGain     = 0.01
)

// Tone describes a sine sweep with an exponential frequency ramp and an
// exponential gain fade.
type Tone struct {
	Duration   time.Duration
	StartFreq  float64
	EndFreq    float64
	StartGain  float64
	EndGain    float64
	SampleRate int
}

// NewOrderCue is the tone played when a new order arrives.
func NewOrderCue() Tone {
	return Tone{
		Duration:   CueDuration,
		StartFreq:  CueStartFreqHz,
		EndFreq:    CueEndFreqHz,
		StartGain:  CueStartGain,
		EndGain:    CueEndGain,
		SampleRate: SampleRate,
	}
}

// expRamp interpolates exponentially from a to b at position p in [0,1].
func expRamp(a, b, p float64) float64 {
	return a * math.Pow(b/a, p)
}

// Samples renders the tone as 16-bit signed PCM.
func (t Tone) Samples() []int16 {
	n := int(t.Duration.Seconds() * float64(t.SampleRate))
	out := make([]int16, n)
	if n == 0 {
		return out
	}

	// Phase is accumulated so the sweep stays continuous.
	phase := 0.0
	step := 1.0 / float64(t.SampleRate)
	for i := 0; i < n; i++ {
		p := float64(i) / float64(n)
		freq := expRamp(t.StartFreq, t.EndFreq, p)
		gain := expRamp(t.StartGain, t.EndGain, p)
		out[i] = int16(math.Round(gain * math.Sin(phase) * math.MaxInt16))
		phase += 2 * math.Pi * freq * step
		if phase > 2*math.Pi {
			phase -= 2 * math.Pi
		}
	}
	return out
}

// WAV renders the tone as a mono 16-bit PCM RIFF/WAVE file.
func (t Tone) WAV() []byte {
	return EncodeWAV(t.Samples(), t.SampleRate)
}

// EncodeWAV wraps mono 16-bit samples in a canonical 44-byte WAV header.
func EncodeWAV(samples []int16, sampleRate int) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	dataLen := len(samples) * 2
	blockAlign := channels * bitsPerSample / 8

	var buf bytes.Buffer
	buf.Grow(44 + dataLen)
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(dataLen))
	_ = binary.Write(&buf, binary.LittleEndian, samples)
	return buf.Bytes()
}
