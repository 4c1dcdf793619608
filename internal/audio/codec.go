package audio

import (
	"encoding/base64"
	"fmt"
	"math"
)

// The wire carries base64-encoded little-endian 16-bit signed PCM, mono.
// Internally all processing happens on normalized float samples in [-1, 1].

// PCM16ToFloat converts little-endian 16-bit signed PCM bytes to normalized
// float samples. The byte length must be even.
func PCM16ToFloat(data []byte) ([]float64, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("pcm16 data length must be even, got %d", len(data))
	}

	samples := make([]float64, len(data)/2)
	for i := range samples {
		s := int16(data[i*2]) | int16(data[i*2+1])<<8
		samples[i] = float64(s) / 32768.0
	}
	return samples, nil
}

// FloatToPCM16 converts normalized float samples to little-endian 16-bit
// signed PCM bytes. Samples outside [-1, 1] are clipped.
func FloatToPCM16(samples []float64) []byte {
	data := make([]byte, len(samples)*2)
	for i, sample := range samples {
		if sample > 1.0 {
			sample = 1.0
		} else if sample < -1.0 {
			sample = -1.0
		}

		v := int32(math.Round(sample * 32767.0))
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}

		data[i*2] = byte(v)
		data[i*2+1] = byte(v >> 8)
	}
	return data
}

// Resample converts samples between two rates using linear interpolation.
// The output length is floor(len(samples) * to / from); points that land
// exactly on a source sample keep its value.
func Resample(samples []float64, fromRate, toRate int) []float64 {
	if fromRate == toRate || len(samples) == 0 {
		out := make([]float64, len(samples))
		copy(out, samples)
		return out
	}

	ratio := float64(toRate) / float64(fromRate)
	outputLength := int(float64(len(samples)) * ratio)
	output := make([]float64, outputLength)

	for i := 0; i < outputLength; i++ {
		srcPos := float64(i) / ratio

		idx0 := int(srcPos)
		idx1 := idx0 + 1
		if idx1 >= len(samples) {
			idx1 = len(samples) - 1
		}

		fraction := srcPos - float64(idx0)
		output[i] = samples[idx0]*(1.0-fraction) + samples[idx1]*fraction
	}

	return output
}

// DecodeBase64PCM decodes a base64 wire payload into float samples.
func DecodeBase64PCM(payload string) ([]float64, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 audio: %w", err)
	}
	return PCM16ToFloat(data)
}

// EncodeBase64PCM encodes float samples as a base64 wire payload.
func EncodeBase64PCM(samples []float64) string {
	return base64.StdEncoding.EncodeToString(FloatToPCM16(samples))
}

// CalculateRMS calculates the root mean square of normalized samples.
// Used by the speech gate to detect audio levels and silence.
func CalculateRMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, sample := range samples {
		sum += sample * sample
	}

	return math.Sqrt(sum / float64(len(samples)))
}

// Silence returns a buffer of silent samples covering the given duration in
// milliseconds at the given rate. Used for recognizer keep-alive frames.
func Silence(durationMs, sampleRate int) []float64 {
	return make([]float64, sampleRate*durationMs/1000)
}
