// Package audio handles WAV ingestion and emission for the TTS pipeline:
// decoding reference recordings into mono float32 PCM and writing generated
// 24 kHz audio back out.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/cwbudde/wav"
)

// Output format constants for generated audio.
const (
	OutputSampleRate = 24000
	OutputChannels   = 1
	OutputBitDepth   = 16
)

// DecodeWAV decodes WAV bytes into mono float32 samples and the source
// sample rate. Multi-channel input is downmixed by averaging.
func DecodeWAV(data []byte) ([]float32, int, error) {
	if len(data) == 0 {
		return nil, 0, errors.New("empty WAV input")
	}

	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, 0, errors.New("invalid WAV file")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("reading PCM data: %w", err)
	}

	rate := int(dec.SampleRate)
	channels := int(dec.NumChans)
	if channels <= 1 {
		return buf.Data, rate, nil
	}

	mono := make([]float32, len(buf.Data)/channels)
	for i := range mono {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += buf.Data[i*channels+ch]
		}
		mono[i] = sum / float32(channels)
	}

	return mono, rate, nil
}

// DecodeWAVFile reads and decodes a WAV file.
func DecodeWAVFile(path string) ([]float32, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("read audio file %q: %w", path, err)
	}

	samples, rate, err := DecodeWAV(data)
	if err != nil {
		return nil, 0, fmt.Errorf("decode %q: %w", path, err)
	}

	return samples, rate, nil
}

// LoadReference loads a reference recording for voice conditioning: decoded,
// downmixed to mono, peak-normalized to [-1, 1] and resampled to targetRate.
func LoadReference(path string, targetRate int) ([]float32, error) {
	samples, rate, err := DecodeWAVFile(path)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("audio file %q holds no samples", path)
	}

	samples = PeakNormalize(samples)

	return Resample(samples, rate, targetRate), nil
}
