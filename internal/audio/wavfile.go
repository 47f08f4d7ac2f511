package audio

import (
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// LoadWAV decodes a WAV file into normalized float32 mono samples, averaging
// channels for multi-channel input. It returns the samples and the file's
// sample rate; resampling is the caller's concern.
func LoadWAV(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode wav: %w", err)
	}
	if !dec.WasPCMAccessed() || buf == nil || buf.Format == nil {
		return nil, 0, fmt.Errorf("decode wav: no PCM data in %s", path)
	}

	bitDepth := int(dec.BitDepth)
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float32(int64(1) << (bitDepth - 1))
	channels := buf.Format.NumChannels
	if channels <= 0 {
		channels = 1
	}

	frames := len(buf.Data) / channels
	mono := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			sum += float32(buf.Data[i*channels+ch]) / scale
		}
		mono[i] = sum / float32(channels)
	}
	return mono, buf.Format.SampleRate, nil
}
