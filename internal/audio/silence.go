package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

type SilenceMetrics struct {
	RMSdBFS  float64
	PeakdBFS float64
	Samples  int64
}

// IsSilentWAV reports whether the PCM16 WAV at path stays below
// thresholdDBFS. The peak may exceed the threshold by up to 6 dB.
func IsSilentWAV(path string, thresholdDBFS float64) (bool, SilenceMetrics, error) {
	metrics, err := measureWAV(path)
	if err != nil {
		return false, SilenceMetrics{}, err
	}

	if metrics.Samples == 0 {
		return true, metrics, nil
	}
	if math.IsInf(metrics.RMSdBFS, -1) && math.IsInf(metrics.PeakdBFS, -1) {
		return true, metrics, nil
	}

	return metrics.RMSdBFS <= thresholdDBFS && metrics.PeakdBFS <= thresholdDBFS+6, metrics, nil
}

func measureWAV(path string) (SilenceMetrics, error) {
	f, err := os.Open(path)
	if err != nil {
		return SilenceMetrics{}, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	parsed, err := readWAVHeader(f)
	if err != nil {
		return SilenceMetrics{}, err
	}

	format := parsed.format
	if err := validateSampleFormat(format); err != nil {
		return SilenceMetrics{}, err
	}

	if _, err := f.Seek(parsed.dataOffset, io.SeekStart); err != nil {
		return SilenceMetrics{}, fmt.Errorf("seek wav data offset: %w", err)
	}

	data := make([]byte, format.DataBytes)
	n, err := io.ReadFull(f, data)
	if err != nil && err != io.ErrUnexpectedEOF {
		return SilenceMetrics{}, fmt.Errorf("read wav data: %w", err)
	}
	data = data[:n]

	const width = 2
	var peak, sumSquares float64
	var samples int64
	for i := 0; i+width <= len(data); i += width {
		value := decodeSample(data[i : i+width])
		if abs := math.Abs(value); abs > peak {
			peak = abs
		}
		sumSquares += value * value
		samples++
	}

	if samples == 0 {
		return SilenceMetrics{RMSdBFS: math.Inf(-1), PeakdBFS: math.Inf(-1)}, nil
	}

	return SilenceMetrics{
		RMSdBFS:  amplitudeToDBFS(math.Sqrt(sumSquares / float64(samples))),
		PeakdBFS: amplitudeToDBFS(peak),
		Samples:  samples,
	}, nil
}

// validateSampleFormat accepts the PCM16 layout the normalizer produces.
func validateSampleFormat(format Format) error {
	if format.AudioFormat != formatPCM || format.BitsPerSample != TargetBitsPerSample {
		return fmt.Errorf("%w: format %d, %d bits", ErrUnsupportedWAV, format.AudioFormat, format.BitsPerSample)
	}
	return nil
}

func decodeSample(sample []byte) float64 {
	return float64(int16(binary.LittleEndian.Uint16(sample))) / 32768.0
}

func amplitudeToDBFS(amplitude float64) float64 {
	if amplitude <= 0 {
		return math.Inf(-1)
	}
	return 20.0 * math.Log10(amplitude)
}
