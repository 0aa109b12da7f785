// Package wavtest builds in-memory WAV fixtures for tests.
package wavtest

import "encoding/binary"

// PCM16 encodes samples as a canonical 44-byte-header RIFF/WAVE file.
func PCM16(samples []int16, sampleRate int, channels int) []byte {
	bytesPerSample := 2
	dataSize := len(samples) * bytesPerSample
	fmtChunkSize := 16
	riffSize := 4 + (8 + fmtChunkSize) + (8 + dataSize)

	out := make([]byte, 12+8+fmtChunkSize+8+dataSize)
	off := 0

	copy(out[off:], "RIFF")
	off += 4
	binary.LittleEndian.PutUint32(out[off:], uint32(riffSize))
	off += 4
	copy(out[off:], "WAVE")
	off += 4

	copy(out[off:], "fmt ")
	off += 4
	binary.LittleEndian.PutUint32(out[off:], uint32(fmtChunkSize))
	off += 4
	binary.LittleEndian.PutUint16(out[off:], 1)
	off += 2
	binary.LittleEndian.PutUint16(out[off:], uint16(channels))
	off += 2
	binary.LittleEndian.PutUint32(out[off:], uint32(sampleRate))
	off += 4
	binary.LittleEndian.PutUint32(out[off:], uint32(sampleRate*channels*bytesPerSample))
	off += 4
	binary.LittleEndian.PutUint16(out[off:], uint16(channels*bytesPerSample))
	off += 2
	binary.LittleEndian.PutUint16(out[off:], 16)
	off += 2

	copy(out[off:], "data")
	off += 4
	binary.LittleEndian.PutUint32(out[off:], uint32(dataSize))
	off += 4

	for _, s := range samples {
		binary.LittleEndian.PutUint16(out[off:], uint16(s))
		off += 2
	}

	return out
}

// Silence returns n zero samples at 16 kHz mono.
func Silence(n int) []byte {
	return PCM16(make([]int16, n), 16000, 1)
}

// Tone returns n samples of a full-scale square wave at 16 kHz mono.
func Tone(n int) []byte {
	samples := make([]int16, n)
	for i := range samples {
		if (i/20)%2 == 0 {
			samples[i] = 12000
		} else {
			samples[i] = -12000
		}
	}
	return PCM16(samples, 16000, 1)
}
