package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	ErrUnsupportedWAV = errors.New("unsupported wav format")
	ErrInvalidWAV     = errors.New("invalid wav file")
)

const formatPCM = 1

// Format describes the fmt chunk of a RIFF/WAVE file.
type Format struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
	DataBytes     uint32
}

// IsPCM16Mono16k reports whether f is the layout the whisper engine expects.
func (f Format) IsPCM16Mono16k() bool {
	return f.AudioFormat == formatPCM &&
		f.Channels == TargetChannels &&
		f.SampleRate == TargetSampleRate &&
		f.BitsPerSample == TargetBitsPerSample
}

type wavFile struct {
	format     Format
	dataOffset int64
}

// InspectWAV reads the header chunks of path without loading sample data.
func InspectWAV(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return Format{}, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	parsed, err := readWAVHeader(f)
	if err != nil {
		return Format{}, err
	}
	return parsed.format, nil
}

func readWAVHeader(r io.ReadSeeker) (wavFile, error) {
	header := make([]byte, 12)
	if _, err := io.ReadFull(r, header); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return wavFile{}, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
		}
		return wavFile{}, fmt.Errorf("read wav header: %w", err)
	}

	if string(header[:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return wavFile{}, ErrInvalidWAV
	}

	var (
		out     wavFile
		hasFmt  bool
		hasData bool
	)

	for !(hasFmt && hasData) {
		chunkHeader := make([]byte, 8)
		if _, err := io.ReadFull(r, chunkHeader); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return wavFile{}, fmt.Errorf("read wav chunk header: %w", err)
		}

		chunkID := string(chunkHeader[:4])
		chunkSize := binary.LittleEndian.Uint32(chunkHeader[4:8])
		skip := int64(chunkSize)
		if chunkSize%2 != 0 {
			skip++
		}

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return wavFile{}, ErrInvalidWAV
			}
			buf := make([]byte, skip)
			if _, err := io.ReadFull(r, buf); err != nil {
				return wavFile{}, fmt.Errorf("read wav fmt chunk: %w", err)
			}
			out.format.AudioFormat = binary.LittleEndian.Uint16(buf[0:2])
			out.format.Channels = binary.LittleEndian.Uint16(buf[2:4])
			out.format.SampleRate = binary.LittleEndian.Uint32(buf[4:8])
			out.format.BitsPerSample = binary.LittleEndian.Uint16(buf[14:16])
			hasFmt = true
		case "data":
			offset, err := r.Seek(0, io.SeekCurrent)
			if err != nil {
				return wavFile{}, fmt.Errorf("seek wav data chunk: %w", err)
			}
			out.dataOffset = offset
			out.format.DataBytes = chunkSize
			hasData = true
			if _, err := r.Seek(skip, io.SeekCurrent); err != nil {
				return wavFile{}, fmt.Errorf("seek past wav data chunk: %w", err)
			}
		default:
			if _, err := r.Seek(skip, io.SeekCurrent); err != nil {
				return wavFile{}, fmt.Errorf("seek wav chunk %s: %w", chunkID, err)
			}
		}
	}

	if !hasFmt || !hasData {
		return wavFile{}, ErrInvalidWAV
	}
	return out, nil
}
