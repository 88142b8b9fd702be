package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const wavHeaderSize = 44

var ErrNotWAV = errors.New("not a wav file")

// IsWAV reports whether data starts with a RIFF/WAVE header.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// EncodeWAV wraps linear16 PCM in a WAV container.
func EncodeWAV(pcm []byte, encoding EncodingInfo) []byte {
	channels := encoding.channels()
	bitsPerSample := 16
	blockAlign := channels * bitsPerSample / 8

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(pcm)))
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(encoding.SampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(encoding.SampleRate*blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

// DecodeWAV extracts the PCM data of a 16-bit WAV file. Chunks other than
// "fmt " and "data" are skipped. Streaming encoders write a zero or oversized
// data length, so the data chunk is clamped to what is actually there.
func DecodeWAV(data []byte) ([]byte, EncodingInfo, error) {
	if !IsWAV(data) {
		return nil, EncodingInfo{}, ErrNotWAV
	}

	var (
		encoding  EncodingInfo
		sawFormat bool
	)
	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(data) {
				return nil, EncodingInfo{}, fmt.Errorf("failed to decode wav: truncated fmt chunk")
			}
			if audioFormat := binary.LittleEndian.Uint16(data[body:]); audioFormat != 1 {
				return nil, EncodingInfo{}, fmt.Errorf("failed to decode wav: unsupported audio format %d", audioFormat)
			}
			if bits := binary.LittleEndian.Uint16(data[body+14:]); bits != 16 {
				return nil, EncodingInfo{}, fmt.Errorf("failed to decode wav: unsupported bit depth %d", bits)
			}
			encoding = EncodingInfo{
				Channels:   int(binary.LittleEndian.Uint16(data[body+2:])),
				SampleRate: int(binary.LittleEndian.Uint32(data[body+4:])),
				Format:     EncodingLinear16,
			}
			sawFormat = true

		case "data":
			if !sawFormat {
				return nil, EncodingInfo{}, fmt.Errorf("failed to decode wav: data before fmt chunk")
			}
			end := body + size
			if size == 0 || end > len(data) || end < body {
				end = len(data)
			}
			return data[body:end], encoding, nil
		}

		offset = body + size + size%2
	}

	return nil, EncodingInfo{}, fmt.Errorf("failed to decode wav: no data chunk")
}

// Resample converts mono linear16 PCM between sample rates by linear
// interpolation.
func Resample(pcm []byte, from, to int) []byte {
	if from == to || from <= 0 || to <= 0 || len(pcm) < 4 {
		return pcm
	}

	in := make([]int16, len(pcm)/2)
	for i := range in {
		in[i] = int16(binary.LittleEndian.Uint16(pcm[2*i:]))
	}

	outLen := int(int64(len(in)) * int64(to) / int64(from))
	out := make([]byte, 2*outLen)
	ratio := float64(from) / float64(to)
	for i := range outLen {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		sample := float64(in[idx])
		if idx+1 < len(in) {
			sample += (float64(in[idx+1]) - sample) * frac
		}
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(sample)))
	}
	return out
}
