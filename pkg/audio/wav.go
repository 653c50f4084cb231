package audio

import (
	"bytes"
	"encoding/binary"
)

// EncodeWAV wraps raw 16-bit little-endian PCM in a minimal WAV container
// (44-byte RIFF header, PCM format chunk, single data chunk). Transcription
// providers accept the result as a complete audio file.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	dataSize := len(pcm)
	w := bytes.NewBuffer(make([]byte, 0, 44+dataSize))

	// RIFF header
	w.WriteString("RIFF")
	binary.Write(w, binary.LittleEndian, uint32(36+dataSize))
	w.WriteString("WAVE")

	// fmt chunk: PCM, 16 bits per sample
	w.WriteString("fmt ")
	binary.Write(w, binary.LittleEndian, uint32(16))
	binary.Write(w, binary.LittleEndian, uint16(1))
	binary.Write(w, binary.LittleEndian, uint16(channels))
	binary.Write(w, binary.LittleEndian, uint32(sampleRate))
	binary.Write(w, binary.LittleEndian, uint32(sampleRate*channels*2)) // byte rate
	binary.Write(w, binary.LittleEndian, uint16(channels*2))            // block align
	binary.Write(w, binary.LittleEndian, uint16(16))

	// data chunk
	w.WriteString("data")
	binary.Write(w, binary.LittleEndian, uint32(dataSize))
	w.Write(pcm)

	return w.Bytes()
}
