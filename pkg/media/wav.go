package media

import (
	"bytes"
	"encoding/binary"
)

// EncodeWAV wraps the track's samples in a minimal PCM16 WAV container, the
// format transcription services accept.
func EncodeWAV(track *AudioTrack) []byte {
	pcm := EncodePCM16(track.Samples)

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(track.SampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(track.SampleRate*2)) // byte rate
	binary.Write(&buf, binary.LittleEndian, uint16(2))                  // block align
	binary.Write(&buf, binary.LittleEndian, uint16(16))                 // bits per sample

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}
