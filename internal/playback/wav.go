package playback

import (
	"encoding/binary"
	"fmt"
	"io"
)

// maxChunkBytes bounds a single chunk allocation. Chunk sizes come from the
// fetched stream, so a 32-bit header can claim ~4 GiB regardless of how much
// data follows it.
const maxChunkBytes = 64 << 20

// DecodeWAV parses a 16-bit PCM WAV stream into samples. Only the format the
// capture side produces (mono or stereo PCM) is supported; anything else is
// a decode error so the caller can report the strategy as failed.
func DecodeWAV(r io.Reader) (samples []int16, sampleRate int, err error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, 0, fmt.Errorf("reading RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("not a WAV stream")
	}

	var (
		bitsPerSample uint16
		audioFormat   uint16
		haveFmt       bool
	)

	for {
		var chunkHeader [8]byte
		if _, err := io.ReadFull(r, chunkHeader[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil, 0, fmt.Errorf("no data chunk found")
			}
			return nil, 0, fmt.Errorf("reading chunk header: %w", err)
		}

		chunkID := string(chunkHeader[0:4])
		chunkSize := binary.LittleEndian.Uint32(chunkHeader[4:8])
		if chunkSize > maxChunkBytes {
			return nil, 0, fmt.Errorf("%s chunk claims %d bytes", chunkID, chunkSize)
		}

		switch chunkID {
		case "fmt ":
			fmtData := make([]byte, chunkSize)
			if _, err := io.ReadFull(r, fmtData); err != nil {
				return nil, 0, fmt.Errorf("reading fmt chunk: %w", err)
			}
			if chunkSize < 16 {
				return nil, 0, fmt.Errorf("fmt chunk too small: %d", chunkSize)
			}
			audioFormat = binary.LittleEndian.Uint16(fmtData[0:2])
			sampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
			bitsPerSample = binary.LittleEndian.Uint16(fmtData[14:16])
			haveFmt = true

		case "data":
			if !haveFmt {
				return nil, 0, fmt.Errorf("data chunk before fmt chunk")
			}
			if audioFormat != 1 || bitsPerSample != 16 {
				return nil, 0, fmt.Errorf("unsupported WAV format %d/%d-bit", audioFormat, bitsPerSample)
			}
			raw := make([]byte, chunkSize)
			if _, err := io.ReadFull(r, raw); err != nil {
				return nil, 0, fmt.Errorf("reading data chunk: %w", err)
			}
			samples = make([]int16, len(raw)/2)
			for i := range samples {
				samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2]))
			}
			return samples, sampleRate, nil

		default:
			if _, err := io.CopyN(io.Discard, r, int64(chunkSize)); err != nil {
				return nil, 0, fmt.Errorf("skipping %s chunk: %w", chunkID, err)
			}
		}
	}
}
