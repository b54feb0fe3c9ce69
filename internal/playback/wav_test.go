package playback_test

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"agora/internal/playback"
)

func TestDecodeWAV_RejectsOversizedChunk(t *testing.T) {
	// A data chunk claiming ~4 GiB with almost nothing behind it must be
	// rejected before the allocation, not after a failed read.
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, int32(36))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, int32(16))
	binary.Write(&buf, binary.LittleEndian, int16(1))
	binary.Write(&buf, binary.LittleEndian, int16(1))
	binary.Write(&buf, binary.LittleEndian, int32(16000))
	binary.Write(&buf, binary.LittleEndian, int32(32000))
	binary.Write(&buf, binary.LittleEndian, int16(2))
	binary.Write(&buf, binary.LittleEndian, int16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(0xFFFFFFF0))
	buf.Write([]byte{1, 2, 3, 4})

	_, _, err := playback.DecodeWAV(&buf)
	if err == nil {
		t.Fatal("oversized chunk accepted")
	}
	if !strings.Contains(err.Error(), "claims") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDecodeWAV_RoundTripsFixture(t *testing.T) {
	samples, rate, err := playback.DecodeWAV(bytes.NewReader(wavFixture(t)))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rate != 16000 {
		t.Fatalf("rate = %d, want 16000", rate)
	}
	if len(samples) != 1600 {
		t.Fatalf("decoded %d samples, want 1600", len(samples))
	}
}
