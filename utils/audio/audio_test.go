package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestSampleByteRoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 12345, -12345}
	got, err := BytesToSamples(SamplesToBytes(samples))
	if err != nil {
		t.Fatalf("BytesToSamples: %v", err)
	}
	if len(got) != len(samples) {
		t.Fatalf("length = %d, want %d", len(got), len(samples))
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], samples[i])
		}
	}
}

func TestBytesToSamplesRejectsOddLength(t *testing.T) {
	if _, err := BytesToSamples([]byte{1, 2, 3}); err == nil {
		t.Fatal("odd-length PCM accepted")
	}
}

func TestULawRoundTripPreservesShape(t *testing.T) {
	samples := []int16{0, 1000, -1000, 8000, -8000, 24000, -24000}
	decoded := ULawToSamples(SamplesToULaw(samples))
	// G.711 is lossy; check sign and rough magnitude rather than equality.
	for i, s := range samples {
		d := decoded[i]
		if s > 100 && d <= 0 {
			t.Errorf("sample %d: %d decoded to %d, lost sign", i, s, d)
		}
		if s < -100 && d >= 0 {
			t.Errorf("sample %d: %d decoded to %d, lost sign", i, s, d)
		}
	}
}

func TestEncodeWAVHeader(t *testing.T) {
	samples := make([]int16, 1600) // 100ms at 16kHz
	wav, err := EncodeWAV(samples, 16000, 1)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	if len(wav) != 44+len(samples)*2 {
		t.Fatalf("wav length = %d, want %d", len(wav), 44+len(samples)*2)
	}
	if !bytes.HasPrefix(wav, []byte("RIFF")) || !bytes.Equal(wav[8:12], []byte("WAVE")) {
		t.Fatal("missing RIFF/WAVE header")
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 16000 {
		t.Errorf("sample rate field = %d, want 16000", rate)
	}
	if ch := binary.LittleEndian.Uint16(wav[22:24]); ch != 1 {
		t.Errorf("channel field = %d, want 1", ch)
	}
}

func TestEncodeWAVRejectsBadInput(t *testing.T) {
	if _, err := EncodeWAV(nil, 16000, 1); err == nil {
		t.Error("empty samples accepted")
	}
	if _, err := EncodeWAV(make([]int16, 4), 16000, 3); err == nil {
		t.Error("3 channels accepted")
	}
	if _, err := EncodeWAV(make([]int16, 4), 0, 1); err == nil {
		t.Error("zero sample rate accepted")
	}
}

func TestStripWAVHeaderRoundTrip(t *testing.T) {
	samples := []int16{10, -20, 30, -40}
	wav, err := EncodeWAV(samples, 8000, 1)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	pcm, err := StripWAVHeaderIfPresent(wav)
	if err != nil {
		t.Fatalf("StripWAVHeaderIfPresent: %v", err)
	}
	got, err := BytesToSamples(pcm)
	if err != nil {
		t.Fatalf("BytesToSamples: %v", err)
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], samples[i])
		}
	}

	// Non-WAV input passes through untouched.
	raw := []byte{1, 2, 3, 4}
	out, err := StripWAVHeaderIfPresent(raw)
	if err != nil {
		t.Fatalf("passthrough: %v", err)
	}
	if !bytes.Equal(out, raw) {
		t.Error("non-WAV input was modified")
	}
}
