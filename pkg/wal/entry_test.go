package wal

import "testing"

func TestFrameEncodeDecodeRoundTrip(t *testing.T) {
	f := &Frame{LSN: 42, PageID: 7, PageSize: 4096, Payload: make([]byte, 4096)}
	for i := range f.Payload {
		f.Payload[i] = byte(i)
	}

	buf := f.Encode()
	if len(buf) != f.Size() {
		t.Fatalf("Encode length = %d, want %d", len(buf), f.Size())
	}

	got, err := DecodeFrame(buf)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if got.LSN != f.LSN || got.PageID != f.PageID || got.PageSize != f.PageSize {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if len(got.Payload) != len(f.Payload) || got.Payload[100] != f.Payload[100] {
		t.Fatal("payload round trip mismatch")
	}
}

func TestDecodeFrameDetectsCorruption(t *testing.T) {
	f := &Frame{LSN: 1, PageID: 1, PageSize: 16, Payload: make([]byte, 16)}
	buf := f.Encode()
	buf[FrameHeaderSize] ^= 0xFF // flip a payload byte

	if _, err := DecodeFrame(buf); err != ErrCorrupted {
		t.Fatalf("DecodeFrame() error = %v, want ErrCorrupted", err)
	}
}

func TestDecodeFrameDetectsTruncation(t *testing.T) {
	f := &Frame{LSN: 1, PageID: 1, PageSize: 16, Payload: make([]byte, 16)}
	buf := f.Encode()

	if _, err := DecodeFrame(buf[:10]); err != ErrTruncated {
		t.Fatalf("short header: error = %v, want ErrTruncated", err)
	}
	if _, err := DecodeFrame(buf[:len(buf)-4]); err != ErrTruncated {
		t.Fatalf("short payload: error = %v, want ErrTruncated", err)
	}
}
