package shm

import "testing"

func TestHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, SegmentHeaderSize)
	EncodeHeader(buf, 7, 1234567890, "openxrd-build-abc123")

	version, ts, buildID := DecodeHeader(buf)
	if version != 7 {
		t.Errorf("version = %d, want 7", version)
	}
	if ts != 1234567890 {
		t.Errorf("timestamp = %d, want 1234567890", ts)
	}
	if buildID != "openxrd-build-abc123" {
		t.Errorf("buildID = %q", buildID)
	}
}

func TestHeaderTruncatesLongBuildID(t *testing.T) {
	buf := make([]byte, SegmentHeaderSize)
	long := ""
	for i := 0; i < 200; i++ {
		long += "x"
	}
	EncodeHeader(buf, 1, 0, long)
	_, _, got := DecodeHeader(buf)
	if len(got) != 64 {
		t.Fatalf("expected build id truncated to 64 bytes, got %d", len(got))
	}
}
