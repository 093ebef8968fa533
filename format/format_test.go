package format

import (
	"bytes"
	"testing"
)

func sampleMetadata() Metadata {
	return Metadata{
		Version:     2,
		Salt:        "AAAAAAAAAAAAAAAAAAAAAA==",
		BlockSize:   262144,
		Mode:        ModeTwoPass,
		Compression: "lz4",
		Algo:        "chacha20",
		Permute:     true,
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	metaJSON, err := MarshalMetadata(sampleMetadata())
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := WriteHeader(&buf, 2, metaJSON); err != nil {
		t.Fatal(err)
	}
	version, gotMeta, err := ReadHeader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if version != 2 {
		t.Fatalf("expected version 2, got %d", version)
	}
	if !bytes.Equal(gotMeta, metaJSON) {
		t.Fatal("metadata bytes did not round trip exactly")
	}
}

func TestReadHeaderRejectsBadMagic(t *testing.T) {
	buf := bytes.NewBuffer([]byte("XXXX\x02\x00\x00\x00\x00\x00\x00\x00"))
	if _, _, err := ReadHeader(buf); err == nil {
		t.Fatal("expected FormatError for bad magic")
	}
}

func TestReadHeaderRejectsUnknownVersion(t *testing.T) {
	hdr := append([]byte{}, Magic[:]...)
	hdr = append(hdr, 9, 0, 0, 0, 0, 0, 0, 0)
	if _, _, err := ReadHeader(bytes.NewBuffer(hdr)); err == nil {
		t.Fatal("expected FormatError for unknown version")
	}
}

func TestFooterWriteAndLocate(t *testing.T) {
	f := Footer{
		Blocks: []BlockEntry{
			{Offset: 16, Nonce: "bm9uY2Uxbm9uY2Ux", Length: 100},
			{Offset: 116, Nonce: "bm9uY2UyMTIzNDU2", Length: 100},
		},
		GlobalCiphertextSHA256: "abc123",
	}
	var buf bytes.Buffer
	buf.WriteString("HEADERANDBLOCKSGOHERE")
	blocksEndWant := int64(buf.Len())
	if err := WriteFooter(&buf, f); err != nil {
		t.Fatal(err)
	}

	ra := bytes.NewReader(buf.Bytes())
	got, blocksEnd, err := LocateFooter(ra, int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}
	if blocksEnd != blocksEndWant {
		t.Fatalf("expected blocksEnd %d, got %d", blocksEndWant, blocksEnd)
	}
	if len(got.Blocks) != 2 || got.GlobalCiphertextSHA256 != "abc123" {
		t.Fatalf("footer did not round trip: %+v", got)
	}
}

func TestLocateFooterRejectsMissingDelimiter(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("not a real container at all, just junk bytes")
	ra := bytes.NewReader(buf.Bytes())
	if _, _, err := LocateFooter(ra, int64(buf.Len())); err == nil {
		t.Fatal("expected FormatError for missing delimiter")
	}
}

func TestValidateBlockIndexDetectsGap(t *testing.T) {
	blocks := []BlockEntry{
		{Offset: 0, Length: 10},
		{Offset: 15, Length: 10},
	}
	if err := ValidateBlockIndex(blocks, 0); err == nil {
		t.Fatal("expected error for non-contiguous block offsets")
	}
}

func TestValidateBlockIndexAcceptsContiguous(t *testing.T) {
	blocks := []BlockEntry{
		{Offset: 5, Length: 10},
		{Offset: 15, Length: 20},
	}
	if err := ValidateBlockIndex(blocks, 5); err != nil {
		t.Fatal(err)
	}
}

func TestDelimiterLenMatchesLiteral(t *testing.T) {
	if len(Delimiter) != DelimiterLen {
		t.Fatalf("DelimiterLen constant (%d) disagrees with len(Delimiter) (%d)", DelimiterLen, len(Delimiter))
	}
	if DelimiterLen != 11 {
		t.Fatalf("expected the QDELIMITERQ literal to be 11 bytes, got %d", DelimiterLen)
	}
}
