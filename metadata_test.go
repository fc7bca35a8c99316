package imgclass

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// withEXIF inserts a little-endian EXIF APP1 segment right after the SOI
// marker of jpg, carrying Orientation and, when non-empty, Artist in IFD0.
func withEXIF(jpg []byte, orientation uint16, artist string) []byte {
	le := binary.LittleEndian
	n := uint16(1)
	if artist != "" {
		n = 2
	}
	dataOffset := uint32(8 + 2 + 12*int(n) + 4)

	var tiff bytes.Buffer
	tiff.WriteString("II")
	_ = binary.Write(&tiff, le, uint16(42))
	_ = binary.Write(&tiff, le, uint32(8))
	_ = binary.Write(&tiff, le, n)

	// Orientation: SHORT, count 1, value inline.
	_ = binary.Write(&tiff, le, []uint16{0x0112, 3})
	_ = binary.Write(&tiff, le, uint32(1))
	_ = binary.Write(&tiff, le, []uint16{orientation, 0})

	if artist != "" {
		// Artist: ASCII with trailing NUL, stored after the IFD.
		_ = binary.Write(&tiff, le, []uint16{0x013b, 2})
		_ = binary.Write(&tiff, le, uint32(len(artist)+1))
		_ = binary.Write(&tiff, le, dataOffset)
	}
	_ = binary.Write(&tiff, le, uint32(0)) // no IFD1
	if artist != "" {
		tiff.WriteString(artist)
		tiff.WriteByte(0)
	}

	payload := append([]byte("Exif\x00\x00"), tiff.Bytes()...)
	var out bytes.Buffer
	out.Write(jpg[:2])
	out.Write([]byte{0xff, 0xe1})
	_ = binary.Write(&out, binary.BigEndian, uint16(len(payload)+2))
	out.Write(payload)
	out.Write(jpg[2:])
	return out.Bytes()
}

func TestExtractImageMetadata_NilAndEmpty(t *testing.T) {
	t.Parallel()

	if got := ExtractImageMetadata(nil); got != nil {
		t.Errorf("ExtractImageMetadata(nil) = %+v, want nil", got)
	}
	if got := ExtractImageMetadata([]byte{}); got != nil {
		t.Errorf("ExtractImageMetadata(empty) = %+v, want nil", got)
	}
	if got := ExtractImageMetadata([]byte("not an image")); got != nil {
		t.Errorf("ExtractImageMetadata(garbage) = %+v, want nil", got)
	}
}

func TestExtractImageMetadata_PlainJPEG(t *testing.T) {
	t.Parallel()

	// The standard encoder writes no EXIF, IPTC or XMP segments.
	if got := ExtractImageMetadata(makeJPEG(8, 8)); got != nil {
		t.Errorf("ExtractImageMetadata(plain jpeg) = %+v, want nil", got)
	}
}

func TestExtractImageMetadata_EXIF(t *testing.T) {
	t.Parallel()

	got := ExtractImageMetadata(withEXIF(makeJPEG(8, 4), 6, "Jane Doe"))
	if got == nil {
		t.Fatal("ExtractImageMetadata = nil, want orientation and artist")
	}
	if got.Orientation != 6 {
		t.Errorf("Orientation = %d, want 6", got.Orientation)
	}
	if got.Artist != "Jane Doe" {
		t.Errorf("Artist = %q, want Jane Doe", got.Artist)
	}
}

func TestExtractImageMetadata_OrientationOnly(t *testing.T) {
	t.Parallel()

	got := ExtractImageMetadata(withEXIF(makeJPEG(8, 4), 3, ""))
	if got == nil || got.Orientation != 3 || got.Artist != "" {
		t.Errorf("ExtractImageMetadata = %+v, want orientation 3 only", got)
	}
}

func TestMetaFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
		ok   bool
	}{
		{name: "jpeg", data: makeJPEG(2, 2), ok: true},
		{name: "png", data: []byte("\x89PNG\r\n\x1a\n...."), ok: true},
		{name: "webp", data: []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), ok: true},
		{name: "tiff", data: []byte("II*\x00\x08\x00\x00\x00"), ok: true},
		{name: "html", data: []byte("<html>"), ok: false},
		{name: "empty", data: nil, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, ok := metaFormat(tt.data); ok != tt.ok {
				t.Errorf("metaFormat ok = %v, want %v", ok, tt.ok)
			}
		})
	}
}

func TestTagValueString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		v    any
		want string
	}{
		{name: "string", v: "Jane Doe", want: "Jane Doe"},
		{name: "string slice", v: []string{"first", "second"}, want: "first"},
		{name: "empty slice", v: []string{}, want: ""},
		{name: "any slice", v: []any{"x"}, want: "x"},
		{name: "any slice non-string", v: []any{3}, want: ""},
		{name: "number", v: 42, want: ""},
		{name: "nil", v: nil, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tagValueString(tt.v); got != tt.want {
				t.Errorf("tagValueString(%v) = %q, want %q", tt.v, got, tt.want)
			}
		})
	}
}

func TestTagValueInt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		v    any
		want int
	}{
		{name: "int", v: 6, want: 6},
		{name: "uint16", v: uint16(3), want: 3},
		{name: "uint32", v: uint32(8), want: 8},
		{name: "int64", v: int64(2), want: 2},
		{name: "uint16 slice", v: []uint16{5, 1}, want: 5},
		{name: "empty slice", v: []uint16{}, want: 0},
		{name: "string", v: "6", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tagValueInt(tt.v); got != tt.want {
				t.Errorf("tagValueInt(%v) = %d, want %d", tt.v, got, tt.want)
			}
		})
	}
}
