package imgclass

import (
	"bytes"

	"github.com/bep/imagemeta"
)

// ImageMetadata holds the EXIF, IPTC and XMP fields the loader and the
// download manifest care about.
type ImageMetadata struct {
	// Orientation is the EXIF orientation (1..8); 0 when absent.
	Orientation int
	Artist      string
	Copyright   string
}

// wantedTags maps (source, tag-name) → true for every tag we care about.
var wantedTags = map[imagemeta.Source]map[string]bool{
	imagemeta.EXIF: {
		"Orientation": true,
		"Artist":      true,
		"Copyright":   true,
	},
	imagemeta.IPTC: {
		"CopyrightNotice": true,
		"Byline":          true,
	},
	imagemeta.XMP: {
		"Rights":  true,
		"Creator": true,
	},
}

// ExtractImageMetadata parses EXIF/IPTC/XMP metadata from raw image bytes.
// Returns nil if the data is empty, cannot be parsed or carries none of the
// wanted tags. EXIF values win over IPTC and XMP ones.
func ExtractImageMetadata(data []byte) *ImageMetadata {
	format, ok := metaFormat(data)
	if !ok {
		return nil
	}

	meta := &ImageMetadata{}
	found := false

	_, err := imagemeta.Decode(imagemeta.Options{
		R:           bytes.NewReader(data),
		ImageFormat: format,
		Sources:     imagemeta.EXIF | imagemeta.IPTC | imagemeta.XMP,
		ShouldHandleTag: func(ti imagemeta.TagInfo) bool {
			if tags, ok := wantedTags[ti.Source]; ok {
				return tags[ti.Tag]
			}
			return false
		},
		HandleTag: func(ti imagemeta.TagInfo) error {
			if ti.Source == imagemeta.EXIF && ti.Tag == "Orientation" {
				if o := tagValueInt(ti.Value); o >= 1 && o <= 8 {
					meta.Orientation = o
					found = true
				}
				return nil
			}
			s := tagValueString(ti.Value)
			if s == "" {
				return nil
			}
			switch ti.Tag {
			case "Artist", "Byline", "Creator":
				if meta.Artist == "" || ti.Source == imagemeta.EXIF {
					meta.Artist = s
				}
			case "Copyright", "CopyrightNotice", "Rights":
				if meta.Copyright == "" || ti.Source == imagemeta.EXIF {
					meta.Copyright = s
				}
			default:
				return nil
			}
			found = true
			return nil
		},
	})

	if err != nil || !found {
		return nil
	}

	return meta
}

// metaFormat sniffs the container format from magic bytes; imagemeta does
// not detect it on its own.
func metaFormat(data []byte) (imagemeta.ImageFormat, bool) {
	switch {
	case bytes.HasPrefix(data, []byte{0xff, 0xd8}):
		return imagemeta.JPEG, true
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return imagemeta.PNG, true
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return imagemeta.WebP, true
	case bytes.HasPrefix(data, []byte("II*\x00")), bytes.HasPrefix(data, []byte("MM\x00*")):
		return imagemeta.TIFF, true
	}
	return 0, false
}

// tagValueString extracts a string from a tag value.
// XMP values may be string or []string (from altList/seqList).
func tagValueString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []string:
		if len(val) > 0 {
			return val[0]
		}
		return ""
	case []any:
		if len(val) > 0 {
			if s, ok := val[0].(string); ok {
				return s
			}
		}
		return ""
	default:
		return ""
	}
}

// tagValueInt extracts an integer from a numeric tag value.
func tagValueInt(v any) int {
	switch val := v.(type) {
	case int:
		return val
	case uint16:
		return int(val)
	case uint32:
		return int(val)
	case int64:
		return int(val)
	case []uint16:
		if len(val) > 0 {
			return int(val[0])
		}
	}
	return 0
}
