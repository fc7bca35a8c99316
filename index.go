package imgclass

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

const indexMaxBytes = 16 << 20

// ImageRecord is one <image> entry of the ImageNet synset index.
type ImageRecord struct {
	Node         string `xml:"node,attr"`
	SynsetOffset string `xml:"synsetoffset,attr"`
	Prefix       string `xml:"prefix,attr"`
}

// imageIndex mirrors the response of the ImagesXML endpoint. The imageset
// element sits one level below the document root.
type imageIndex struct {
	ImageSet struct {
		Total  int           `xml:"total,attr"`
		Images []ImageRecord `xml:"image"`
	} `xml:"imageset"`
}

// IndexURL returns the ImagesXML query for synsetID limited to n images.
func (cfg *Config) IndexURL(synsetID, n int) string {
	cfg.defaults()
	return fmt.Sprintf("%s/python/gp.py/ImagesXML?type=synsetgood&synsetid=%d&start=0&n=%d",
		cfg.BaseURL, synsetID, n)
}

// ThumbURL builds the thumbnail location of rec on the ImageNet node server.
func ThumbURL(baseURL string, rec ImageRecord) string {
	dir := rec.Prefix
	if len(dir) > 2 {
		dir = dir[:2]
	}
	return fmt.Sprintf("%s/nodes/%s/%s/%s/%s.thumb",
		strings.TrimSuffix(baseURL, "/"), rec.Node, rec.SynsetOffset, dir, rec.Prefix)
}

// ParseImageIndex decodes an ImagesXML document.
func ParseImageIndex(data []byte) (total int, records []ImageRecord, err error) {
	var idx imageIndex
	dec := xml.NewDecoder(bytes.NewReader(data))
	// The index is served as latin-1 on some mirrors; record attributes are ASCII.
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) { return input, nil }
	if err := dec.Decode(&idx); err != nil {
		return 0, nil, fmt.Errorf("parse image index: %w", err)
	}
	return idx.ImageSet.Total, idx.ImageSet.Images, nil
}

// CountImages returns how many images ImageNet lists for synsetID.
func (cfg *Config) CountImages(ctx context.Context, synsetID int) (int, error) {
	body, err := cfg.fetch(ctx, cfg.IndexURL(synsetID, 0), indexMaxBytes)
	if err != nil {
		return 0, fmt.Errorf("fetch image count: %w", err)
	}
	total, _, err := ParseImageIndex(body)
	if err != nil {
		return 0, err
	}
	return total, nil
}

// ImageRecords returns the index entries of the first n images of synsetID.
func (cfg *Config) ImageRecords(ctx context.Context, synsetID, n int) ([]ImageRecord, error) {
	body, err := cfg.fetch(ctx, cfg.IndexURL(synsetID, n), indexMaxBytes)
	if err != nil {
		return nil, fmt.Errorf("fetch image index: %w", err)
	}
	_, records, err := ParseImageIndex(body)
	if err != nil {
		return nil, err
	}
	if len(records) > n {
		records = records[:n]
	}
	return records, nil
}
