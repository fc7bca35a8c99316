package imgclass

import (
	"image"
	"sync"

	"github.com/corona10/goimagehash"
)

// dedupThreshold is the maximum Hamming distance between two dHash values
// below which images are considered perceptually identical.
const dedupThreshold = 10

// dedupFilter is a per-scrape deduplication filter based on perceptual hashing.
// It is safe for concurrent use.
type dedupFilter struct {
	mu     sync.Mutex
	hashes []*goimagehash.ImageHash
}

// isDuplicate returns true if img is perceptually identical to a previously seen
// image. If hashing fails for any reason, the image is accepted.
// When the image is accepted as unique, its hash is stored for future comparisons.
func (d *dedupFilter) isDuplicate(img image.Image) bool {
	hash, err := goimagehash.DifferenceHash(img)
	if err != nil {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, h := range d.hashes {
		dist, err := hash.Distance(h)
		if err == nil && dist < dedupThreshold {
			return true
		}
	}

	d.hashes = append(d.hashes, hash)
	return false
}

// DifferenceHash returns the hex dHash of img, or "" if it cannot be hashed.
func DifferenceHash(img image.Image) string {
	hash, err := goimagehash.DifferenceHash(img)
	if err != nil {
		return ""
	}
	return hash.ToString()
}

// NearDuplicates groups images whose dHash values differ by fewer than
// threshold bits. Each group lists indices in ascending order and holds at
// least two images; groups are ordered by their first index.
// A threshold <= 0 uses the scraper's dedup threshold.
func NearDuplicates(images []*Array, threshold int) [][]int {
	if threshold <= 0 {
		threshold = dedupThreshold
	}

	hashes := make([]*goimagehash.ImageHash, len(images))
	for i, a := range images {
		h, err := goimagehash.DifferenceHash(a.Image())
		if err == nil {
			hashes[i] = h
		}
	}

	assigned := make([]bool, len(images))
	var groups [][]int
	for i := range images {
		if assigned[i] || hashes[i] == nil {
			continue
		}
		group := []int{i}
		for j := i + 1; j < len(images); j++ {
			if assigned[j] || hashes[j] == nil {
				continue
			}
			dist, err := hashes[i].Distance(hashes[j])
			if err == nil && dist < threshold {
				group = append(group, j)
				assigned[j] = true
			}
		}
		if len(group) > 1 {
			assigned[i] = true
			groups = append(groups, group)
		}
	}
	return groups
}
