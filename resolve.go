package imgclass

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
)

const synsetPageMaxBytes = 2 << 20

var targetIDRe = regexp.MustCompile(`(?m)^target_id = '([0-9]+)';\r?$`)

// ExtractTargetID pulls the numeric synset id out of an ImageNet synset page.
// Returns false if the page has no target_id assignment.
func ExtractTargetID(page string) (int, bool) {
	m := targetIDRe.FindStringSubmatch(page)
	if m == nil {
		return 0, false
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return id, true
}

// SynsetPageURL returns the resolver page for wnid.
func (cfg *Config) SynsetPageURL(wnid string) string {
	cfg.defaults()
	return cfg.BaseURL + "/synset?wnid=" + url.QueryEscape(wnid)
}

// ResolveSynsetID fetches the synset page for wnid and returns the internal
// numeric id ImageNet uses for its index queries.
func (cfg *Config) ResolveSynsetID(ctx context.Context, wnid string) (int, error) {
	pageURL := cfg.SynsetPageURL(wnid)
	body, err := cfg.fetch(ctx, pageURL, synsetPageMaxBytes)
	if err != nil {
		return 0, fmt.Errorf("fetch synset page: %w", err)
	}
	id, ok := ExtractTargetID(string(body))
	if !ok {
		return 0, fmt.Errorf("%w: no target id in %s", ErrSynsetNotFound, pageURL)
	}
	return id, nil
}
