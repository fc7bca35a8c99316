package imgclass

import (
	"fmt"
	"regexp"
	"strings"
)

var wnidRe = regexp.MustCompile(`^n[0-9]{8}$`)

// VerifyWNID checks that wnid looks like a WordNet ID (for example
// "n00007846"). The check is case-insensitive and the input is returned
// unchanged on success.
func VerifyWNID(wnid string) (string, error) {
	if !wnidRe.MatchString(strings.ToLower(wnid)) {
		return "", fmt.Errorf("%w: %q (example: n00007846)", ErrInvalidWNID, wnid)
	}
	return wnid, nil
}
