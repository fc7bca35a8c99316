package imgclass

import "strings"

// ClassDirName derives a directory name from a synset's words: the first
// comma-separated synonym, lower-cased, with runs of whitespace turned into
// underscores and path separators stripped.
func ClassDirName(words string) string {
	first, _, _ := strings.Cut(words, ",")
	first = strings.Trim(first, " \t\"'()[]{}.;:!?")
	fields := strings.Fields(strings.ToLower(first))
	name := strings.Join(fields, "_")
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' {
			return -1
		}
		return r
	}, name)
}
