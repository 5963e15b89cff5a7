package graph

import (
	"strings"
	"unicode/utf8"
)

var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// SplitText cuts text into windows of at most chunkSize runes where
// consecutive windows share up to chunkOverlap runes. It splits on paragraph
// breaks first, then lines, then words, then single characters, so windows end
// on the coarsest boundary that fits. Windows are returned in document order
// and are trimmed of surrounding whitespace; empty windows are dropped.
func SplitText(text string, chunkSize, chunkOverlap int) []string {
	if chunkSize <= 0 {
		return nil
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 0
	}
	s := splitter{size: chunkSize, overlap: chunkOverlap}
	return s.split(text, defaultSeparators)
}

type splitter struct {
	size    int
	overlap int
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

func (s splitter) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var rest []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			rest = separators[i+1:]
			break
		}
	}

	var pieces []string
	if separator == "" {
		pieces = strings.Split(text, "")
	} else {
		pieces = strings.Split(text, separator)
	}

	var out, good []string
	for _, p := range pieces {
		if p == "" {
			continue
		}
		if runeLen(p) < s.size {
			good = append(good, p)
			continue
		}
		if len(good) > 0 {
			out = append(out, s.merge(good, separator)...)
			good = nil
		}
		if len(rest) == 0 {
			out = append(out, p)
		} else {
			out = append(out, s.split(p, rest)...)
		}
	}
	if len(good) > 0 {
		out = append(out, s.merge(good, separator)...)
	}
	return out
}

// merge packs small pieces into windows, carrying the tail of each window into
// the next one as overlap.
func (s splitter) merge(pieces []string, separator string) []string {
	sepLen := runeLen(separator)
	var (
		docs    []string
		current []string
		total   int
	)
	joinLen := func() int {
		if len(current) > 0 {
			return sepLen
		}
		return 0
	}

	for _, p := range pieces {
		l := runeLen(p)
		if total+l+joinLen() > s.size && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, separator)); doc != "" {
				docs = append(docs, doc)
			}
			for total > s.overlap || (total+l+joinLen() > s.size && total > 0) {
				drop := runeLen(current[0])
				if len(current) > 1 {
					drop += sepLen
				}
				total -= drop
				current = current[1:]
			}
		}
		current = append(current, p)
		total += l
		if len(current) > 1 {
			total += sepLen
		}
	}
	if doc := strings.TrimSpace(strings.Join(current, separator)); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}
