package tts

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxChunkBytes stays under the API's 5000 byte input limit.
const maxChunkBytes = 4500

// splitText breaks text into pieces of at most limit bytes, preferring
// sentence ends, then spaces, then a hard cut on a rune boundary.
func splitText(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
	}

	for _, sentence := range sentences(text) {
		if cur.Len()+len(sentence) <= limit {
			cur.WriteString(sentence)
			continue
		}
		flush()
		if len(sentence) <= limit {
			cur.WriteString(sentence)
			continue
		}
		for _, word := range strings.SplitAfter(sentence, " ") {
			if cur.Len()+len(word) <= limit {
				cur.WriteString(word)
				continue
			}
			flush()
			for len(word) > limit {
				cut := runeBoundary(word, limit)
				chunks = append(chunks, word[:cut])
				word = word[cut:]
			}
			cur.WriteString(word)
		}
	}
	flush()
	return chunks
}

// sentences splits after '.', '!' or '?' followed by whitespace, keeping the
// separators attached so joining the pieces gives back the input.
func sentences(text string) []string {
	var out []string
	start := 0
	for i, r := range text {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		next := i + utf8.RuneLen(r)
		if next >= len(text) {
			break
		}
		nr, _ := utf8.DecodeRuneInString(text[next:])
		if unicode.IsSpace(nr) {
			out = append(out, text[start:next+utf8.RuneLen(nr)])
			start = next + utf8.RuneLen(nr)
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

func runeBoundary(s string, limit int) int {
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if cut == 0 {
		_, size := utf8.DecodeRuneInString(s)
		return size
	}
	return cut
}
