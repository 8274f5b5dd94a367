package tts

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultSegmentLength is the longest text sent in a single synthesis
// request. Replies longer than this are split at sentence boundaries.
const DefaultSegmentLength = 400

// Abbreviations that end in a period without ending the sentence.
var abbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true,
	"sr": true, "jr": true, "st": true, "vs": true, "etc": true,
	"inc": true, "ltd": true, "co": true, "no": true, "ave": true,
	"e.g": true, "i.e": true, "a.m": true, "p.m": true, "approx": true,
}

// Titles are usually followed by a name, so they never end a sentence.
var titles = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true,
	"sr": true, "jr": true, "st": true,
}

var (
	decimalTail = regexp.MustCompile(`[$€£]?\d+\.$`)
	sentenceEnd = map[rune]bool{'.': true, '!': true, '?': true, ';': true, '。': true, '！': true, '？': true}
	softBreak   = map[rune]bool{',': true, ':': true, '，': true, '：': true, '、': true}
)

// Sentences splits text at sentence-ending punctuation. Periods after
// abbreviations and inside numbers do not split.
func Sentences(text string) []string {
	runes := []rune(text)
	var (
		out   []string
		start int
	)
	for i, r := range runes {
		if !sentenceEnd[r] {
			continue
		}
		if r == '.' && !endsSentence(string(runes[start:i+1]), string(runes[i+1:])) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

func endsSentence(before, after string) bool {
	if after != "" {
		next, _ := utf8.DecodeRuneInString(after)
		if !unicode.IsSpace(next) {
			// "3.5", "example.com"
			return false
		}
	}

	word := lastWord(before)
	if titles[word] {
		return false
	}
	if abbreviations[word] || decimalTail.MatchString(before) {
		return startsSentence(after)
	}
	return true
}

func lastWord(text string) string {
	fields := strings.Fields(strings.TrimSuffix(text, "."))
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[len(fields)-1])
}

func startsSentence(after string) bool {
	trimmed := strings.TrimLeft(after, " \t\n")
	if trimmed == "" {
		return false
	}
	first, _ := utf8.DecodeRuneInString(trimmed)
	return unicode.IsUpper(first)
}

// Segment packs the sentences of text into chunks of at most maxLen runes.
// A sentence longer than maxLen is broken at the last comma or space that
// fits, or hard at maxLen when there is none.
func Segment(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = DefaultSegmentLength
	}

	var (
		out []string
		cur strings.Builder
	)
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}

	for _, sentence := range Sentences(text) {
		for _, piece := range breakLong(sentence, maxLen) {
			n := utf8.RuneCountInString(piece)
			if cur.Len() > 0 && utf8.RuneCountInString(cur.String())+1+n > maxLen {
				flush()
			}
			if cur.Len() > 0 {
				cur.WriteByte(' ')
			}
			cur.WriteString(piece)
		}
	}
	flush()
	return out
}

func breakLong(sentence string, maxLen int) []string {
	var out []string
	runes := []rune(sentence)
	for len(runes) > maxLen {
		cut := maxLen
		if i := lastBreak(runes[:maxLen], softBreak); i > 0 {
			cut = i + 1
		} else if i := lastSpace(runes[:maxLen]); i > 0 {
			cut = i
		}
		if s := strings.TrimSpace(string(runes[:cut])); s != "" {
			out = append(out, s)
		}
		runes = []rune(strings.TrimLeftFunc(string(runes[cut:]), unicode.IsSpace))
	}
	if s := strings.TrimSpace(string(runes)); s != "" {
		out = append(out, s)
	}
	return out
}

func lastBreak(runes []rune, set map[rune]bool) int {
	for i := len(runes) - 1; i > 0; i-- {
		if set[runes[i]] {
			return i
		}
	}
	return -1
}

func lastSpace(runes []rune) int {
	for i := len(runes) - 1; i > 0; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return -1
}
