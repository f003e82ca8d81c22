package stt

import (
	"regexp"
	"strings"
)

// nonSpeechTokens are bracketed markers whisper emits for non-speech audio.
var nonSpeechTokens = []string{
	"[BLANK_AUDIO]",
	"[SILENCE]",
	"[NOISE]",
	"[MUSIC]",
	"[SPEECH]",
	"[INAUDIBLE]",
}

// ambientTag matches parenthesized ambient-sound descriptors like
// "(siren wailing)" or "(keyboard clicking)".
var ambientTag = regexp.MustCompile(`\([a-zA-Z][a-zA-Z\s,'-]*\)`)

var multiSpace = regexp.MustCompile(`\s{2,}`)

// Sanitize removes non-speech tokens and ambient descriptors from decoded
// text and collapses the leftover whitespace.
func Sanitize(text string) string {
	for _, tok := range nonSpeechTokens {
		text = strings.ReplaceAll(text, tok, "")
	}
	text = ambientTag.ReplaceAllString(text, "")
	text = multiSpace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
