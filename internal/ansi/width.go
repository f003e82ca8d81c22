package ansi

import "github.com/mattn/go-runewidth"

// DisplayWidth returns the number of terminal columns s occupies. Escape
// sequences must already be stripped; wide runes count as 2 columns.
func DisplayWidth(s string) int {
	return runewidth.StringWidth(s)
}

// TruncateToWidth clips s to at most cols display columns. No ellipsis is
// added; callers clipping HUD rows pad separately.
func TruncateToWidth(s string, cols int) string {
	if cols <= 0 {
		return ""
	}
	return runewidth.Truncate(s, cols, "")
}

// PadToWidth right-pads s with spaces to exactly cols columns, truncating
// first if it is too wide.
func PadToWidth(s string, cols int) string {
	s = TruncateToWidth(s, cols)
	return runewidth.FillRight(s, cols)
}

// TrimLeftToWidth drops runes from the left until s fits in cols columns,
// keeping the most recent tail. Used by rows that show rolling history.
func TrimLeftToWidth(s string, cols int) string {
	if cols <= 0 {
		return ""
	}
	runes := []rune(s)
	for len(runes) > 0 && runewidth.StringWidth(string(runes)) > cols {
		runes = runes[1:]
	}
	return string(runes)
}
