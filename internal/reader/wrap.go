package reader

// Wrap greedily breaks text into display lines of at most width characters,
// counting runes rather than display columns. Lines break at spaces; a word
// longer than width is never split, it overflows its line and the break
// happens at the next space.
func Wrap(text string, width int) []string {
	var wrapped []string

	// start and lastSpace are byte offsets, the counters are in runes.
	start := 0
	lastSpace := -1
	lineLen := 0
	wordLen := 0

	for i, r := range text {
		if r == ' ' {
			lastSpace = i
			wordLen = 0
		} else {
			wordLen++
		}
		lineLen++
		if lineLen > width && lastSpace >= start {
			wrapped = append(wrapped, text[start:lastSpace])
			start = lastSpace + 1
			lineLen = wordLen
		}
	}
	return append(wrapped, text[start:])
}
