package pipeline

import (
	"sort"
	"strings"
	"unicode"
)

var stopwords = map[string]bool{}

func init() {
	for _, w := range strings.Fields(`the a an and or but in on at to for of with by from as is was are were been
		be have has had do does did will would could should may might must shall can need it this that these
		those i you he she we they them their what which who when where why how not no yes our your its`) {
		stopwords[w] = true
	}
}

func normalizeWord(w string) string {
	return strings.ToLower(strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsNumber(r) }))
}

// Highlight wraps every word of text that also appears in question in "**".
// Stopwords are never highlighted.
func Highlight(text, question string) string {
	terms := make(map[string]bool)
	for _, w := range strings.Fields(question) {
		if n := normalizeWord(w); n != "" && !stopwords[n] {
			terms[n] = true
		}
	}
	if len(terms) == 0 {
		return text
	}
	words := strings.Fields(text)
	for i, w := range words {
		if terms[normalizeWord(w)] {
			words[i] = "**" + w + "**"
		}
	}
	return strings.Join(words, " ")
}

// Keywords returns up to n frequent non-stopword terms longer than three letters,
// most frequent first, ties in order of first appearance.
func Keywords(text string, n int) []string {
	counts := make(map[string]int)
	var order []string
	for _, w := range strings.Fields(text) {
		k := normalizeWord(w)
		if len([]rune(k)) <= 3 || stopwords[k] {
			continue
		}
		if counts[k] == 0 {
			order = append(order, k)
		}
		counts[k]++
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > n {
		order = order[:n]
	}
	return order
}
