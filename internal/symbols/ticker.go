// Package symbols normalises the ticker symbols users type into the
// watchlist.
package symbols

import "strings"

// exchangePrefixes are venue qualifiers accepted in front of a ticker.
var exchangePrefixes = []string{"NASDAQ:", "NYSE:", "AMEX:", "NYSEARCA:"}

// Normalize converts a user supplied ticker to its canonical form.
// Examples:
//
//	" aapl "      -> AAPL
//	"NASDAQ:nvda" -> NVDA
//	"tsla.us"     -> TSLA
//	"brk/b"       -> BRK.B
//
// The function trims whitespace, uppercases, drops a venue prefix and the
// ".US" suffix, and writes share classes with a dot.
func Normalize(sym string) string {
	sym = strings.ToUpper(strings.TrimSpace(sym))
	for _, p := range exchangePrefixes {
		if strings.HasPrefix(sym, p) {
			sym = strings.TrimSpace(sym[len(p):])
			break
		}
	}
	sym = strings.TrimSuffix(sym, ".US")
	sym = strings.ReplaceAll(sym, "/", ".")
	return sym
}
