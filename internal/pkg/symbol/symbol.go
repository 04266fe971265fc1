// Package symbol parses instrument identifiers into base/quote pairs and
// renders them in the concatenated form the exchange expects.
package symbol

import "strings"

// Symbol is a parsed base/quote pair.
type Symbol struct {
	Base  string
	Quote string
}

// Internal renders the pair in slash-separated form, e.g. "BTC/USDT".
func (s Symbol) Internal() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + "/" + s.Quote
}

// Exchange renders the pair without a separator, e.g. "BTCUSDT".
func (s Symbol) Exchange() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + s.Quote
}

var quoteCurrencies = []string{"USDT", "BUSD", "USDC", "TUSD", "BTC", "ETH", "BNB"}

// Parse accepts "BTC/USDT", "BTC-USDT", settle-suffixed forms like
// "BTC/USDT:USDT", and plain "BTCUSDT". Unknown quotes yield a zero Symbol.
func Parse(s string) Symbol {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Symbol{}
	}

	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}
	s = strings.ReplaceAll(s, "-", "/")

	if parts := strings.SplitN(s, "/", 2); len(parts) == 2 {
		return Symbol{
			Base:  strings.TrimSpace(parts[0]),
			Quote: strings.TrimSpace(parts[1]),
		}
	}

	for _, quote := range quoteCurrencies {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return Symbol{
				Base:  s[:len(s)-len(quote)],
				Quote: quote,
			}
		}
	}

	return Symbol{}
}

// Exchange converts an identifier in any accepted form to the exchange's
// concatenated form. Identifiers that do not parse are returned uppercased
// with separators stripped, so callers can still pass them downstream.
func Exchange(s string) string {
	if sym := Parse(s); sym.Exchange() != "" {
		return sym.Exchange()
	}
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "/", "")
	return strings.ReplaceAll(s, "-", "")
}

// IsValid reports whether the identifier parses into a known base/quote pair.
func IsValid(s string) bool {
	sym := Parse(s)
	return sym.Base != "" && sym.Quote != ""
}
