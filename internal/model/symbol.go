package model

import "strings"

// QuoteAssets is the ranked list used to split separator-less symbols
// such as "BTCUSDT". Longer codes that end with a shorter one (BUSD, TUSD)
// are listed before it so "BTCBUSD" resolves to BTC-BUSD, not BTCB-USD.
var QuoteAssets = []string{
	"USDT", "USDC", "FDUSD", "BUSD", "TUSD", "USD",
	"EUR", "TRY", "BTC", "ETH", "BNB",
}

// legacySuffixes are venue markers appended to spot symbols by older APIs.
var legacySuffixes = []string{"_SPBL"}

// Canonical joins base and quote assets into a canonical symbol.
func Canonical(base, quote string) string {
	return strings.ToUpper(base) + "-" + strings.ToUpper(quote)
}

// SplitSymbol splits a canonical symbol into base and quote.
func SplitSymbol(symbol string) (base, quote string, ok bool) {
	base, quote, ok = strings.Cut(symbol, "-")
	if !ok || base == "" || quote == "" || strings.Contains(quote, "-") {
		return "", "", false
	}
	return base, quote, true
}

// SplitQuoteAsset splits a separator-less symbol on the first ranked quote
// asset it ends with.
func SplitQuoteAsset(s string) (base, quote string, ok bool) {
	s = strings.ToUpper(s)
	for _, q := range QuoteAssets {
		if len(s) > len(q) && strings.HasSuffix(s, q) {
			return s[:len(s)-len(q)], q, true
		}
	}
	return "", "", false
}

// NormalizeSymbol converts any venue spelling into the canonical form.
//
// Accepted separators are "-", "_" and "/". Symbols without a separator are
// split on the ranked quote asset list. Input that matches none of these is
// returned upper-cased and otherwise unchanged. The function is idempotent.
func NormalizeSymbol(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	for _, suffix := range legacySuffixes {
		s = strings.TrimSuffix(s, suffix)
	}

	for _, sep := range []string{"-", "_", "/"} {
		base, quote, ok := strings.Cut(s, sep)
		if !ok {
			continue
		}
		if base == "" || quote == "" || strings.ContainsAny(quote, "-_/") {
			return s
		}
		return base + "-" + quote
	}

	if base, quote, ok := SplitQuoteAsset(s); ok {
		return base + "-" + quote
	}
	return s
}

// JoinSymbol renders a canonical symbol with a venue separator.
// Unsplittable input is returned unchanged.
func JoinSymbol(symbol, sep string) string {
	base, quote, ok := SplitSymbol(NormalizeSymbol(symbol))
	if !ok {
		return strings.ToUpper(symbol)
	}
	return base + sep + quote
}
