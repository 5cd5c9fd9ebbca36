package model

import "testing"

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"BTC-USDT", "BTC-USDT"},
		{"btc-usdt", "BTC-USDT"},
		{"BTC_USDT", "BTC-USDT"},
		{"BTC/USDT", "BTC-USDT"},
		{"BTCUSDT", "BTC-USDT"},
		{"ethbtc", "ETH-BTC"},
		{"BTCBUSD", "BTC-BUSD"},
		{"BTCTUSD", "BTC-TUSD"},
		{"BTCUSD", "BTC-USD"},
		{"SOLFDUSD", "SOL-FDUSD"},
		{"BTCUSDT_SPBL", "BTC-USDT"},
		{" xrpeur ", "XRP-EUR"},
		{"FOOBAR", "FOOBAR"},
		{"A-B-C", "A-B-C"},
		{"USDT", "USDT"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeSymbol(tt.in); got != tt.want {
				t.Errorf("NormalizeSymbol(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeSymbol_Idempotent(t *testing.T) {
	inputs := []string{
		"BTCUSDT", "BTC_USDT", "btc/usdt", "ETH-BTC", "BTCUSDT_SPBL",
		"X_SPBL_SPBL", "-USDT", "FOO", "A-B-C", "bnbbusd", "",
	}

	for _, in := range inputs {
		once := NormalizeSymbol(in)
		twice := NormalizeSymbol(once)
		if once != twice {
			t.Errorf("NormalizeSymbol not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestJoinSymbol(t *testing.T) {
	tests := []struct {
		symbol string
		sep    string
		want   string
	}{
		{"BTC-USDT", "", "BTCUSDT"},
		{"BTC-USDT", "_", "BTC_USDT"},
		{"eth-btc", "-", "ETH-BTC"},
		{"FOO", "_", "FOO"},
	}

	for _, tt := range tests {
		if got := JoinSymbol(tt.symbol, tt.sep); got != tt.want {
			t.Errorf("JoinSymbol(%q, %q) = %q, want %q", tt.symbol, tt.sep, got, tt.want)
		}
	}
}

func TestSplitSymbol(t *testing.T) {
	base, quote, ok := SplitSymbol("BTC-USDT")
	if !ok || base != "BTC" || quote != "USDT" {
		t.Errorf("SplitSymbol(BTC-USDT) = %q, %q, %v", base, quote, ok)
	}

	if _, _, ok := SplitSymbol("BTCUSDT"); ok {
		t.Error("SplitSymbol(BTCUSDT) should fail")
	}
}

func TestParseVenue(t *testing.T) {
	v, err := ParseVenue("Binance")
	if err != nil {
		t.Fatalf("ParseVenue failed: %v", err)
	}
	if v != Binance {
		t.Errorf("ParseVenue = %q, want %q", v, Binance)
	}

	if _, err := ParseVenue("kraken"); err == nil {
		t.Error("expected error for unknown venue")
	}
}

func TestQuote_Inverted(t *testing.T) {
	q := Quote{Bid: 101, Ask: 100}
	if !q.Inverted() {
		t.Error("expected crossed quote to be inverted")
	}

	q = Quote{Bid: 100, Ask: 101}
	if q.Inverted() {
		t.Error("expected normal quote not to be inverted")
	}
	if q.Mid() != 100.5 {
		t.Errorf("Mid() = %v, want 100.5", q.Mid())
	}
}
