package venues

import (
	"testing"

	"github.com/rickgao/arb-feed/internal/exchange"
	"github.com/rickgao/arb-feed/internal/model"
)

func TestNew_AllVenues(t *testing.T) {
	for _, v := range model.Venues {
		t.Run(string(v), func(t *testing.T) {
			a, err := New(v, exchange.DefaultConfig(), nil)
			if err != nil {
				t.Fatalf("New(%s): %v", v, err)
			}
			if a.Venue() != v {
				t.Errorf("Venue() = %q, want %q", a.Venue(), v)
			}
			if st := a.Status(); st.State != "disconnected" || len(st.Subscriptions) != 0 {
				t.Errorf("Status() = %+v, want disconnected with no subscriptions", st)
			}
		})
	}
}

func TestProtocol_Unknown(t *testing.T) {
	if _, err := Protocol("kraken"); err == nil {
		t.Error("expected error for unknown venue")
	}
}

// Every venue must round-trip its own native spelling of the same pairs.
func TestProtocol_NormalizeRoundTrip(t *testing.T) {
	symbols := []string{"BTC-USDT", "ETH-USDC", "SOL-BTC", "DOGE-EUR"}

	for _, v := range model.Venues {
		p, err := Protocol(v)
		if err != nil {
			t.Fatalf("Protocol(%s): %v", v, err)
		}
		for _, s := range symbols {
			native := p.DenormalizeSymbol(s)
			if got := p.NormalizeSymbol(native); got != s {
				t.Errorf("%s: NormalizeSymbol(DenormalizeSymbol(%q)) = %q", v, s, got)
			}
			if got := p.NormalizeSymbol(p.NormalizeSymbol(native)); got != s {
				t.Errorf("%s: NormalizeSymbol not idempotent for %q", v, native)
			}
		}
	}
}
