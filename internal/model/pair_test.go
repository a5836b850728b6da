package model

import "testing"

func TestPair_BusinessType(t *testing.T) {
	tests := []struct {
		name  string
		base  string
		quote string
		want  string
	}{
		{"eth-btc", "ETH", "BTC", "coin-btc-eth"},
		{"lowercase input", "eth", "btc", "coin-btc-eth"},
		{"mixed case", "Eth", "bTc", "coin-btc-eth"},
		{"usdt quote", "BTC", "USDT", "coin-usdt-btc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPair(tt.base, tt.quote)
			if got := p.BusinessType(); got != tt.want {
				t.Errorf("BusinessType() = %q, want %q", got, tt.want)
			}
			if got := p.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParsePair(t *testing.T) {
	p, err := ParsePair("coin-btc-eth")
	if err != nil {
		t.Fatalf("ParsePair() error = %v", err)
	}
	if p.Base != "ETH" {
		t.Errorf("Base = %q, want ETH", p.Base)
	}
	if p.Quote != "BTC" {
		t.Errorf("Quote = %q, want BTC", p.Quote)
	}

	// Round trip
	if got := p.BusinessType(); got != "coin-btc-eth" {
		t.Errorf("round trip = %q, want coin-btc-eth", got)
	}
}

func TestParsePair_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"no prefix", "btc-eth"},
		{"wrong prefix", "token-btc-eth"},
		{"missing base", "coin-btc-"},
		{"missing quote", "coin--eth"},
		{"too many parts", "coin-btc-eth-extra"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParsePair(tt.input); err == nil {
				t.Errorf("ParsePair(%q) = nil error, want error", tt.input)
			}
		})
	}
}

func TestCandleInterval_Valid(t *testing.T) {
	valid := []CandleInterval{
		Interval1Min, Interval5Min, Interval15Min, Interval30Min,
		Interval1Hour, Interval2Hour, Interval4Hour, Interval12Hour,
		Interval1Day, Interval1Week, Interval1Month,
	}
	for _, i := range valid {
		if !i.Valid() {
			t.Errorf("interval %q reported invalid", i)
		}
	}

	invalid := []CandleInterval{"", "2min", "1h", "1mon", "daily"}
	for _, i := range invalid {
		if i.Valid() {
			t.Errorf("interval %q reported valid", i)
		}
	}
}
