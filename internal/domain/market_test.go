package domain

import "testing"

func TestMarketStatusCanTransition(t *testing.T) {
	cases := []struct {
		name string
		from MarketStatus
		to   MarketStatus
		want bool
	}{
		{"open to proposed", MarketStatusOpen, MarketStatusProposed, true},
		{"open to cancelled", MarketStatusOpen, MarketStatusCancelled, true},
		{"open to resolved direct", MarketStatusOpen, MarketStatusResolved, false},
		{"proposed to resolved", MarketStatusProposed, MarketStatusResolved, true},
		{"proposed to disputed", MarketStatusProposed, MarketStatusDisputed, true},
		{"disputed to resolved", MarketStatusDisputed, MarketStatusResolved, true},
		{"disputed to proposed", MarketStatusDisputed, MarketStatusProposed, false},
		{"resolved is terminal", MarketStatusResolved, MarketStatusOpen, false},
		{"self transition always allowed", MarketStatusProposed, MarketStatusProposed, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.from.CanTransition(tc.to)
			if got != tc.want {
				t.Errorf("%s.CanTransition(%s) = %v, want %v", tc.from, tc.to, got, tc.want)
			}
		})
	}
}

func TestNormalizeAddress(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0xAB00000000000000000000000000000000000CD", "0xab00000000000000000000000000000000000cd"},
		{"  0xDEF  ", "0xdef"},
		{"0xabc", "0xabc"},
	}
	for _, tc := range cases {
		if got := NormalizeAddress(tc.in); got != tc.want {
			t.Errorf("NormalizeAddress(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
