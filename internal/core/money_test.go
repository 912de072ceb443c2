package core

import "testing"

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"1160", "1160", true},
		{"1,160.00", "1160", true},
		{"$ 950", "950", true},
		{"12,5", "12.5", true},
		{"1,234,567", "1234567", true},
		{"MXN 1,000", "1000", true},
		{"(100)", "-100", true},
		{"0.16", "0.16", true},
		{"16%", "16", true},
		{"16 %", "16", true},
		{"%", "0", false},
		{"", "0", false},
		{"n/a", "0", false},
	}
	for _, tc := range cases {
		got, ok := ParseAmount(tc.in)
		if ok != tc.ok || !got.Equal(dec(tc.want)) {
			t.Errorf("ParseAmount(%q) = %s, %v; want %s, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestRound2AndPercent(t *testing.T) {
	if !Round2(dec("10.005")).Equal(dec("10.01")) {
		t.Fatalf("Round2 should round half away from zero")
	}
	if !Percent(dec("0.16")).Equal(dec("16")) {
		t.Fatalf("Percent(0.16) != 16")
	}
	if !NormalizePct(dec("16")).Equal(dec("0.16")) || !NormalizePct(dec("0.16")).Equal(dec("0.16")) {
		t.Fatalf("NormalizePct mismatch")
	}
}
