package classify

import "testing"

func TestMonetization(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"Great game but the loot boxes are p2w", true},
		{"Fun with friends, no complaints", false},
		{"", false},
		{"LOOTBOX hell", true},
		{"way too many micro-transactions", true},
		{"microtransaction city", true},
		{"the Battle Pass is a grind", true},
		{"it's pay to win now", true},
		{"heavily monetized", true},
		{"only cosmetic stuff", true},
		{"new skin every week", true},
		{"opened 50 crates", true},
		{"buy keys to open cases", true},
		{"premium currency everywhere", true},
		{"the store is a mess", true},
		{"MTX are fine", true},
		// 词边界：子串不应命中。
		{"a monkey with a keyboard", false},
		{"askinsomething", false},
		{"restored my faith", false},
		{"gachapon", false},
	}
	for _, c := range cases {
		if got := Monetization(c.text); got != c.want {
			t.Fatalf("Monetization(%q)=%v，期望 %v", c.text, got, c.want)
		}
	}
}
