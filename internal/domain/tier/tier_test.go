package tier_test

import (
	"testing"

	"github.com/forkful/loyalty-api/internal/domain/tier"
)

func TestOf(t *testing.T) {
	cases := []struct {
		balance int
		want    tier.Tier
	}{
		{0, tier.Bronze},
		{499, tier.Bronze},
		{500, tier.Silver},
		{1499, tier.Silver},
		{1500, tier.Gold},
		{2999, tier.Gold},
		{3000, tier.Platinum},
		{100000, tier.Platinum},
		{-50, tier.Bronze},
	}

	for _, c := range cases {
		if got := tier.Of(c.balance); got != c.want {
			t.Errorf("Of(%d) = %s, want %s", c.balance, got, c.want)
		}
	}
}

func TestMultiplier(t *testing.T) {
	cases := []struct {
		tier tier.Tier
		want float64
	}{
		{tier.Bronze, 1.0},
		{tier.Silver, 1.10},
		{tier.Gold, 1.25},
		{tier.Platinum, 1.50},
		{tier.Tier("unknown"), 1.0},
	}

	for _, c := range cases {
		if got := tier.Multiplier(c.tier); got != c.want {
			t.Errorf("Multiplier(%s) = %v, want %v", c.tier, got, c.want)
		}
	}
}

func TestNext(t *testing.T) {
	p := tier.Next(0)
	if p == nil || p.Tier != tier.Silver || p.PointsNeeded != 500 {
		t.Fatalf("Next(0) = %+v, want silver in 500", p)
	}

	p = tier.Next(700)
	if p == nil || p.Tier != tier.Gold || p.PointsNeeded != 800 {
		t.Fatalf("Next(700) = %+v, want gold in 800", p)
	}

	p = tier.Next(2999)
	if p == nil || p.Tier != tier.Platinum || p.PointsNeeded != 1 {
		t.Fatalf("Next(2999) = %+v, want platinum in 1", p)
	}

	if p := tier.Next(3000); p != nil {
		t.Fatalf("Next(3000) = %+v, want nil", p)
	}
}

func TestBenefits(t *testing.T) {
	for _, tr := range []tier.Tier{tier.Bronze, tier.Silver, tier.Gold, tier.Platinum} {
		if len(tier.Benefits(tr)) == 0 {
			t.Errorf("Benefits(%s) is empty", tr)
		}
	}

	// Callers must not be able to mutate the shared list.
	b := tier.Benefits(tier.Gold)
	b[0] = "mutated"
	if tier.Benefits(tier.Gold)[0] == "mutated" {
		t.Fatal("Benefits returned a shared slice")
	}
}
