package catalog

import "testing"

func TestDefaultCatalogValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLevelFor(t *testing.T) {
	c := Default()

	cases := []struct {
		totalXP int
		want    string
	}{
		{0, "newcomer"},
		{99, "newcomer"},
		{100, "explorer"},
		{499, "explorer"},
		{500, "adventurer"},
		{1500, "insider"},
		{4999, "insider"},
		{5000, "legend"},
		{100000, "legend"},
	}

	for _, tc := range cases {
		if got := c.LevelFor(tc.totalXP); got != tc.want {
			t.Errorf("LevelFor(%d) = %q, want %q", tc.totalXP, got, tc.want)
		}
	}
}

func TestMultiplierFor(t *testing.T) {
	c := Default()

	cases := []struct {
		streak int
		want   float64
	}{
		{0, 1.0},
		{1, 1.0},
		{2, 1.0},
		{3, 1.2},
		{6, 1.2},
		{7, 2.0},
		{13, 2.0},
		{14, 2.5},
		{30, 3.0},
		{365, 3.0},
	}

	for _, tc := range cases {
		if got := c.MultiplierFor(tc.streak); got != tc.want {
			t.Errorf("MultiplierFor(%d) = %v, want %v", tc.streak, got, tc.want)
		}
	}
}

func TestBonusAt(t *testing.T) {
	c := Default()

	if b := c.BonusAt(7); b == nil || b.BadgeID != "streak_7" {
		t.Errorf("BonusAt(7) = %+v, want the streak_7 bonus", b)
	}
	if b := c.BonusAt(8); b != nil {
		t.Errorf("BonusAt(8) = %+v, want nil (thresholds are exact)", b)
	}
	if b := c.BonusAt(3); b == nil || b.BadgeID != "" {
		t.Errorf("BonusAt(3) = %+v, want the badge-less 3-day bonus", b)
	}
}

func TestFindBadgeFallsBack(t *testing.T) {
	c := Default()

	b := c.FindBadge("mystery_badge")
	if b.ID != "mystery_badge" || b.Name != "mystery_badge" {
		t.Errorf("FindBadge fallback = %+v, want minimal definition", b)
	}
}

func TestValidateRejectsBadCatalogs(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *Catalog)
	}{
		{"first level threshold not zero", func(c *Catalog) { c.Levels[0].MinTotalXP = 10 }},
		{"non-increasing level thresholds", func(c *Catalog) { c.Levels[2].MinTotalXP = 100 }},
		{"non-increasing streak thresholds", func(c *Catalog) { c.StreakBonuses[1].ThresholdDays = 3 }},
		{"trigger chance above one", func(c *Catalog) { c.BoxTriggerChance = 1.5 }},
		{"tier probabilities not summing to one", func(c *Catalog) { c.BoxTiers[0].Probability = 0.5 }},
		{"non-positive tier probability", func(c *Catalog) { c.BoxTiers[1].Probability = 0 }},
		{"empty tier amount range", func(c *Catalog) { c.BoxTiers[0].MinAmount = 50 }},
		{"non-positive collection target", func(c *Catalog) { c.Collections[0].Target = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.mutate(c)
			if err := c.Validate(); err == nil {
				t.Error("Validate accepted a broken catalog")
			}
		})
	}
}
