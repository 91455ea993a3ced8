package tiers

import "testing"

func TestResolveKnownTiers(t *testing.T) {
	tests := []struct {
		tier        Tier
		wantCredits int
		wantMark    bool
		wantRes     string
	}{
		{tier: TierDiscovery, wantCredits: 1, wantMark: true, wantRes: ResolutionLow},
		{tier: TierCreator, wantCredits: 45, wantMark: false, wantRes: ResolutionHigh},
		{tier: TierAgency, wantCredits: AgencyCredits, wantMark: false, wantRes: ResolutionHigh},
	}

	for _, tt := range tests {
		cfg := Resolve(tt.tier)
		if cfg.MonthlyCredits != tt.wantCredits {
			t.Fatalf("Resolve(%q).MonthlyCredits = %d, want %d", tt.tier, cfg.MonthlyCredits, tt.wantCredits)
		}
		if cfg.HasWatermark != tt.wantMark {
			t.Fatalf("Resolve(%q).HasWatermark = %v, want %v", tt.tier, cfg.HasWatermark, tt.wantMark)
		}
		if cfg.Resolution != tt.wantRes {
			t.Fatalf("Resolve(%q).Resolution = %q, want %q", tt.tier, cfg.Resolution, tt.wantRes)
		}
	}
}

func TestResolveUnknownFallsBackToDiscovery(t *testing.T) {
	cfg := Resolve("enterprise")
	if cfg.Tier != TierDiscovery {
		t.Fatalf("expected unknown tier to resolve to discovery, got %q", cfg.Tier)
	}
	cfg = Resolve(" AGENCY ")
	if cfg.Tier != TierAgency {
		t.Fatalf("expected case-insensitive resolution, got %q", cfg.Tier)
	}
}

func TestFromPriceID(t *testing.T) {
	env := map[string]string{
		"STRIPE_PRICE_CREATOR_MONTHLY": "price_creator_m",
		"STRIPE_PRICE_CREATOR_YEARLY":  "price_creator_y",
		"STRIPE_PRICE_AGENCY_MONTHLY":  "price_agency_m",
	}
	for k, v := range env {
		t.Setenv(k, v)
	}
	Setup()
	t.Cleanup(Setup)

	cfg, ok := FromPriceID("price_creator_y")
	if !ok || cfg.Tier != TierCreator {
		t.Fatalf("FromPriceID(price_creator_y) = (%q, %v), want creator", cfg.Tier, ok)
	}
	cfg, ok = FromPriceID("price_agency_m")
	if !ok || cfg.Tier != TierAgency {
		t.Fatalf("FromPriceID(price_agency_m) = (%q, %v), want agency", cfg.Tier, ok)
	}
	if _, ok := FromPriceID("price_unknown"); ok {
		t.Fatalf("expected unknown price id to miss")
	}
	if _, ok := FromPriceID(""); ok {
		t.Fatalf("expected empty price id to miss")
	}
}
