package tiers

import (
	"strings"

	"github.com/oakbijoux/oakstudio/internal/pkg/env"
)

type Tier string

const (
	TierDiscovery Tier = "discovery"
	TierCreator   Tier = "creator"
	TierAgency    Tier = "agency"
)

const (
	ResolutionLow  = "low"
	ResolutionHigh = "high"
)

// AgencyCredits is the sentinel allotment that stands in for "unlimited".
const AgencyCredits = 9999

// Config is the static policy attached to a tier. The catalog is the single
// source of truth for credit allotments and output quality; both the
// generation orchestrator and the billing event handler read from it.
type Config struct {
	Tier           Tier
	Name           string
	MonthlyCredits int
	HasWatermark   bool
	Resolution     string
	PriceIDMonthly string
	PriceIDYearly  string
}

var catalog map[Tier]Config

// Setup loads the catalog once at process start. Stripe price identifiers
// come from the environment because they differ per Stripe account.
func Setup() {
	catalog = map[Tier]Config{
		TierDiscovery: {
			Tier:           TierDiscovery,
			Name:           "Découverte",
			MonthlyCredits: 1,
			HasWatermark:   true,
			Resolution:     ResolutionLow,
		},
		TierCreator: {
			Tier:           TierCreator,
			Name:           "Créateur",
			MonthlyCredits: 45,
			HasWatermark:   false,
			Resolution:     ResolutionHigh,
			PriceIDMonthly: env.GetEnv("STRIPE_PRICE_CREATOR_MONTHLY", ""),
			PriceIDYearly:  env.GetEnv("STRIPE_PRICE_CREATOR_YEARLY", ""),
		},
		TierAgency: {
			Tier:           TierAgency,
			Name:           "Agence",
			MonthlyCredits: AgencyCredits,
			HasWatermark:   false,
			Resolution:     ResolutionHigh,
			PriceIDMonthly: env.GetEnv("STRIPE_PRICE_AGENCY_MONTHLY", ""),
			PriceIDYearly:  env.GetEnv("STRIPE_PRICE_AGENCY_YEARLY", ""),
		},
	}
}

func ensureCatalog() map[Tier]Config {
	if catalog == nil {
		Setup()
	}
	return catalog
}

// Resolve returns the config for a tier key. Unknown keys fall back to the
// discovery tier, mirroring how an unrecognized plan is treated elsewhere.
func Resolve(tier Tier) Config {
	if cfg, ok := ensureCatalog()[normalize(tier)]; ok {
		return cfg
	}
	return ensureCatalog()[TierDiscovery]
}

// FromPriceID maps a Stripe price identifier to its tier. The second return
// value is false for unknown price IDs; callers log and skip those.
func FromPriceID(priceID string) (Config, bool) {
	id := strings.TrimSpace(priceID)
	if id == "" {
		return Config{}, false
	}
	for _, cfg := range ensureCatalog() {
		if cfg.PriceIDMonthly == id || cfg.PriceIDYearly == id {
			return cfg, true
		}
	}
	return Config{}, false
}

// ValidPriceIDs returns every purchasable price identifier in the catalog.
func ValidPriceIDs() []string {
	ids := make([]string, 0, 4)
	for _, cfg := range ensureCatalog() {
		if cfg.PriceIDMonthly != "" {
			ids = append(ids, cfg.PriceIDMonthly)
		}
		if cfg.PriceIDYearly != "" {
			ids = append(ids, cfg.PriceIDYearly)
		}
	}
	return ids
}

func normalize(tier Tier) Tier {
	switch Tier(strings.ToLower(strings.TrimSpace(string(tier)))) {
	case TierCreator:
		return TierCreator
	case TierAgency:
		return TierAgency
	default:
		return TierDiscovery
	}
}
