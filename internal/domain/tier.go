package domain

// Tier names.
const (
	TierFree   = "free"
	TierPro    = "pro"
	TierStudio = "studio"
)

// Capabilities are the generation features a tier unlocks.
type Capabilities struct {
	HighResolution bool `json:"high_resolution" dynamodbav:"high_resolution"`
	Video          bool `json:"video" dynamodbav:"video"`
	BatchJobs      bool `json:"batch_jobs" dynamodbav:"batch_jobs"`
}

// Quota is the monthly generation allowance and what has been consumed.
type Quota struct {
	Limit int `json:"limit" dynamodbav:"limit"`
	Used  int `json:"used" dynamodbav:"used"`
}

// TierEffects is everything a tier assignment writes onto an account.
type TierEffects struct {
	Tier         string       `json:"tier"`
	QuotaLimit   int          `json:"quota_limit"`
	Capabilities Capabilities `json:"capabilities"`
}

var tierCatalog = map[string]TierEffects{
	TierFree:   {Tier: TierFree, QuotaLimit: 25},
	TierPro:    {Tier: TierPro, QuotaLimit: 500, Capabilities: Capabilities{HighResolution: true}},
	TierStudio: {Tier: TierStudio, QuotaLimit: 5000, Capabilities: Capabilities{HighResolution: true, Video: true, BatchJobs: true}},
}

// LookupTier returns the effects for a named tier.
func LookupTier(name string) (TierEffects, bool) {
	t, ok := tierCatalog[name]
	return t, ok
}

// DefaultTier is what every account gets when no promotion applies.
func DefaultTier() TierEffects {
	return tierCatalog[TierFree]
}

// PromotionResult is the outcome of checking a promotion code.
type PromotionResult struct {
	Valid   bool
	Effects TierEffects
}
