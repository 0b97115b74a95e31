package skills

import (
	"context"
	"fmt"
	"strings"
)

// CollectionCurator plans NFT collection launches. It runs entirely
// locally from a rubric, so it is also the skill the demo environment
// falls back to when no provider keys are configured.
type CollectionCurator struct{}

// NewCollectionCurator creates the planning skill
func NewCollectionCurator() *CollectionCurator {
	return &CollectionCurator{}
}

func (c *CollectionCurator) Slug() string     { return "collection-curator" }
func (c *CollectionCurator) Category() string { return "marketing" }

// Execute plans a launch for input["theme"] with optional
// input["audience"] and input["budget"] hints.
func (c *CollectionCurator) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	theme, err := requireString(input, "theme")
	if err != nil {
		return nil, err
	}
	audience := optString(input, "audience", "collectors")
	budget := optString(input, "budget", "modest")

	size := 1000
	tiers := []string{"common", "rare", "legendary"}
	if strings.Contains(strings.ToLower(budget), "large") {
		size = 10000
		tiers = append(tiers, "one-of-one")
	}

	phases := []map[string]any{
		{"phase": "teaser", "duration_days": 7, "focus": "theme reveal and artwork previews"},
		{"phase": "allowlist", "duration_days": 10, "focus": fmt.Sprintf("community building with %s", audience)},
		{"phase": "mint", "duration_days": 3, "focus": "public mint with tiered pricing"},
		{"phase": "post-launch", "duration_days": 30, "focus": "secondary market support and holder perks"},
	}

	return map[string]any{
		"theme":           theme,
		"collection_size": size,
		"rarity_tiers":    tiers,
		"launch_plan":     phases,
		"audience":        audience,
	}, nil
}
