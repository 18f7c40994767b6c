package classification

import "strings"

// Category is the disposal class assigned to an item.
type Category string

const (
	CategoryRecycle  Category = "recycle"
	CategoryCompost  Category = "compost"
	CategoryLandfill Category = "landfill"
	CategoryUnknown  Category = "unknown"
)

// RewardBand is the inclusive range of buds awarded for a category.
type RewardBand struct {
	Min int
	Max int
}

var rewardBands = map[Category]RewardBand{
	CategoryRecycle:  {Min: 10, Max: 15},
	CategoryCompost:  {Min: 15, Max: 20},
	CategoryLandfill: {Min: 5, Max: 10},
	CategoryUnknown:  {Min: 0, Max: 0},
}

// ParseCategory lowercases and validates a category name.
func ParseCategory(raw string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := rewardBands[c]
	return c, ok
}

// Disposable reports whether the category is one a model may assign.
func (c Category) Disposable() bool {
	return c == CategoryRecycle || c == CategoryCompost || c == CategoryLandfill
}

// RewardBand returns the buds range for the category.
func (c Category) RewardBand() RewardBand {
	return rewardBands[c]
}

// Result is the canonical classification output. Exactly one of the remote
// or offline paths produces it and its JSON shape is the same for both.
type Result struct {
	Category            Category `json:"category"`
	Confidence          int      `json:"confidence"`
	Details             string   `json:"details"`
	EnvironmentalImpact string   `json:"environmental_impact"`
	Tips                []string `json:"tips"`
	BudsReward          int      `json:"buds_reward"`
	OfflineMode         bool     `json:"offline_mode,omitempty"`
}

// Valid reports whether r satisfies the result invariants.
func (r *Result) Valid() bool {
	if r == nil {
		return false
	}
	if _, ok := rewardBands[r.Category]; !ok {
		return false
	}
	if r.Confidence < 0 || r.Confidence > 100 || r.BudsReward < 0 {
		return false
	}
	if r.Category != CategoryUnknown && len(r.Tips) == 0 {
		return false
	}
	return true
}

// Guidance is the canned advice attached to a category.
type Guidance struct {
	Details             string
	EnvironmentalImpact string
	Tips                []string
}

var guidance = map[Category]Guidance{
	CategoryRecycle: {
		Details:             "This appears to be a recyclable item.",
		EnvironmentalImpact: "Recycling keeps material in circulation and saves the energy needed to produce it from scratch.",
		Tips: []string{
			"Rinse before recycling",
			"Remove any non-recyclable caps or lids",
			"Check local guidelines as recycling rules vary by location",
		},
	},
	CategoryCompost: {
		Details:             "This appears to be organic waste that can be composted.",
		EnvironmentalImpact: "Composting returns nutrients to the soil and keeps organic matter from producing methane in landfills.",
		Tips: []string{
			"Add to your home compost bin or municipal compost collection",
			"Mix with dry materials like leaves or paper",
			"Avoid composting meat or dairy products in home systems",
		},
	},
	CategoryLandfill: {
		Details:             "This item appears to be non-recyclable mixed material.",
		EnvironmentalImpact: "Landfill waste persists for a long time, so reducing it has the largest impact.",
		Tips: []string{
			"Consider alternatives with less packaging next time",
			"Check if the manufacturer has a take-back program",
			"Search for specialty recycling programs that might accept this waste",
		},
	},
	CategoryUnknown: {
		Details:             "Unable to classify this item with confidence.",
		EnvironmentalImpact: "Environmental impact data is not available for unclassified items.",
		Tips: []string{
			"Consider consulting your local waste management guidelines",
		},
	},
}

// GuidanceFor returns a copy of the canned advice for a category.
func GuidanceFor(c Category) Guidance {
	g, ok := guidance[c]
	if !ok {
		g = guidance[CategoryUnknown]
	}
	g.Tips = append([]string(nil), g.Tips...)
	return g
}
