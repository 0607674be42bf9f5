package models

// Plan is a purchasable token package. Balances are held in tokens; the
// price in cents exists only here and is never stored on an account.
type Plan struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Tokens     int64  `json:"tokens"`
	PriceCents int64  `json:"priceCents"`
}

var Plans = map[string]Plan{
	"micro":  {ID: "micro", Name: "Micro - 200k tokens", Tokens: 200_000, PriceCents: 500},
	"tinker": {ID: "tinker", Name: "Tinker - 500k tokens (Save 20%)", Tokens: 500_000, PriceCents: 1000},
	"pro":    {ID: "pro", Name: "Pro - 1M tokens (Save 50%)", Tokens: 1_000_000, PriceCents: 2500},
}

// PlanByID returns the plan for id, or false for an unknown plan.
func PlanByID(id string) (Plan, bool) {
	p, ok := Plans[id]
	return p, ok
}

// PlanList returns the catalog cheapest-first for display.
func PlanList() []Plan {
	return []Plan{Plans["micro"], Plans["tinker"], Plans["pro"]}
}
