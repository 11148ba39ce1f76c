package domain

import "time"

// CustomRule is an organization-defined scoring rule. The builtin rule
// set is fixed in code; custom rules supplement it with a CEL expression
// that must evaluate to a boolean against the claim snapshot.
type CustomRule struct {
	ID          string `json:"id"`
	OrgID       string `json:"orgId"`
	Name        string `json:"name"`
	Description string `json:"description"`

	// CEL expression over claim fields, e.g.
	// "claim_amount_gbp > vehicle_value_gbp * 1.5"
	Expression string `json:"expression"`

	// Weight added to the fraud score when the rule triggers.
	Weight int `json:"weight"`

	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
