package domain

import "time"

// Organization is a provisioned tenant. Claims and audit logs are always
// scoped by organization ID.
type Organization struct {
	OrgID       string    `json:"orgId"`
	OrgName     string    `json:"orgName"`
	Tier        Tier      `json:"tier"`
	ClaimsCount int       `json:"claimsCount"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// StatsResponse summarizes an organization's claim portfolio.
type StatsResponse struct {
	TotalClaims      int     `json:"totalClaims"`
	HighRiskClaims   int     `json:"highRiskClaims"`
	MediumRiskClaims int     `json:"mediumRiskClaims"`
	LowRiskClaims    int     `json:"lowRiskClaims"`
	PendingReview    int     `json:"pendingReview"`
	ApprovedCount    int     `json:"approvedCount"`
	RejectedCount    int     `json:"rejectedCount"`
	DecisionsMade    int     `json:"decisionsMade"`
	ClaimsLast24h    int     `json:"claimsLast24h"`
	AverageScore     float64 `json:"averageScore"`
	TotalValueGBP    float64 `json:"totalValueGbp"`
}
