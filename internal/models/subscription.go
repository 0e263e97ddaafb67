package models

import "time"

type PlanLimits struct {
	MaxOrganizations int `json:"maxOrganizations"`
	MaxBranches      int `json:"maxBranches"`
	MaxMembers       int `json:"maxMembers"`
	MaxTrainers      int `json:"maxTrainers"`
}

type SubscriptionPlan struct {
	ID        string
	Name      string
	Limits    PlanLimits
	IsActive  bool
	CreatedAt time.Time
}

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

type AdminSubscription struct {
	ID         string
	AdminID    string
	PlanID     string
	AssignedBy string
	Status     SubscriptionStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (s AdminSubscription) IsActive() bool {
	return s.Status == SubscriptionActive
}
