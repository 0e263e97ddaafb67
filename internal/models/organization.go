package models

import "time"

type OrganizationStatus string

const (
	OrganizationActive    OrganizationStatus = "active"
	OrganizationSuspended OrganizationStatus = "suspended"
)

// Organization is a gym tenant. Each admin owns at most one.
type Organization struct {
	ID        string
	Name      string
	OwnerID   string
	PlanID    string
	Status    OrganizationStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}
