package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"gymhub/api/internal/models"
	"gymhub/api/internal/service"
)

type planResponse struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Limits models.PlanLimits `json:"limits"`
}

type subscriptionResponse struct {
	ID         string `json:"id"`
	PlanID     string `json:"planId"`
	AssignedBy string `json:"assignedBy"`
	Status     string `json:"status"`
}

type organizationResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"ownerId"`
	PlanID    string    `json:"planId"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

func newPlanResponse(p models.SubscriptionPlan) planResponse {
	return planResponse{ID: p.ID, Name: p.Name, Limits: p.Limits}
}

func (h HandlerSet) ListPlans(c *gin.Context) {
	plans, err := h.provisioning.ListPlans(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	items := make([]planResponse, 0, len(plans))
	for _, p := range plans {
		items = append(items, newPlanResponse(p))
	}

	c.JSON(http.StatusOK, gin.H{
		"items": items,
	})
}

type createAdminRequest struct {
	Email  string `json:"email" binding:"required,email,max=254"`
	Name   string `json:"name" binding:"required,max=120"`
	PlanID string `json:"planId" binding:"required"`
}

func (h HandlerSet) CreateAdmin(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	var req createAdminRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.provisioning.CreateAdmin(c.Request.Context(), service.CreateAdminInput{
		Email:       req.Email,
		Name:        req.Name,
		PlanID:      req.PlanID,
		RequestedBy: id.UserID,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	admin := newUserResponse(result.Admin)
	admin.Role = string(models.RoleAdmin)

	noStore(c)
	c.JSON(http.StatusCreated, gin.H{
		"admin": admin,
		"subscription": subscriptionResponse{
			ID:         result.Subscription.ID,
			PlanID:     result.Subscription.PlanID,
			AssignedBy: result.Subscription.AssignedBy,
			Status:     string(result.Subscription.Status),
		},
		"plan":              newPlanResponse(result.Plan),
		"temporaryPassword": result.TemporaryPassword,
	})
}

type createGymRequest struct {
	Name string `json:"name" binding:"required,max=120"`
}

func (h HandlerSet) CreateGym(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	var req createGymRequest
	if !bindJSON(c, &req) {
		return
	}

	org, err := h.provisioning.CreateGym(c.Request.Context(), service.CreateGymInput{
		AdminID: id.UserID,
		Name:    req.Name,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"gym": organizationResponse{
			ID:        org.ID,
			Name:      org.Name,
			OwnerID:   org.OwnerID,
			PlanID:    org.PlanID,
			Status:    string(org.Status),
			CreatedAt: org.CreatedAt,
		},
	})
}
