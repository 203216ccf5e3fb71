package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/pageza/platecoach/backend/internal/models"
	"github.com/pageza/platecoach/backend/internal/status"
)

// PlanStatusResponse is the body of GET /plans/:id/status. The camelCase and
// snake_case keys are both part of the published contract.
type PlanStatusResponse struct {
	ID               uuid.UUID         `json:"id"`
	Status           models.PlanStatus `json:"status"`
	QueuePosition    int               `json:"queuePosition"`
	TotalInQueue     int               `json:"totalInQueue"`
	EstimatedMinutes int               `json:"estimatedMinutes"`
	ElapsedSeconds   int               `json:"elapsedSeconds"`
	ErrorMessage     *string           `json:"errorMessage"`
	Attempts         int               `json:"attempts"`
	PlanText         *string           `json:"plan_text"`
	ClientName       *string           `json:"client_name"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// PlanResponse is a plan summary returned by submit, retry and list.
type PlanResponse struct {
	ID           uuid.UUID         `json:"id"`
	ClientID     uuid.UUID         `json:"client_id"`
	ClientName   *string           `json:"client_name"`
	Status       models.PlanStatus `json:"status"`
	Attempts     int               `json:"attempts"`
	ErrorMessage *string           `json:"error_message"`
	CostUSD      float64           `json:"cost_usd"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

func clientName(p *models.Plan) *string {
	if p.Client == nil {
		return nil
	}
	name := p.Client.Name
	return &name
}

func newPlanStatusResponse(s *status.Snapshot) PlanStatusResponse {
	p := s.Plan
	resp := PlanStatusResponse{
		ID:               p.ID,
		Status:           p.Status,
		QueuePosition:    s.QueuePosition,
		TotalInQueue:     s.TotalInQueue,
		EstimatedMinutes: s.EstimatedMinutes,
		ElapsedSeconds:   s.ElapsedSeconds,
		ErrorMessage:     p.ErrorMessage,
		Attempts:         p.Attempts,
		ClientName:       clientName(p),
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
	if p.Status == models.PlanStatusCompleted {
		resp.PlanText = p.PlanText
	}
	return resp
}

func newPlanResponse(p *models.Plan) PlanResponse {
	return PlanResponse{
		ID:           p.ID,
		ClientID:     p.ClientID,
		ClientName:   clientName(p),
		Status:       p.Status,
		Attempts:     p.Attempts,
		ErrorMessage: p.ErrorMessage,
		CostUSD:      p.CostUSD,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}
