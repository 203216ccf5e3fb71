package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/pageza/platecoach/backend/internal/apperrors"
	"github.com/pageza/platecoach/backend/internal/models"
	"github.com/pageza/platecoach/backend/internal/questionnaire"
)

// ClientRepository stores clients and their questionnaires
type ClientRepository struct {
	db *gorm.DB
}

// NewClientRepository creates a client repository
func NewClientRepository(db *gorm.DB) *ClientRepository {
	return &ClientRepository{db: db}
}

// SaveQuestionnaire stores q on the tenant's client. A nil clientID creates a new client.
func (r *ClientRepository) SaveQuestionnaire(ctx context.Context, tenantID uuid.UUID, clientID *uuid.UUID, q *questionnaire.ClientQuestionnaire) (*models.Client, error) {
	data, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("failed to encode questionnaire: %w", err)
	}

	if clientID == nil {
		client := &models.Client{
			ID:            uuid.New(),
			TenantID:      tenantID,
			Name:          q.Name,
			Questionnaire: datatypes.JSON(data),
		}
		if err := r.db.WithContext(ctx).Create(client).Error; err != nil {
			return nil, fmt.Errorf("failed to create client: %w", err)
		}
		return client, nil
	}

	client, err := r.GetForTenant(ctx, tenantID, *clientID)
	if err != nil {
		return nil, err
	}
	client.Name = q.Name
	client.Questionnaire = datatypes.JSON(data)
	if err := r.db.WithContext(ctx).Save(client).Error; err != nil {
		return nil, fmt.Errorf("failed to update client: %w", err)
	}
	return client, nil
}

// GetForTenant loads a client owned by tenantID.
func (r *ClientRepository) GetForTenant(ctx context.Context, tenantID, clientID uuid.UUID) (*models.Client, error) {
	var client models.Client
	err := r.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", clientID, tenantID).First(&client).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("client %s: %w", clientID, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load client: %w", err)
	}
	return &client, nil
}

// Questionnaire decodes the stored questionnaire of a tenant's client.
func (r *ClientRepository) Questionnaire(ctx context.Context, tenantID, clientID uuid.UUID) (*questionnaire.ClientQuestionnaire, error) {
	client, err := r.GetForTenant(ctx, tenantID, clientID)
	if err != nil {
		return nil, err
	}
	var q questionnaire.ClientQuestionnaire
	if err := json.Unmarshal(client.Questionnaire, &q); err != nil {
		return nil, fmt.Errorf("failed to decode questionnaire for client %s: %w", clientID, err)
	}
	return &q, nil
}
