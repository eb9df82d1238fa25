package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shenikar/emergency_clustering_system/internal/apperrors"
	"github.com/shenikar/emergency_clustering_system/internal/models"
	"github.com/shenikar/emergency_clustering_system/internal/service"
)

type ResponderRepository struct {
	db *pgxpool.Pool
}

func NewResponderRepository(db *pgxpool.Pool) service.ResponderRepository {
	return &ResponderRepository{db: db}
}

// Create сохраняет профиль респондера
func (r *ResponderRepository) Create(ctx context.Context, responder *models.Responder) error {
	query := `
		INSERT INTO responders (name, location, role_tag)
		VALUES ($1, ST_SetSRID(ST_MakePoint($2, $3), 4326), $4) RETURNING id, created_at;
	`
	err := r.db.QueryRow(ctx, query,
		responder.Name,
		responder.Longitude,
		responder.Latitude,
		responder.RoleTag,
	).Scan(&responder.ID, &responder.CreatedAt)
	if err != nil {
		return classifyPgError("failed to create responder", err)
	}
	return nil
}

// GetByID возвращает профиль респондера по его UUID
func (r *ResponderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Responder, error) {
	responder := &models.Responder{}
	query := `
		SELECT
			id,
			name,
			ST_Y(location::geometry) as latitude,
			ST_X(location::geometry) as longitude,
			role_tag,
			created_at
		FROM responders
		WHERE id = $1;
	`
	err := r.db.QueryRow(ctx, query, id).Scan(
		&responder.ID,
		&responder.Name,
		&responder.Latitude,
		&responder.Longitude,
		&responder.RoleTag,
		&responder.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("responder with id %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, classifyPgError("failed to get responder by id", err)
	}
	return responder, nil
}
