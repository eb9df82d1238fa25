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

const reportColumns = `
	id,
	reporter_id,
	incident_id,
	ST_Y(location::geometry) as latitude,
	ST_X(location::geometry) as longitude,
	category,
	media_ref,
	is_witness,
	created_at`

type ReportRepository struct {
	db *pgxpool.Pool
}

func NewReportRepository(db *pgxpool.Pool) service.ReportRepository {
	return &ReportRepository{db: db}
}

// GetByID возвращает репорт по его UUID
func (r *ReportRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Report, error) {
	report := &models.Report{}
	query := `
		SELECT ` + reportColumns + `
		FROM reports
		WHERE id = $1;
	`
	err := r.db.QueryRow(ctx, query, id).Scan(
		&report.ID,
		&report.ReporterID,
		&report.IncidentID,
		&report.Latitude,
		&report.Longitude,
		&report.Category,
		&report.MediaRef,
		&report.IsWitness,
		&report.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("report with id %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, classifyPgError("failed to get report by id", err)
	}
	return report, nil
}

// ListByReporter возвращает репорты одного репортера с пагинацией
func (r *ReportRepository) ListByReporter(ctx context.Context, reporterID string, page, pageSize int) ([]*models.Report, error) {
	// рассчитываем смещение
	offset := (page - 1) * pageSize

	query := `
		SELECT ` + reportColumns + `
		FROM reports
		WHERE reporter_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3;
	`
	rows, err := r.db.Query(ctx, query, reporterID, pageSize, offset)
	if err != nil {
		return nil, classifyPgError("failed to list reports by reporter", err)
	}
	defer rows.Close()

	reports := make([]*models.Report, 0)
	for rows.Next() {
		report := &models.Report{}
		err := rows.Scan(
			&report.ID,
			&report.ReporterID,
			&report.IncidentID,
			&report.Latitude,
			&report.Longitude,
			&report.Category,
			&report.MediaRef,
			&report.IsWitness,
			&report.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report row: %w", err)
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error list iteration in ListByReporter: %w", err)
	}
	return reports, nil
}
