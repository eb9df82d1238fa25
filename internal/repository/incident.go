package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shenikar/emergency_clustering_system/internal/apperrors"
	"github.com/shenikar/emergency_clustering_system/internal/models"
	"github.com/shenikar/emergency_clustering_system/internal/service"
)

const incidentColumns = `
	id,
	ST_Y(location::geometry) as latitude,
	ST_X(location::geometry) as longitude,
	status,
	accepted_by,
	report_count,
	created_at,
	last_activity_at`

type IncidentRepository struct {
	db          *pgxpool.Pool
	redisClient *redis.Client
}

func NewIncidentRepository(db *pgxpool.Pool, redisClient *redis.Client) service.IncidentRepository {
	return &IncidentRepository{
		db:          db,
		redisClient: redisClient,
	}
}

// RunClusterUnit выполняет fn в одной транзакции. Откат при любой ошибке:
// ни репорт без инцидента, ни инкремент счетчика без репорта снаружи не видны.
func (r *IncidentRepository) RunClusterUnit(ctx context.Context, fn func(unit service.ClusterUnit) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return classifyPgError("failed to begin cluster transaction", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&clusterUnit{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return classifyPgError("failed to commit cluster transaction", err)
	}
	return nil
}

// clusterUnit - транзакционная единица работы движка кластеризации
type clusterUnit struct {
	tx pgx.Tx
}

// FindNearestOpenIncident возвращает ближайший открытый инцидент в пределах
// maxDistanceMeters с активностью внутри window, либо nil при отсутствии
// кандидатов. При равных дистанциях выбирается меньший id. Строка блокируется
// FOR UPDATE до конца транзакции, что исключает потерянный инкремент счетчика.
func (u *clusterUnit) FindNearestOpenIncident(ctx context.Context, lat, lon, maxDistanceMeters float64, window time.Duration) (*models.Incident, error) {
	query := `
		SELECT ` + incidentColumns + `,
			ST_Distance(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography) as distance_meters
		FROM incidents
		WHERE
			status IN ('pending', 'accepted')
			AND ST_DWithin(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)
			AND last_activity_at >= NOW() - make_interval(secs => $4)
		ORDER BY distance_meters ASC, id ASC
		LIMIT 1
		FOR UPDATE;
	`
	incident := &models.Incident{}
	err := u.tx.QueryRow(ctx, query, lon, lat, maxDistanceMeters, window.Seconds()).Scan(
		&incident.ID,
		&incident.Latitude,
		&incident.Longitude,
		&incident.Status,
		&incident.AcceptedBy,
		&incident.ReportCount,
		&incident.CreatedAt,
		&incident.LastActivityAt,
		&incident.DistanceMeters,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, classifyPgError("failed to find nearest open incident", err)
	}
	return incident, nil
}

// AttachReportToIncident инкрементирует счетчик репортов и обновляет последнюю активность
func (u *clusterUnit) AttachReportToIncident(ctx context.Context, incidentID uuid.UUID) error {
	query := `
		UPDATE incidents SET
			report_count = report_count + 1,
			last_activity_at = NOW()
		WHERE id = $1;
	`
	cmdTag, err := u.tx.Exec(ctx, query, incidentID)
	if err != nil {
		return classifyPgError("failed to attach report to incident", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("incident %s disappeared during attach: %w", incidentID, apperrors.ErrConflict)
	}
	return nil
}

// CreateIncident создает новый инцидент с локацией первого репорта
func (u *clusterUnit) CreateIncident(ctx context.Context, incident *models.Incident) error {
	query := `
		INSERT INTO incidents (location, status, report_count)
		VALUES (ST_SetSRID(ST_MakePoint($1, $2), 4326), $3, $4) RETURNING id, created_at, last_activity_at;
	`
	err := u.tx.QueryRow(ctx, query,
		incident.Longitude,
		incident.Latitude,
		string(incident.Status),
		incident.ReportCount,
	).Scan(&incident.ID, &incident.CreatedAt, &incident.LastActivityAt)
	if err != nil {
		return classifyPgError("failed to create incident", err)
	}
	return nil
}

// CreateReport сохраняет репорт с уже назначенным инцидентом
func (u *clusterUnit) CreateReport(ctx context.Context, report *models.Report) error {
	query := `
		INSERT INTO reports (reporter_id, incident_id, location, category, media_ref, is_witness)
		VALUES ($1, $2, ST_SetSRID(ST_MakePoint($3, $4), 4326), $5, $6, $7) RETURNING id, created_at;
	`
	err := u.tx.QueryRow(ctx, query,
		report.ReporterID,
		report.IncidentID,
		report.Longitude,
		report.Latitude,
		string(report.Category),
		report.MediaRef,
		report.IsWitness,
	).Scan(&report.ID, &report.CreatedAt)
	if err != nil {
		return classifyPgError("failed to create report", err)
	}
	return nil
}

// GetByID возвращает инцидент по его UUID
func (r *IncidentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	incident := &models.Incident{}
	query := `
		SELECT ` + incidentColumns + `
		FROM incidents
		WHERE id = $1;
	`
	err := r.db.QueryRow(ctx, query, id).Scan(
		&incident.ID,
		&incident.Latitude,
		&incident.Longitude,
		&incident.Status,
		&incident.AcceptedBy,
		&incident.ReportCount,
		&incident.CreatedAt,
		&incident.LastActivityAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("incident with id %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, classifyPgError("failed to get incident by id", err)
	}
	return incident, nil
}

// TransitionStatus выполняет guarded-переход статуса: строка обновляется
// только если текущий статус равен from. Возвращает false, если переход
// не применился (статус успел измениться конкурентно или инцидент исчез).
// accepted_by перезаписывается переданным значением, поэтому инвариант
// "accepted_by не NULL только при accepted" поддерживается каждым переходом.
func (r *IncidentRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.IncidentStatus, acceptedBy *uuid.UUID) (bool, error) {
	query := `
		UPDATE incidents SET
			status = $1,
			accepted_by = $2,
			last_activity_at = NOW()
		WHERE id = $3 AND status = $4;
	`
	cmdTag, err := r.db.Exec(ctx, query, string(to), acceptedBy, id, string(from))
	if err != nil {
		return false, classifyPgError("failed to transition incident status", err)
	}
	return cmdTag.RowsAffected() > 0, nil
}

// FindNearby возвращает открытые инциденты в радиусе radiusMeters от точки,
// отсортированные по возрастанию дистанции. Запрос идет по GIST-индексу
// geography-колонки, та же метрика дистанции, что и у кластеризации.
func (r *IncidentRepository) FindNearby(ctx context.Context, lat, lon, radiusMeters float64, limit, offset int) ([]*models.Incident, error) {
	query := `
		SELECT ` + incidentColumns + `,
			ST_Distance(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography) as distance_meters
		FROM incidents
		WHERE
			status IN ('pending', 'accepted')
			AND ST_DWithin(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)
		ORDER BY distance_meters ASC, id ASC
		LIMIT $4 OFFSET $5;
	`
	rows, err := r.db.Query(ctx, query, lon, lat, radiusMeters, limit, offset)
	if err != nil {
		return nil, classifyPgError("failed to find nearby incidents", err)
	}
	defer rows.Close()

	incidents := make([]*models.Incident, 0)
	for rows.Next() {
		incident := &models.Incident{}
		err := rows.Scan(
			&incident.ID,
			&incident.Latitude,
			&incident.Longitude,
			&incident.Status,
			&incident.AcceptedBy,
			&incident.ReportCount,
			&incident.CreatedAt,
			&incident.LastActivityAt,
			&incident.DistanceMeters,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan incident row in FindNearby: %w", err)
		}
		incidents = append(incidents, incident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error list iteration in FindNearby: %w", err)
	}
	return incidents, nil
}

// GetIncidentFromCache пытается получить инцидент из Redis
func (r *IncidentRepository) GetIncidentFromCache(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	key := fmt.Sprintf("incident:%s", id.String())
	val, err := r.redisClient.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get incident from cache: %w", err)
	}

	incident := &models.Incident{}
	if err := json.Unmarshal(val, incident); err != nil {
		return nil, fmt.Errorf("failed to unmarshal incident from cache: %w", err)
	}
	return incident, nil
}

// SetIncidentCache сохраняет инцидент в Redis
func (r *IncidentRepository) SetIncidentCache(ctx context.Context, incident *models.Incident) error {
	key := fmt.Sprintf("incident:%s", incident.ID.String())
	val, err := json.Marshal(incident)
	if err != nil {
		return fmt.Errorf("failed to marshal incident for cache: %w", err)
	}
	// Устанавливаем срок жизни кэша, например, 5 минут
	if err := r.redisClient.Set(ctx, key, val, 5*time.Minute).Err(); err != nil {
		return fmt.Errorf("failed to set incident in cache: %w", err)
	}
	return nil
}

// InvalidateIncidentCache удаляет инцидент из Redis кэша
func (r *IncidentRepository) InvalidateIncidentCache(ctx context.Context, id uuid.UUID) error {
	key := fmt.Sprintf("incident:%s", id.String())
	if err := r.redisClient.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to invalidate incident cache: %w", err)
	}
	return nil
}

// classifyPgError переводит ошибки postgres в классы ошибок ядра:
// проигранные гонки - в ErrConflict (ретраится), недоступность - в ErrUnavailable
func classifyPgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgerrcode.SerializationFailure,
			pgErr.Code == pgerrcode.DeadlockDetected,
			pgErr.Code == pgerrcode.UniqueViolation:
			return fmt.Errorf("%s: %s: %w", op, pgErr.Code, apperrors.ErrConflict)
		case pgerrcode.IsConnectionException(pgErr.Code):
			return fmt.Errorf("%s: %s: %w", op, pgErr.Code, apperrors.ErrUnavailable)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, apperrors.ErrUnavailable)
	}
	return fmt.Errorf("%s: %w", op, err)
}
