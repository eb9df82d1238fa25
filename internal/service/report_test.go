package service_test

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/emergency_clustering_system/internal/apperrors"
	"github.com/shenikar/emergency_clustering_system/internal/config"
	"github.com/shenikar/emergency_clustering_system/internal/models"
	"github.com/shenikar/emergency_clustering_system/internal/service"
	"github.com/shenikar/emergency_clustering_system/internal/service/mocks"
	"github.com/shenikar/emergency_clustering_system/internal/webhook"
	webhook_mocks "github.com/shenikar/emergency_clustering_system/internal/webhook/mocks"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// newTestReportService — вспомогательная функция для создания инстанса сервиса с моками.
func newTestReportService(t *testing.T) (service.ReportService, *mocks.MockIncidentRepository, *mocks.MockReportRepository, *mocks.MockClusterUnit, *webhook_mocks.MockWebhookPublisher) {
	ctrl := gomock.NewController(t)
	incidentRepoMock := mocks.NewMockIncidentRepository(ctrl)
	reportRepoMock := mocks.NewMockReportRepository(ctrl)
	unitMock := mocks.NewMockClusterUnit(ctrl)
	webhookMock := webhook_mocks.NewMockWebhookPublisher(ctrl)

	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{}) // Отключаем вывод логов в тестах

	cfg := &config.Config{
		ClusterMaxDistanceMeters: 200,
		ClusterTimeWindow:        20 * time.Minute,
		ClusterMaxRetries:        3,
		GeofenceRadiusMeters:     15000,
	}

	svc := service.NewReportService(incidentRepoMock, reportRepoMock, logger, cfg, webhookMock)
	return svc, incidentRepoMock, reportRepoMock, unitMock, webhookMock
}

// expectClusterUnit заставляет RunClusterUnit выполнить замыкание сервиса поверх мока транзакции
func expectClusterUnit(incidentRepoMock *mocks.MockIncidentRepository, unitMock *mocks.MockClusterUnit) *gomock.Call {
	return incidentRepoMock.EXPECT().
		RunClusterUnit(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, fn func(service.ClusterUnit) error) error {
			return fn(unitMock)
		})
}

func TestSubmitReport_JoinsNearestIncident(t *testing.T) {
	// Подготовка
	svc, incidentRepoMock, _, unitMock, webhookMock := newTestReportService(t)
	ctx := context.Background()
	caller := models.Caller{ID: "reporter-1", Role: models.RoleReporter}
	incidentID := uuid.New()
	candidate := &models.Incident{
		ID:          incidentID,
		Latitude:    55.7512,
		Longitude:   37.6184,
		Status:      models.IncidentPending,
		ReportCount: 1,
	}
	input := service.SubmitReportInput{
		Latitude:  55.7513,
		Longitude: 37.6185,
		Category:  models.CategoryFire,
		IsWitness: true,
	}

	// Ожидания
	// 1. Поиск кандидата находит открытый инцидент в окне
	expectClusterUnit(incidentRepoMock, unitMock).Times(1)
	unitMock.EXPECT().
		FindNearestOpenIncident(ctx, input.Latitude, input.Longitude, 200.0, 20*time.Minute).
		Return(candidate, nil).
		Times(1)

	// 2. Репорт присоединяется к найденному инциденту
	unitMock.EXPECT().
		AttachReportToIncident(ctx, incidentID).
		Return(nil).
		Times(1)

	// 3. Репорт пишется той же транзакцией с назначенным инцидентом
	unitMock.EXPECT().
		CreateReport(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, report *models.Report) error {
			assert.Equal(t, incidentID, report.IncidentID)
			assert.Equal(t, caller.ID, report.ReporterID)
			report.ID = uuid.New()
			report.CreatedAt = time.Now()
			return nil
		}).Times(1)

	incidentRepoMock.EXPECT().InvalidateIncidentCache(ctx, incidentID).Return(nil).Times(1)

	webhookMock.EXPECT().
		Publish(ctx, gomock.Any()).
		Do(func(_ context.Context, event webhook.WebhookEvent) {
			assert.Equal(t, webhook.EventReportAttached, event.Type)
			assert.Equal(t, incidentID, event.IncidentID)
			assert.Equal(t, 2, event.ReportCount)
		}).Return(nil).Times(1)

	// Действие
	report, err := svc.SubmitReport(ctx, caller, input)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, incidentID, report.IncidentID)
	assert.NotEqual(t, uuid.Nil, report.ID)
}

func TestSubmitReport_CreatesNewIncident(t *testing.T) {
	// Подготовка
	svc, incidentRepoMock, _, unitMock, webhookMock := newTestReportService(t)
	ctx := context.Background()
	caller := models.Caller{ID: "reporter-2", Role: models.RoleReporter}
	newIncidentID := uuid.New()
	input := service.SubmitReportInput{
		Latitude:  59.9386,
		Longitude: 30.3141,
		Category:  models.CategoryAccident,
	}

	// Ожидания
	// 1. Кандидатов в окне нет
	expectClusterUnit(incidentRepoMock, unitMock).Times(1)
	unitMock.EXPECT().
		FindNearestOpenIncident(ctx, input.Latitude, input.Longitude, 200.0, 20*time.Minute).
		Return(nil, nil).
		Times(1)

	// 2. Создается новый pending-инцидент с локацией репорта
	unitMock.EXPECT().
		CreateIncident(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, incident *models.Incident) error {
			assert.Equal(t, models.IncidentPending, incident.Status)
			assert.Equal(t, 1, incident.ReportCount)
			assert.Equal(t, input.Latitude, incident.Latitude)
			assert.Equal(t, input.Longitude, incident.Longitude)
			incident.ID = newIncidentID
			incident.CreatedAt = time.Now()
			incident.LastActivityAt = incident.CreatedAt
			return nil
		}).Times(1)

	unitMock.EXPECT().
		CreateReport(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, report *models.Report) error {
			assert.Equal(t, newIncidentID, report.IncidentID)
			report.ID = uuid.New()
			return nil
		}).Times(1)

	incidentRepoMock.EXPECT().InvalidateIncidentCache(ctx, newIncidentID).Return(nil).Times(1)

	webhookMock.EXPECT().
		Publish(ctx, gomock.Any()).
		Do(func(_ context.Context, event webhook.WebhookEvent) {
			assert.Equal(t, webhook.EventIncidentCreated, event.Type)
			assert.Equal(t, newIncidentID, event.IncidentID)
			assert.Equal(t, models.IncidentPending, event.Status)
			assert.Equal(t, 1, event.ReportCount)
		}).Return(nil).Times(1)

	// Действие
	report, err := svc.SubmitReport(ctx, caller, input)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, newIncidentID, report.IncidentID)
}

func TestSubmitReport_RetriesOnConflict(t *testing.T) {
	// Подготовка
	svc, incidentRepoMock, _, unitMock, webhookMock := newTestReportService(t)
	ctx := context.Background()
	caller := models.Caller{ID: "reporter-3", Role: models.RoleReporter}
	incidentID := uuid.New()
	conflictErr := fmt.Errorf("failed to commit cluster transaction: %w", apperrors.ErrConflict)
	input := service.SubmitReportInput{
		Latitude:  55.75,
		Longitude: 37.61,
		Category:  models.CategoryMedical,
	}

	// Ожидания
	// 1. Первая попытка проигрывает гонку
	incidentRepoMock.EXPECT().
		RunClusterUnit(gomock.Any(), gomock.Any()).
		Return(conflictErr).
		Times(1)

	// 2. Повторная попытка перезапускает поиск кандидата и находит инцидент,
	// созданный конкурентом
	expectClusterUnit(incidentRepoMock, unitMock).Times(1)
	unitMock.EXPECT().
		FindNearestOpenIncident(ctx, input.Latitude, input.Longitude, 200.0, 20*time.Minute).
		Return(&models.Incident{ID: incidentID, Status: models.IncidentPending, ReportCount: 1}, nil).
		Times(1)
	unitMock.EXPECT().AttachReportToIncident(ctx, incidentID).Return(nil).Times(1)
	unitMock.EXPECT().CreateReport(ctx, gomock.Any()).Return(nil).Times(1)

	incidentRepoMock.EXPECT().InvalidateIncidentCache(ctx, incidentID).Return(nil).Times(1)
	webhookMock.EXPECT().Publish(ctx, gomock.Any()).Return(nil).Times(1)

	// Действие
	report, err := svc.SubmitReport(ctx, caller, input)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, incidentID, report.IncidentID)
}

func TestSubmitReport_ConflictRetriesExhausted(t *testing.T) {
	// Подготовка
	svc, incidentRepoMock, _, _, webhookMock := newTestReportService(t)
	ctx := context.Background()
	caller := models.Caller{ID: "reporter-4", Role: models.RoleReporter}
	conflictErr := fmt.Errorf("failed to commit cluster transaction: %w", apperrors.ErrConflict)

	// Ожидания: все попытки проигрывают гонку
	incidentRepoMock.EXPECT().
		RunClusterUnit(gomock.Any(), gomock.Any()).
		Return(conflictErr).
		Times(3)
	webhookMock.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(0)

	// Действие
	report, err := svc.SubmitReport(ctx, caller, service.SubmitReportInput{
		Latitude:  55.75,
		Longitude: 37.61,
		Category:  models.CategoryOther,
	})

	// Проверки
	require.Error(t, err)
	assert.Nil(t, report)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestSubmitReport_RejectsNonReporter(t *testing.T) {
	// Подготовка
	svc, incidentRepoMock, _, _, _ := newTestReportService(t)
	ctx := context.Background()
	caller := models.Caller{ID: uuid.New().String(), Role: models.RoleResponder}

	// Ожидания: до хранилища дело не доходит
	incidentRepoMock.EXPECT().RunClusterUnit(gomock.Any(), gomock.Any()).Times(0)

	// Действие
	report, err := svc.SubmitReport(ctx, caller, service.SubmitReportInput{
		Latitude:  55.75,
		Longitude: 37.61,
		Category:  models.CategoryFire,
	})

	// Проверки
	require.Error(t, err)
	assert.Nil(t, report)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestSubmitReport_RejectsUnknownCategory(t *testing.T) {
	// Подготовка
	svc, incidentRepoMock, _, _, _ := newTestReportService(t)
	ctx := context.Background()
	caller := models.Caller{ID: "reporter-5", Role: models.RoleReporter}

	incidentRepoMock.EXPECT().RunClusterUnit(gomock.Any(), gomock.Any()).Times(0)

	// Действие
	_, err := svc.SubmitReport(ctx, caller, service.SubmitReportInput{
		Latitude:  55.75,
		Longitude: 37.61,
		Category:  models.ReportCategory("earthquake"),
	})

	// Проверки
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestSubmitReport_RejectsBadCoordinates(t *testing.T) {
	// Подготовка
	svc, incidentRepoMock, _, _, _ := newTestReportService(t)
	ctx := context.Background()
	caller := models.Caller{ID: "reporter-6", Role: models.RoleReporter}

	incidentRepoMock.EXPECT().RunClusterUnit(gomock.Any(), gomock.Any()).Times(0)

	// Действие
	_, err := svc.SubmitReport(ctx, caller, service.SubmitReportInput{
		Latitude:  91.0,
		Longitude: 37.61,
		Category:  models.CategoryFire,
	})

	// Проверки
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestGetReport_Success(t *testing.T) {
	// Подготовка
	svc, _, reportRepoMock, _, _ := newTestReportService(t)
	ctx := context.Background()
	caller := models.Caller{ID: "reporter-7", Role: models.RoleReporter}
	reportID := uuid.New()
	expectedReport := &models.Report{
		ID:         reportID,
		ReporterID: caller.ID,
		Category:   models.CategoryCrime,
	}

	// Ожидания
	reportRepoMock.EXPECT().GetByID(ctx, reportID).Return(expectedReport, nil).Times(1)

	// Действие
	report, err := svc.GetReport(ctx, caller, reportID)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, expectedReport, report)
}

func TestGetReport_ForeignReport(t *testing.T) {
	// Подготовка
	svc, _, reportRepoMock, _, _ := newTestReportService(t)
	ctx := context.Background()
	caller := models.Caller{ID: "reporter-8", Role: models.RoleReporter}
	reportID := uuid.New()
	foreignReport := &models.Report{
		ID:         reportID,
		ReporterID: "someone-else",
	}

	// Ожидания
	reportRepoMock.EXPECT().GetByID(ctx, reportID).Return(foreignReport, nil).Times(1)

	// Действие
	report, err := svc.GetReport(ctx, caller, reportID)

	// Проверки
	require.Error(t, err)
	assert.Nil(t, report)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestListMyReports_DefaultsPagination(t *testing.T) {
	// Подготовка
	svc, _, reportRepoMock, _, _ := newTestReportService(t)
	ctx := context.Background()
	caller := models.Caller{ID: "reporter-9", Role: models.RoleReporter}
	expectedReports := []*models.Report{
		{ID: uuid.New(), ReporterID: caller.ID},
		{ID: uuid.New(), ReporterID: caller.ID},
	}

	// Ожидания: некорректные значения страницы заменяются значениями по умолчанию
	reportRepoMock.EXPECT().ListByReporter(ctx, caller.ID, 1, 20).Return(expectedReports, nil).Times(1)

	// Действие
	reports, err := svc.ListMyReports(ctx, caller, 0, 500)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, expectedReports, reports)
}
