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

// newTestIncidentService — вспомогательная функция для создания инстанса сервиса с моками.
func newTestIncidentService(t *testing.T) (service.IncidentService, *mocks.MockIncidentRepository, *mocks.MockResponderRepository, *webhook_mocks.MockWebhookPublisher) {
	ctrl := gomock.NewController(t)
	incidentRepoMock := mocks.NewMockIncidentRepository(ctrl)
	responderRepoMock := mocks.NewMockResponderRepository(ctrl)
	webhookMock := webhook_mocks.NewMockWebhookPublisher(ctrl)

	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{}) // Отключаем вывод логов в тестах

	cfg := &config.Config{
		ClusterMaxDistanceMeters: 200,
		ClusterTimeWindow:        20 * time.Minute,
		ClusterMaxRetries:        3,
		GeofenceRadiusMeters:     15000,
	}

	svc := service.NewIncidentService(incidentRepoMock, responderRepoMock, logger, cfg, webhookMock)
	return svc, incidentRepoMock, responderRepoMock, webhookMock
}

func responderCaller() (models.Caller, uuid.UUID) {
	responderID := uuid.New()
	return models.Caller{ID: responderID.String(), Role: models.RoleResponder}, responderID
}

func TestGetIncident_Success_FromCache(t *testing.T) {
	// Подготовка
	svc, incidentRepoMock, _, _ := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	expectedIncident := &models.Incident{
		ID:     incidentID,
		Status: models.IncidentPending,
	}

	// Ожидания
	incidentRepoMock.EXPECT().
		GetIncidentFromCache(ctx, incidentID).
		Return(expectedIncident, nil).
		Times(1)

	// Действие
	incident, err := svc.GetIncident(ctx, incidentID)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, expectedIncident, incident)
}

func TestGetIncident_Success_FromDB(t *testing.T) {
	// Подготовка
	svc, incidentRepoMock, _, _ := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	expectedIncident := &models.Incident{
		ID:     incidentID,
		Status: models.IncidentAccepted,
	}

	// Ожидания
	// 1. Промах кеша
	incidentRepoMock.EXPECT().
		GetIncidentFromCache(ctx, incidentID).
		Return(nil, nil).
		Times(1)

	// 2. Попадание в БД
	incidentRepoMock.EXPECT().
		GetByID(ctx, incidentID).
		Return(expectedIncident, nil).
		Times(1)

	// 3. Запись в кеш
	incidentRepoMock.EXPECT().
		SetIncidentCache(ctx, expectedIncident).
		Return(nil).
		Times(1)

	// Действие
	incident, err := svc.GetIncident(ctx, incidentID)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, expectedIncident, incident)
}

func TestGetIncident_NotFound(t *testing.T) {
	// Подготовка
	svc, incidentRepoMock, _, _ := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	repoErr := fmt.Errorf("incident with id %s: %w", incidentID, apperrors.ErrNotFound)

	// Ожидания
	incidentRepoMock.EXPECT().GetIncidentFromCache(ctx, incidentID).Return(nil, nil).Times(1)
	incidentRepoMock.EXPECT().GetByID(ctx, incidentID).Return(nil, repoErr).Times(1)

	// Действие
	incident, err := svc.GetIncident(ctx, incidentID)

	// Проверки
	require.Error(t, err)
	assert.Nil(t, incident)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestAccept_Success(t *testing.T) {
	// Подготовка
	svc, incidentRepoMock, _, webhookMock := newTestIncidentService(t)
	ctx := context.Background()
	caller, responderID := responderCaller()
	incidentID := uuid.New()
	pendingIncident := &models.Incident{
		ID:          incidentID,
		Status:      models.IncidentPending,
		ReportCount: 3,
	}
	acceptedIncident := &models.Incident{
		ID:          incidentID,
		Status:      models.IncidentAccepted,
		AcceptedBy:  &responderID,
		ReportCount: 3,
	}

	// Ожидания
	incidentRepoMock.EXPECT().GetByID(ctx, incidentID).Return(pendingIncident, nil).Times(1)
	incidentRepoMock.EXPECT().
		TransitionStatus(ctx, incidentID, models.IncidentPending, models.IncidentAccepted, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ uuid.UUID, _, _ models.IncidentStatus, acceptedBy *uuid.UUID) (bool, error) {
			require.NotNil(t, acceptedBy)
			assert.Equal(t, responderID, *acceptedBy)
			return true, nil
		}).Times(1)
	incidentRepoMock.EXPECT().InvalidateIncidentCache(ctx, incidentID).Return(nil).Times(1)
	incidentRepoMock.EXPECT().GetByID(ctx, incidentID).Return(acceptedIncident, nil).Times(1)
	webhookMock.EXPECT().
		Publish(ctx, gomock.Any()).
		Do(func(_ context.Context, event webhook.WebhookEvent) {
			assert.Equal(t, webhook.EventStatusChanged, event.Type)
			assert.Equal(t, models.IncidentAccepted, event.Status)
		}).Return(nil).Times(1)

	// Действие
	incident, err := svc.Accept(ctx, caller, incidentID)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, models.IncidentAccepted, incident.Status)
	require.NotNil(t, incident.AcceptedBy)
	assert.Equal(t, responderID, *incident.AcceptedBy)
}

func TestAccept_AlreadyAccepted(t *testing.T) {
	// Подготовка
	svc, incidentRepoMock, _, _ := newTestIncidentService(t)
	ctx := context.Background()
	caller, _ := responderCaller()
	incidentID := uuid.New()
	otherResponder := uuid.New()
	acceptedIncident := &models.Incident{
		ID:         incidentID,
		Status:     models.IncidentAccepted,
		AcceptedBy: &otherResponder,
	}

	// Ожидания: перехват чужого accepted-инцидента отклоняется без записи
	incidentRepoMock.EXPECT().GetByID(ctx, incidentID).Return(acceptedIncident, nil).Times(1)
	incidentRepoMock.EXPECT().TransitionStatus(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	// Действие
	incident, err := svc.Accept(ctx, caller, incidentID)

	// Проверки
	require.Error(t, err)
	assert.Nil(t, incident)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestAccept_NonResponder(t *testing.T) {
	// Подготовка
	svc, incidentRepoMock, _, _ := newTestIncidentService(t)
	ctx := context.Background()
	caller := models.Caller{ID: "reporter-1", Role: models.RoleReporter}

	incidentRepoMock.EXPECT().GetByID(gomock.Any(), gomock.Any()).Times(0)

	// Действие
	incident, err := svc.Accept(ctx, caller, uuid.New())

	// Проверки
	require.Error(t, err)
	assert.Nil(t, incident)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestAccept_ConcurrentPreemption(t *testing.T) {
	// Подготовка
	svc, incidentRepoMock, _, _ := newTestIncidentService(t)
	ctx := context.Background()
	caller, _ := responderCaller()
	incidentID := uuid.New()
	pendingIncident := &models.Incident{
		ID:     incidentID,
		Status: models.IncidentPending,
	}

	// Ожидания: статус успел измениться между чтением и guarded-обновлением
	incidentRepoMock.EXPECT().GetByID(ctx, incidentID).Return(pendingIncident, nil).Times(1)
	incidentRepoMock.EXPECT().
		TransitionStatus(ctx, incidentID, models.IncidentPending, models.IncidentAccepted, gomock.Any()).
		Return(false, nil).
		Times(1)

	// Действие
	incident, err := svc.Accept(ctx, caller, incidentID)

	// Проверки
	require.Error(t, err)
	assert.Nil(t, incident)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestResolve_Success(t *testing.T) {
	// Подготовка
	svc, incidentRepoMock, _, webhookMock := newTestIncidentService(t)
	ctx := context.Background()
	caller, responderID := responderCaller()
	incidentID := uuid.New()
	acceptedIncident := &models.Incident{
		ID:         incidentID,
		Status:     models.IncidentAccepted,
		AcceptedBy: &responderID,
	}
	resolvedIncident := &models.Incident{
		ID:     incidentID,
		Status: models.IncidentResolved,
	}

	// Ожидания
	incidentRepoMock.EXPECT().GetByID(ctx, incidentID).Return(acceptedIncident, nil).Times(1)
	incidentRepoMock.EXPECT().
		TransitionStatus(ctx, incidentID, models.IncidentAccepted, models.IncidentResolved, nil).
		Return(true, nil).
		Times(1)
	incidentRepoMock.EXPECT().InvalidateIncidentCache(ctx, incidentID).Return(nil).Times(1)
	incidentRepoMock.EXPECT().GetByID(ctx, incidentID).Return(resolvedIncident, nil).Times(1)
	webhookMock.EXPECT().Publish(ctx, gomock.Any()).Return(nil).Times(1)

	// Действие
	incident, err := svc.Resolve(ctx, caller, incidentID)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, models.IncidentResolved, incident.Status)
}

func TestResolve_FromPending(t *testing.T) {
	// Подготовка
	svc, incidentRepoMock, _, _ := newTestIncidentService(t)
	ctx := context.Background()
	caller, _ := responderCaller()
	incidentID := uuid.New()
	pendingIncident := &models.Incident{
		ID:     incidentID,
		Status: models.IncidentPending,
	}

	// Ожидания: resolve без accept отклоняется
	incidentRepoMock.EXPECT().GetByID(ctx, incidentID).Return(pendingIncident, nil).Times(1)
	incidentRepoMock.EXPECT().TransitionStatus(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	// Действие
	incident, err := svc.Resolve(ctx, caller, incidentID)

	// Проверки
	require.Error(t, err)
	assert.Nil(t, incident)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestMarkFalseAlarm_FromPending(t *testing.T) {
	// Подготовка
	svc, incidentRepoMock, _, webhookMock := newTestIncidentService(t)
	ctx := context.Background()
	caller, _ := responderCaller()
	incidentID := uuid.New()
	pendingIncident := &models.Incident{
		ID:     incidentID,
		Status: models.IncidentPending,
	}
	falseAlarmIncident := &models.Incident{
		ID:     incidentID,
		Status: models.IncidentFalseAlarm,
	}

	// Ожидания
	incidentRepoMock.EXPECT().GetByID(ctx, incidentID).Return(pendingIncident, nil).Times(1)
	incidentRepoMock.EXPECT().
		TransitionStatus(ctx, incidentID, models.IncidentPending, models.IncidentFalseAlarm, nil).
		Return(true, nil).
		Times(1)
	incidentRepoMock.EXPECT().InvalidateIncidentCache(ctx, incidentID).Return(nil).Times(1)
	incidentRepoMock.EXPECT().GetByID(ctx, incidentID).Return(falseAlarmIncident, nil).Times(1)
	webhookMock.EXPECT().Publish(ctx, gomock.Any()).Return(nil).Times(1)

	// Действие
	incident, err := svc.MarkFalseAlarm(ctx, caller, incidentID)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, models.IncidentFalseAlarm, incident.Status)
}

func TestMarkFalseAlarm_FromTerminal(t *testing.T) {
	// Подготовка
	svc, incidentRepoMock, _, _ := newTestIncidentService(t)
	ctx := context.Background()
	caller, _ := responderCaller()
	incidentID := uuid.New()
	resolvedIncident := &models.Incident{
		ID:     incidentID,
		Status: models.IncidentResolved,
	}

	// Ожидания: терминальные статусы неизменяемы
	incidentRepoMock.EXPECT().GetByID(ctx, incidentID).Return(resolvedIncident, nil).Times(1)
	incidentRepoMock.EXPECT().TransitionStatus(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	// Действие
	incident, err := svc.MarkFalseAlarm(ctx, caller, incidentID)

	// Проверки
	require.Error(t, err)
	assert.Nil(t, incident)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestNearbyIncidents_Success(t *testing.T) {
	// Подготовка
	svc, incidentRepoMock, responderRepoMock, _ := newTestIncidentService(t)
	ctx := context.Background()
	caller, responderID := responderCaller()
	responder := &models.Responder{
		ID:        responderID,
		Name:      "Городская больница №1",
		Latitude:  55.7601,
		Longitude: 37.6201,
		RoleTag:   "hospital",
	}
	expectedIncidents := []*models.Incident{
		{ID: uuid.New(), Status: models.IncidentPending, DistanceMeters: 120.5},
		{ID: uuid.New(), Status: models.IncidentAccepted, DistanceMeters: 980.1},
	}

	// Ожидания: радиус по умолчанию из конфигурации, локация из профиля
	responderRepoMock.EXPECT().GetByID(ctx, responderID).Return(responder, nil).Times(1)
	incidentRepoMock.EXPECT().
		FindNearby(ctx, responder.Latitude, responder.Longitude, 15000.0, 50, 0).
		Return(expectedIncidents, nil).
		Times(1)

	// Действие
	incidents, err := svc.NearbyIncidents(ctx, caller, 0, 0, 0)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, expectedIncidents, incidents)
	// Порядок по возрастанию дистанции сохраняется
	assert.LessOrEqual(t, incidents[0].DistanceMeters, incidents[1].DistanceMeters)
}

func TestNearbyIncidents_CustomRadius(t *testing.T) {
	// Подготовка
	svc, incidentRepoMock, responderRepoMock, _ := newTestIncidentService(t)
	ctx := context.Background()
	caller, responderID := responderCaller()
	responder := &models.Responder{
		ID:        responderID,
		Latitude:  48.8566,
		Longitude: 2.3522,
	}

	// Ожидания
	responderRepoMock.EXPECT().GetByID(ctx, responderID).Return(responder, nil).Times(1)
	incidentRepoMock.EXPECT().
		FindNearby(ctx, responder.Latitude, responder.Longitude, 500.0, 10, 20).
		Return([]*models.Incident{}, nil).
		Times(1)

	// Действие
	incidents, err := svc.NearbyIncidents(ctx, caller, 500, 10, 20)

	// Проверки
	require.NoError(t, err)
	assert.Empty(t, incidents)
}

func TestNearbyIncidents_NonResponder(t *testing.T) {
	// Подготовка
	svc, _, responderRepoMock, _ := newTestIncidentService(t)
	ctx := context.Background()
	caller := models.Caller{ID: "reporter-1", Role: models.RoleReporter}

	responderRepoMock.EXPECT().GetByID(gomock.Any(), gomock.Any()).Times(0)

	// Действие
	incidents, err := svc.NearbyIncidents(ctx, caller, 0, 0, 0)

	// Проверки
	require.Error(t, err)
	assert.Nil(t, incidents)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestNearbyIncidents_UnknownResponder(t *testing.T) {
	// Подготовка
	svc, _, responderRepoMock, _ := newTestIncidentService(t)
	ctx := context.Background()
	caller, responderID := responderCaller()
	repoErr := fmt.Errorf("responder with id %s: %w", responderID, apperrors.ErrNotFound)

	// Ожидания
	responderRepoMock.EXPECT().GetByID(ctx, responderID).Return(nil, repoErr).Times(1)

	// Действие
	incidents, err := svc.NearbyIncidents(ctx, caller, 0, 0, 0)

	// Проверки
	require.Error(t, err)
	assert.Nil(t, incidents)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
