package models

import (
	"time"

	"github.com/google/uuid"
)

// IncidentStatus - статус инцидента (закрытое множество значений)
type IncidentStatus string

const (
	IncidentPending    IncidentStatus = "pending"
	IncidentAccepted   IncidentStatus = "accepted"
	IncidentResolved   IncidentStatus = "resolved"
	IncidentFalseAlarm IncidentStatus = "false_alarm"
)

// Valid проверяет, что статус принадлежит известному множеству
func (s IncidentStatus) Valid() bool {
	switch s {
	case IncidentPending, IncidentAccepted, IncidentResolved, IncidentFalseAlarm:
		return true
	}
	return false
}

// Terminal сообщает, является ли статус терминальным (из него нет переходов)
func (s IncidentStatus) Terminal() bool {
	return s == IncidentResolved || s == IncidentFalseAlarm
}

// Incident - кластер репортов об одном реальном событии.
// Координаты - это координаты первого репорта, открывшего инцидент.
type Incident struct {
	ID             uuid.UUID      `json:"id"`
	Latitude       float64        `json:"latitude"`
	Longitude      float64        `json:"longitude"`
	Status         IncidentStatus `json:"status"`
	AcceptedBy     *uuid.UUID     `json:"accepted_by,omitempty"`
	ReportCount    int            `json:"report_count"`
	CreatedAt      time.Time      `json:"created_at"`
	LastActivityAt time.Time      `json:"last_activity_at"`

	// DistanceMeters заполняется только geofence-запросами
	DistanceMeters float64 `json:"distance_meters,omitempty"`
}
