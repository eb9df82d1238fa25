package models

import (
	"time"

	"github.com/google/uuid"
)

// ReportCategory - категория репорта (закрытое множество значений)
type ReportCategory string

const (
	CategoryAccident ReportCategory = "accident"
	CategoryMedical  ReportCategory = "medical"
	CategoryFire     ReportCategory = "fire"
	CategoryCrime    ReportCategory = "crime"
	CategoryOther    ReportCategory = "other"
)

// Valid проверяет, что категория принадлежит известному множеству
func (c ReportCategory) Valid() bool {
	switch c {
	case CategoryAccident, CategoryMedical, CategoryFire, CategoryCrime, CategoryOther:
		return true
	}
	return false
}

// Report - одно сообщение репортера. Неизменяем после создания,
// IncidentID проставляется движком кластеризации при вставке.
type Report struct {
	ID         uuid.UUID      `json:"id"`
	ReporterID string         `json:"reporter_id"`
	IncidentID uuid.UUID      `json:"incident_id"`
	Latitude   float64        `json:"latitude"`
	Longitude  float64        `json:"longitude"`
	Category   ReportCategory `json:"category"`
	MediaRef   *string        `json:"media_ref,omitempty"`
	IsWitness  bool           `json:"is_witness"`
	CreatedAt  time.Time      `json:"created_at"`
}
