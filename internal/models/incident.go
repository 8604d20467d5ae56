package models

import "time"

// IncidentSeverity represents how urgent an incident is
type IncidentSeverity string

const (
	SeverityLow      IncidentSeverity = "low"
	SeverityMedium   IncidentSeverity = "medium"
	SeverityHigh     IncidentSeverity = "high"
	SeverityCritical IncidentSeverity = "critical"
)

// Incident is stored in the owning tenant's partition; it has no tenant column.
type Incident struct {
	ID          int64            `gorm:"primaryKey" json:"id"`
	Title       string           `gorm:"type:varchar(255);not null" json:"title"`
	Description string           `gorm:"type:text" json:"description"`
	Severity    IncidentSeverity `gorm:"type:varchar(20);not null;default:'medium'" json:"severity"`
	Status      string           `gorm:"type:varchar(20);not null;default:'open'" json:"status"`
	ReportedBy  int64            `gorm:"not null;index" json:"reported_by"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// TableName overrides the table name
func (Incident) TableName() string {
	return "incidents"
}

// IncidentRequest represents a request to open an incident
type IncidentRequest struct {
	Title       string           `json:"title"`
	Description string           `json:"description,omitempty"`
	Severity    IncidentSeverity `json:"severity,omitempty"`
}
