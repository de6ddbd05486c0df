package models

import "github.com/google/uuid"

type Analysis struct {
	Base
	UserID          uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	Name            string    `gorm:"size:255;not null" json:"name"`
	PropertyAddress string    `gorm:"size:500" json:"property_address,omitempty"`
	Units           int       `json:"units"`

	// Calculator inputs, age encrypted JSON.
	EncryptedInputs []byte `gorm:"not null" json:"-"`

	// Headline metrics kept in clear for listing.
	NOI        float64 `json:"noi"`
	CapRate    float64 `json:"cap_rate"`
	CashOnCash float64 `json:"cash_on_cash"`
}

func (Analysis) TableName() string {
	return "analyses"
}

type ReportExport struct {
	Base
	UserID      uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	AnalysisID  uuid.UUID `gorm:"type:uuid;index;not null" json:"analysis_id"`
	Provider    string    `gorm:"size:20" json:"provider"`
	StorageKey  string    `gorm:"size:500;not null" json:"storage_key"`
	ContentType string    `gorm:"size:100" json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
}

func (ReportExport) TableName() string {
	return "report_exports"
}
