package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	TransactionStatusProcessing = "processing"
	TransactionStatusCompleted  = "completed"
	TransactionStatusFailed     = "failed"
)

// Transaction is an immutable record of one payment attempt. The workflow
// only ever writes it with status processing; settlement reconciliation
// happens outside this service.
type Transaction struct {
	ID                  string     `gorm:"primaryKey;type:uuid" json:"id"`
	ResearcherID        string     `gorm:"index;not null" json:"researcherId"`
	BugID               string     `gorm:"index;not null" json:"bugId"`
	SubmissionID        string     `gorm:"index;not null" json:"submissionId"`
	Amount              float64    `gorm:"not null" json:"amount"`
	Currency            string     `gorm:"default:TSD" json:"currency"`
	PaymanTransactionID string     `gorm:"not null" json:"paymanTransactionId"`
	Status              string     `gorm:"default:processing" json:"status"`
	ProcessedAt         *time.Time `json:"processedAt,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = TransactionStatusProcessing
	}
	return nil
}
