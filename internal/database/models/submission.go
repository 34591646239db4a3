package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	SubmissionStatusPending  = "pending"
	SubmissionStatusApproved = "approved"
	SubmissionStatusRejected = "rejected"
)

// Submission is one researcher's attempt to fix one Bug.
//
// A submission with AutoApproved=true and status approved is finalized:
// manual review must never transition it again.
type Submission struct {
	ID                string     `gorm:"primaryKey;type:uuid" json:"id"`
	BugID             string     `gorm:"index;not null" json:"bugId"`
	ResearcherID      string     `gorm:"index;not null" json:"researcherId"`
	FixDescription    string     `gorm:"not null" json:"fixDescription"`
	ProofOfFix        string     `gorm:"not null" json:"proofOfFix"` // GitHub link, document, or free text
	Status            string     `gorm:"default:pending" json:"status"`
	EvaluationScore   int        `gorm:"default:0" json:"evaluationScore"`
	EvaluationDetails string     `json:"evaluationDetails,omitempty"` // serialized evaluator output
	AutoApproved      bool       `gorm:"default:false" json:"autoApproved"`
	ReviewedBy        *string    `json:"reviewedBy,omitempty"`
	ReviewedAt        *time.Time `json:"reviewedAt,omitempty"`
	Feedback          string     `json:"feedback"`
	CreatedAt         time.Time  `json:"createdAt"`
}

func (s *Submission) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Status == "" {
		s.Status = SubmissionStatusPending
	}
	return nil
}

// Finalized reports whether the submission has been auto-approved and paid,
// in which case a later review call must be rejected.
func (s *Submission) Finalized() bool {
	return s.AutoApproved && s.Status == SubmissionStatusApproved
}
