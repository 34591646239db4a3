package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Notification event kinds.
const (
	NotifyBugPosted              = "bug_posted"
	NotifySubmissionReceived     = "submission_received"
	NotifySubmissionApproved     = "submission_approved"
	NotifySubmissionRejected     = "submission_rejected"
	NotifySubmissionAutoApproved = "submission_auto_approved"
	NotifyPaymentSent            = "payment_sent"
	NotifyPaymentReceived        = "payment_received"
	NotifyPaymentFailed          = "payment_failed"
)

// Entities a notification's RelatedID may point to.
const (
	RelatedBug         = "Bug"
	RelatedSubmission  = "Submission"
	RelatedTransaction = "Transaction"
)

// Notification is a one-way informational record for a user. The workflow
// only creates them; readers mark them read.
type Notification struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID    string    `gorm:"index;not null" json:"userId"`
	Type      string    `gorm:"not null" json:"type"`
	Message   string    `gorm:"not null" json:"message"`
	IsRead    bool      `gorm:"default:false" json:"isRead"`
	RelatedID string    `json:"relatedId,omitempty"`
	OnModel   string    `json:"onModel,omitempty"` // which entity RelatedID points to
	CreatedAt time.Time `json:"createdAt"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return nil
}
