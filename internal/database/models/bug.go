package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Bug severity levels
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Bug lifecycle. Transitions are open -> in_progress -> {closed, open};
// auto-approval may take open -> closed directly.
const (
	BugStatusOpen       = "open"
	BugStatusInProgress = "in_progress"
	BugStatusClosed     = "closed"
)

const DefaultAutoApprovalThreshold = 90

// TestCase is one input/expected-output pair a submission's fix is
// evaluated against.
type TestCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
	Description    string `json:"description"`
}

// TestCases is stored as a serialized JSON column.
type TestCases []TestCase

func (t TestCases) Value() (driver.Value, error) {
	if len(t) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(t)
	return string(b), err
}

func (t *TestCases) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*t = nil
		return nil
	case []byte:
		return json.Unmarshal(v, t)
	case string:
		return json.Unmarshal([]byte(v), t)
	default:
		return fmt.Errorf("unsupported test case column type %T", value)
	}
}

// Bug is a vulnerability bounty posted by a company.
type Bug struct {
	ID                    string    `gorm:"primaryKey;type:uuid" json:"id"`
	Title                 string    `gorm:"not null" json:"title"`
	Description           string    `gorm:"not null" json:"description"`
	Severity              string    `gorm:"not null" json:"severity"`
	Reward                float64   `gorm:"not null" json:"reward"`
	CompanyID             string    `gorm:"index;not null" json:"companyId"`
	TestCases             TestCases `gorm:"type:text" json:"testCases"`
	AutoApprovalThreshold int       `gorm:"default:90" json:"autoApprovalThreshold"`
	Status                string    `gorm:"default:open" json:"status"`
	CreatedAt             time.Time `json:"createdAt"`
}

func (b *Bug) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = BugStatusOpen
	}
	if b.AutoApprovalThreshold == 0 {
		b.AutoApprovalThreshold = DefaultAutoApprovalThreshold
	}
	return nil
}

func ValidSeverity(s string) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

func ValidBugStatus(s string) bool {
	switch s {
	case BugStatusOpen, BugStatusInProgress, BugStatusClosed:
		return true
	}
	return false
}
