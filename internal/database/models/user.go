package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleCompany    = "company"
	RoleResearcher = "researcher"
)

// User is a company or a researcher. Wallet and reputation fields only
// apply to researchers, PaymanAPIKey only to companies.
type User struct {
	ID           string `gorm:"primaryKey;type:uuid" json:"id"`
	Name         string `gorm:"not null" json:"name"`
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`
	Role         string `gorm:"not null" json:"role"`

	// WalletID is the Payman payee id, created lazily on the researcher's
	// first approved payment.
	WalletID string `json:"walletId,omitempty"`

	// PaymanAPIKey is the company's provider credential, AES-sealed at rest.
	PaymanAPIKey string `json:"-"`

	TotalEarnings         float64   `gorm:"default:0" json:"totalEarnings"`
	SuccessfulSubmissions int       `gorm:"default:0" json:"successfulSubmissions"`
	TotalSubmissions      int       `gorm:"default:0" json:"totalSubmissions"`
	SuccessRate           float64   `gorm:"default:0" json:"successRate"`
	CreatedAt             time.Time `json:"createdAt"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// UpdateReputation recomputes the stored success rate from the two
// counters. It must run after every counter mutation and before the user
// record is persisted; read paths rely on the stored value being current.
func (u *User) UpdateReputation() {
	if u.TotalSubmissions > 0 {
		u.SuccessRate = float64(u.SuccessfulSubmissions) / float64(u.TotalSubmissions) * 100
	}
}
