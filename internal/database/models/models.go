package models

func GetModels() []interface{} {
	return []interface{}{
		&User{},
		&Bug{},
		&Submission{},
		&Transaction{},
		&Notification{},

		// We'll add more models here if neccessary
	}
}

const (
	USERS         = "users"
	BUGS          = "bugs"
	SUBMISSIONS   = "submissions"
	TRANSACTIONS  = "transactions"
	NOTIFICATIONS = "notifications"
)
