package stores

import (
	"gorm.io/gorm"

	"github.com/hrishi0102/patchpay/internal/database"
	"github.com/hrishi0102/patchpay/internal/database/models"
)

// Stores bundles one typed store per model (/ table in the database).
type Stores struct {
	Users         *UserStore
	Bugs          *BugStore
	Submissions   *SubmissionStore
	Transactions  *TransactionStore
	Notifications *NotificationStore

	db *gorm.DB
}

func New(db *gorm.DB) *Stores {
	return &Stores{
		Users:         &UserStore{database.NewDataStore[models.User](db, models.USERS)},
		Bugs:          &BugStore{database.NewDataStore[models.Bug](db, models.BUGS)},
		Submissions:   &SubmissionStore{database.NewDataStore[models.Submission](db, models.SUBMISSIONS)},
		Transactions:  &TransactionStore{database.NewDataStore[models.Transaction](db, models.TRANSACTIONS)},
		Notifications: &NotificationStore{database.NewDataStore[models.Notification](db, models.NOTIFICATIONS)},
		db:            db,
	}
}

// ImportAndInit opens the database at path and returns the initialized
// store bundle.
func ImportAndInit(path string, conf gorm.Config) (*Stores, error) {
	db, err := database.InitDB(path, conf, models.GetModels()...)
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

func (s *Stores) DB() *gorm.DB {
	return s.db
}

// Transaction runs fn with a store bundle bound to a single database
// transaction. Rolls back if fn returns an error.
func (s *Stores) Transaction(fn func(tx *Stores) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(New(tx))
	})
}

type UserStore struct {
	*database.DataStore[models.User]
}

func (s *UserStore) GetByEmail(email string) (*models.User, error) {
	recs, err := s.Find("email = ?", email)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, database.ErrNotFound
	}
	return &recs[0], nil
}

// TopByEarnings returns researchers ordered by total earnings.
func (s *UserStore) TopByEarnings(limit int) ([]models.User, error) {
	var recs []models.User
	result := s.DB().
		Where("role = ?", models.RoleResearcher).
		Order("total_earnings DESC").
		Limit(limit).
		Find(&recs)
	return recs, result.Error
}

// TopBySuccessRate returns researchers with at least minSubmissions
// reviewed submissions, ordered by success rate.
func (s *UserStore) TopBySuccessRate(limit, minSubmissions int) ([]models.User, error) {
	var recs []models.User
	result := s.DB().
		Where("role = ? AND total_submissions >= ?", models.RoleResearcher, minSubmissions).
		Order("success_rate DESC").
		Limit(limit).
		Find(&recs)
	return recs, result.Error
}

func (s *UserStore) CountResearchersEarningMore(earnings float64) (int64, error) {
	return s.Count("role = ? AND total_earnings > ?", models.RoleResearcher, earnings)
}

func (s *UserStore) CountResearchersOutperforming(rate float64, minSubmissions int) (int64, error) {
	return s.Count("role = ? AND total_submissions >= ? AND success_rate > ?",
		models.RoleResearcher, minSubmissions, rate)
}

type BugStore struct {
	*database.DataStore[models.Bug]
}

// List returns bugs matching the optional status and severity filters,
// newest first.
func (s *BugStore) List(status, severity string) ([]models.Bug, error) {
	q := s.DB().Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if severity != "" {
		q = q.Where("severity = ?", severity)
	}
	var recs []models.Bug
	result := q.Find(&recs)
	return recs, result.Error
}

func (s *BugStore) ListByCompany(companyID string) ([]models.Bug, error) {
	var recs []models.Bug
	result := s.DB().
		Where("company_id = ?", companyID).
		Order("created_at DESC").
		Find(&recs)
	return recs, result.Error
}

type SubmissionStore struct {
	*database.DataStore[models.Submission]
}

func (s *SubmissionStore) ListByBug(bugID string) ([]models.Submission, error) {
	var recs []models.Submission
	result := s.DB().
		Where("bug_id = ?", bugID).
		Order("created_at DESC").
		Find(&recs)
	return recs, result.Error
}

func (s *SubmissionStore) ListByResearcher(researcherID string) ([]models.Submission, error) {
	var recs []models.Submission
	result := s.DB().
		Where("researcher_id = ?", researcherID).
		Order("created_at DESC").
		Find(&recs)
	return recs, result.Error
}

type TransactionStore struct {
	*database.DataStore[models.Transaction]
}

func (s *TransactionStore) CountBySubmission(submissionID string) (int64, error) {
	return s.Count("submission_id = ?", submissionID)
}

type NotificationStore struct {
	*database.DataStore[models.Notification]
}

// ListByUser returns the recipient's newest notifications, capped at limit.
func (s *NotificationStore) ListByUser(userID string, limit int) ([]models.Notification, error) {
	var recs []models.Notification
	result := s.DB().
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&recs)
	return recs, result.Error
}
