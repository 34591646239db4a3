package workflow

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/hrishi0102/patchpay/internal/database/models"
	"github.com/hrishi0102/patchpay/internal/database/stores"
	"github.com/hrishi0102/patchpay/internal/evaluator"
	"github.com/hrishi0102/patchpay/internal/github"
	"github.com/hrishi0102/patchpay/internal/payman"
)

type fakeClient struct {
	mu         sync.Mutex
	payeeErr   error
	payErr     error
	payeeDelay time.Duration
	payees     []string
	payments   []payman.PaymentRequest
}

func (c *fakeClient) CreatePayee(_ context.Context, name, _ string) (*payman.Payee, error) {
	if c.payeeDelay > 0 {
		time.Sleep(c.payeeDelay)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.payeeErr != nil {
		return nil, c.payeeErr
	}
	c.payees = append(c.payees, name)
	return &payman.Payee{ID: fmt.Sprintf("payee-%d", len(c.payees)), Name: name}, nil
}

func (c *fakeClient) SendPayment(_ context.Context, req payman.PaymentRequest) (*payman.Payment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.payErr != nil {
		return nil, c.payErr
	}
	c.payments = append(c.payments, req)
	return &payman.Payment{Reference: fmt.Sprintf("ref-%d", len(c.payments))}, nil
}

func (c *fakeClient) GetBalance(_ context.Context, _ string) (float64, error) {
	return 1000, nil
}

type fakeFactory struct {
	client payman.Client
	err    error
}

func (f *fakeFactory) MakeClient(string) (payman.Client, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.client, nil
}

type fakeEvaluator struct {
	result *evaluator.Result
	err    error
}

func (e *fakeEvaluator) Evaluate(context.Context, string, []models.TestCase, string) (*evaluator.Result, error) {
	return e.result, e.err
}

type fakeResolver struct {
	src *github.Source
	err error
}

func (r *fakeResolver) Resolve(context.Context, string) (*github.Source, error) {
	return r.src, r.err
}

type capturePublisher struct {
	mu     sync.Mutex
	events []models.Notification
}

func (p *capturePublisher) Publish(n models.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, n)
}

type fixture struct {
	s      *stores.Stores
	flow   *Orchestrator
	client *fakeClient
	eval   *fakeEvaluator
	source *fakeResolver
	pub    *capturePublisher

	company    *models.User
	researcher *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	s, err := stores.ImportAndInit(filepath.Join(t.TempDir(), "test.db"), gorm.Config{})
	require.NoError(t, err)

	f := &fixture{
		s:      s,
		client: &fakeClient{},
		eval:   &fakeEvaluator{err: errors.New("not configured")},
		source: &fakeResolver{err: github.ErrNoSource},
		pub:    &capturePublisher{},
	}
	f.flow = New(s, &fakeFactory{client: f.client}, f.eval, f.source, f.pub, Timeouts{})

	f.company = &models.User{
		Name:         "Acme Corp",
		Email:        "security@acme.test",
		PasswordHash: "x",
		Role:         models.RoleCompany,
		PaymanAPIKey: "sealed-key",
	}
	require.NoError(t, s.Users.Insert(f.company))

	f.researcher = &models.User{
		Name:         "Robin",
		Email:        "robin@finder.test",
		PasswordHash: "x",
		Role:         models.RoleResearcher,
	}
	require.NoError(t, s.Users.Insert(f.researcher))

	return f
}

func (f *fixture) newBug(t *testing.T, testCases models.TestCases) *models.Bug {
	t.Helper()
	bug := &models.Bug{
		Title:       "SQL injection in login",
		Description: "The login form concatenates user input into the query.",
		Severity:    models.SeverityHigh,
		Reward:      250,
		CompanyID:   f.company.ID,
		TestCases:   testCases,
	}
	require.NoError(t, f.s.Bugs.Insert(bug))
	return bug
}

func (f *fixture) intake(t *testing.T, bugID string) (*models.Submission, error) {
	t.Helper()
	return f.flow.CreateSubmission(context.Background(), IntakeRequest{
		BugID:          bugID,
		ResearcherID:   f.researcher.ID,
		FixDescription: "Parameterize the query",
		ProofOfFix:     "See https://github.com/robin/fixes/blob/main/login.js",
	})
}

func (f *fixture) notificationTypes(t *testing.T, userID string) []string {
	t.Helper()
	recs, err := f.s.Notifications.ListByUser(userID, 50)
	require.NoError(t, err)
	types := make([]string, len(recs))
	for i, n := range recs {
		types[i] = n.Type
	}
	return types
}

func passingResult(score int) *evaluator.Result {
	return &evaluator.Result{
		TestResults:  []evaluator.TestResult{{TestCaseIndex: 0, Passed: true, Explanation: "ok"}},
		OverallScore: score,
		Summary:      "looks correct",
	}
}

var sampleCases = models.TestCases{
	{Input: "' OR 1=1 --", ExpectedOutput: "login rejected", Description: "classic injection"},
}

func TestCreateSubmissionManualPath(t *testing.T) {
	f := newFixture(t)
	bug := f.newBug(t, nil)

	sub, err := f.intake(t, bug.ID)
	require.NoError(t, err)

	assert.Equal(t, models.SubmissionStatusPending, sub.Status)
	assert.False(t, sub.AutoApproved)

	bug, err = f.s.Bugs.GetByID(bug.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BugStatusInProgress, bug.Status)

	assert.Equal(t, []string{models.NotifySubmissionReceived}, f.notificationTypes(t, f.company.ID))
	assert.Len(t, f.pub.events, 1)
}

func TestCreateSubmissionBugNotOpen(t *testing.T) {
	f := newFixture(t)
	bug := f.newBug(t, nil)
	bug.Status = models.BugStatusClosed
	require.NoError(t, f.s.Bugs.Update(bug))

	_, err := f.intake(t, bug.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = f.intake(t, "no-such-bug")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManualApprovalPaysOut(t *testing.T) {
	f := newFixture(t)
	bug := f.newBug(t, nil)
	sub, err := f.intake(t, bug.ID)
	require.NoError(t, err)

	reviewed, err := f.flow.ReviewSubmission(context.Background(), sub.ID, f.company.ID,
		models.SubmissionStatusApproved, "nice work")
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionStatusApproved, reviewed.Status)
	assert.Equal(t, "nice work", reviewed.Feedback)
	require.NotNil(t, reviewed.ReviewedBy)
	assert.Equal(t, f.company.ID, *reviewed.ReviewedBy)

	bug, err = f.s.Bugs.GetByID(bug.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BugStatusClosed, bug.Status)

	researcher, err := f.s.Users.GetByID(f.researcher.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, researcher.TotalSubmissions)
	assert.Equal(t, 1, researcher.SuccessfulSubmissions)
	assert.Equal(t, float64(250), researcher.TotalEarnings)
	assert.Equal(t, float64(100), researcher.SuccessRate)
	assert.NotEmpty(t, researcher.WalletID)

	count, err := f.s.Transactions.CountBySubmission(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.Len(t, f.client.payments, 1)
	assert.Equal(t, float64(250), f.client.payments[0].Amount)
	assert.Equal(t, researcher.WalletID, f.client.payments[0].PayeeID)

	assert.ElementsMatch(t,
		[]string{models.NotifySubmissionApproved, models.NotifyPaymentReceived},
		f.notificationTypes(t, f.researcher.ID))
}

func TestManualRejectionReopensBug(t *testing.T) {
	f := newFixture(t)
	bug := f.newBug(t, nil)
	sub, err := f.intake(t, bug.ID)
	require.NoError(t, err)

	reviewed, err := f.flow.ReviewSubmission(context.Background(), sub.ID, f.company.ID,
		models.SubmissionStatusRejected, "does not fix the root cause")
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionStatusRejected, reviewed.Status)

	bug, err = f.s.Bugs.GetByID(bug.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BugStatusOpen, bug.Status)

	researcher, err := f.s.Users.GetByID(f.researcher.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, researcher.TotalSubmissions)
	assert.Equal(t, 0, researcher.SuccessfulSubmissions)
	assert.Equal(t, float64(0), researcher.SuccessRate)

	assert.Equal(t, []string{models.NotifySubmissionRejected}, f.notificationTypes(t, f.researcher.ID))
	assert.Empty(t, f.client.payments)
}

func TestReviewValidation(t *testing.T) {
	f := newFixture(t)
	bug := f.newBug(t, nil)
	sub, err := f.intake(t, bug.ID)
	require.NoError(t, err)

	_, err = f.flow.ReviewSubmission(context.Background(), sub.ID, f.company.ID, "maybe", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.flow.ReviewSubmission(context.Background(), "no-such-submission", f.company.ID,
		models.SubmissionStatusApproved, "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.flow.ReviewSubmission(context.Background(), sub.ID, f.researcher.ID,
		models.SubmissionStatusApproved, "")
	assert.ErrorIs(t, err, ErrForbidden)

	// A second verdict on an already reviewed submission is rejected.
	_, err = f.flow.ReviewSubmission(context.Background(), sub.ID, f.company.ID,
		models.SubmissionStatusRejected, "")
	require.NoError(t, err)
	_, err = f.flow.ReviewSubmission(context.Background(), sub.ID, f.company.ID,
		models.SubmissionStatusApproved, "")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestAutoApprovalPaysOut(t *testing.T) {
	f := newFixture(t)
	f.source = &fakeResolver{src: &github.Source{
		Owner: "robin", Repo: "fixes", Path: "login.js", Language: "JavaScript", Code: "fixed code",
	}}
	f.eval = &fakeEvaluator{result: passingResult(95)}
	f.flow = New(f.s, &fakeFactory{client: f.client}, f.eval, f.source, f.pub, Timeouts{})

	bug := f.newBug(t, sampleCases)
	sub, err := f.intake(t, bug.ID)
	require.NoError(t, err)

	assert.True(t, sub.AutoApproved)
	assert.Equal(t, models.SubmissionStatusApproved, sub.Status)
	assert.Equal(t, 95, sub.EvaluationScore)
	assert.NotEmpty(t, sub.EvaluationDetails)

	stored, err := f.s.Submissions.GetByID(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionStatusApproved, stored.Status)
	assert.True(t, stored.AutoApproved)

	bug, err = f.s.Bugs.GetByID(bug.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BugStatusClosed, bug.Status)

	researcher, err := f.s.Users.GetByID(f.researcher.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, researcher.TotalSubmissions)
	assert.Equal(t, 1, researcher.SuccessfulSubmissions)
	assert.Equal(t, float64(250), researcher.TotalEarnings)

	assert.Contains(t, f.notificationTypes(t, f.company.ID), models.NotifySubmissionAutoApproved)
}

func TestScoreBelowThresholdStaysPending(t *testing.T) {
	f := newFixture(t)
	f.source = &fakeResolver{src: &github.Source{Code: "half a fix", Language: "Go"}}
	f.eval = &fakeEvaluator{result: passingResult(60)}
	f.flow = New(f.s, &fakeFactory{client: f.client}, f.eval, f.source, f.pub, Timeouts{})

	bug := f.newBug(t, sampleCases)
	sub, err := f.intake(t, bug.ID)
	require.NoError(t, err)

	assert.False(t, sub.AutoApproved)
	assert.Equal(t, models.SubmissionStatusPending, sub.Status)
	assert.Equal(t, 60, sub.EvaluationScore)

	bug, err = f.s.Bugs.GetByID(bug.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BugStatusInProgress, bug.Status)
	assert.Empty(t, f.client.payments)
}

func TestEvaluationFailureDegradesToManual(t *testing.T) {
	f := newFixture(t)
	f.eval = &fakeEvaluator{err: errors.New("model unavailable")}
	f.source = &fakeResolver{src: &github.Source{Code: "code"}}
	f.flow = New(f.s, &fakeFactory{client: f.client}, f.eval, f.source, f.pub, Timeouts{})

	bug := f.newBug(t, sampleCases)
	sub, err := f.intake(t, bug.ID)
	require.NoError(t, err)

	assert.Equal(t, models.SubmissionStatusPending, sub.Status)
	assert.Zero(t, sub.EvaluationScore)
	assert.Empty(t, sub.EvaluationDetails)
}

func TestNoCodeReferenceSkipsEvaluation(t *testing.T) {
	f := newFixture(t)

	bug := f.newBug(t, sampleCases)
	sub, err := f.intake(t, bug.ID)
	require.NoError(t, err)

	assert.Equal(t, models.SubmissionStatusPending, sub.Status)
	assert.Zero(t, sub.EvaluationScore)
}

func TestAutoApprovalPaymentFailureCompensates(t *testing.T) {
	f := newFixture(t)
	f.client.payErr = errors.New("insufficient funds")
	f.source = &fakeResolver{src: &github.Source{Code: "fixed code"}}
	f.eval = &fakeEvaluator{result: passingResult(100)}
	f.flow = New(f.s, &fakeFactory{client: f.client}, f.eval, f.source, f.pub, Timeouts{})

	bug := f.newBug(t, sampleCases)
	sub, err := f.intake(t, bug.ID)
	require.NoError(t, err, "auto-approval payout failure must not fail intake")

	stored, err := f.s.Submissions.GetByID(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionStatusPending, stored.Status)
	assert.False(t, stored.AutoApproved)
	assert.Equal(t, 100, stored.EvaluationScore, "the score survives the rollback")

	bug, err = f.s.Bugs.GetByID(bug.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BugStatusOpen, bug.Status)

	researcher, err := f.s.Users.GetByID(f.researcher.ID)
	require.NoError(t, err)
	assert.Zero(t, researcher.TotalSubmissions)
	assert.Zero(t, researcher.TotalEarnings)

	count, err := f.s.Transactions.CountBySubmission(sub.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	assert.Contains(t, f.notificationTypes(t, f.company.ID), models.NotifyPaymentFailed)

	// The compensated submission is reviewable again, by hand.
	f.client.payErr = nil
	reviewed, err := f.flow.ReviewSubmission(context.Background(), sub.ID, f.company.ID,
		models.SubmissionStatusApproved, "")
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionStatusApproved, reviewed.Status)
}

func TestManualApprovalPaymentFailure(t *testing.T) {
	f := newFixture(t)
	f.client.payErr = errors.New("provider down")

	bug := f.newBug(t, nil)
	sub, err := f.intake(t, bug.ID)
	require.NoError(t, err)

	_, err = f.flow.ReviewSubmission(context.Background(), sub.ID, f.company.ID,
		models.SubmissionStatusApproved, "")
	assert.ErrorIs(t, err, ErrPaymentProcessing)

	stored, err := f.s.Submissions.GetByID(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionStatusPending, stored.Status, "a failed manual approval leaves the submission pending")

	// The review attempt still counts toward the researcher's totals.
	researcher, err := f.s.Users.GetByID(f.researcher.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, researcher.TotalSubmissions)
	assert.Zero(t, researcher.SuccessfulSubmissions)

	assert.Contains(t, f.notificationTypes(t, f.company.ID), models.NotifyPaymentFailed)
}

func TestMissingAPIKeyBlocksApproval(t *testing.T) {
	f := newFixture(t)
	f.company.PaymanAPIKey = ""
	require.NoError(t, f.s.Users.Update(f.company))

	bug := f.newBug(t, nil)
	sub, err := f.intake(t, bug.ID)
	require.NoError(t, err)

	_, err = f.flow.ReviewSubmission(context.Background(), sub.ID, f.company.ID,
		models.SubmissionStatusApproved, "")
	assert.ErrorIs(t, err, ErrPaymentConfig)

	assert.Contains(t, f.notificationTypes(t, f.company.ID), models.NotifyPaymentFailed)
}

func TestFinalizedAutoApprovalCannotBeReviewed(t *testing.T) {
	f := newFixture(t)
	f.source = &fakeResolver{src: &github.Source{Code: "fixed code"}}
	f.eval = &fakeEvaluator{result: passingResult(100)}
	f.flow = New(f.s, &fakeFactory{client: f.client}, f.eval, f.source, f.pub, Timeouts{})

	bug := f.newBug(t, sampleCases)
	sub, err := f.intake(t, bug.ID)
	require.NoError(t, err)
	require.True(t, sub.AutoApproved)

	_, err = f.flow.ReviewSubmission(context.Background(), sub.ID, f.company.ID,
		models.SubmissionStatusRejected, "changed my mind")
	assert.ErrorIs(t, err, ErrAlreadyFinalized)

	// Money moved exactly once.
	count, err := f.s.Transactions.CountBySubmission(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestWalletProvisionedOnce(t *testing.T) {
	f := newFixture(t)

	bug := f.newBug(t, nil)
	sub, err := f.intake(t, bug.ID)
	require.NoError(t, err)
	_, err = f.flow.ReviewSubmission(context.Background(), sub.ID, f.company.ID,
		models.SubmissionStatusApproved, "")
	require.NoError(t, err)

	second := f.newBug(t, nil)
	sub2, err := f.intake(t, second.ID)
	require.NoError(t, err)
	_, err = f.flow.ReviewSubmission(context.Background(), sub2.ID, f.company.ID,
		models.SubmissionStatusApproved, "")
	require.NoError(t, err)

	assert.Len(t, f.client.payees, 1, "the payee wallet is reused for later payouts")
	assert.Len(t, f.client.payments, 2)
}

func TestWalletSurvivesPaymentFailure(t *testing.T) {
	f := newFixture(t)
	f.client.payErr = errors.New("provider down")

	bug := f.newBug(t, nil)
	sub, err := f.intake(t, bug.ID)
	require.NoError(t, err)

	_, err = f.flow.ReviewSubmission(context.Background(), sub.ID, f.company.ID,
		models.SubmissionStatusApproved, "")
	require.Error(t, err)

	researcher, err := f.s.Users.GetByID(f.researcher.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, researcher.WalletID, "payee provisioning is never rolled back")
}

func TestConcurrentIntakeFirstWriterWins(t *testing.T) {
	f := newFixture(t)
	bug := f.newBug(t, nil)

	second := &models.User{
		Name:         "Sam",
		Email:        "sam@finder.test",
		PasswordHash: "x",
		Role:         models.RoleResearcher,
	}
	require.NoError(t, f.s.Users.Insert(second))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, researcherID := range []string{f.researcher.ID, second.ID} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = f.flow.CreateSubmission(context.Background(), IntakeRequest{
				BugID:          bug.ID,
				ResearcherID:   id,
				FixDescription: "fix",
				ProofOfFix:     "proof",
			})
		}(i, researcherID)
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, ErrInvalidState)
			failed++
		}
	}
	assert.Equal(t, 1, failed, "exactly one of two concurrent submitters wins")

	bug, err := f.s.Bugs.GetByID(bug.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BugStatusInProgress, bug.Status)

	subs, err := f.s.Submissions.ListByBug(bug.ID)
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestConcurrentPayoutsShareOneWallet(t *testing.T) {
	f := newFixture(t)
	// Slow provisioning widens the window in which a second payout could
	// observe the wallet as unset.
	f.client.payeeDelay = 50 * time.Millisecond

	subA, err := f.intake(t, f.newBug(t, nil).ID)
	require.NoError(t, err)
	subB, err := f.intake(t, f.newBug(t, nil).ID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, id := range []string{subA.ID, subB.ID} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.flow.ReviewSubmission(context.Background(), id, f.company.ID,
				models.SubmissionStatusApproved, "")
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	assert.Len(t, f.client.payees, 1, "one payee wallet serves both payouts")
	assert.Len(t, f.client.payments, 2)

	researcher, err := f.s.Users.GetByID(f.researcher.ID)
	require.NoError(t, err)
	assert.Equal(t, "payee-1", researcher.WalletID)
	assert.Equal(t, 2, researcher.TotalSubmissions)
	assert.Equal(t, 2, researcher.SuccessfulSubmissions)
	assert.Equal(t, float64(500), researcher.TotalEarnings, "no payout may overwrite the other's ledger commit")
}

func TestSuccessRateAggregation(t *testing.T) {
	f := newFixture(t)

	verdicts := []string{
		models.SubmissionStatusApproved,
		models.SubmissionStatusRejected,
		models.SubmissionStatusApproved,
	}
	for _, verdict := range verdicts {
		bug := f.newBug(t, nil)
		sub, err := f.intake(t, bug.ID)
		require.NoError(t, err)
		_, err = f.flow.ReviewSubmission(context.Background(), sub.ID, f.company.ID, verdict, "")
		require.NoError(t, err)
	}

	researcher, err := f.s.Users.GetByID(f.researcher.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, researcher.TotalSubmissions)
	assert.Equal(t, 2, researcher.SuccessfulSubmissions)
	assert.InDelta(t, 66.66, researcher.SuccessRate, 0.1)
	assert.Equal(t, float64(500), researcher.TotalEarnings)
}
