// Package workflow drives the submission lifecycle: intake with optional
// auto-evaluation, manual review, and the shared approval payout procedure
// with compensation of the approval decision on payment failure.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hrishi0102/patchpay/internal/database/models"
	"github.com/hrishi0102/patchpay/internal/database/stores"
	"github.com/hrishi0102/patchpay/internal/evaluator"
	"github.com/hrishi0102/patchpay/internal/github"
	"github.com/hrishi0102/patchpay/internal/payman"
)

// SourceResolver turns a proof-of-fix text into fetched source code.
// Returns github.ErrNoSource when the text holds no code reference.
type SourceResolver interface {
	Resolve(ctx context.Context, text string) (*github.Source, error)
}

// Timeouts bound each external call. Zero means no bound.
type Timeouts struct {
	Evaluation time.Duration
	Payment    time.Duration
}

// Orchestrator owns the submission lifecycle. All mutations of Bug.status
// and researcher counters go through its per-entity locks.
type Orchestrator struct {
	stores    *stores.Stores
	payments  payman.Factory
	evaluator evaluator.Evaluator
	sources   SourceResolver
	publisher Publisher
	timeouts  Timeouts

	bugLocks  *keyedLocks
	userLocks *keyedLocks
}

func New(s *stores.Stores, payments payman.Factory, eval evaluator.Evaluator, sources SourceResolver, pub Publisher, timeouts Timeouts) *Orchestrator {
	return &Orchestrator{
		stores:    s,
		payments:  payments,
		evaluator: eval,
		sources:   sources,
		publisher: pub,
		timeouts:  timeouts,
		bugLocks:  newKeyedLocks(),
		userLocks: newKeyedLocks(),
	}
}

// IntakeRequest is a researcher's new submission.
type IntakeRequest struct {
	BugID          string
	ResearcherID   string
	FixDescription string
	ProofOfFix     string
}

// CreateSubmission runs intake: validate the bug, optionally auto-evaluate
// the fix, persist the submission, and either queue it for manual review or
// auto-approve and pay out immediately.
//
// Evaluation failure never blocks submission creation, and a payout failure
// on the auto-approval path is compensated internally, so the returned
// submission may be pending even when evaluation scored above threshold.
func (o *Orchestrator) CreateSubmission(ctx context.Context, req IntakeRequest) (*models.Submission, error) {
	unlock := o.bugLocks.lock(req.BugID)
	defer unlock()

	bug, err := o.stores.Bugs.GetByID(req.BugID)
	if err != nil {
		return nil, E(ErrNotFound, "bug not found")
	}
	if bug.Status != models.BugStatusOpen {
		return nil, E(ErrInvalidState, "this bug is not open for submissions")
	}

	submission := &models.Submission{
		BugID:          bug.ID,
		ResearcherID:   req.ResearcherID,
		FixDescription: req.FixDescription,
		ProofOfFix:     req.ProofOfFix,
		Status:         models.SubmissionStatusPending,
	}

	if len(bug.TestCases) > 0 {
		o.evaluateSubmission(ctx, submission, bug)
	}

	if err := o.stores.Submissions.Insert(submission); err != nil {
		return nil, err
	}

	if !submission.AutoApproved {
		events := &eventBuffer{}
		bug.Status = models.BugStatusInProgress
		if err := o.stores.Bugs.Update(bug); err != nil {
			return nil, err
		}
		events.add(bug.CompanyID, models.NotifySubmissionReceived,
			fmt.Sprintf("New submission received for bug: %s", bug.Title),
			submission.ID, models.RelatedSubmission)
		events.flush(o.stores.Notifications, o.publisher)
		return submission, nil
	}

	// Auto-approval runs with no caller waiting on the payment: a payout
	// failure is compensated (submission back to pending) and swallowed.
	if err := o.payout(ctx, submission, bug, true); err != nil {
		log.Warnf("auto-approval payout for submission %s failed: %v", submission.ID, err)
	}
	return submission, nil
}

// evaluateSubmission scores the proof of fix against the bug's test cases
// and marks the submission approved when the score meets the bug's
// threshold. Any failure leaves the submission unevaluated.
func (o *Orchestrator) evaluateSubmission(ctx context.Context, submission *models.Submission, bug *models.Bug) {
	if o.sources == nil || o.evaluator == nil {
		return
	}

	evalCtx := ctx
	if o.timeouts.Evaluation > 0 {
		var cancel context.CancelFunc
		evalCtx, cancel = context.WithTimeout(ctx, o.timeouts.Evaluation)
		defer cancel()
	}

	src, err := o.sources.Resolve(evalCtx, submission.ProofOfFix)
	if err != nil {
		if errors.Is(err, github.ErrNoSource) {
			log.Debugf("submission for bug %s carries no code reference, skipping evaluation", bug.ID)
		} else {
			log.Warnf("could not fetch submission code for bug %s: %v", bug.ID, err)
		}
		return
	}

	result, err := o.evaluator.Evaluate(evalCtx, src.Code, bug.TestCases, src.Language)
	if err != nil {
		log.Warnf("evaluation failed for bug %s: %v", bug.ID, err)
		return
	}

	submission.EvaluationScore = result.OverallScore
	if details, err := json.Marshal(result); err == nil {
		submission.EvaluationDetails = string(details)
	}

	if result.OverallScore >= bug.AutoApprovalThreshold {
		submission.AutoApproved = true
		submission.Status = models.SubmissionStatusApproved
		log.Infof("submission for bug %s auto-approved with score %d (threshold %d)",
			bug.ID, result.OverallScore, bug.AutoApprovalThreshold)
	}
}

// ReviewSubmission applies a company's verdict on a pending submission.
// On approval the payout procedure must succeed before the submission is
// advanced; on failure the call fails and the submission stays pending.
func (o *Orchestrator) ReviewSubmission(ctx context.Context, submissionID, reviewerID, status, feedback string) (*models.Submission, error) {
	if status != models.SubmissionStatusApproved && status != models.SubmissionStatusRejected {
		return nil, E(ErrInvalidInput, "invalid status, must be approved or rejected")
	}

	submission, err := o.stores.Submissions.GetByID(submissionID)
	if err != nil {
		return nil, E(ErrNotFound, "submission not found")
	}

	unlock := o.bugLocks.lock(submission.BugID)
	defer unlock()

	// Re-read under the bug lock so concurrent reviews serialize.
	submission, err = o.stores.Submissions.GetByID(submissionID)
	if err != nil {
		return nil, E(ErrNotFound, "submission not found")
	}

	if submission.Finalized() {
		return nil, E(ErrAlreadyFinalized, "this submission was auto-approved and already finalized")
	}

	bug, err := o.stores.Bugs.GetByID(submission.BugID)
	if err != nil {
		return nil, E(ErrNotFound, "bug not found")
	}
	if bug.CompanyID != reviewerID {
		return nil, E(ErrForbidden, "not authorized to review this submission")
	}
	if submission.Status != models.SubmissionStatusPending {
		return nil, E(ErrInvalidState, "submission has already been reviewed")
	}

	now := time.Now()
	submission.Feedback = feedback
	submission.ReviewedBy = &reviewerID
	submission.ReviewedAt = &now

	// The reviewed submission counts toward the researcher's denominator
	// before the payout attempt; a failed payment still leaves it counted.
	if err := o.countReviewedSubmission(submission.ResearcherID); err != nil {
		return nil, err
	}

	if status == models.SubmissionStatusRejected {
		return submission, o.reject(submission, bug)
	}

	if err := o.payout(ctx, submission, bug, false); err != nil {
		return nil, err
	}
	return submission, nil
}

// countReviewedSubmission bumps totalSubmissions and recomputes the stored
// success rate.
func (o *Orchestrator) countReviewedSubmission(researcherID string) error {
	unlock := o.userLocks.lock(researcherID)
	defer unlock()

	researcher, err := o.stores.Users.GetByID(researcherID)
	if err != nil {
		return E(ErrNotFound, "researcher not found")
	}
	researcher.TotalSubmissions++
	researcher.UpdateReputation()
	return o.stores.Users.Update(researcher)
}

func (o *Orchestrator) reject(submission *models.Submission, bug *models.Bug) error {
	events := &eventBuffer{}

	err := o.stores.Transaction(func(tx *stores.Stores) error {
		submission.Status = models.SubmissionStatusRejected
		if err := tx.Submissions.Update(submission); err != nil {
			return err
		}
		bug.Status = models.BugStatusOpen
		return tx.Bugs.Update(bug)
	})
	if err != nil {
		return err
	}

	events.add(submission.ResearcherID, models.NotifySubmissionRejected,
		fmt.Sprintf("Your submission for bug %q was rejected.", bug.Title),
		submission.ID, models.RelatedSubmission)
	events.flush(o.stores.Notifications, o.publisher)
	return nil
}
