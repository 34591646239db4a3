package workflow

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/hrishi0102/patchpay/internal/database/models"
	"github.com/hrishi0102/patchpay/internal/database/stores"
	"github.com/hrishi0102/patchpay/internal/payman"
)

// payout is the approval payout procedure shared by auto-approval and
// manual approval. Steps are strictly ordered: check the company's
// credential, build the provider client, then under the researcher's lock
// provision the payee wallet if missing, send the payment, and commit all
// ledger writes in one transaction.
//
// Payee creation is guarded by the wallet-unset check and therefore never
// rolled back. Payment is the only step with monetary effect and the last
// possible failure point: compensation reverts exactly "decision made,
// money not moved".
func (o *Orchestrator) payout(ctx context.Context, submission *models.Submission, bug *models.Bug, auto bool) error {
	company, err := o.stores.Users.GetByID(bug.CompanyID)
	if err != nil {
		return E(ErrNotFound, "company not found")
	}

	if company.PaymanAPIKey == "" {
		o.compensate(submission, bug, auto, "no payment API key configured")
		return E(ErrPaymentConfig, "payment failed: please add your Payman API key")
	}

	client, err := o.payments.MakeClient(company.PaymanAPIKey)
	if err != nil {
		o.compensate(submission, bug, auto, "payment credential rejected")
		return E(ErrPaymentConfig, "payment processing failed: %v", err)
	}

	payCtx := ctx
	if o.timeouts.Payment > 0 {
		var cancel context.CancelFunc
		payCtx, cancel = context.WithTimeout(ctx, o.timeouts.Payment)
		defer cancel()
	}

	// Every read and write of the researcher record happens under the
	// researcher's lock: wallet provisioning is a check-create-store that
	// must not race with a concurrent payout's counter commit, and a stale
	// record saved here would clobber it.
	unlock := o.userLocks.lock(submission.ResearcherID)
	defer unlock()

	researcher, err := o.stores.Users.GetByID(submission.ResearcherID)
	if err != nil {
		return E(ErrNotFound, "researcher not found")
	}

	// Wallet provisioning is a side effect that survives later failures.
	if researcher.WalletID == "" {
		payee, err := client.CreatePayee(payCtx, researcher.Name, researcher.Email)
		if err != nil {
			o.compensate(submission, bug, auto, "payee creation failed")
			return E(ErrPaymentProcessing, "payment processing failed, please try again or check your Payman API key")
		}
		researcher.WalletID = payee.ID
		if err := o.stores.Users.Update(researcher); err != nil {
			return err
		}
	}

	memo := fmt.Sprintf("Payment for bug fix: %s", bug.Title)
	metadata := map[string]interface{}{
		"bugId":        bug.ID,
		"submissionId": submission.ID,
	}
	if auto {
		memo = fmt.Sprintf("Auto-approved payment for bug fix: %s (score: %d)", bug.Title, submission.EvaluationScore)
		metadata["autoApproved"] = true
	}

	payment, err := client.SendPayment(payCtx, payman.PaymentRequest{
		Amount:   bug.Reward,
		PayeeID:  researcher.WalletID,
		Memo:     memo,
		Metadata: metadata,
	})
	if err != nil {
		o.compensate(submission, bug, auto, "payment transfer failed")
		return E(ErrPaymentProcessing, "payment processing failed, please try again or check your Payman API key")
	}

	transaction := &models.Transaction{
		ResearcherID:        researcher.ID,
		BugID:               bug.ID,
		SubmissionID:        submission.ID,
		Amount:              bug.Reward,
		Currency:            payman.DefaultCurrency,
		PaymanTransactionID: payment.Reference,
		Status:              models.TransactionStatusProcessing,
	}

	err = o.stores.Transaction(func(tx *stores.Stores) error {
		if err := tx.Transactions.Insert(transaction); err != nil {
			return err
		}

		bug.Status = models.BugStatusClosed
		if err := tx.Bugs.Update(bug); err != nil {
			return err
		}

		// The manual path already counted this submission before the
		// payout attempt; auto-approval only counts after confirmed payment.
		current, err := tx.Users.GetByID(researcher.ID)
		if err != nil {
			return err
		}
		if auto {
			current.TotalSubmissions++
		}
		current.SuccessfulSubmissions++
		current.TotalEarnings += bug.Reward
		current.UpdateReputation()
		if err := tx.Users.Update(current); err != nil {
			return err
		}

		submission.Status = models.SubmissionStatusApproved
		return tx.Submissions.Update(submission)
	})
	if err != nil {
		return err
	}

	events := &eventBuffer{}
	events.add(researcher.ID, models.NotifySubmissionApproved,
		fmt.Sprintf("Your submission for %q has been approved!", bug.Title),
		submission.ID, models.RelatedSubmission)
	events.add(researcher.ID, models.NotifyPaymentReceived,
		fmt.Sprintf("You've received %v %s for your bug fix!", bug.Reward, payman.DefaultCurrency),
		transaction.ID, models.RelatedTransaction)
	if auto {
		events.add(company.ID, models.NotifySubmissionAutoApproved,
			fmt.Sprintf("A submission for %q scored %d and was auto-approved and paid.", bug.Title, submission.EvaluationScore),
			submission.ID, models.RelatedSubmission)
	}
	events.flush(o.stores.Notifications, o.publisher)

	log.Infof("paid %v %s to researcher %s for bug %s (reference %s)",
		bug.Reward, payman.DefaultCurrency, researcher.ID, bug.ID, payment.Reference)
	return nil
}

// compensate rolls back the approval decision after a payment failure.
// Money already moved is never reverted, only the tentative decision: on
// the auto-approval path the submission is forced back to pending. The
// manual path never advanced the stored submission, so only the failure
// notification is emitted there.
func (o *Orchestrator) compensate(submission *models.Submission, bug *models.Bug, auto bool, reason string) {
	if auto {
		submission.Status = models.SubmissionStatusPending
		submission.AutoApproved = false
		if err := o.stores.Submissions.Update(submission); err != nil {
			log.Errorf("failed to roll back auto-approval of submission %s: %v", submission.ID, err)
		}
	}

	events := &eventBuffer{}
	events.add(bug.CompanyID, models.NotifyPaymentFailed,
		fmt.Sprintf("Payment for a submission to %q failed: %s. Please check your Payman API key and balance.", bug.Title, reason),
		submission.ID, models.RelatedSubmission)
	events.flush(o.stores.Notifications, o.publisher)
}
