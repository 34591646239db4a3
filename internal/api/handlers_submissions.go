package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/hrishi0102/patchpay/internal/middleware"
	"github.com/hrishi0102/patchpay/internal/workflow"
)

type createSubmissionRequest struct {
	BugID          string `json:"bugId"`
	FixDescription string `json:"fixDescription"`
	ProofOfFix     string `json:"proofOfFix"`
}

func (a *API) createSubmission(c *fiber.Ctx) error {
	var req createSubmissionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.BugID == "" || req.FixDescription == "" || req.ProofOfFix == "" {
		return badRequest(c, "bugId, fixDescription and proofOfFix are required")
	}

	researcher := middleware.CurrentUser(c)
	submission, err := a.flow.CreateSubmission(c.Context(), workflow.IntakeRequest{
		BugID:          req.BugID,
		ResearcherID:   researcher.ID,
		FixDescription: req.FixDescription,
		ProofOfFix:     req.ProofOfFix,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(submission)
}

type reviewSubmissionRequest struct {
	Status   string `json:"status"`
	Feedback string `json:"feedback"`
}

func (a *API) reviewSubmission(c *fiber.Ctx) error {
	var req reviewSubmissionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	reviewer := middleware.CurrentUser(c)
	submission, err := a.flow.ReviewSubmission(c.Context(), c.Params("id"), reviewer.ID, req.Status, req.Feedback)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(submission)
}

// submissionsByBug lists every submission against one of the company's bugs.
func (a *API) submissionsByBug(c *fiber.Ctx) error {
	bug, err := a.stores.Bugs.GetByID(c.Params("bugId"))
	if err != nil {
		return fail(c, err)
	}

	company := middleware.CurrentUser(c)
	if bug.CompanyID != company.ID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"message": "not authorized to view submissions for this bug"})
	}

	submissions, err := a.stores.Submissions.ListByBug(bug.ID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(submissions)
}

func (a *API) researcherSubmissions(c *fiber.Ctx) error {
	researcher := middleware.CurrentUser(c)
	submissions, err := a.stores.Submissions.ListByResearcher(researcher.ID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(submissions)
}
