package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/hrishi0102/patchpay/internal/database/models"
	"github.com/hrishi0102/patchpay/internal/middleware"
	"github.com/hrishi0102/patchpay/internal/payman"
)

type createBugRequest struct {
	Title                 string           `json:"title"`
	Description           string           `json:"description"`
	Severity              string           `json:"severity"`
	Reward                float64          `json:"reward"`
	TestCases             models.TestCases `json:"testCases"`
	AutoApprovalThreshold *int             `json:"autoApprovalThreshold"`
}

// createBug posts a new bug. The company must hold a payment credential
// with enough balance to cover the reward before the bug goes live.
func (a *API) createBug(c *fiber.Ctx) error {
	var req createBugRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Title == "" || req.Description == "" {
		return badRequest(c, "title and description are required")
	}
	if !models.ValidSeverity(req.Severity) {
		return badRequest(c, "severity must be low, medium, high or critical")
	}
	if req.Reward <= 0 {
		return badRequest(c, "reward must be greater than zero")
	}
	if req.AutoApprovalThreshold != nil && (*req.AutoApprovalThreshold < 0 || *req.AutoApprovalThreshold > 100) {
		return badRequest(c, "autoApprovalThreshold must be between 0 and 100")
	}

	company := middleware.CurrentUser(c)
	if company.PaymanAPIKey == "" {
		return badRequest(c, "please add your Payman API key before posting bugs")
	}

	client, err := a.payments.MakeClient(company.PaymanAPIKey)
	if err != nil {
		return badRequest(c, "failed to initialize payment client, please check your Payman API key")
	}
	balance, err := client.GetBalance(c.Context(), payman.DefaultCurrency)
	if err != nil {
		return badRequest(c, "failed to check balance, please check your Payman API key")
	}
	if balance < req.Reward {
		return badRequest(c, "insufficient balance to cover the reward")
	}

	bug := &models.Bug{
		Title:       req.Title,
		Description: req.Description,
		Severity:    req.Severity,
		Reward:      req.Reward,
		CompanyID:   company.ID,
		TestCases:   req.TestCases,
	}
	if req.AutoApprovalThreshold != nil {
		bug.AutoApprovalThreshold = *req.AutoApprovalThreshold
	}
	if err := a.stores.Bugs.Insert(bug); err != nil {
		return fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(bug)
}

// listBugs returns open bugs by default, optionally filtered by status and
// severity query parameters.
func (a *API) listBugs(c *fiber.Ctx) error {
	status := c.Query("status", models.BugStatusOpen)
	severity := c.Query("severity")

	if !models.ValidBugStatus(status) {
		return badRequest(c, "invalid status filter")
	}
	if severity != "" && !models.ValidSeverity(severity) {
		return badRequest(c, "invalid severity filter")
	}

	bugs, err := a.stores.Bugs.List(status, severity)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(bugs)
}

func (a *API) listAllBugs(c *fiber.Ctx) error {
	bugs, err := a.stores.Bugs.All()
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(bugs)
}

func (a *API) companyBugs(c *fiber.Ctx) error {
	company := middleware.CurrentUser(c)
	bugs, err := a.stores.Bugs.ListByCompany(company.ID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(bugs)
}

func (a *API) getBug(c *fiber.Ctx) error {
	bug, err := a.stores.Bugs.GetByID(c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(bug)
}

// updateBugStatus lets the posting company move a bug between open,
// in_progress and closed by hand.
func (a *API) updateBugStatus(c *fiber.Ctx) error {
	var req struct {
		Status string `json:"status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if !models.ValidBugStatus(req.Status) {
		return badRequest(c, "status must be open, in_progress or closed")
	}

	bug, err := a.stores.Bugs.GetByID(c.Params("id"))
	if err != nil {
		return fail(c, err)
	}

	company := middleware.CurrentUser(c)
	if bug.CompanyID != company.ID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"message": "not authorized to update this bug"})
	}

	bug.Status = req.Status
	if err := a.stores.Bugs.Update(bug); err != nil {
		return fail(c, err)
	}
	return c.JSON(bug)
}
