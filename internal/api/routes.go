package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/hrishi0102/patchpay/internal/middleware"
)

// setupRoutes configures all the routes for the API server.
func (a *API) setupRoutes(app *fiber.App) {
	protect := middleware.Protect(a.stores, a.cfg.Secrets.JWTSecret)
	company := middleware.RequireCompany()
	researcher := middleware.RequireResearcher()

	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("PatchPay API server is up and running!")
	})

	auth := app.Group("/api/auth")
	auth.Post("/register", a.register)
	auth.Post("/login", a.login)
	auth.Get("/profile", protect, a.profile)
	auth.Put("/api-key", protect, company, a.updateAPIKey)
	auth.Get("/balance", protect, company, a.balance)

	bugs := app.Group("/api/bugs")
	bugs.Post("/", protect, company, a.createBug)
	bugs.Get("/", a.listBugs)
	bugs.Get("/all", a.listAllBugs)
	bugs.Get("/company", protect, company, a.companyBugs)
	bugs.Get("/:id", a.getBug)
	bugs.Put("/:id/status", protect, company, a.updateBugStatus)

	submissions := app.Group("/api/submissions", protect)
	submissions.Post("/", researcher, a.createSubmission)
	submissions.Put("/:id/review", company, a.reviewSubmission)
	submissions.Get("/bug/:bugId", company, a.submissionsByBug)
	submissions.Get("/researcher", researcher, a.researcherSubmissions)

	leaderboard := app.Group("/api/leaderboard")
	leaderboard.Get("/earnings", a.topEarners)
	leaderboard.Get("/success-rate", a.topSuccessRates)
	leaderboard.Get("/my-rank", protect, researcher, a.myRank)

	notifications := app.Group("/api/notifications", protect)
	notifications.Get("/", a.listNotifications)
	notifications.Put("/:id/read", a.markNotificationRead)

	// WebSockets: live notification feed
	a.setupNotificationFeed(app)
}
