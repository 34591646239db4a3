package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/hrishi0102/patchpay/internal/middleware"
)

const defaultMinSubmissions = 3

func (a *API) topEarners(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 10)
	if limit < 1 || limit > 100 {
		limit = 10
	}

	users, err := a.stores.Users.TopByEarnings(limit)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(users)
}

func (a *API) topSuccessRates(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 10)
	if limit < 1 || limit > 100 {
		limit = 10
	}
	minSubmissions := c.QueryInt("minSubmissions", defaultMinSubmissions)
	if minSubmissions < 0 {
		minSubmissions = defaultMinSubmissions
	}

	users, err := a.stores.Users.TopBySuccessRate(limit, minSubmissions)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(users)
}

// myRank reports the calling researcher's position on both boards. Rank is
// 1 + the number of researchers strictly ahead.
func (a *API) myRank(c *fiber.Ctx) error {
	researcher := middleware.CurrentUser(c)

	ahead, err := a.stores.Users.CountResearchersEarningMore(researcher.TotalEarnings)
	if err != nil {
		return fail(c, err)
	}

	outperforming, err := a.stores.Users.CountResearchersOutperforming(researcher.SuccessRate, defaultMinSubmissions)
	if err != nil {
		return fail(c, err)
	}

	resp := fiber.Map{
		"earningsRank":  ahead + 1,
		"totalEarnings": researcher.TotalEarnings,
		"successRate":   researcher.SuccessRate,
	}
	if researcher.TotalSubmissions >= defaultMinSubmissions {
		resp["successRateRank"] = outperforming + 1
	} else {
		resp["successRateRank"] = nil
	}
	return c.JSON(resp)
}
