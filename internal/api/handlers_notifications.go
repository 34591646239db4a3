package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/hrishi0102/patchpay/internal/middleware"
)

func (a *API) listNotifications(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}

	user := middleware.CurrentUser(c)
	notifications, err := a.stores.Notifications.ListByUser(user.ID, limit)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(notifications)
}

func (a *API) markNotificationRead(c *fiber.Ctx) error {
	notification, err := a.stores.Notifications.GetByID(c.Params("id"))
	if err != nil {
		return fail(c, err)
	}

	user := middleware.CurrentUser(c)
	if notification.UserID != user.ID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"message": "not authorized to update this notification"})
	}

	notification.IsRead = true
	if err := a.stores.Notifications.Update(notification); err != nil {
		return fail(c, err)
	}
	return c.JSON(notification)
}
