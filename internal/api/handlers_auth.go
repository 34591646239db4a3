package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"github.com/hrishi0102/patchpay/internal/database"
	"github.com/hrishi0102/patchpay/internal/database/models"
	"github.com/hrishi0102/patchpay/internal/middleware"
	"github.com/hrishi0102/patchpay/internal/payman"
	"github.com/hrishi0102/patchpay/internal/util/cryptoutils"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// authResponse is what register and login hand back to the client.
type authResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	WalletID string `json:"walletId,omitempty"`
	Token    string `json:"token"`
}

func (a *API) register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Name == "" || req.Email == "" || req.Password == "" {
		return badRequest(c, "name, email and password are required")
	}
	if req.Role != models.RoleCompany && req.Role != models.RoleResearcher {
		return badRequest(c, "role must be company or researcher")
	}

	if _, err := a.stores.Users.GetByEmail(req.Email); err == nil {
		return badRequest(c, "user already exists")
	} else if !errors.Is(err, database.ErrNotFound) {
		return fail(c, err)
	}

	hash, err := middleware.HashPassword(req.Password)
	if err != nil {
		return fail(c, err)
	}

	user := &models.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         req.Role,
	}
	if err := a.stores.Users.Insert(user); err != nil {
		return fail(c, err)
	}

	token, err := middleware.GenerateToken(user.ID, user.Role, a.cfg.Secrets.JWTSecret)
	if err != nil {
		return fail(c, err)
	}

	log.Infof("registered %s user %s", user.Role, user.ID)
	return c.Status(fiber.StatusCreated).JSON(authResponse{
		ID:       user.ID,
		Name:     user.Name,
		Email:    user.Email,
		Role:     user.Role,
		WalletID: user.WalletID,
		Token:    token,
	})
}

func (a *API) login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	user, err := a.stores.Users.GetByEmail(req.Email)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "invalid email or password"})
	}

	match, err := middleware.ComparePasswordAndHash(req.Password, user.PasswordHash)
	if err != nil || !match {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "invalid email or password"})
	}

	token, err := middleware.GenerateToken(user.ID, user.Role, a.cfg.Secrets.JWTSecret)
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(authResponse{
		ID:       user.ID,
		Name:     user.Name,
		Email:    user.Email,
		Role:     user.Role,
		WalletID: user.WalletID,
		Token:    token,
	})
}

func (a *API) profile(c *fiber.Ctx) error {
	return c.JSON(middleware.CurrentUser(c))
}

func (a *API) updateAPIKey(c *fiber.Ctx) error {
	var req struct {
		APIKey string `json:"apiKey"`
	}
	if err := c.BodyParser(&req); err != nil || req.APIKey == "" {
		return badRequest(c, "API key is required")
	}

	sealed, err := cryptoutils.SealSecret(req.APIKey, a.cfg.Secrets.EncryptionKey)
	if err != nil {
		return fail(c, err)
	}

	user := middleware.CurrentUser(c)
	user.PaymanAPIKey = sealed
	if err := a.stores.Users.Update(user); err != nil {
		return fail(c, err)
	}

	return c.JSON(fiber.Map{
		"id":      user.ID,
		"name":    user.Name,
		"email":   user.Email,
		"role":    user.Role,
		"message": "Payman API key updated successfully",
	})
}

func (a *API) balance(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	if user.PaymanAPIKey == "" {
		return badRequest(c, "Payman API key not set")
	}

	client, err := a.payments.MakeClient(user.PaymanAPIKey)
	if err != nil {
		return badRequest(c, "failed to initialize payment client, please check your Payman API key")
	}

	balance, err := client.GetBalance(c.Context(), payman.DefaultCurrency)
	if err != nil {
		return badRequest(c, "failed to check balance, please check your Payman API key")
	}

	return c.JSON(fiber.Map{"balance": balance})
}
