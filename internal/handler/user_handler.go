package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/bracketline/notify-engine/internal/domain"
)

type UserService interface {
	Register(ctx context.Context, username, email string, discordID *string) (*domain.User, error)
	GetUser(ctx context.Context, id string) (*domain.User, error)
}

type UserHandler struct {
	service UserService
}

func NewUserHandler(service UserService) (*UserHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("user service is required")
	}
	return &UserHandler{service: service}, nil
}

func RegisterUserRoutes(router fiber.Router, service UserService) error {
	h, err := NewUserHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/users", h.Register)
	v1.Get("/users/:userId", h.GetUser)

	return nil
}

type registerUserRequest struct {
	Username  string  `json:"username"`
	Email     string  `json:"email"`
	DiscordID *string `json:"discordId"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	DiscordID *string   `json:"discordId,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

func (h *UserHandler) Register(c *fiber.Ctx) error {
	var req registerUserRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	user, err := h.service.Register(c.Context(), req.Username, req.Email, req.DiscordID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toUserResponse(user))
}

func (h *UserHandler) GetUser(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("userId"))
	user, err := h.service.GetUser(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toUserResponse(user))
}

func toUserResponse(u *domain.User) userResponse {
	if u == nil {
		return userResponse{}
	}

	return userResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		DiscordID: u.DiscordID,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}
