// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"
	"time"

	"codeberg.org/oliverandrich/authcore/internal/appcontext"
	"codeberg.org/oliverandrich/authcore/internal/services/auth"
	"github.com/labstack/echo/v4"
)

// UserHandlers contains handlers for the signed-in account.
type UserHandlers struct {
	auth *auth.Service
}

// NewUser creates a new UserHandlers instance.
func NewUser(svc *auth.Service) *UserHandlers {
	return &UserHandlers{auth: svc}
}

// UserData is the profile of the signed-in account.
type UserData struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	IsVerified bool      `json:"isVerified"`
	IsAdmin    bool      `json:"isAdmin"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// UserDataResponse wraps UserData in the response envelope.
type UserDataResponse struct {
	Response
	UserData UserData `json:"userData"`
}

// Data returns the profile of the signed-in account.
func (h *UserHandlers) Data(c echo.Context) error {
	account, err := h.auth.GetAccount(c.Request().Context(), appcontext.AccountID(c))
	if err != nil {
		return Error(c, err, "Internal server error")
	}

	return c.JSON(http.StatusOK, UserDataResponse{
		Response: Response{Success: true},
		UserData: UserData{
			ID:         account.ID,
			Name:       account.Name,
			Email:      account.Email,
			IsVerified: account.IsVerified,
			IsAdmin:    account.IsAdmin,
			CreatedAt:  account.CreatedAt,
			UpdatedAt:  account.UpdatedAt,
		},
	})
}
