// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package appcontext provides the custom Echo context.
package appcontext

import (
	"github.com/labstack/echo/v4"
)

// Context is a custom Echo context carrying the authenticated account.
type Context struct {
	echo.Context
	AccountID string // empty if not authenticated
}

// GetAccountID returns the authenticated account id, or "" if not authenticated.
func (c *Context) GetAccountID() string {
	return c.AccountID
}

// IsAuthenticated returns true if a session was validated for this request.
func (c *Context) IsAuthenticated() bool {
	return c.AccountID != ""
}

// AccountID returns the authenticated account id of c, looking through the
// custom context if the handler received one.
func AccountID(c echo.Context) string {
	if cc, ok := c.(*Context); ok {
		return cc.AccountID
	}
	return ""
}
