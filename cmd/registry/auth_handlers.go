package main

import (
	"net/http"

	"github.com/capstan-io/capstan/cmd/registry/middleware"
	"github.com/capstan-io/capstan/internal/auth"
	"github.com/capstan-io/capstan/pkg/types"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func handleRegister(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload", "reason": err.Error()})
			return
		}

		user, err := authService.Register(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": "registration_failed", "reason": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, user)
	}
}

func handleLogin(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload", "reason": err.Error()})
			return
		}

		token, err := authService.Login(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "reason": "Login first"})
			return
		}

		c.JSON(http.StatusOK, token)
	}
}

func handleCreateToken(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.GetUserFromContext(c)
		if user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "reason": "Login first"})
			return
		}

		var req struct {
			Name string `json:"name" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload", "reason": err.Error()})
			return
		}

		token, value, err := authService.CreateAccessToken(c.Request.Context(), user.ID, req.Name)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "reason": "internal server error"})
			return
		}

		// The raw token value is only ever returned once
		c.JSON(http.StatusCreated, gin.H{"id": token.ID, "name": token.Name, "token": value})
	}
}

func handleRevokeToken(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.GetUserFromContext(c)
		if user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "reason": "Login first"})
			return
		}

		tokenID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload", "reason": "invalid token id"})
			return
		}

		if err := authService.RevokeAccessToken(c.Request.Context(), tokenID, user.ID); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "reason": "token not found"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}
