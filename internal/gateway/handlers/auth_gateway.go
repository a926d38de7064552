package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"rentora-system/internal/database/models"
	"rentora-system/internal/utils"
)

// AuthHTTPHandler mints tokens for known users. Real session issuance lives
// in the identity system upstream; this endpoint exists for development and
// operator tooling and is only mounted when AUTH_DEV_TOKENS is set.
type AuthHTTPHandler struct {
	db       *gorm.DB
	tokenTTL time.Duration
}

func NewAuthHTTPHandler(db *gorm.DB, tokenTTL time.Duration) *AuthHTTPHandler {
	return &AuthHTTPHandler{
		db:       db,
		tokenTTL: tokenTTL,
	}
}

type tokenRequest struct {
	Username string `json:"username" binding:"required"`
}

func (s *AuthHTTPHandler) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "username required")
		return
	}

	var user models.User
	if err := s.db.Where("username = ? AND is_active = ?", req.Username, true).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			fail(c, http.StatusNotFound, "unknown user")
			return
		}
		fail(c, http.StatusInternalServerError, "internal server error")
		return
	}

	token, exp, err := utils.GenerateToken(user.ID, user.Username, user.Role, s.tokenTTL)
	if err != nil {
		fail(c, http.StatusInternalServerError, "internal server error")
		return
	}

	now := time.Now()
	_ = s.db.Model(&models.User{}).Where("id = ?", user.ID).UpdateColumn("last_login", &now).Error

	success(c, gin.H{
		"token":      token,
		"expires_at": exp,
		"role":       user.Role,
	})
}
