package ginserver

import (
	"errors"
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"bazaar/internal/app/dto"
	authsvc "bazaar/internal/app/services/auth"
	domainuser "bazaar/internal/domain/user"
)

type AuthHTTP interface {
	Register(c *gin.Context)
	Login(c *gin.Context)
	Me(c *gin.Context)
}

type AuthHandler struct {
	Service *authsvc.Service
	Logger  *slog.Logger
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	result, err := h.Service.Register(c.Request.Context(), authsvc.RegisterParams{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		h.respondAuthError(c, err)
		return
	}
	respondData(c, http.StatusCreated, authResultDTO(result))
}

func (h AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	result, err := h.Service.Login(c.Request.Context(), authsvc.LoginParams{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.respondAuthError(c, err)
		return
	}
	respondData(c, http.StatusOK, authResultDTO(result))
}

func (h AuthHandler) Me(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	respondData(c, http.StatusOK, dto.User{
		ID:    p.ID,
		Email: p.Email,
		Name:  p.Name,
		Role:  p.Role,
	})
}

func (h AuthHandler) respondAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, authsvc.ErrInvalidCredentials):
		respondError(c, http.StatusUnauthorized, "Invalid email or password")
	case errors.Is(err, authsvc.ErrPasswordTooShort),
		errors.Is(err, domainuser.ErrEmailRequired),
		errors.Is(err, domainuser.ErrNameRequired):
		respondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, domainuser.ErrEmailAlreadyUsed):
		respondError(c, http.StatusConflict, "Email already registered")
	default:
		if h.Logger != nil {
			h.Logger.Error("auth operation failed", "error", err)
		}
		respondError(c, http.StatusInternalServerError, "Server error")
	}
}

func authResultDTO(result *authsvc.AuthResult) dto.AuthResult {
	return dto.AuthResult{
		Token: result.Token,
		User: dto.User{
			ID:        string(result.User.ID),
			Email:     result.User.Email,
			Name:      result.User.Name,
			Role:      string(result.User.Role),
			CreatedAt: result.User.CreatedAt,
		},
	}
}

var _ AuthHTTP = (*AuthHandler)(nil)
