package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"

	"papertrader/internal/models"
	"papertrader/internal/services"
)

const ctxUserID = "userID"

type AuthHandler struct {
	authService *services.AuthService
	jwtSecret   []byte
	tokenTTL    time.Duration
}

func NewAuthHandler(authService *services.AuthService, jwtSecret string, tokenTTL time.Duration) *AuthHandler {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &AuthHandler{
		authService: authService,
		jwtSecret:   []byte(jwtSecret),
		tokenTTL:    tokenTTL,
	}
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=20"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	user, err := h.authService.Register(c.Request.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrUserExists) {
			respondError(c, http.StatusConflict, "USER_EXISTS", err.Error())
			return
		}
		respondInternal(c, err)
		return
	}

	h.respondWithToken(c, http.StatusCreated, user)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	user, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			respondError(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", err.Error())
			return
		}
		respondInternal(c, err)
		return
	}

	h.respondWithToken(c, http.StatusOK, user)
}

func (h *AuthHandler) respondWithToken(c *gin.Context, status int, user *models.User) {
	token, err := h.generateToken(user)
	if err != nil {
		respondInternal(c, fmt.Errorf("sign token: %w", err))
		return
	}
	c.JSON(status, AuthResponse{
		Token: token,
		User:  user.Public(),
	})
}

func (h *AuthHandler) generateToken(user *models.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userID":   user.ID.Hex(),
		"username": user.Username,
		"exp":      time.Now().Add(h.tokenTTL).Unix(),
	})
	return token.SignedString(h.jwtSecret)
}

// AuthMiddleware requires a valid bearer token. Browsers cannot set headers
// on websocket upgrades, so a "token" query parameter is accepted as well.
func (h *AuthHandler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if tokenString == "" {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "authorization required")
			c.Abort()
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
			}
			return h.jwtSecret, nil
		})
		if err != nil || !token.Valid {
			respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
			c.Abort()
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		userID, _ := claims["userID"].(string)
		if !ok || userID == "" {
			respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token claims")
			c.Abort()
			return
		}

		c.Set(ctxUserID, userID)
		c.Next()
	}
}

func (h *AuthHandler) GetCurrentUser(c *gin.Context) {
	user, err := h.authService.GetUserByID(c.Request.Context(), c.GetString(ctxUserID))
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			respondError(c, http.StatusNotFound, "USER_NOT_FOUND", err.Error())
			return
		}
		respondInternal(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}
