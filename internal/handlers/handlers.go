package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/asmraihan/fluidiy-lab-app/internal/auth"
	"github.com/asmraihan/fluidiy-lab-app/internal/inference"
	"github.com/asmraihan/fluidiy-lab-app/internal/usecase"
)

// MaxUploadSize bounds analyze image uploads.
const MaxUploadSize = 10 << 20

// Analyzer runs the inference pipeline on one uploaded image.
type Analyzer interface {
	Analyze(ctx context.Context, imageRef string, imageData []byte, ownerID int64) (*inference.Result, error)
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type saveResultRequest struct {
	UserID int64                `json:"userId"`
	Result *saveResultCandidate `json:"result"`
}

type saveResultCandidate struct {
	ImageRef   string                      `json:"imageRef"`
	Parameters []inference.ParameterResult `json:"parameters"`
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, accounts *usecase.AccountUseCase, results *usecase.ResultUseCase, analyzer Analyzer, authMiddleware gin.HandlerFunc) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/api/auth/signup", func(c *gin.Context) {
		var req credentialsRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Password == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
			return
		}

		account, signed, err := accounts.SignUp(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			if errors.Is(err, usecase.ErrEmailTaken) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "user already exists"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"token": signed, "user": account})
	})

	router.POST("/api/auth/signin", func(c *gin.Context) {
		var req credentialsRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Password == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
			return
		}

		account, signed, err := accounts.SignIn(c.Request.Context(), req.Email, req.Password)
		switch {
		case errors.Is(err, usecase.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		case errors.Is(err, usecase.ErrInvalidPassword):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid password"})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		default:
			c.JSON(http.StatusOK, gin.H{"token": signed, "user": account})
		}
	})

	authorized := router.Group("/api", authMiddleware)

	authorized.GET("/user/me", func(c *gin.Context) {
		identity, _ := auth.CurrentIdentity(c.Request.Context())
		account, err := accounts.GetAccount(c.Request.Context(), identity.UserID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": account})
	})

	authorized.POST("/analyze", func(c *gin.Context) {
		identity, _ := auth.CurrentIdentity(c.Request.Context())

		file, err := c.FormFile("image")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
			return
		}
		if file.Size > MaxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
			return
		}
		if !supportedImageType(file.Header.Get("Content-Type")) {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported image type"})
			return
		}

		src, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open image"})
			return
		}
		defer src.Close()

		data, err := io.ReadAll(src)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
			return
		}

		result, err := analyzer.Analyze(c.Request.Context(), file.Filename, data, identity.UserID)
		switch {
		case errors.Is(err, inference.ErrDecode):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "image could not be decoded"})
		case errors.Is(err, inference.ErrModelUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "model unavailable"})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "analysis failed"})
		default:
			c.JSON(http.StatusOK, gin.H{"result": result})
		}
	})

	authorized.GET("/results", func(c *gin.Context) {
		ownerID, ok := ownerFromQuery(c)
		if !ok {
			return
		}

		list, err := results.ListResults(c.Request.Context(), ownerID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load results"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"results": list})
	})

	authorized.GET("/results/summary", func(c *gin.Context) {
		ownerID, ok := ownerFromQuery(c)
		if !ok {
			return
		}

		summary, err := results.GetHistorySummary(c.Request.Context(), ownerID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load summary"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"summary": summary})
	})

	authorized.POST("/results", func(c *gin.Context) {
		var req saveResultRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.UserID == 0 || req.Result == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "userId and result are required"})
			return
		}
		if !auth.RequireOwner(c, req.UserID) {
			return
		}

		candidate := &inference.Result{
			OwnerID:    req.UserID,
			ImageRef:   req.Result.ImageRef,
			Parameters: req.Result.Parameters,
		}
		stored, err := results.SaveResult(c.Request.Context(), req.UserID, candidate)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save result"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "result": stored})
	})

	authorized.DELETE("/results/:id", func(c *gin.Context) {
		resultID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || resultID <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "result id is required"})
			return
		}
		ownerID, ok := ownerFromQuery(c)
		if !ok {
			return
		}

		if err := results.DeleteResult(c.Request.Context(), resultID, ownerID); err != nil {
			if errors.Is(err, usecase.ErrResultNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete result"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	})
}

// ownerFromQuery parses the required userId query parameter and checks
// the caller owns it. Writes the failure response itself.
func ownerFromQuery(c *gin.Context) (int64, bool) {
	raw := c.Query("userId")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return 0, false
	}
	ownerID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ownerID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is invalid"})
		return 0, false
	}
	if !auth.RequireOwner(c, ownerID) {
		return 0, false
	}
	return ownerID, true
}

func supportedImageType(contentType string) bool {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/jpeg", "image/png":
		return true
	}
	return false
}
