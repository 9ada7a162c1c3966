package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/your-org/dermascan/internal/profile"
	"github.com/your-org/dermascan/pkg/dto"
)

type ProfileHandler struct {
	store profile.Store
}

func NewProfileHandler(store profile.Store) *ProfileHandler {
	return &ProfileHandler{store: store}
}

func (h *ProfileHandler) Get(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("id"))

	p, err := h.store.GetProfile(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if p == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		return
	}

	c.JSON(http.StatusOK, profileToResponse(userID, p))
}

func (h *ProfileHandler) Put(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("id"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	var req dto.ProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p := profile.Profile{
		AgeGroup: profile.AgeGroup(req.Age),
		Gender:   profile.Gender(req.Gender),
		SkinType: profile.SkinType(req.SkinType),
	}
	if err := p.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.SetProfile(c.Request.Context(), userID, p); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, profileToResponse(userID, &p))
}

func profileToResponse(userID string, p *profile.Profile) dto.ProfileResponse {
	return dto.ProfileResponse{
		UserID:   userID,
		Age:      string(p.AgeGroup),
		Gender:   string(p.Gender),
		SkinType: string(p.SkinType),
	}
}
