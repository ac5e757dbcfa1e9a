package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/platewise/platewise-backend/internal/services"
)

type MealHandler struct {
	meals  services.MealService
	scaler services.ScalerService
}

func NewMealHandler(meals services.MealService, scaler services.ScalerService) *MealHandler {
	return &MealHandler{meals: meals, scaler: scaler}
}

type createMealRequest struct {
	ImageKey string `json:"image_key"`
}

// POST /api/meals
// Accepts either a multipart "image" file or a JSON body with a
// pre-uploaded image_key. Returns the meal in processing immediately.
func (h *MealHandler) Create(c *gin.Context) {
	if file, err := c.FormFile("image"); err == nil && file != nil {
		f, err := file.Open()
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_image", err)
			return
		}
		defer f.Close()
		meal, err := h.meals.Upload(c.Request.Context(), file.Filename, f)
		if err != nil {
			RespondServiceError(c, err)
			return
		}
		RespondCreated(c, gin.H{"meal": meal})
		return
	}

	var req createMealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	meal, err := h.meals.Create(c.Request.Context(), req.ImageKey)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondCreated(c, gin.H{"meal": meal})
}

// GET /api/meals/:id
func (h *MealHandler) Get(c *gin.Context) {
	mealID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_meal_id", err)
		return
	}
	meal, err := h.meals.Get(c.Request.Context(), mealID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"meal": meal})
}

type weightUpdateRequest struct {
	WeightGrams float64 `json:"weight_grams"`
}

// PUT /api/meals/:id/weight
func (h *MealHandler) UpdateWeight(c *gin.Context) {
	mealID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_meal_id", err)
		return
	}
	var req weightUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	meal, err := h.scaler.ApplyWeightUpdate(c.Request.Context(), mealID, req.WeightGrams)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"meal": meal})
}

// DELETE /api/meals/:id
func (h *MealHandler) Delete(c *gin.Context) {
	mealID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_meal_id", err)
		return
	}
	if err := h.meals.Delete(c.Request.Context(), mealID); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"deleted": mealID})
}

// POST /api/meals/:id/resubmit
func (h *MealHandler) Resubmit(c *gin.Context) {
	mealID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_meal_id", err)
		return
	}
	meal, err := h.meals.Resubmit(c.Request.Context(), mealID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"meal": meal})
}
