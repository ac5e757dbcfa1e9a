package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/platewise/platewise-backend/internal/services"
)

type IngredientHandler struct {
	ingredients services.IngredientService
}

func NewIngredientHandler(ingredients services.IngredientService) *IngredientHandler {
	return &IngredientHandler{ingredients: ingredients}
}

type ingredientBatchRequest struct {
	Operations []services.IngredientOp `json:"operations"`
}

// POST /api/meals/:id/ingredients
// Applies an ordered add|update|remove batch transactionally and returns
// the updated list plus the synchronously recomputed meal nutrition.
func (h *IngredientHandler) Apply(c *gin.Context) {
	mealID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_meal_id", err)
		return
	}
	var req ingredientBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	meal, items, err := h.ingredients.Apply(c.Request.Context(), mealID, req.Operations)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"meal": meal, "ingredients": items})
}

// GET /api/meals/:id/ingredients
func (h *IngredientHandler) List(c *gin.Context) {
	mealID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_meal_id", err)
		return
	}
	items, err := h.ingredients.List(c.Request.Context(), mealID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"ingredients": items})
}
