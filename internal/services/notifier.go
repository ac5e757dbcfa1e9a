package services

import (
	"context"
	"time"

	redisclient "github.com/platewise/platewise-backend/internal/clients/redis"
	"github.com/platewise/platewise-backend/internal/pkg/logger"
	"github.com/platewise/platewise-backend/internal/types"
)

// MealNotifier broadcasts committed status transitions. Best-effort: a
// publish failure never fails the write that triggered it.
type MealNotifier interface {
	StatusChanged(ctx context.Context, meal *types.Meal, event string)
}

type mealNotifier struct {
	log *logger.Logger
	bus redisclient.StatusBus
	hub *StatusHub
}

// NewMealNotifier builds the transition publisher. With a bus, messages go
// through redis and come back into the hub via the forwarder, so every
// instance sees the same stream; without one the hub is fed directly.
func NewMealNotifier(baseLog *logger.Logger, bus redisclient.StatusBus, hub *StatusHub) MealNotifier {
	return &mealNotifier{
		log: baseLog.With("service", "MealNotifier"),
		bus: bus,
		hub: hub,
	}
}

func (n *mealNotifier) StatusChanged(ctx context.Context, meal *types.Meal, event string) {
	if n == nil || meal == nil {
		return
	}
	msg := redisclient.StatusMessage{
		MealID: meal.ID.String(),
		Status: meal.Status,
		Event:  event,
		Data: map[string]any{
			"confidence":    meal.Confidence,
			"error_message": meal.ErrorMessage,
		},
		At: time.Now().UTC(),
	}
	if n.bus != nil {
		if err := n.bus.Publish(ctx, msg); err != nil {
			n.log.Warn("Status publish failed", "meal_id", meal.ID, "event", event, "error", err)
		}
		return
	}
	if n.hub != nil {
		n.hub.Broadcast(msg)
	}
}
