package api

import (
	"context"

	"laundryspot-backend/internal/lifecycle"
	"laundryspot-backend/internal/model"
	"laundryspot-backend/internal/payment"
	"laundryspot-backend/internal/washer"
)

// SubscriptionStore is the subset of the store the subscription handlers use.
type SubscriptionStore interface {
	UpsertSubscription(ctx context.Context, sub *model.PushSubscription) error
	DeleteSubscription(ctx context.Context, endpoint string) error
}

// Announcer broadcasts newly created jobs to subscribed washers.
type Announcer interface {
	Announce(job model.Job)
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	engine      *lifecycle.Engine
	coordinator *payment.Coordinator
	registry    *washer.Registry
	subs        SubscriptionStore
	announcer   Announcer
	vapidPublic string
}

// NewHandler creates a new API handler. announcer may be nil when push
// notifications are disabled.
func NewHandler(
	engine *lifecycle.Engine,
	coordinator *payment.Coordinator,
	registry *washer.Registry,
	subs SubscriptionStore,
	announcer Announcer,
	vapidPublic string,
) *Handler {
	return &Handler{
		engine:      engine,
		coordinator: coordinator,
		registry:    registry,
		subs:        subs,
		announcer:   announcer,
		vapidPublic: vapidPublic,
	}
}
