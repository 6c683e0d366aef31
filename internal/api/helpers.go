// Package api implements the local HTTP API of a flick node.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/micro-nova/flick-go/internal/controller"
	"github.com/micro-nova/flick-go/internal/dispatch"
	"github.com/micro-nova/flick-go/internal/models"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	node   Node
	config ConfigSync
	events EventBus
	auth   Authorizer
}

// Node is the running node. controller.Host and controller.Companion
// implement it.
type Node interface {
	Status() controller.Status
	Command(ctx context.Context, cmd models.Command) (controller.Result, error)
}

// ConfigSync reads and publishes the shared snapshot. configsync.Sync
// implements it.
type ConfigSync interface {
	Snapshot() models.Snapshot
	Publish(snap models.Snapshot) models.Snapshot
}

// Authorizer manages the remote backend credential. controller.Host
// implements it.
type Authorizer interface {
	Authorize(token string) error
	Deauthorize() error
	Reconnect() error
}

// EventBus is the interface for subscribing to notifications.
type EventBus interface {
	Subscribe(id string) <-chan models.Notification
	Unsubscribe(id string)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes err as an AppError JSON response.
func writeError(w http.ResponseWriter, err error) {
	appErr := toAppError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.Status)
	_ = json.NewEncoder(w).Encode(appErr)
}

// toAppError maps domain errors onto HTTP errors.
func toAppError(err error) *models.AppError {
	var appErr *models.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, dispatch.ErrNotAuthorized):
		return models.ErrNotAuthorized
	case errors.Is(err, models.ErrUnknownCommand):
		return models.ErrNotFound(err.Error())
	case errors.Is(err, dispatch.ErrNoBackend):
		return models.ErrUnavailable(err.Error())
	}
	return models.ErrInternal(err.Error())
}
