// Package controller wires the relay, sync and dispatch components into the
// two node roles. A Companion turns local commands into deliveries over the
// peer link; a Host executes delivered commands on the selected backend.
// Both share one ConfigSync snapshot with the other side.
package controller

import (
	"github.com/micro-nova/flick-go/internal/models"
)

// Role names a node role.
type Role string

const (
	RoleHost      Role = "host"
	RoleCompanion Role = "companion"
)

// Status is a point-in-time view of a node, served by the API.
type Status struct {
	Role         Role                `json:"role"`
	Node         string              `json:"node"`
	Reachability models.Reachability `json:"reachability"`
	Config       models.Snapshot     `json:"config"`

	// Companion only.
	Queued   int `json:"queued,omitempty"`
	InFlight int `json:"inFlight,omitempty"`

	// Host only.
	Connection *models.ConnState `json:"connection,omitempty"`
	Pending    *models.Command   `json:"pending,omitempty"`
	Authorized bool              `json:"authorized"`
}

// Credentials is the credential store the host authorizes against.
// OnChange callbacks fire whenever the token value changes. auth.Store
// implements it.
type Credentials interface {
	Token() (string, bool)
	Set(token string) error
	Clear() error
	OnChange(fn func(present bool))
}

// Result reports what became of a command submitted to a node directly.
type Result struct {
	Command models.Command `json:"command"`
	Outcome string         `json:"outcome"`
}

// Companion command outcomes.
const (
	OutcomeAccepted = "accepted"
	OutcomeDropped  = "dropped"
)
