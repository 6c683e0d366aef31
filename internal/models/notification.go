package models

import "time"

// NotificationKind identifies what a Notification reports.
type NotificationKind string

const (
	CommandDelivered             NotificationKind = "commandDelivered"
	CommandDeferred              NotificationKind = "commandDeferred"
	CommandExecuted              NotificationKind = "commandExecuted"
	CommandFailed                NotificationKind = "commandFailed"
	ConfigurationChanged         NotificationKind = "configurationChanged"
	BackendConnectionStateChange NotificationKind = "backendConnectionStateChanged"
	ReachabilityChanged          NotificationKind = "reachabilityChanged"
)

// Notification is an event produced for external consumers (UI, haptics,
// metrics). Only the fields relevant to Kind are set.
type Notification struct {
	Kind         NotificationKind `json:"kind"`
	Command      Command          `json:"command,omitempty"`
	Backend      Backend          `json:"backend,omitempty"`
	Snapshot     *Snapshot        `json:"snapshot,omitempty"`
	ConnState    *ConnState       `json:"connState,omitempty"`
	Reachability *Reachability    `json:"reachability,omitempty"`
	Attempts     int              `json:"attempts,omitempty"`
	Err          string           `json:"error,omitempty"`
	At           time.Time        `json:"at"`
}

// Notifier receives notifications. events.Bus implements it.
type Notifier interface {
	Publish(n Notification)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(Notification)

// Publish calls f(n).
func (f NotifierFunc) Publish(n Notification) { f(n) }

// Discard is a Notifier that drops everything.
var Discard Notifier = NotifierFunc(func(Notification) {})

// ErrString returns err.Error(), or "" for nil.
func ErrString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
