package backend

// Event is a backend state change. The set of events is closed: Connected,
// ConnectFailed, Disconnected and PlayerStateChanged.
type Event interface {
	event()
}

// Connected reports that connection attempt Attempt succeeded.
type Connected struct {
	Attempt uint64
}

// ConnectFailed reports that connection attempt Attempt failed.
type ConnectFailed struct {
	Attempt uint64
	Err     error
}

// Disconnected reports that an established connection was lost.
type Disconnected struct {
	Err error
}

// PlayerStateChanged reports a change in playback state.
type PlayerStateChanged struct {
	Playing bool
}

func (Connected) event()          {}
func (ConnectFailed) event()      {}
func (Disconnected) event()       {}
func (PlayerStateChanged) event() {}
