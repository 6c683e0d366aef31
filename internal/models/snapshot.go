package models

import "time"

// Snapshot is the shared configuration replicated between the two peers.
// It is transferred and replaced as a whole; fields are never merged.
type Snapshot struct {
	TapEnabled             bool    `json:"isTapEnabled"`
	FlickDirectionReversed bool    `json:"isFlickDirectionReversed"`
	SelectedBackend        Backend `json:"playbackMethod"`
	TutorialCompleted      bool    `json:"isTutorialCompleted"`
	InitialSetupCompleted  bool    `json:"hasCompletedInitialSetup"`

	// Revision increases on every local publish. Incoming snapshots with a
	// revision that is not newer than the current one are rejected.
	Revision  uint64    `json:"revision"`
	Origin    string    `json:"origin,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// DefaultSnapshot returns the configuration used before anything was synced.
func DefaultSnapshot() Snapshot {
	return Snapshot{
		TapEnabled:      true,
		SelectedBackend: BackendLocal,
	}
}

// SameContent reports whether two snapshots carry identical settings,
// ignoring revision metadata.
func (s Snapshot) SameContent(o Snapshot) bool {
	return s.TapEnabled == o.TapEnabled &&
		s.FlickDirectionReversed == o.FlickDirectionReversed &&
		s.SelectedBackend == o.SelectedBackend &&
		s.TutorialCompleted == o.TutorialCompleted &&
		s.InitialSetupCompleted == o.InitialSetupCompleted
}

// NewerThan reports whether s should replace cur. Revisions decide; equal
// revisions from different origins are ordered by origin so both peers
// settle on the same winner.
func (s Snapshot) NewerThan(cur Snapshot) bool {
	if s.Revision != cur.Revision {
		return s.Revision > cur.Revision
	}
	return s.Origin > cur.Origin
}

// Orient applies the gesture preferences to a command produced on the
// companion. A reversed flick direction swaps next and previous; with tap
// disabled, play/pause is dropped and ok is false.
func (s Snapshot) Orient(c Command) (cmd Command, ok bool) {
	switch c {
	case NextTrack:
		if s.FlickDirectionReversed {
			return PreviousTrack, true
		}
	case PreviousTrack:
		if s.FlickDirectionReversed {
			return NextTrack, true
		}
	case TogglePlayPause:
		if !s.TapEnabled {
			return "", false
		}
	}
	return c, true
}
