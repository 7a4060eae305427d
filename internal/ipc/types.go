package ipc

import "time"

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// DependencyStatus describes availability of an external program.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail"`
}

// WatcherStatus summarizes the card state machine. The UID of the last card is
// deliberately absent.
type WatcherStatus struct {
	State            string    `json:"state"`
	SessionID        string    `json:"session_id,omitempty"`
	Sessions         int64     `json:"sessions"`
	Dispatches       int64     `json:"dispatches"`
	ReadFailures     int64     `json:"read_failures"`
	DispatchFailures int64     `json:"dispatch_failures"`
	LastDispatch     time.Time `json:"last_dispatch,omitzero"`
}

// StatusResponse represents combined daemon and watcher status.
type StatusResponse struct {
	Running      bool               `json:"running"`
	Paused       bool               `json:"paused"`
	PID          int                `json:"pid"`
	StartedAt    time.Time          `json:"started_at,omitzero"`
	Reader       string             `json:"reader"`
	LockPath     string             `json:"lock_path"`
	LockMode     string             `json:"lock_mode"`
	LogPath      string             `json:"log_path"`
	Beep         string             `json:"beep"`
	BeepDetail   string             `json:"beep_detail,omitempty"`
	Hotplug      bool               `json:"hotplug"`
	Watcher      WatcherStatus      `json:"watcher"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// PauseRequest suspends card probing.
type PauseRequest struct{}

// PauseResponse reports whether the call changed the paused state.
type PauseResponse struct {
	Changed bool `json:"changed"`
	Paused  bool `json:"paused"`
}

// ResumeRequest restarts card probing.
type ResumeRequest struct{}

// ResumeResponse reports whether the call changed the paused state.
type ResumeResponse struct {
	Changed bool `json:"changed"`
	Paused  bool `json:"paused"`
}

// StopRequest asks the daemon to shut down.
type StopRequest struct{}

// StopResponse acknowledges a stop request.
type StopResponse struct {
	Stopping bool `json:"stopping"`
}
