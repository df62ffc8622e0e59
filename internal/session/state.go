package session

import (
	"time"

	"github.com/loqalabs/loqa-podcast/internal/job"
	"github.com/loqalabs/loqa-podcast/internal/preferences"
)

// State is a stage of the generation session lifecycle.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateActive       State = "active"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
	StateDisconnected State = "disconnected"
)

// Terminal reports whether no further transition can happen without a new Open.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateDisconnected:
		return true
	}
	return false
}

// Open reports whether a session is in flight.
func (s State) Open() bool {
	return s == StateConnecting || s == StateActive
}

// Result is the artifact of a completed session.
type Result struct {
	AudioURL   string `json:"audio_url"`
	Transcript string `json:"transcript,omitempty"`
}

// Snapshot is the state published to presentation after every transition.
// Revision increases by one per transition.
type Snapshot struct {
	Revision      uint64             `json:"revision"`
	SessionID     string             `json:"session_id,omitempty"`
	Kind          job.Kind           `json:"kind,omitempty"`
	Engine        preferences.Engine `json:"engine,omitempty"`
	State         State              `json:"state"`
	Progress      float64            `json:"progress"`
	StatusMessage string             `json:"status_message,omitempty"`
	Result        *Result            `json:"result,omitempty"`
	Failure       string             `json:"failure,omitempty"`
	Err           error              `json:"-"`
	UpdatedAt     time.Time          `json:"updated_at"`
}
