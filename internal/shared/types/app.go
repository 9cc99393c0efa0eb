package types

import (
	"fmt"
	"strconv"
	"strings"
)

// PrimaryUserID is the owner of the default profile
const PrimaryUserID = 0

// GroupState represents app lifecycle states
type GroupState int

const (
	StateNone GroupState = iota
	StateActive
	// StateTmp is declared for compatibility; no transition enters it.
	StateTmp
	StateIdle
	StateDead
)

// String returns the string representation of the state
func (s GroupState) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateActive:
		return "active"
	case StateTmp:
		return "tmp"
	case StateIdle:
		return "idle"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name
func (s GroupState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Identity identifies an application across user profiles
type Identity struct {
	UserID  int    `json:"user_id"`
	Package string `json:"package"`
}

// NewIdentity builds an identity value
func NewIdentity(userID int, pkg string) Identity {
	return Identity{UserID: userID, Package: pkg}
}

// Key returns the registry key. Package names are only unique per user, so
// secondary users are prefixed with their id.
func (i Identity) Key() string {
	if i.UserID == PrimaryUserID {
		return i.Package
	}
	return strconv.Itoa(i.UserID) + ":" + i.Package
}

// String implements fmt.Stringer
func (i Identity) String() string {
	return fmt.Sprintf("%d:%s", i.UserID, i.Package)
}

// ParseKey is the inverse of Identity.Key
func ParseKey(key string) (Identity, error) {
	user, pkg, found := strings.Cut(key, ":")
	if !found {
		return Identity{UserID: PrimaryUserID, Package: key}, nil
	}
	id, err := strconv.Atoi(user)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid user id in key %q: %w", key, err)
	}
	return Identity{UserID: id, Package: pkg}, nil
}

// ProcessInfo describes a process reported by the supervisor
type ProcessInfo struct {
	PID     int    `json:"pid"`
	UID     int    `json:"uid"`
	UserID  int    `json:"user_id"`
	Package string `json:"package"`
	// Name is the process name; empty or equal to Package for the main process
	Name string `json:"name,omitempty"`
}

// Identity returns the owning application identity
func (p ProcessInfo) Identity() Identity {
	return Identity{UserID: p.UserID, Package: p.Package}
}

// IsMain reports whether the process is the application's main process
func (p ProcessInfo) IsMain() bool {
	return p.Name == "" || p.Name == p.Package
}

// Visibility is the kind of a component visibility change
type Visibility string

const (
	VisibilityGained Visibility = "gained"
	VisibilityLost   Visibility = "lost"
)

// VisibilityEvent is a component becoming visible or leaving
type VisibilityEvent struct {
	Kind      Visibility `json:"kind"`
	UserID    int        `json:"user_id"`
	Package   string     `json:"package"`
	Component string     `json:"component"`
}

// Identity returns the owning application identity
func (e VisibilityEvent) Identity() Identity {
	return Identity{UserID: e.UserID, Package: e.Package}
}

// PackageMetadata is what the package collaborator knows about a package
type PackageMetadata struct {
	UserID  int    `json:"user_id"`
	Package string `json:"package"`
	UID     int    `json:"uid"`
	System  bool   `json:"system"`
}

// Stats contains engine statistics
type Stats struct {
	TotalApps      int `json:"total_apps"`
	ActiveApps     int `json:"active_apps"`
	IdleApps       int `json:"idle_apps"`
	Processes      int `json:"processes"`
	ScheduledTasks int `json:"scheduled_tasks"`
}
