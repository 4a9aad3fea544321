// Package identity defines the public-profile lookup collaborator. User
// accounts live in an external service; sessions only need a username and a
// rating snapshot at pairing time.
package identity

import (
	"errors"
	"sync"
)

// ErrUnknownUser is returned when no profile exists for a user id.
var ErrUnknownUser = errors.New("unknown user")

// Profile is the public slice of a user account.
type Profile struct {
	Username string
	Rating   int
}

// Directory resolves user ids to public profiles.
type Directory interface {
	PublicProfile(userID string) (Profile, error)
}

// InMemoryDirectory is a Directory backed by a map, used for local runs and
// tests.
type InMemoryDirectory struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

// NewInMemoryDirectory creates an empty directory.
func NewInMemoryDirectory() *InMemoryDirectory {
	return &InMemoryDirectory{
		profiles: make(map[string]Profile),
	}
}

// Put inserts or replaces a profile.
func (d *InMemoryDirectory) Put(userID string, profile Profile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles[userID] = profile
}

// PublicProfile returns the profile for a user id.
func (d *InMemoryDirectory) PublicProfile(userID string) (Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	profile, ok := d.profiles[userID]
	if !ok {
		return Profile{}, ErrUnknownUser
	}
	return profile, nil
}
