// Package profile manages user profile snapshots used for risk analysis.
package profile

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("profile not found")
	ErrExists   = errors.New("profile already exists")
)

// UserProfile is the stored profile for one user. KnownDevices lists device
// identifiers the user has previously transacted from.
type UserProfile struct {
	UserID       string    `json:"userId"`
	Email        string    `json:"email"`
	FullName     string    `json:"fullName"`
	TrustScore   int       `json:"trustScore"`
	RiskTier     string    `json:"riskTier"` // BRONZE, SILVER, GOLD
	KnownDevices []string  `json:"knownDevices"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// KnowsDevice reports whether the device has been seen for this user.
func (p *UserProfile) KnowsDevice(deviceID string) bool {
	for _, d := range p.KnownDevices {
		if d == deviceID {
			return true
		}
	}
	return false
}

// Store persists user profiles.
type Store interface {
	GetByUserID(ctx context.Context, userID string) (*UserProfile, error)
	Create(ctx context.Context, p *UserProfile) error
	AddKnownDevice(ctx context.Context, userID, deviceID string) error
	AdjustTrustScore(ctx context.Context, userID string, delta int) error
}
