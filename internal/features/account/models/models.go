package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// InitialCredits is granted to every account created from an invitation.
const InitialCredits int64 = 10000

// User is a registered account. ID is the hex digest of the Telegram user id,
// never the raw id itself.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Credits   int64     `json:"credits"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Invitation is a single-use code bound to the display name the redeeming
// user will receive. Deleted atomically with user creation on redemption.
type Invitation struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Digest derives the persistent user key from an external platform id. The
// raw id is never stored.
func Digest(externalID string) string {
	sum := sha256.Sum256([]byte(externalID))
	return hex.EncodeToString(sum[:])
}
