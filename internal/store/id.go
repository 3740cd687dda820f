package store

import "github.com/google/uuid"

// newCredentialID assigns ids to imported credential records.
func newCredentialID() string {
	return uuid.NewString()
}
