package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	Username       string
	HashedPassword string

	// Admins may approve or reject transactions and edit withdrawal settings
	IsAdmin bool
}
