package models

import "github.com/google/uuid"

// ensureID assigns a random primary key when the caller did not set one.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
