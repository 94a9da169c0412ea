package models

import (
	"time"

	"github.com/google/uuid"
)

// Course is the priced catalog item the settlement engine purchases against.
// Catalog management (create/update/image upload) lives outside this service;
// the engine only reads the price.
type Course struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Price       int       `json:"price"`
	CreatedAt   time.Time `json:"created_at"`
}
