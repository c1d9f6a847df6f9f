// package models defines the data model for the track metadata cache
package models

import "context"

// Model defines the base interface for persistent models.
type Model interface {
	ID() string      // ID returns the unique identifier for this model
	Validate() error // Validate checks if the model's data is valid and returns an error if not
}

// Repository defines the interface for keyed data access operations.
// Implementations handle database interactions for specific model types.
type Repository[T Model] interface {
	Get(ctx context.Context, id string) (T, error) // Get retrieves a model by its ID, or the zero value when absent
	Put(ctx context.Context, model T) error        // Put inserts or replaces a model
	Delete(ctx context.Context, id string) error   // Delete removes a model by its ID
	Count(ctx context.Context) (int, error)        // Count returns the number of stored models
}
