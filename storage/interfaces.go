package storage

import "yad2-pipeline/models"

// ListingWriter is the interface any relational backend must satisfy.
// Write replaces the table contents with the given snapshot.
type ListingWriter interface {
	Write(listings []*models.Listing) error
	Count() (int, error)
	Close() error
}
