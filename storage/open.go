package storage

import (
	"errors"
	"math"
	"strings"

	"yad2-pipeline/models"
)

// ErrNoDatabase is returned when DATABASE_URL is not set.
var ErrNoDatabase = errors.New("DATABASE_URL is not set")

// loadColumns is the subset of the cleaned table stored relationally.
var loadColumns = []string{
	"title", "city", "neighborhood", "rooms", "floor", "area_sqm", "price_shekels", "price_per_sqm", "url",
}

// NewListingWriter picks a backend from the URL scheme: sqlite:// (or a
// .db/.sqlite path) opens a local SQLite file, anything else goes to Postgres.
func NewListingWriter(databaseURL, table string) (ListingWriter, error) {
	switch {
	case databaseURL == "":
		return nil, ErrNoDatabase
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return NewSQLiteWriter(strings.TrimPrefix(databaseURL, "sqlite://"), table)
	case strings.HasSuffix(databaseURL, ".db"), strings.HasSuffix(databaseURL, ".sqlite"):
		return NewSQLiteWriter(databaseURL, table)
	}
	return NewPostgresWriter(databaseURL, table)
}

func loadValues(l *models.Listing) []interface{} {
	var neighborhood, ppsqm interface{}
	if l.Neighborhood != "" {
		neighborhood = l.Neighborhood
	}
	if l.PricePerSqm != nil {
		ppsqm = *l.PricePerSqm
	}
	return []interface{}{
		l.Title(),
		l.City,
		neighborhood,
		l.Rooms,
		int64(math.Round(l.Floor)),
		l.AreaSqm,
		int64(math.Round(l.PriceShekels)),
		ppsqm,
		l.URL(),
	}
}
