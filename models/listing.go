package models

import "time"

// Column names shared by the raw and cleaned tables.
const (
	ColTitle        = "title"
	ColPrice        = "price"
	ColPriceShekels = "price_shekels"
	ColLocation     = "location"
	ColDetails      = "details"
	ColTags         = "tags"
	ColImageURL     = "image_url"
	ColURL          = "url"

	ColRooms        = "rooms"
	ColAreaSqm      = "area_sqm"
	ColFloor        = "floor"
	ColCity         = "city"
	ColNeighborhood = "neighborhood"
	ColPricePerSqm  = "price_per_sqm"
)

// RawColumns are the columns the scraper produces. Missing ones are
// synthesized as blank when a raw file is loaded.
var RawColumns = []string{
	ColTitle, ColPrice, ColPriceShekels, ColLocation, ColDetails, ColTags, ColImageURL, ColURL,
}

// DerivedColumns are appended to the cleaned table after the raw ones.
var DerivedColumns = []string{
	ColRooms, ColAreaSqm, ColFloor, ColCity, ColNeighborhood, ColPricePerSqm,
}

// RawRecord holds one scraped listing exactly as it appears in the raw file.
// A blank value means the field is absent.
type RawRecord map[string]string

// RawTable is a raw file loaded in memory with its header order preserved.
type RawTable struct {
	Columns []string
	Rows    []RawRecord
}

// Listing is the cleaned record written to the processed snapshot.
type Listing struct {
	PriceShekels float64
	Rooms        float64
	AreaSqm      float64
	Floor        float64
	City         string
	Neighborhood string
	PricePerSqm  *float64

	// Raw keeps every source column so the snapshot preserves them.
	Raw RawRecord
}

// Title and URL are the raw text columns consumers display.
func (l *Listing) Title() string { return l.Raw[ColTitle] }
func (l *Listing) URL() string   { return l.Raw[ColURL] }

// CleanedTable is the output of one cleaning pass.
type CleanedTable struct {
	Columns  []string
	Listings []*Listing
}

// RunSummary reports what a cleaning pass did to the row set.
type RunSummary struct {
	RunID             string
	StartedAt         time.Time
	RowsRead          int
	PriceFallback     bool
	DroppedNoPrice    int
	DroppedBelowFloor int
	Imputed           map[string]int
	RowsWritten       int
	OutputPath        string
}
