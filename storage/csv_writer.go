package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"yad2-pipeline/models"
)

// WriteCleanedCSV replaces the snapshot at path with the cleaned table.
// Readers never observe a partially written file.
func WriteCleanedCSV(path string, table *models.CleanedTable) error {
	return WriteFileAtomic(path, func(w io.Writer) error {
		return EncodeCleaned(w, table)
	})
}

// EncodeCleaned writes the header row followed by one row per listing.
func EncodeCleaned(w io.Writer, table *models.CleanedTable) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(table.Columns); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}

	row := make([]string, len(table.Columns))
	for _, l := range table.Listings {
		for i, col := range table.Columns {
			row[i] = cellValue(l, col)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteRawCSV writes scraped records with the raw header, replacing path.
func WriteRawCSV(path string, records []models.RawRecord) error {
	return WriteFileAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		cols := []string{
			models.ColTitle, models.ColPrice, models.ColLocation, models.ColDetails,
			models.ColTags, models.ColImageURL, models.ColURL,
		}
		if err := cw.Write(cols); err != nil {
			return fmt.Errorf("csv: write header: %w", err)
		}
		row := make([]string, len(cols))
		for _, r := range records {
			for i, c := range cols {
				row[i] = r[c]
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("csv: write row: %w", err)
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

// WriteFileAtomic writes to a temp file next to path and renames it into
// place. Intermediate directories are created automatically.
func WriteFileAtomic(path string, write func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("storage: create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("storage: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("storage: sync %q: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close %q: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("storage: replace %q: %w", path, err)
	}
	return nil
}

func cellValue(l *models.Listing, col string) string {
	switch col {
	case models.ColPriceShekels:
		return FormatNumber(l.PriceShekels)
	case models.ColRooms:
		return FormatNumber(l.Rooms)
	case models.ColAreaSqm:
		return FormatNumber(l.AreaSqm)
	case models.ColFloor:
		return FormatNumber(l.Floor)
	case models.ColCity:
		return l.City
	case models.ColNeighborhood:
		return l.Neighborhood
	case models.ColPricePerSqm:
		if l.PricePerSqm == nil {
			return ""
		}
		return FormatNumber(*l.PricePerSqm)
	}
	return l.Raw[col]
}

// FormatNumber renders a float the shortest way that round-trips; NaN is blank.
func FormatNumber(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
