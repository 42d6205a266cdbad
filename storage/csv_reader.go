package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"yad2-pipeline/models"
)

var (
	// ErrRawInputMissing means the scrape stage has not produced its file yet.
	ErrRawInputMissing = errors.New("raw input file not found")
	// ErrSnapshotMissing means the clean stage has not produced its file yet.
	ErrSnapshotMissing = errors.New("cleaned snapshot not found")
)

// ReadRawCSV loads the raw table. Expected columns absent from the header
// are added as blank so every record carries every raw field.
func ReadRawCSV(path string) (*models.RawTable, error) {
	header, rows, err := readCSV(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrRawInputMissing, path)
	}
	if err != nil {
		return nil, err
	}

	table := &models.RawTable{Columns: header, Rows: make([]models.RawRecord, 0, len(rows))}
	for _, row := range rows {
		rec := make(models.RawRecord, len(header)+len(models.RawColumns))
		for i, col := range header {
			if i < len(row) {
				rec[col] = row[i]
			}
		}
		for _, col := range models.RawColumns {
			if _, ok := rec[col]; !ok {
				rec[col] = ""
			}
		}
		table.Rows = append(table.Rows, rec)
	}
	return table, nil
}

// ReadCleanedCSV loads a snapshot written by WriteCleanedCSV. Rows without a
// numeric price are skipped; other missing numerics come back as NaN.
func ReadCleanedCSV(path string) ([]*models.Listing, error) {
	header, rows, err := readCSV(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotMissing, path)
	}
	if err != nil {
		return nil, err
	}

	listings := make([]*models.Listing, 0, len(rows))
	for _, row := range rows {
		rec := make(models.RawRecord, len(header))
		for i, col := range header {
			if i < len(row) {
				rec[col] = row[i]
			}
		}

		price := parseOrNaN(rec[models.ColPriceShekels])
		if math.IsNaN(price) {
			continue
		}

		l := &models.Listing{
			PriceShekels: price,
			Rooms:        parseOrNaN(rec[models.ColRooms]),
			AreaSqm:      parseOrNaN(rec[models.ColAreaSqm]),
			Floor:        parseOrNaN(rec[models.ColFloor]),
			City:         strings.TrimSpace(rec[models.ColCity]),
			Neighborhood: strings.TrimSpace(rec[models.ColNeighborhood]),
			Raw:          rec,
		}
		if v := parseOrNaN(rec[models.ColPricePerSqm]); !math.IsNaN(v) {
			l.PricePerSqm = &v
		}
		listings = append(listings, l)
	}
	return listings, nil
}

func readCSV(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("csv: read header of %q: %w", path, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	var rows [][]string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("csv: read row of %q: %w", path, err)
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

func parseOrNaN(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
