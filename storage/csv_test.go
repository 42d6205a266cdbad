package storage

import (
	"bytes"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"yad2-pipeline/models"
)

func TestWriteFileAtomicLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "listings_clean.csv")
	if err := os.WriteFile(path, []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}

	err := WriteFileAtomic(path, func(w io.Writer) error {
		io.WriteString(w, "partial")
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected the write error to be returned")
	}
	if data, _ := os.ReadFile(path); string(data) != "old" {
		t.Errorf("failed write replaced the file: %q", data)
	}

	if err := WriteFileAtomic(path, func(w io.Writer) error {
		_, err := io.WriteString(w, "new")
		return err
	}); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}
	if data, _ := os.ReadFile(path); string(data) != "new" {
		t.Errorf("content: got %q, want new", data)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("directory should hold only the target, got %v", names)
	}
}

func TestReadRawCSVFillsMissingColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.csv")
	content := "\ufefftitle,price,extra\nדירה,\"₪1,000,000\",x\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	table, err := ReadRawCSV(path)
	if err != nil {
		t.Fatalf("ReadRawCSV: %v", err)
	}
	if len(table.Columns) != 3 || table.Columns[0] != "title" {
		t.Errorf("columns: got %v", table.Columns)
	}
	if len(table.Rows) != 1 {
		t.Fatalf("rows: got %d, want 1", len(table.Rows))
	}
	row := table.Rows[0]
	if row["price"] != "₪1,000,000" || row["extra"] != "x" {
		t.Errorf("row: got %v", row)
	}
	for _, col := range models.RawColumns {
		if _, ok := row[col]; !ok {
			t.Errorf("column %s missing from record", col)
		}
	}
}

func TestReadRawCSVMissing(t *testing.T) {
	_, err := ReadRawCSV(filepath.Join(t.TempDir(), "nope.csv"))
	if !errors.Is(err, ErrRawInputMissing) {
		t.Errorf("got %v, want ErrRawInputMissing", err)
	}
}

func TestCleanedRoundTrip(t *testing.T) {
	ppsqm := 15625.0
	table := &models.CleanedTable{
		Columns: []string{"title", "url", "price_shekels", "rooms", "area_sqm", "floor", "city", "neighborhood", "price_per_sqm"},
		Listings: []*models.Listing{
			{
				PriceShekels: 1250000, Rooms: 4, AreaSqm: 80, Floor: 2,
				City: "תל אביב", Neighborhood: "רמת אביב", PricePerSqm: &ppsqm,
				Raw: models.RawRecord{"title": "דירה, 4 חדרים", "url": "https://www.yad2.co.il/item/x"},
			},
			{
				PriceShekels: 990000, Rooms: 3.5, AreaSqm: 0, Floor: 0, City: "Unknown",
				Raw: models.RawRecord{"title": "", "url": ""},
			},
		},
	}

	var buf bytes.Buffer
	if err := EncodeCleaned(&buf, table); err != nil {
		t.Fatalf("EncodeCleaned: %v", err)
	}
	if !strings.Contains(buf.String(), ",3.5,0,0,Unknown,,\n") {
		t.Errorf("second row not formatted as expected:\n%s", buf.String())
	}

	path := filepath.Join(t.TempDir(), "clean.csv")
	if err := WriteCleanedCSV(path, table); err != nil {
		t.Fatalf("WriteCleanedCSV: %v", err)
	}
	got, err := ReadCleanedCSV(path)
	if err != nil {
		t.Fatalf("ReadCleanedCSV: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("rows: got %d, want 2", len(got))
	}
	if got[0].Title() != "דירה, 4 חדרים" || got[0].PricePerSqm == nil || *got[0].PricePerSqm != 15625 {
		t.Errorf("first row: got %+v", got[0])
	}
	if got[1].PricePerSqm != nil {
		t.Error("blank price_per_sqm must read back as nil")
	}
}

func TestReadCleanedCSVSkipsRowsWithoutPrice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clean.csv")
	content := "price_shekels,rooms,city\n1500000,,חיפה\n,3,חיפה\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := ReadCleanedCSV(path)
	if err != nil {
		t.Fatalf("ReadCleanedCSV: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("rows: got %d, want 1", len(got))
	}
	if !math.IsNaN(got[0].Rooms) {
		t.Errorf("blank rooms: got %v, want NaN", got[0].Rooms)
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{1250000, "1250000"},
		{3.5, "3.5"},
		{15625, "15625"},
		{math.NaN(), ""},
	}
	for _, tt := range tests {
		if got := FormatNumber(tt.in); got != tt.want {
			t.Errorf("FormatNumber(%v) = %q; want %q", tt.in, got, tt.want)
		}
	}
}

func TestSQLiteWriterReplacesTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", "listings.db")
	w, err := NewListingWriter("sqlite://"+path, "yad2_listings")
	if err != nil {
		t.Fatalf("NewListingWriter: %v", err)
	}
	defer w.Close()

	ppsqm := 20000.0
	listings := []*models.Listing{
		{PriceShekels: 1600000, Rooms: 4, AreaSqm: 80, Floor: 3, City: "חיפה", PricePerSqm: &ppsqm, Raw: models.RawRecord{}},
		{PriceShekels: 900000, Rooms: 2, AreaSqm: 0, Floor: 1, City: "Unknown", Raw: models.RawRecord{}},
	}
	for i := 0; i < 2; i++ {
		if err := w.Write(listings); err != nil {
			t.Fatalf("Write #%d: %v", i+1, err)
		}
	}

	n, err := w.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Errorf("rows after two loads: got %d, want 2", n)
	}
}

func TestQuoteSQLiteIdent(t *testing.T) {
	tests := []struct{ in, want string }{
		{"yad2_listings", `"yad2_listings"`},
		{`odd"name`, `"odd""name"`},
		{`back\slash`, `"back\slash"`},
	}
	for _, tt := range tests {
		if got := quoteSQLiteIdent(tt.in); got != tt.want {
			t.Errorf("quoteSQLiteIdent(%q) = %s; want %s", tt.in, got, tt.want)
		}
	}
}

func TestSQLiteWriterQuotedTableName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listings.db")
	w, err := NewSQLiteWriter(path, `yad2 "forsale"`)
	if err != nil {
		t.Fatalf("NewSQLiteWriter: %v", err)
	}
	defer w.Close()

	if err := w.Write([]*models.Listing{{PriceShekels: 1500000, Rooms: 3, AreaSqm: 70, Floor: 2, City: "חיפה", Raw: models.RawRecord{}}}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n, err := w.Count(); err != nil || n != 1 {
		t.Errorf("Count = %d, %v; want 1", n, err)
	}
}

func TestNewListingWriterRequiresURL(t *testing.T) {
	if _, err := NewListingWriter("", "t"); !errors.Is(err, ErrNoDatabase) {
		t.Errorf("got %v, want ErrNoDatabase", err)
	}
}
