package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	RawPath     string
	CleanPath   string
	ModelPath   string
	ReportsDir  string
	DatabaseURL string
	TableName   string
	AMQPURL     string
	AMQPQueue   string
	HTTPAddr    string

	BaseURL         string
	PagesToScrape   int
	MaxConcurrency  int
	RateLimitMs     int
	MaxRetries      int
	ChromeBin       string
	PageTimeoutSecs int

	CompareCityA string
	CompareCityB string

	Pipeline Pipeline
}

// Pipeline holds the cleaning rule constants. Every field has a default and
// can be overridden from the YAML file named by PIPELINE_CONFIG.
type Pipeline struct {
	PriceFloor     float64  `yaml:"price_floor"`
	DefaultRooms   float64  `yaml:"default_rooms"`
	DefaultArea    float64  `yaml:"default_area_sqm"`
	DefaultFloor   float64  `yaml:"default_floor"`
	UnknownCity    string   `yaml:"unknown_city"`
	PropertyWords  []string `yaml:"property_words"`
	PriceSources   []string `yaml:"price_sources"`
	DetailSources  []string `yaml:"detail_sources"`
	LocationColumn string   `yaml:"location_column"`
}

// DefaultPipeline returns the rule constants used when no overlay is present.
func DefaultPipeline() Pipeline {
	return Pipeline{
		PriceFloor:   50000,
		DefaultRooms: 3.0,
		DefaultArea:  70.0,
		DefaultFloor: 2.0,
		UnknownCity:  "Unknown",
		PropertyWords: []string{
			"דירה", "דירת גן", "בית פרטי", "פנטהאוז", "גג", "קוטג",
			"apartment", "garden apartment", "private house", "penthouse", "rooftop", "cottage",
		},
		PriceSources:   []string{"price", "details", "title", "tags", "price_shekels"},
		DetailSources:  []string{"details", "title"},
		LocationColumn: "location",
	}
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	cfg := &Config{
		RawPath:     getEnv("RAW_PATH", "./data/raw/yad2_scraped_pagination.csv"),
		CleanPath:   getEnv("CLEAN_PATH", "./data/processed/listings_clean.csv"),
		ModelPath:   getEnv("MODEL_PATH", "./models/price_model.json"),
		ReportsDir:  getEnv("REPORTS_DIR", "./reports"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		TableName:   getEnv("TABLE_NAME", "yad2_listings"),
		AMQPURL:     getEnv("AMQP_URL", ""),
		AMQPQueue:   getEnv("AMQP_QUEUE", "listings.cleaned"),
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),

		BaseURL:         getEnv("YAD2_BASE_URL", "https://www.yad2.co.il/realestate/forsale"),
		PagesToScrape:   getEnvInt("PAGES_TO_SCRAPE", 8),
		MaxConcurrency:  getEnvInt("MAX_CONCURRENCY", 1),
		RateLimitMs:     getEnvInt("RATE_LIMIT_MS", 2000),
		MaxRetries:      getEnvInt("MAX_RETRIES", 3),
		ChromeBin:       getEnv("CHROME_BIN", ""),
		PageTimeoutSecs: getEnvInt("PAGE_TIMEOUT_SECS", 20),

		CompareCityA: getEnv("COMPARE_CITY_A", "Tel Aviv"),
		CompareCityB: getEnv("COMPARE_CITY_B", "Jerusalem"),

		Pipeline: DefaultPipeline(),
	}

	cfg.Pipeline.PriceFloor = getEnvFloat("PRICE_FLOOR", cfg.Pipeline.PriceFloor)

	overlay := getEnv("PIPELINE_CONFIG", "./configs/pipeline.yaml")
	if err := cfg.Pipeline.LoadFile(overlay); err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[config] Ignoring pipeline overlay %s: %v", overlay, err)
		}
	}

	return cfg
}

// LoadFile overlays the non-zero values of a YAML document onto p.
func (p *Pipeline) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var overlay Pipeline
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	if overlay.PriceFloor > 0 {
		p.PriceFloor = overlay.PriceFloor
	}
	if overlay.DefaultRooms > 0 {
		p.DefaultRooms = overlay.DefaultRooms
	}
	if overlay.DefaultArea > 0 {
		p.DefaultArea = overlay.DefaultArea
	}
	if overlay.DefaultFloor > 0 {
		p.DefaultFloor = overlay.DefaultFloor
	}
	if overlay.UnknownCity != "" {
		p.UnknownCity = overlay.UnknownCity
	}
	if len(overlay.PropertyWords) > 0 {
		p.PropertyWords = overlay.PropertyWords
	}
	if len(overlay.PriceSources) > 0 {
		p.PriceSources = overlay.PriceSources
	}
	if len(overlay.DetailSources) > 0 {
		p.DetailSources = overlay.DetailSources
	}
	if overlay.LocationColumn != "" {
		p.LocationColumn = overlay.LocationColumn
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}
