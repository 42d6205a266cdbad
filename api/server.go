package api

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"yad2-pipeline/config"
	"yad2-pipeline/models"
	"yad2-pipeline/services"
	"yad2-pipeline/storage"
	"yad2-pipeline/utils"
)

// Server exposes the cleaned snapshot and the trained model read-only.
type Server struct {
	cfg     *config.Config
	logger  *utils.Logger
	metrics *metrics

	mu       sync.RWMutex
	listings []*models.Listing
	model    services.PriceModel
}

func NewServer(cfg *config.Config, logger *utils.Logger) *Server {
	return &Server{cfg: cfg, logger: logger, metrics: newMetrics()}
}

// Reload swaps in the current snapshot and model. A missing snapshot or
// model leaves the server running with an empty table or no predictions.
func (s *Server) Reload() error {
	listings, err := storage.ReadCleanedCSV(s.cfg.CleanPath)
	if err != nil {
		if !errors.Is(err, storage.ErrSnapshotMissing) {
			return err
		}
		s.logger.Warn("[api] %v — run the clean stage first", err)
		listings = nil
	}

	model, err := services.LoadModel(s.cfg.ModelPath)
	if err != nil {
		if !errors.Is(err, services.ErrModelUnavailable) {
			return err
		}
		s.logger.Info("[api] No model at %s — predictions disabled", s.cfg.ModelPath)
		model = nil
	}

	s.set(listings, model)
	s.logger.Info("[api] Loaded %d listings (model available: %v)", len(listings), model != nil)
	return nil
}

func (s *Server) set(listings []*models.Listing, model services.PriceModel) {
	s.mu.Lock()
	s.listings = listings
	s.model = model
	s.mu.Unlock()

	s.metrics.snapshotRows.Set(float64(len(listings)))
	if model != nil {
		s.metrics.modelAvailable.Set(1)
	} else {
		s.metrics.modelAvailable.Set(0)
	}
}

func (s *Server) snapshot() ([]*models.Listing, services.PriceModel) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listings, s.model
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.metrics.middleware())

	router.GET("/health", func(c *gin.Context) {
		listings, model := s.snapshot()
		c.JSON(http.StatusOK, gin.H{
			"status":          "ok",
			"listings":        len(listings),
			"model_available": model != nil,
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})))

	router.GET("/listings", s.list)
	router.GET("/kpis", s.kpis)
	router.GET("/cities", s.cities)
	router.GET("/model", s.modelInfo)
	router.POST("/predict", s.predict)
	router.POST("/reload", s.reload)
	return router
}

type listingView struct {
	Title        string   `json:"title"`
	URL          string   `json:"url"`
	ImageURL     string   `json:"image_url,omitempty"`
	PriceShekels float64  `json:"price_shekels"`
	Rooms        float64  `json:"rooms"`
	AreaSqm      float64  `json:"area_sqm"`
	Floor        float64  `json:"floor"`
	City         string   `json:"city"`
	Neighborhood string   `json:"neighborhood,omitempty"`
	PricePerSqm  *float64 `json:"price_per_sqm"`
}

func (s *Server) list(c *gin.Context) {
	listings, _ := s.snapshot()
	filtered := parseFilter(c).apply(listings)

	limit := parseInt(c.Query("limit"), 50)
	offset := parseInt(c.Query("offset"), 0)
	if offset > len(filtered) {
		offset = len(filtered)
	}
	end := offset + limit
	if limit <= 0 || end > len(filtered) {
		end = len(filtered)
	}

	items := make([]listingView, 0, end-offset)
	for _, l := range filtered[offset:end] {
		items = append(items, listingView{
			Title:        l.Title(),
			URL:          l.URL(),
			ImageURL:     l.Raw[models.ColImageURL],
			PriceShekels: l.PriceShekels,
			Rooms:        l.Rooms,
			AreaSqm:      l.AreaSqm,
			Floor:        l.Floor,
			City:         l.City,
			Neighborhood: l.Neighborhood,
			PricePerSqm:  l.PricePerSqm,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"total":  len(filtered),
		"limit":  limit,
		"offset": offset,
		"items":  items,
	})
}

func (s *Server) kpis(c *gin.Context) {
	listings, _ := s.snapshot()
	c.JSON(http.StatusOK, services.KPIs(parseFilter(c).apply(listings)))
}

func (s *Server) cities(c *gin.Context) {
	listings, _ := s.snapshot()

	type cityView struct {
		City      string  `json:"city"`
		Count     int     `json:"count"`
		MeanPrice float64 `json:"mean_price"`
	}
	byCity := make(map[string]*cityView)
	for _, l := range listings {
		v, ok := byCity[l.City]
		if !ok {
			v = &cityView{City: l.City}
			byCity[l.City] = v
		}
		v.Count++
		v.MeanPrice += l.PriceShekels
	}

	out := make([]cityView, 0, len(byCity))
	for _, v := range byCity {
		v.MeanPrice /= float64(v.Count)
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].City < out[j].City
	})
	c.JSON(http.StatusOK, out)
}

func (s *Server) modelInfo(c *gin.Context) {
	_, model := s.snapshot()
	if model == nil {
		c.JSON(http.StatusOK, gin.H{"available": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"available": true, "variant": model.Name()})
}

func (s *Server) predict(c *gin.Context) {
	_, model := s.snapshot()
	if model == nil {
		s.metrics.predictions.WithLabelValues("unavailable").Inc()
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"available": false,
			"message":   "no trained model saved; run the train stage first",
		})
		return
	}

	var f models.Features
	if err := c.ShouldBindJSON(&f); err != nil {
		s.metrics.predictions.WithLabelValues("invalid").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid features: " + err.Error()})
		return
	}
	if msg := validateFeatures(f); msg != "" {
		s.metrics.predictions.WithLabelValues("invalid").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}
	if strings.TrimSpace(f.City) == "" {
		f.City = s.cfg.Pipeline.UnknownCity
	}

	price := model.Predict(f)
	s.metrics.predictions.WithLabelValues("ok").Inc()
	c.JSON(http.StatusOK, gin.H{
		"available": true,
		"variant":   model.Name(),
		"price":     price,
	})
}

func (s *Server) reload(c *gin.Context) {
	if err := s.Reload(); err != nil {
		s.logger.Error("[api] Reload failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reload failed"})
		return
	}
	listings, model := s.snapshot()
	c.JSON(http.StatusOK, gin.H{"listings": len(listings), "model_available": model != nil})
}

// validateFeatures applies the dashboard's input ranges.
func validateFeatures(f models.Features) string {
	switch {
	case f.AreaSqm < 10 || f.AreaSqm > 400:
		return "area_sqm must be between 10 and 400"
	case f.Rooms < 1 || f.Rooms > 8:
		return "rooms must be between 1 and 8"
	case f.Floor < 0 || f.Floor > 40:
		return "floor must be between 0 and 40"
	}
	return ""
}

func parseInt(s string, def int) int {
	if strings.TrimSpace(s) == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
