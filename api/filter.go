package api

import (
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"yad2-pipeline/models"
)

// filter mirrors the dashboard sidebar: a city set and inclusive ranges.
type filter struct {
	cities   map[string]struct{}
	minRooms float64
	maxRooms float64
	minArea  float64
	maxArea  float64
}

// parseFilter reads city=A,B (or repeated city=), min_rooms, max_rooms,
// min_area and max_area. Absent bounds are open.
func parseFilter(c *gin.Context) filter {
	f := filter{
		minRooms: parseFloat(c.Query("min_rooms"), math.Inf(-1)),
		maxRooms: parseFloat(c.Query("max_rooms"), math.Inf(1)),
		minArea:  parseFloat(c.Query("min_area"), math.Inf(-1)),
		maxArea:  parseFloat(c.Query("max_area"), math.Inf(1)),
	}
	for _, v := range c.QueryArray("city") {
		for _, city := range strings.Split(v, ",") {
			if city = strings.TrimSpace(city); city != "" {
				if f.cities == nil {
					f.cities = make(map[string]struct{})
				}
				f.cities[city] = struct{}{}
			}
		}
	}
	return f
}

func (f filter) apply(listings []*models.Listing) []*models.Listing {
	out := make([]*models.Listing, 0, len(listings))
	for _, l := range listings {
		if f.cities != nil {
			if _, ok := f.cities[l.City]; !ok {
				continue
			}
		}
		if l.Rooms < f.minRooms || l.Rooms > f.maxRooms {
			continue
		}
		if l.AreaSqm < f.minArea || l.AreaSqm > f.maxArea {
			continue
		}
		out = append(out, l)
	}
	return out
}

func parseFloat(s string, def float64) float64 {
	if strings.TrimSpace(s) == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return v
}
