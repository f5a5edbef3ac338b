package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/cwbudde/antcolonytsp/internal/geo"
)

// loadJobCities resolves the inline cities or the coordinate file of a job
func loadJobCities(config JobConfig) ([]geo.City, error) {
	switch {
	case len(config.Cities) > 0:
		return geo.FromPairs(config.Cities), nil
	case config.CitiesPath != "":
		cities, err := geo.LoadCities(config.CitiesPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load cities: %w", err)
		}
		return cities, nil
	default:
		return nil, fmt.Errorf("cities or citiesPath is required")
	}
}

// writeJSON encodes v with the given status code
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError sends a JSON error body
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
