package handlers

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ExportHandler serves the CSV download
type ExportHandler struct {
	samples SampleStore
}

// NewExportHandler creates the CSV export handler
func NewExportHandler(samples SampleStore) *ExportHandler {
	return &ExportHandler{samples: samples}
}

// Download handles GET /download?hours=&provider=&route_id= and streams the
// matching samples as a CSV attachment. Field order mirrors the sample row.
func (h *ExportHandler) Download(w http.ResponseWriter, r *http.Request) {
	since, providerName, routeID, hours := parseSampleFilters(r)

	samples, err := h.samples.QuerySamples(r.Context(), since, providerName, routeID)
	if err != nil {
		http.Error(w, "failed to load samples", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="samples_last_%dh.csv"`, hours))

	cw := csv.NewWriter(w)
	cw.Write([]string{"ts_utc", "route_id", "provider", "status", "duration_sec", "distance_m", "error"})
	for _, s := range samples {
		row := []string{
			s.TS.Format(time.RFC3339),
			strconv.FormatInt(s.RouteID, 10),
			s.Provider,
			s.Status,
			"",
			"",
			"",
		}
		if s.DurationSec != nil {
			row[4] = strconv.Itoa(*s.DurationSec)
		}
		if s.DistanceM != nil {
			row[5] = strconv.Itoa(*s.DistanceM)
		}
		if s.Error != nil {
			row[6] = *s.Error
		}
		cw.Write(row)
	}
	cw.Flush()
}
