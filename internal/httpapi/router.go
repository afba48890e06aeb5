// Package httpapi is the ops sidecar: a health endpoint plus a read-only
// feed of approved ads. The transactional protocol lives on the TCP server;
// nothing here mutates state.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"adpazar/internal/models"
	"adpazar/internal/services"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

func SetupRouter(ads *services.AdService, logger zerolog.Logger) *mux.Router {
	r := mux.NewRouter()

	rateLimiter := NewRateLimiter(rate.Limit(10), 20)

	r.Use(ErrorHandling(logger))
	r.Use(RequestLogging(logger))
	r.Use(SecurityHeaders())
	r.Use(CORS())
	r.Use(rateLimiter.Middleware())

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/ads", listAdsHandler(ads, logger)).Methods("GET")

	return r
}

func listAdsHandler(ads *services.AdService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := models.AdFilter{
			Category: r.URL.Query().Get("category"),
			Query:    r.URL.Query().Get("q"),
			Seller:   r.URL.Query().Get("seller"),
		}
		if raw := r.URL.Query().Get("max_price"); raw != "" {
			maxPrice, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				respondWithError(w, http.StatusBadRequest, "validation_failed", "max_price must be a number")
				return
			}
			filter.MaxPriceTokens = maxPrice
		}

		list, err := ads.List(filter)
		if err != nil {
			logger.Error().Err(err).Msg("Error listing ads for feed")
			respondWithError(w, http.StatusInternalServerError, "internal_error", "Failed to list ads")
			return
		}
		if list == nil {
			list = []*models.Ad{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(models.AdListResponse{Ads: list})
	}
}
