package api

import (
	"net/http"
	"strings"

	"subwatch/internal/config"
)

// catalogCacheKey is the shared cache slot for the rendered catalog.
const catalogCacheKey = "catalog:services"

// CatalogService is one entry of the served catalog.
type CatalogService struct {
	Name         string   `json:"name"`
	Category     string   `json:"category"`
	Domains      []string `json:"domains"`
	BillingCycle string   `json:"billing_cycle"`
	Website      string   `json:"website,omitempty"`
}

// CatalogResponse is the catalog of known subscription services.
type CatalogResponse struct {
	Services   []CatalogService `json:"services"`
	Categories []string         `json:"categories"`
}

// handleCatalog serves the known-service catalog the extension matches
// hostnames against. ?domain=<host> returns just the matching entry.
// GET /api/v1/catalog
func (s *HTTPServer) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	cat := s.getCatalog()
	if cat == nil {
		writeError(w, http.StatusServiceUnavailable, "catalog not loaded")
		return
	}

	if domain := strings.TrimSpace(r.URL.Query().Get("domain")); domain != "" {
		entry := cat.MatchDomain(domain)
		if entry == nil {
			writeError(w, http.StatusNotFound, "no service matches this domain")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"service": toCatalogService(entry)})
		return
	}

	var resp CatalogResponse
	if s.cache.Get(r.Context(), catalogCacheKey, &resp) {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	resp = buildCatalogResponse(cat)
	s.cache.Set(r.Context(), catalogCacheKey, resp)
	writeJSON(w, http.StatusOK, resp)
}

func buildCatalogResponse(cat *config.Catalog) CatalogResponse {
	services := make([]CatalogService, 0, len(cat.Services))
	for i := range cat.Services {
		services = append(services, toCatalogService(&cat.Services[i]))
	}
	return CatalogResponse{Services: services, Categories: cat.Categories()}
}

func toCatalogService(e *config.ServiceEntry) CatalogService {
	return CatalogService{
		Name:         e.Name,
		Category:     e.Category,
		Domains:      e.Domains,
		BillingCycle: e.BillingCycle,
		Website:      e.Website,
	}
}
