package server

import (
	"net/http"

	"github.com/tandemcode/tandem/pkg/types"
)

// ProviderInfo is one provider entry in the /config/providers listing.
type ProviderInfo struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Models []types.Model `json:"models"`
}

// ProvidersResponse lists configured providers with the default model
// per provider.
type ProvidersResponse struct {
	Providers []ProviderInfo    `json:"providers"`
	Default   map[string]string `json:"default"`
}

// getConfig handles GET /config.
func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Config)
}

// listProviders handles GET /config/providers.
func (s *Server) listProviders(w http.ResponseWriter, r *http.Request) {
	resp := ProvidersResponse{Default: map[string]string{}}

	for _, p := range s.app.Providers.List() {
		models := p.Models()
		resp.Providers = append(resp.Providers, ProviderInfo{
			ID:     p.ID(),
			Name:   p.Name(),
			Models: models,
		})
		if len(models) > 0 {
			resp.Default[p.ID()] = models[0].ID
		}
	}
	if resp.Providers == nil {
		resp.Providers = []ProviderInfo{}
	}

	writeJSON(w, http.StatusOK, resp)
}
