package gateway

import "net/http"

// ModelsResponse is the JSON response for GET /v1/models.
type ModelsResponse struct {
	Models []string `json:"models"`
}

// handleModels returns an http.HandlerFunc for GET /v1/models. Listing is
// fail-soft: an unreachable provider yields an empty list.
func (g *Gateway) handleModels() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		models := []string{}
		if g.lister != nil {
			if listed := g.lister.ListModels(r.Context()); listed != nil {
				models = listed
			}
		}
		writeJSON(w, http.StatusOK, ModelsResponse{Models: models})
	}
}
