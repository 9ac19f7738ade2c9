package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/vango-go/vai-duet/pkg/core/tools"
)

// ToolsHandler lists the declarations the function session is given.
type ToolsHandler struct{}

func (h ToolsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "invalid_request", "method not allowed", "")
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(map[string]any{"tools": tools.Declarations()})
}
