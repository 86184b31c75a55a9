package rest

import (
	"encoding/json"
	"net/http"
)

// HandleHealth reports that the process is serving.
func HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}
