package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseTemperatures accepts repeated or comma-separated T query values.
func parseTemperatures(values []string) ([]float64, error) {
	var temps []float64
	for _, v := range values {
		for _, field := range strings.Split(v, ",") {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			T, err := strconv.ParseFloat(field, 64)
			if err != nil || T <= 0 {
				return nil, fmt.Errorf("invalid temperature %q", field)
			}
			temps = append(temps, T)
		}
	}
	return temps, nil
}

// resolveDataPath confines a client-supplied CSV path to root. Relative
// paths are taken relative to root. An empty root disables file jobs.
func resolveDataPath(root, path string) (string, error) {
	if root == "" {
		return "", errors.New("dataPath is disabled on this server; send inline data or set server.data_root")
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("invalid data root: %w", err)
	}

	resolved := filepath.Clean(path)
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(root, resolved)
	}
	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("dataPath %q is outside the data root", path)
	}
	return resolved, nil
}
