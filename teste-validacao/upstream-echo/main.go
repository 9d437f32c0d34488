package main

import (
	"encoding/json"
	"net/http"
	"os"

	"courier-gateway/internal/logging"
	"courier-gateway/middleware/auth"
	"courier-gateway/middleware/reqlog"
)

// Upstream de teste manual: responde com a identidade que o gateway repassou.
func main() {
	logger := logging.New(logging.Config{Format: "console"})

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"method":    r.Method,
			"path":      r.URL.Path,
			"user":      r.Header.Get(auth.HeaderUser),
			"roles":     r.Header.Get(auth.HeaderRoles),
			"requestId": r.Header.Get(reqlog.HeaderRequestID),
		})
	})

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}
	logger.Info().Str("addr", addr).Msg("upstream echo listening")
	if err := http.ListenAndServe(addr, reqlog.AccessLog(logger)(mux)); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}
