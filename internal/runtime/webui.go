package runtime

import (
	"net/http"
	"slices"
	"strings"

	jsoncodec "github.com/drblury/streamroute/internal/runtime/jsoncodec"
)

const defaultWebUIPort = 8081

// StartWebUIServer exposes the stream handler statistics when WebUIEnabled is
// set:
//
//	GET /api/handlers         every registered stream handler
//	GET /api/handlers/{name}  one handler, 404 when it is not registered
func (s *Service) StartWebUIServer() {
	if !s.Conf.WebUIEnabled {
		return
	}
	port := s.Conf.WebUIPort
	if port == 0 {
		port = defaultWebUIPort
	}
	s.RegisterHTTPHandler(port, "/", s.webUIMux())
}

func (s *Service) webUIMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/handlers", s.handleGetHandlers)
	mux.HandleFunc("/api/handlers/{name}", s.handleGetHandler)
	return mux
}

func (s *Service) handleGetHandlers(w http.ResponseWriter, r *http.Request) {
	if s.preflight(w, r) {
		return
	}
	s.writeJSON(w, s.Handlers())
}

func (s *Service) handleGetHandler(w http.ResponseWriter, r *http.Request) {
	if s.preflight(w, r) {
		return
	}
	name := r.PathValue("name")
	idx := slices.IndexFunc(s.Handlers(), func(h HandlerSummary) bool { return h.Name == name })
	if idx < 0 {
		http.Error(w, "stream handler not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, s.Handlers()[idx])
}

// preflight sets the CORS headers for allowed dashboard origins and answers
// OPTIONS requests. It reports whether the request is fully handled.
func (s *Service) preflight(w http.ResponseWriter, r *http.Request) bool {
	if origin := s.getAllowedCORSOrigin(r.Header.Get("Origin")); origin != "" {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
	}
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return true
	case http.MethodGet, http.MethodHead:
		return false
	}
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return true
}

func (s *Service) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := jsoncodec.Encode(w, v); err != nil {
		s.Logger.Error("Failed to encode handler statistics", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// getAllowedCORSOrigin returns the Access-Control-Allow-Origin value for
// requestOrigin, or "" when the origin is not configured.
func (s *Service) getAllowedCORSOrigin(requestOrigin string) string {
	if s.Conf == nil || requestOrigin == "" {
		return ""
	}
	for _, allowed := range s.Conf.WebUICORSAllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if strings.EqualFold(allowed, requestOrigin) {
			return requestOrigin
		}
	}
	return ""
}
