package api

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"

	"github.com/benmeehan/gpio-agent/internal/constants"
)

type bodyHandler func(w http.ResponseWriter, r *http.Request, body []byte)

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", s.opts.CORSOrigin)
		h.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, "+constants.HeaderNonce+", "+constants.HeaderAuth)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// protected reads the body and, while authentication is enabled, verifies
// the signature over the literal path and body before calling next.
func (s *Server) protected(next bodyHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
				return
			}
			writeError(w, http.StatusBadRequest, "unreadable body")
			return
		}

		if s.auth.IsEnabled() {
			client := clientAddr(r)
			nonce, err := strconv.ParseUint(r.Header.Get(constants.HeaderNonce), 10, 32)
			signature := r.Header.Get(constants.HeaderAuth)
			if err != nil || signature == "" {
				rejectErr := s.auth.Reject(client)
				s.logger.Debug().Err(rejectErr).Str("client", client).Str("path", r.URL.Path).Msg("Request rejected")
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if err := s.auth.Verify(client, uint32(nonce), r.URL.Path, body, signature); err != nil {
				s.logger.Debug().Err(err).Str("client", client).Str("path", r.URL.Path).Msg("Request rejected")
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}

		next(w, r, body)
	}
}

// clientAddr is the identity a challenge is bound to: the remote IP.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeSuccess(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// decodeBody rejects empty and malformed JSON with the matching message.
func decodeBody(w http.ResponseWriter, body []byte, v any) bool {
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "missing body")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}
