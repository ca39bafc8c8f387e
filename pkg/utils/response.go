package utils

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// ErrorBody 是错误响应的结构。
type ErrorBody struct {
	Error  string `json:"error"`
	Kind   string `json:"kind,omitempty"`
	Field  string `json:"field,omitempty"`
	Module string `json:"module,omitempty"`
}

// RespondJSON 发送JSON响应
func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Str("component", "http").Msg("failed to encode response")
	}
}

// RespondError 发送错误响应
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorBody{Error: message})
}

// RespondErrorBody sends a structured error response.
func RespondErrorBody(w http.ResponseWriter, status int, body ErrorBody) {
	RespondJSON(w, status, body)
}

// DecodeJSON 解析 JSON 请求体。
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}
