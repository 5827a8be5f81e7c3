package httpjson

import (
	"encoding/json"
	"net/http"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func Write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, msg string) {
	Write(w, status, errorBody{Error: msg})
}

// WriteCodedError ajoute un code machine (ex: invalid_url) au message.
func WriteCodedError(w http.ResponseWriter, status int, code, msg string) {
	Write(w, status, errorBody{Error: msg, Code: code})
}
