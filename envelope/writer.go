package envelope

import (
	"encoding/json"
	"net/http"
)

const contentTypeJSON = "application/json; charset=utf-8"

// WriteData writes a success envelope around data.
func WriteData(w http.ResponseWriter, status int, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "internal_error", "failed to encode response", nil)
		return
	}
	Write(w, &Envelope{StatusCode: status, Data: raw})
}

// WriteError writes a failure envelope. i18n may be nil.
func WriteError(w http.ResponseWriter, status int, code, message string, i18n map[string]string) {
	Write(w, &Envelope{StatusCode: status, Code: code, Message: message, MessageI18n: i18n})
}

// Write encodes env using env.StatusCode as the HTTP status.
func Write(w http.ResponseWriter, env *Envelope) {
	if env.StatusCode == http.StatusNoContent {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(env.StatusCode)
	_ = json.NewEncoder(w).Encode(env)
}
