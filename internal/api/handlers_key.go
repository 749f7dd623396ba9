package api

import "net/http"

// GetKey serves the process public key, hex-encoded, as plain text. Third
// parties use it to verify record signatures.
func (h *handlers) GetKey(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(h.signer.PublicKeyHex()))
}
