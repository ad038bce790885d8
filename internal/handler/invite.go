package handler

import (
	"log"
	"net/http"

	"github.com/skip2/go-qrcode"
)

// qrSize は招待QRコードの一辺（px）
const qrSize = 320

// HandleQR handles GET /qr
// コマンドセンターのURLをQRコード(PNG)で返す
func (h *Handler) HandleQR(w http.ResponseWriter, r *http.Request) {
	png, err := qrcode.Encode(h.inviteURL(r), qrcode.Medium, qrSize)
	if err != nil {
		log.Printf("[GET /qr] ❌ QR generation failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to generate QR code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

// inviteURL returns PUBLIC_URL, or the URL the request arrived on.
func (h *Handler) inviteURL(r *http.Request) string {
	if h.Config.PublicURL != "" {
		return h.Config.PublicURL
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}

// HandleHealth handles GET /healthz
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": h.Hub.Len(),
	})
}
