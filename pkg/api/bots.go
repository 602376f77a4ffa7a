package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/voxbill/voxbill/pkg/bot"
	"github.com/voxbill/voxbill/pkg/config"
	"github.com/voxbill/voxbill/pkg/logger"
	"github.com/voxbill/voxbill/pkg/manager"
)

// createBotRequest is the POST /api/admin/bots payload.
type createBotRequest struct {
	OwnerID   string              `json:"owner_id"`
	Name      string              `json:"name"`
	BridgeURL string              `json:"bridge_url"`
	AutoStart bool                `json:"auto_start"`
	Settings  *config.BotSettings `json:"settings,omitempty"`
}

type enableRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleListBots(w http.ResponseWriter, r *http.Request) {
	records, err := s.manager.List(r.URL.Query().Get("owner"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"bots":  sanitizeRecords(records),
		"count": len(records),
	})
}

func (s *Server) handleCreateBot(w http.ResponseWriter, r *http.Request) {
	var req createBotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.OwnerID == "" || req.BridgeURL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "owner_id and bridge_url are required",
		})
		return
	}

	rec, err := s.manager.Create(manager.CreateParams{
		OwnerID:   req.OwnerID,
		Name:      req.Name,
		BridgeURL: req.BridgeURL,
		AutoStart: req.AutoStart,
		Settings:  req.Settings,
	})
	if err != nil {
		if errors.Is(err, manager.ErrQuotaExceeded) {
			writeError(w, http.StatusForbidden, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	logger.InfoCF("api", "Bot created via API", map[string]interface{}{
		"bot":   rec.ID,
		"owner": rec.OwnerID,
	})
	writeJSON(w, http.StatusCreated, sanitizeRecord(rec))
}

func (s *Server) handleGetBot(w http.ResponseWriter, r *http.Request) {
	rec, err := s.manager.Get(r.PathValue("id"))
	if err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sanitizeRecord(rec))
}

func (s *Server) handleUpdateBot(w http.ResponseWriter, r *http.Request) {
	var settings config.BotSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	rec, err := s.manager.UpdateSettings(r.PathValue("id"), settings)
	if err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sanitizeRecord(rec))
}

func (s *Server) handleDeleteBot(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleStartBot(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.manager.Start(r.Context(), id); err != nil {
		writeManagerError(w, err)
		return
	}
	status, _ := s.manager.StatusOf(id)
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleStopBot(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.manager.Stop(r.Context(), id); err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) handleLogoutBot(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Logout(r.Context(), r.PathValue("id")); err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (s *Server) handleEnableBot(w http.ResponseWriter, r *http.Request) {
	var req enableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.manager.SetEnabled(r.PathValue("id"), req.Enabled); err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": req.Enabled})
}

func (s *Server) handleBotInvoices(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.manager.Get(id); err != nil {
		writeManagerError(w, err)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	invoices, err := s.ledger.ListByBot(r.Context(), id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"invoices": invoices,
		"count":    len(invoices),
	})
}

// --- Public routes ---

func (s *Server) handleBotStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.manager.StatusOf(r.PathValue("id"))
	if err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleBotQR(w http.ResponseWriter, r *http.Request) {
	qr, err := s.manager.QROf(r.PathValue("id"))
	if err != nil {
		writeManagerError(w, err)
		return
	}
	if qr == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no pairing QR available",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"qr": qr})
}

// --- Helpers ---

// sanitizeRecord strips secrets before records leave the API.
func sanitizeRecord(rec bot.Record) bot.Record {
	rec.Settings.GroqAPIKey = ""
	rec.Settings.AnthropicAPIKey = ""
	rec.Settings.EmailPassword = ""
	return rec
}

func sanitizeRecords(records []bot.Record) []bot.Record {
	out := make([]bot.Record, 0, len(records))
	for _, rec := range records {
		out = append(out, sanitizeRecord(rec))
	}
	return out
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeManagerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, manager.ErrBotNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, manager.ErrBotRunning):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, manager.ErrQuotaExceeded):
		writeError(w, http.StatusForbidden, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
