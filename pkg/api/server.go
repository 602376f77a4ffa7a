// VoxBill admin API server.
// Serves REST endpoints for bot lifecycle + WebSocket for live events.
package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/voxbill/voxbill/pkg/bus"
	"github.com/voxbill/voxbill/pkg/config"
	"github.com/voxbill/voxbill/pkg/invoice"
	"github.com/voxbill/voxbill/pkg/logger"
	"github.com/voxbill/voxbill/pkg/manager"
)

// Server is the HTTP API server for bot administration.
type Server struct {
	config      *config.Config
	manager     *manager.Manager
	ledger      *invoice.Ledger
	messageBus  *bus.MessageBus
	wsHub       *WSHub
	eventBridge *EventBridge
	startTime   time.Time
	server      *http.Server
}

// NewServer creates a new API server instance.
func NewServer(cfg *config.Config, mgr *manager.Manager, ledger *invoice.Ledger, msgBus *bus.MessageBus) *Server {
	// Secure by default: auto-generate an API key if none is configured.
	// Random key per session, printed once at startup. Set gateway.api_key
	// or VOXBILL_API_KEY for a persistent key.
	if cfg.Gateway.APIKey == "" {
		raw := make([]byte, 24)
		if _, err := rand.Read(raw); err == nil {
			cfg.Gateway.APIKey = hex.EncodeToString(raw)
			fmt.Println()
			fmt.Println("╔══════════════════════════════════════════════════════╗")
			fmt.Println("║           VOXBILL API KEY (session token)            ║")
			fmt.Printf("║  %-52s  ║\n", cfg.Gateway.APIKey)
			fmt.Println("║  Set gateway.api_key in the config file to make      ║")
			fmt.Println("║  this permanent. Rotate it any time.                 ║")
			fmt.Println("╚══════════════════════════════════════════════════════╝")
			fmt.Println()
		}
	}

	s := &Server{
		config:     cfg,
		manager:    mgr,
		ledger:     ledger,
		messageBus: msgBus,
		startTime:  time.Now(),
	}
	s.wsHub = NewWSHub(s)
	s.eventBridge = NewEventBridge(msgBus, s.wsHub)
	return s
}

// Start begins listening on the configured host:port.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	// Public routes
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/bots/{id}/status", s.handleBotStatus)
	mux.HandleFunc("GET /api/bots/{id}/qr", s.handleBotQR)

	// Admin routes
	mux.HandleFunc("GET /api/admin/bots", s.handleListBots)
	mux.HandleFunc("POST /api/admin/bots", s.handleCreateBot)
	mux.HandleFunc("GET /api/admin/bots/{id}", s.handleGetBot)
	mux.HandleFunc("PUT /api/admin/bots/{id}", s.handleUpdateBot)
	mux.HandleFunc("DELETE /api/admin/bots/{id}", s.handleDeleteBot)
	mux.HandleFunc("POST /api/admin/bots/{id}/start", s.handleStartBot)
	mux.HandleFunc("POST /api/admin/bots/{id}/stop", s.handleStopBot)
	mux.HandleFunc("POST /api/admin/bots/{id}/logout", s.handleLogoutBot)
	mux.HandleFunc("POST /api/admin/bots/{id}/enable", s.handleEnableBot)
	mux.HandleFunc("GET /api/admin/bots/{id}/invoices", s.handleBotInvoices)

	// WebSocket for live events
	mux.HandleFunc("/api/ws", s.wsHub.HandleWebSocket)

	addr := fmt.Sprintf("%s:%d", s.config.Gateway.Host, s.config.Gateway.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      corsMiddleware(authMiddleware(s.config.Gateway.APIKey, mux)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	logger.InfoCF("api", "Admin API server starting", map[string]interface{}{
		"addr": addr,
	})

	go s.wsHub.Run(ctx)
	go s.eventBridge.Run(ctx)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("api", "Server error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// --- Middleware ---

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" || isAllowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "http://localhost")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// isAllowedOrigin checks if the origin is a trusted localhost address.
func isAllowedOrigin(origin string) bool {
	for _, prefix := range []string{"http://localhost", "http://127.0.0.1", "https://localhost", "https://127.0.0.1"} {
		if strings.HasPrefix(origin, prefix) {
			return true
		}
	}
	return false
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"uptime":    int(time.Since(s.startTime).Seconds()),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
