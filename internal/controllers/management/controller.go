// Package management implements the status and management HTTP API.
package management

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/boxboy523/inzi/internal/aggregator"
	"github.com/boxboy523/inzi/internal/controller"
	"github.com/boxboy523/inzi/internal/gauge"
	"github.com/boxboy523/inzi/internal/history"
	"github.com/boxboy523/inzi/internal/log"
	"github.com/boxboy523/inzi/pkg/config"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Deps collects the running components the API reports on and mutates.
type Deps struct {
	ConfigProvider config.ConfigProvider
	Link           *gauge.Link
	Sessions       map[uint16]*controller.Session
	Coordinator    *controller.Coordinator
	Aggregator     *aggregator.Aggregator
	Querier        history.Querier
}

// Controller represents the management API controller
type Controller struct {
	ctx              context.Context
	wg               *sync.WaitGroup
	deps             Deps
	managementConfig config.ManagementData
	Server           http.Server
	logger           *zap.SugaredLogger
	handlers         *Handlers
}

// NewController creates a new management API controller
func NewController(ctx context.Context, wg *sync.WaitGroup, mc config.ManagementData, deps Deps, logger *zap.SugaredLogger) (*Controller, error) {
	ctrl := &Controller{
		ctx:              ctx,
		wg:               wg,
		deps:             deps,
		managementConfig: mc,
		logger:           logger,
	}

	if ctrl.managementConfig.Port == 0 {
		logger.Info("management API port not specified; defaulting to 8081")
		ctrl.managementConfig.Port = 8081
	}

	if ctrl.managementConfig.ListenAddr == "" {
		logger.Info("management API listen-addr not provided; defaulting to 127.0.0.1 (localhost only)")
		ctrl.managementConfig.ListenAddr = "127.0.0.1"
	}

	if mc.AuthToken != "" {
		logger.Info("═══════════════════════════════════════════════════════════════")
		logger.Info("                MANAGEMENT API ACCESS TOKEN                    ")
		logger.Info("═══════════════════════════════════════════════════════════════")
		logger.Infof("   Token: %s", mc.AuthToken)
		logger.Info("   Use this token for API authentication")
		logger.Info("═══════════════════════════════════════════════════════════════")
	} else {
		newToken := generateAuthToken()
		ctrl.managementConfig.AuthToken = newToken

		logger.Info("═══════════════════════════════════════════════════════════════")
		logger.Info("        NEW MANAGEMENT API ACCESS TOKEN GENERATED             ")
		logger.Info("═══════════════════════════════════════════════════════════════")
		logger.Infof("   Token: %s", newToken)
		logger.Info("   This token changes on restart unless set in the config")
		logger.Info("   Use this token for API authentication")
		logger.Info("═══════════════════════════════════════════════════════════════")
	}

	ctrl.handlers = NewHandlers(ctrl)

	router := ctrl.setupRouter()
	ctrl.Server.Addr = fmt.Sprintf("%v:%v", ctrl.managementConfig.ListenAddr, ctrl.managementConfig.Port)
	ctrl.Server.Handler = router

	return ctrl, nil
}

// StartController starts the management API server
func (c *Controller) StartController() error {
	log.Info("Starting management API controller...")
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		c.logger.Infof("Management API server starting on %s", c.Server.Addr)

		if err := c.Server.ListenAndServe(); err != http.ErrServerClosed {
			log.Errorf("Management API server error: %v", err)
		}
	}()

	go func() {
		<-c.ctx.Done()
		log.Info("Shutting down the management API server...")
		c.Server.Shutdown(context.Background())
	}()

	return nil
}

// setupRouter configures the HTTP router with all endpoints
func (c *Controller) setupRouter() *mux.Router {
	router := mux.NewRouter()

	router.Use(c.loggingMiddleware)
	router.Use(c.corsMiddleware)

	// Status endpoints (no auth required)
	router.HandleFunc("/status", c.handlers.GetStatus).Methods("GET")
	router.HandleFunc("/status/machines/{id}", c.handlers.GetMachineStatus).Methods("GET")

	// API routes (with authentication)
	api := router.PathPrefix("/api").Subrouter()
	api.Use(c.authMiddleware)

	api.HandleFunc("/config", c.handlers.GetConfig).Methods("GET")

	// History endpoints
	api.HandleFunc("/history/{machine}/{slot}", c.handlers.GetHistory).Methods("GET")
	api.HandleFunc("/history/{machine}/{slot}/latest", c.handlers.GetLatestRecord).Methods("GET")

	// Tool life endpoints
	api.HandleFunc("/machines/{id}/tools/{slot}/life", c.handlers.GetToolLife).Methods("GET")

	// Operator adjustment endpoints
	api.HandleFunc("/machines/{id}/batch-size", c.handlers.SetBatchSize).Methods("PUT")
	api.HandleFunc("/machines/{id}/tools/{slot}/active", c.handlers.SetToolActive).Methods("PUT")
	api.HandleFunc("/machines/{id}/tools/{slot}/manual-offset", c.handlers.SetManualOffset).Methods("PUT")

	return router
}

// loggingMiddleware logs all requests
func (c *Controller) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		c.logger.Infof("%s %s %s %v", r.Method, r.RequestURI, r.RemoteAddr, time.Since(start))
	})
}

// corsMiddleware adds CORS headers
func (c *Controller) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authMiddleware validates the bearer token
func (c *Controller) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "Bearer "+c.managementConfig.AuthToken {
			next.ServeHTTP(w, r)
			return
		}

		c.logger.Debugf("Auth failed for %s - no valid bearer token", r.URL.Path)
		http.Error(w, "Authentication required", http.StatusUnauthorized)
	})
}
