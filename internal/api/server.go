package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-tpuart/internal/gateway"
	"github.com/nerrad567/gray-logic-tpuart/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-tpuart/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-tpuart/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-tpuart/internal/knx"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Gateway is the bridge as seen by the API. *gateway.Bridge implements it.
type Gateway interface {
	Send(ctx context.Context, req gateway.Request) (gateway.Result, error)
	State(ga knx.GroupAddress) (gateway.StateMessage, bool)
	States() []gateway.StateMessage
	Datapoints() gateway.Datapoints
	ListenGroupAddresses() []knx.GroupAddress
	AddListenGroupAddress(ga knx.GroupAddress) error
	SetListenToBroadcasts(listen bool)
	ListeningToBroadcasts() bool
	Stats() *gateway.EngineStatistics
	Health() gateway.HealthMessage
	GetMetrics() gateway.BridgeMetrics
}

// AddressStore lists what the recorder has seen. *gateway.Recorder
// implements it.
type AddressStore interface {
	GroupAddresses(ctx context.Context, limit int) ([]gateway.GroupAddressRecord, error)
	Devices(ctx context.Context, limit int) ([]gateway.DeviceRecord, error)
	SentTelegrams(ctx context.Context, limit int) ([]gateway.SentRecord, error)
}

// HistorySource answers datapoint history queries. *influxdb.Client
// implements it.
type HistorySource interface {
	DatapointHistory(ctx context.Context, ga knx.GroupAddress, since time.Time) ([]influxdb.HistoryPoint, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Logger  *logging.Logger
	Gateway Gateway

	// Addresses is optional (database disabled).
	Addresses AddressStore

	// History is optional (InfluxDB disabled).
	History HistorySource

	// Hub is optional. If set the server uses it instead of creating one,
	// so the bridge can be attached to it before Start.
	Hub *Hub

	Version string
}

// Server is the gateway's HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	logger      *logging.Logger
	gateway     Gateway
	addresses   AddressStore
	history     HistorySource
	version     string
	startTime   time.Time
	server      *http.Server
	hub         *Hub
	externalHub bool
	cancel      context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}

	s := &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		gateway:   deps.Gateway,
		addresses: deps.Addresses,
		history:   deps.History,
		version:   deps.Version,
		startTime: time.Now(),
	}
	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	} else {
		s.hub = NewHub(deps.WS, deps.Logger)
	}

	return s, nil
}

// Hub returns the server's WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
//
// Returns:
//   - error: If the server was already started
func (s *Server) Start(ctx context.Context) error {
	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.Timeouts.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.Timeouts.ReadTimeout(),
		WriteTimeout:      s.cfg.Timeouts.WriteTimeout(),
		IdleTimeout:       s.cfg.Timeouts.IdleTimeout(),
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
