package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	identityapi "github.com/tekiplanet/vortexid/internal/services/identity/api/http"
	"github.com/tekiplanet/vortexid/internal/services/identity/audit"
	"github.com/tekiplanet/vortexid/internal/services/identity/challenge"
	"github.com/tekiplanet/vortexid/internal/services/identity/holder"
	identitysqlite "github.com/tekiplanet/vortexid/internal/services/identity/storage/sqlite"
	"github.com/tekiplanet/vortexid/internal/services/identity/token"
	"github.com/tekiplanet/vortexid/internal/services/identity/trust"
	"github.com/tekiplanet/vortexid/internal/services/identity/verification"
)

// Server hosts the identity service HTTP API.
type Server struct {
	listener   net.Listener
	httpServer *http.Server
	store      *identitysqlite.Store
}

// New creates a configured identity server listening on the provided port.
func New(port int) (*Server, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("listen on port %d: %w", port, err)
	}
	store, err := openIdentityStore()
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	auditor := audit.NewEmitter(store)
	engine := trust.NewEngine(store, store, trust.DefaultConfig())
	holderSvc := holder.NewService(store, store, store, auditor)
	workflow := verification.NewWorkflow(store, engine, auditor, nil)
	tokens := token.NewService(store, store, store, auditor, token.DefaultConfig())
	challenges := challenge.NewService(store, store, store, auditor)

	router := mux.NewRouter()
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("GET")
	api := identityapi.NewAPI(holderSvc, workflow, tokens, challenges, auditor)
	api.Register(router)

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", identityapi.RoleHeader}),
	)

	return &Server{
		listener:   listener,
		httpServer: &http.Server{Handler: cors(router)},
		store:      store,
	}, nil
}

// Addr returns the listener address for the identity server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves an identity server until the context ends.
func Run(ctx context.Context, port int) error {
	srv, err := New(port)
	if err != nil {
		return err
	}
	return srv.Serve(ctx)
}

// Serve starts the identity server and blocks until it stops or the context
// ends.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.closeStore()

	log.Printf("identity server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
		err := <-serveErr
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	}
}

func openIdentityStore() (*identitysqlite.Store, error) {
	path := strings.TrimSpace(os.Getenv("VORTEX_ID_IDENTITY_DB_PATH"))
	if path == "" {
		path = filepath.Join("data", "identity.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	store, err := identitysqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open identity sqlite store: %w", err)
	}
	return store, nil
}

func (s *Server) closeStore() {
	if s == nil {
		return
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close identity store: %v", err)
		}
	}
}
