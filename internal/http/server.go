package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"studyvault/internal/config"
	"studyvault/internal/logger"
	"studyvault/internal/services"
	"studyvault/internal/storage"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	log    *logger.Logger
	ledger *services.Ledger
}

// NewServer loads and reconciles the storage metadata, then wires every
// service behind the gin engine.
func NewServer(cfg config.Config, log *logger.Logger) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)

	store, err := storage.NewStore(storage.Options{
		StorageDir:                cfg.StorageDir,
		MetadataFile:              cfg.MetadataFile,
		BackupFile:                cfg.BackupFile,
		MaxUploadBytes:            cfg.MaxUploadBytes,
		LegacyCategoryPassthrough: cfg.LegacyCategoryPassthrough,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	if _, err := store.Reconcile(); err != nil {
		log.Error("startup reconcile could not persist", "error", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	ledger, err := services.OpenLedger(cfg.TokenLedgerFile)
	if err != nil {
		return nil, err
	}
	mailer, err := services.NewMailer(cfg, log)
	if err != nil {
		ledger.Close()
		return nil, fmt.Errorf("init mailer: %w", err)
	}

	idp := services.NewIdentityClient(cfg)
	tokens := services.NewTokenIssuer(cfg.TokenSecret, ledger)
	authSvc := services.NewAuthService(cfg, idp, mailer, tokens, log)
	pdfSvc := services.NewPDFService()
	shareSvc := services.NewShareService(cfg)

	api := NewAPI(cfg, log, store, authSvc, idp, pdfSvc, shareSvc)
	engine := newEngine(cfg, log, api)

	return &Server{engine: engine, cfg: cfg, log: log, ledger: ledger}, nil
}

func newEngine(cfg config.Config, log *logger.Logger, api *API) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestLogger(log))
	engine.Use(MaxBodySize(cfg.MaxUploadBytes + multipartOverhead))
	engine.Use(CORS())

	registerRoutes(engine, api)
	return engine
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", s.cfg.Port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) Close() error {
	return s.ledger.Close()
}
