// Command offerchat-server starts the HTTP/WebSocket and gRPC servers.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jackc/pgx/v5/pgxpool"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/offer-chat/internal/auth"
	"github.com/and161185/offer-chat/internal/config"
	"github.com/and161185/offer-chat/internal/events"
	"github.com/and161185/offer-chat/internal/limiter"
	"github.com/and161185/offer-chat/internal/migrate"
	"github.com/and161185/offer-chat/internal/realtime"
	"github.com/and161185/offer-chat/internal/repository"
	"github.com/and161185/offer-chat/internal/repository/memstore"
	"github.com/and161185/offer-chat/internal/repository/postgres"
	grpcserver "github.com/and161185/offer-chat/internal/server/grpc"
	httpserver "github.com/and161185/offer-chat/internal/server/http"
	"github.com/and161185/offer-chat/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// stores groups the repositories of one backend.
type stores struct {
	users    repository.UserRepository
	products repository.ProductRepository
	offers   repository.OfferRepository
	convs    repository.ConversationRepository
	messages repository.MessageRepository
	tx       repository.Transactor // nil for the memory store
	limiter  limiter.Limiter
	close    func()
}

// main loads configuration, prepares storage and serves until SIGINT/SIGTERM.
func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("http", cfg.HTTPAddr),
		zap.String("grpc", cfg.GRPCAddr),
		zap.String("store", cfg.Store),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	var lim limiter.Limiter
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("using in-memory store; data is lost on exit")
		ms := memstore.New()
		if cfg.SendLimit > 0 {
			lim = limiter.NewMemory(cfg.SendWindow, cfg.SendLimit)
		}
		return &stores{
			users:    ms.Users(),
			products: ms.Products(),
			offers:   ms.Offers(),
			convs:    ms.Conversations(),
			messages: ms.Messages(),
			limiter:  lim,
			close:    func() {},
		}, nil
	default:
		if err := migrate.Up(ctx, cfg.DSN, logger); err != nil {
			return nil, err
		}
		pool, err := pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		db := &postgres.DB{Pool: pool}
		if cfg.SendLimit > 0 {
			lim = limiter.NewPG(pool, cfg.SendWindow, cfg.SendLimit)
		}
		return &stores{
			users:    postgres.NewUserRepo(db),
			products: postgres.NewProductRepo(db),
			offers:   postgres.NewOfferRepo(db),
			convs:    postgres.NewConversationRepo(db),
			messages: postgres.NewMessageRepo(db),
			tx:       db,
			limiter:  lim,
			close:    pool.Close,
		}, nil
	}
}

func openEvents(cfg *config.Config, logger *zap.Logger) (events.Sink, func()) {
	if cfg.AMQPURL == "" {
		return events.Nop{}, func() {}
	}
	pub, err := events.DialRabbit(cfg.AMQPURL, cfg.AMQPExchange, logger)
	if err != nil {
		// Events are best effort; the server runs without them.
		logger.Warn("rabbitmq unavailable, domain events disabled", zap.Error(err))
		return events.Nop{}, func() {}
	}
	return pub, pub.Close
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	sink, closeEvents := openEvents(cfg, logger)
	defer closeEvents()

	broker := realtime.NewBroker(logger.Named("broker"))
	defer broker.Close()
	verifier := auth.NewVerifier([]byte(cfg.JWTKey))

	// Services
	registry := service.NewRegistry(st.convs, logger.Named("registry"))
	offerSvc := service.NewOfferService(service.OfferDeps{
		Users:         st.users,
		Products:      st.products,
		Offers:        st.offers,
		Conversations: st.convs,
		Messages:      st.messages,
		Registry:      registry,
		Tx:            st.tx,
		Fanout:        broker,
		Events:        sink,
		Logger:        logger.Named("offers"),
	})
	productSvc := service.NewProductService(st.users, st.products)
	msgSvc := service.NewMessageService(service.MessageDeps{
		Users:         st.users,
		Conversations: st.convs,
		Messages:      st.messages,
		Limiter:       st.limiter,
		Fanout:        broker,
		Events:        sink,
		Logger:        logger.Named("messages"),
	})

	// HTTP + WebSocket
	ws := realtime.NewHandler(realtime.HandlerDeps{
		Broker:         broker,
		Verifier:       verifier,
		Guard:          msgSvc,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger.Named("ws"),
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpserver.New(httpserver.Deps{Messages: msgSvc, Verifier: verifier, WS: ws, Logger: logger.Named("http")}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// gRPC server with interceptors
	opts := []grpc.ServerOption{grpcserver.Chain(logger.Named("grpc"), verifier)}
	if cfg.TLSEnabled() {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			return err
		}
		opts = append(opts, grpc.Creds(creds))
	}
	gs := grpc.NewServer(opts...)
	grpcserver.RegisterMarketServer(gs, grpcserver.New(offerSvc, productSvc))

	// Health & reflection (dev)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	if cfg.Dev {
		reflection.Register(gs)
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("grpc listening", zap.String("addr", cfg.GRPCAddr), zap.Bool("tls", cfg.TLSEnabled()))
		return gs.Serve(lis)
	})
	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.Bool("tls", cfg.TLSEnabled()))
		var err error
		if cfg.TLSEnabled() {
			err = httpSrv.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
		} else {
			err = httpSrv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		hs.Shutdown()
		// WebSocket connections are hijacked and not tracked by Shutdown.
		broker.Close()

		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(sctx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}

		done := make(chan struct{})
		go func() {
			gs.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-sctx.Done():
			gs.Stop()
		}
		return nil
	})
	return g.Wait()
}
