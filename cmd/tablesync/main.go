package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/tablesync/internal/actionlog"
	"github.com/DoyleJ11/tablesync/internal/config"
	"github.com/DoyleJ11/tablesync/internal/conn"
	"github.com/DoyleJ11/tablesync/internal/gameapi"
	"github.com/DoyleJ11/tablesync/internal/httpapi"
	"github.com/DoyleJ11/tablesync/internal/hub"
	"github.com/DoyleJ11/tablesync/internal/natsbus"
	"github.com/DoyleJ11/tablesync/internal/session"
	"github.com/DoyleJ11/tablesync/internal/stomp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("invalid configuration", zap.Error(err))
	}

	log, err := newLogger(cfg.LogDev)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("exiting", zap.Error(err))
	}
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var alog actionlog.Log = actionlog.NewMemory(1000)
	if cfg.DatabaseURL != "" {
		pg, err := actionlog.OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer func() { _ = pg.Close() }()
		alog = actionlog.Tee{alog, pg}
	}

	api := gameapi.New(cfg.APIURL, cfg.Token, log.Named("gameapi"))

	factory := func(ctx context.Context, gameID string) *session.Session {
		slog := log.With(zap.String("game_id", gameID))
		return session.New(ctx, session.Config{
			PlayerID:            cfg.PlayerID,
			PlayerName:          cfg.PlayerName,
			Policy:              cfg.Backoff,
			ForceReconnectDelay: cfg.ForceReconnectDelay,
			BotPacing:           cfg.BotPacing,
			RecoveryTimeout:     cfg.RecoveryTimeout,
			ActionChannel:       cfg.ActionChannel,
		}, session.Deps{
			Transport: newTransport(cfg, slog),
			Creds:     conn.StaticToken(cfg.Token),
			API:       api,
			Log:       alog,
		}, slog)
	}

	h := hub.NewHub(ctx, factory, log.Named("hub"))
	for _, gameID := range cfg.Games {
		reply := make(chan *session.Session, 1)
		h.Inbox() <- hub.CreateSession{GameID: gameID, Reply: reply}
		<-reply
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.SetupRoutes(h, alog, log.Named("http")),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.HTTPAddr), zap.Strings("games", cfg.Games))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)

		h.Inbox() <- hub.ShutdownHub{}
		<-h.Done()
		log.Info("shut down")
		return err
	})
	return g.Wait()
}

func newTransport(cfg config.Config, log *zap.Logger) conn.Transport {
	if cfg.Transport == config.TransportNATS {
		return natsbus.New(cfg.NATSURL, cfg.PlayerID, log.Named("nats"))
	}
	return stomp.New(stomp.Options{URL: cfg.WSURL, HeartBeat: cfg.HeartBeat}, log.Named("stomp"))
}
