package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/pablocruz84/loja-nextjs-pix/internal/config"
	"github.com/pablocruz84/loja-nextjs-pix/internal/customer"
	"github.com/pablocruz84/loja-nextjs-pix/internal/httpx"
	"github.com/pablocruz84/loja-nextjs-pix/internal/notify"
	"github.com/pablocruz84/loja-nextjs-pix/internal/order"
	"github.com/pablocruz84/loja-nextjs-pix/internal/outbox"
	"github.com/pablocruz84/loja-nextjs-pix/internal/payment"
	"github.com/pablocruz84/loja-nextjs-pix/internal/poll"
	"github.com/pablocruz84/loja-nextjs-pix/internal/postgres"
	"github.com/pablocruz84/loja-nextjs-pix/internal/product"
	"github.com/pablocruz84/loja-nextjs-pix/internal/recon"
	"github.com/pablocruz84/loja-nextjs-pix/internal/redisx"
	"github.com/pablocruz84/loja-nextjs-pix/internal/settings"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := postgres.Migrate(cfg.PostgresDSN, cfg.MigrationsDir); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}
	pool, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("postgres connect", zap.Error(err))
	}
	defer pool.Close()

	rdb := redisx.New(cfg.RedisAddr)
	if err := redisx.Ping(ctx, rdb); err != nil {
		// the status cache is an optimization, not a dependency
		logger.Warn("redis unavailable, status cache disabled", zap.Error(err))
		rdb = nil
	}

	gateways := map[string]payment.Gateway{}
	if cfg.MercadoPagoToken != "" {
		gateways[config.GatewayMercadoPago] = payment.NewMercadoPago(
			cfg.MercadoPagoToken, cfg.WebhookURL("/api/webhook"))
	}
	if cfg.PagBankToken != "" {
		gateways[config.GatewayPagBank] = payment.NewPagBank(
			cfg.PagBankToken, cfg.WebhookURL("/api/webhook/pagbank"))
	}

	orders := order.NewPGRepo(pool)
	products := product.NewPGRepo(pool)
	customers := customer.NewPGRepo(pool)
	sett := settings.NewPGRepo(pool, cfg.Gateway)
	events := outbox.NewPGRepo(pool)

	engine := recon.New(orders, products, customers, events, gateways, logger)

	var mailer notify.Mailer
	if cfg.MailEnabled() {
		mailer = notify.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser,
			cfg.SMTPPass, cfg.MailFrom, cfg.MailTo)
	} else {
		logger.Warn("smtp not configured, order emails disabled")
	}
	dispatcher := notify.NewDispatcher(orders, mailer, cfg.StoreName, logger)

	processor := outbox.NewProcessor(pool, events, dispatcher, logger)
	go processor.Start(ctx)

	sweeper := poll.NewSweeper(orders, engine, logger)
	go sweeper.Run(ctx)

	srv := httpx.NewServer(cfg, logger, orders, products, customers, sett,
		engine, gateways, rdb).HTTPServer()

	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}
