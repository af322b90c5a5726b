package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/MatusOllah/slogcolor"
	"github.com/nodeweave/nodeweave/pkg/config"
	"github.com/nodeweave/nodeweave/pkg/federation"
	"github.com/nodeweave/nodeweave/pkg/routes"
	"github.com/nodeweave/nodeweave/pkg/store"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	slog.SetDefault(slog.New(slogcolor.NewHandler(os.Stderr, slogcolor.DefaultOptions)))

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}
	if cfg.InsecureFederation {
		slog.Warn("FEDERATION_INSECURE_MODE is enabled; outbound calls use plain http without certificate verification")
	}

	db, err := store.Connect(cfg.Database.User, cfg.Database.Password, cfg.Database.Host, cfg.Database.DB)
	if err != nil {
		slog.Error("error connecting to database", "error", err)
		os.Exit(1)
	}
	if err := store.RunMigrations(db); err != nil {
		slog.Error("error running migrations", "error", err)
		os.Exit(1)
	}

	stores := store.NewStores(db)
	client := federation.NewClient(cfg.NodeHostname, cfg.InsecureFederation, cfg.Federation.RequestTimeout)

	wr := &routes.WebRouter{
		Pairing:       federation.NewPairing(cfg.NodeHostname, cfg.Federation.PairingTokenTTL, stores.Nodes, stores.PairingTokens, client),
		Resolver:      federation.NewResolver(cfg.NodeHostname, stores.Entities),
		ViewerBroker:  federation.NewViewerBroker(cfg.Federation.ViewerTokenTTL),
		Subscriptions: federation.NewSubscriptions(cfg.NodeHostname, stores.Nodes, client),
		Propagator:    federation.NewPropagator(cfg.NodeHostname, stores),
		Directory:     federation.NewDirectory(stores.Nodes, client),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sender := federation.NewSender(stores.Outbox, stores.Nodes, client,
		cfg.Federation.MaxDeliveryAttempts, cfg.Federation.RetryBaseDelay)
	go sender.Run(ctx)

	slog.Info("starting nodeweave", "hostname", cfg.NodeHostname, "listen", cfg.ListenAddr)
	if err := wr.Initialize(cfg, stores); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}
