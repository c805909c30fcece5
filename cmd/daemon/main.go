package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"drift-chat/go-backend/internal/adapters/rpc"
	"drift-chat/go-backend/internal/config"
	"drift-chat/go-backend/internal/platform/privacylog"
	"drift-chat/go-backend/internal/session"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	rpcAddr := flag.String("rpc-addr", "", "JSON-RPC listen address (overrides config)")
	configPath := flag.String("config", "", "Path to config.yaml (optional)")
	rpcToken := flag.String("rpc-token", "", "RPC token for Authorization/X-Drift-RPC-Token (optional)")
	flag.Parse()
	if *showVersion {
		fmt.Printf("drift-daemon version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return
	}

	slog.SetDefault(slog.New(privacylog.WrapHandler(slog.NewJSONHandler(os.Stderr, nil))))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *rpcToken != "" {
		_ = os.Setenv("DRIFT_RPC_TOKEN", *rpcToken)
	}

	cfg := config.LoadFromPath(*configPath)
	if *rpcAddr != "" {
		cfg.RPC.Addr = *rpcAddr
	}

	sessions := session.NewManager(session.Options{
		IdleTimeout:     cfg.Session.IdleTimeout.Std(),
		CertValidity:    cfg.Session.CertValidity.Std(),
		MaxCertLifetime: cfg.Session.MaxCertLifetime.Std(),
	})
	srv := rpc.NewServer(cfg, sessions)

	log.Println("drift-daemon starting")
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("drift-daemon failed: %v", err)
	}
	// Nothing survives the process: wipe key material on the way out.
	sessions.Reset()
	log.Println("drift-daemon stopped")
}
