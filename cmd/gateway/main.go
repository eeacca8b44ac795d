// cmd/gateway/main.go
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/tamzrod/scada-gateway/internal/gateway"
	"github.com/tamzrod/scada-gateway/internal/gatewaylog"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the gateway config document")
	addr := flag.String("addr", ":8080", "TCP address to listen on")
	level := flag.String("log-level", "info", "log level: debug, info, warning, error")
	flag.Parse()

	std := log.New(os.Stderr, "", log.LstdFlags)
	glog := gatewaylog.New("gateway", parseLevel(*level), std)

	srv := gateway.New(gateway.Options{
		ConfigPath: *configPath,
		ListenAddr: *addr,
		Log:        glog,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		glog.Errorf("fatal: %v", err)
		os.Exit(1)
	}
	os.Exit(0)
}

func parseLevel(s string) gatewaylog.Level {
	switch s {
	case "debug":
		return gatewaylog.Debug
	case "warning":
		return gatewaylog.Warning
	case "error":
		return gatewaylog.Error
	default:
		return gatewaylog.Info
	}
}
