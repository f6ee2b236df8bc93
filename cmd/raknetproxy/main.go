// Command raknetproxy runs the RakNet/Bedrock MITM proxy: it loads a
// JSON config, wires the session event bus to the metrics registry,
// starts the UDP Handler and the read-only management API, and shuts
// both down gracefully on SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wlkek/raknet-mitm-proxy/internal/api"
	"github.com/wlkek/raknet-mitm-proxy/internal/config"
	"github.com/wlkek/raknet-mitm-proxy/internal/events"
	"github.com/wlkek/raknet-mitm-proxy/internal/logger"
	"github.com/wlkek/raknet-mitm-proxy/internal/metrics"
	"github.com/wlkek/raknet-mitm-proxy/internal/proxyserver"
)

var (
	confPath  string
	logPreset string
	logLevel  zapcore.Level
)

func init() {
	flag.StringVar(&confPath, "confPath", "", "Path to JSON configuration file")
	flag.StringVar(&logPreset, "logPreset", "console", "Logger preset: console, console-nocolor, production, development")
	flag.TextVar(&logLevel, "logLevel", zapcore.InfoLevel, "Log level: debug, info, warn, error")
}

func main() {
	flag.Parse()

	if confPath == "" {
		fmt.Println("Missing -confPath <path>.")
		flag.Usage()
		os.Exit(1)
	}

	log, atomicLevel, err := logger.New(logPreset, logLevel)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	mgr, err := config.NewManager(confPath, log)
	if err != nil {
		log.Fatal("failed to load config", zap.String("confPath", confPath), zap.Error(err))
	}
	cfg := mgr.Current()

	bus := events.NewBus()
	reg := prometheus.NewRegistry()
	metricsReg := metrics.NewRegistry(reg)
	metricsReg.ObserveDataIn(bus, "all")
	metricsReg.ObserveDataOut(bus, "all")
	metricsReg.ObserveState(bus)

	proxy := proxyserver.New(cfg, bus, log)
	if err := proxy.Start(); err != nil {
		log.Fatal("failed to start proxy listener", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		log.Info("received exit signal", zap.Stringer("signal", sig))
		cancel()
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := proxy.Run(ctx); err != nil {
			log.Error("proxy run loop exited with error", zap.Error(err))
		}
	}()

	var apiSrv *api.Server
	if cfg.APIAddr != "" {
		apiSrv = api.New(cfg.APIAddr, proxy, reg)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := apiSrv.Run(ctx); err != nil {
				log.Error("management API exited with error", zap.Error(err))
			}
		}()
	}

	// Only api_addr and log_level take effect without a restart
	// (SPEC_FULL.md §4.9); listen_addr/target_addr/initial_mtu changes
	// in a reloaded config are loaded into mgr.Current() but never read
	// again by the already-running proxy/upstream sockets.
	mgr.OnChange(func(next *config.Config) {
		if next.LogLevel != "" {
			var lvl zapcore.Level
			if err := lvl.UnmarshalText([]byte(next.LogLevel)); err != nil {
				log.Warn("invalid log_level in reloaded config, ignoring", zap.String("log_level", next.LogLevel), zap.Error(err))
			} else if lvl != atomicLevel.Level() {
				atomicLevel.SetLevel(lvl)
				log.Info("log level updated from reloaded config", zap.Stringer("level", lvl))
			}
		}
		if apiSrv != nil && next.APIAddr != "" {
			if err := apiSrv.Rebind(next.APIAddr); err != nil {
				log.Warn("failed to rebind management API to reloaded address", zap.String("api_addr", next.APIAddr), zap.Error(err))
			} else {
				log.Info("management API rebound from reloaded config", zap.String("api_addr", next.APIAddr))
			}
		}
	})

	if err := mgr.Watch(ctx); err != nil {
		log.Warn("config hot-reload disabled", zap.Error(err))
	}

	<-ctx.Done()
	proxy.Stop()
	wg.Wait()
}
