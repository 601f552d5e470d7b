package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"genbridge/internal/bridge"
	"genbridge/internal/comfy"
	"genbridge/internal/common/fsutil"
	"genbridge/internal/config"
)

func main() {
	// Flags with environment variable defaults
	defaultAddr := ":7860"
	if v := os.Getenv("GENBRIDGE_ADDR"); v != "" {
		defaultAddr = v
	}
	addr := flag.String("addr", defaultAddr, "HTTP listen address, e.g. :7860")
	comfyURL := flag.String("comfy-url", "", "ComfyUI base URL (overrides config)")
	stylesDir := flag.String("styles-dir", "", "Directory of *.json style files (overrides config)")
	configPath := flag.String("config", os.Getenv("GENBRIDGE_CONFIG"), "Path to config file (json/yaml/toml)")
	corsEnabled := flag.Bool("cors-enabled", false, "Enable CORS for browser clients")
	autoConnect := flag.Bool("auto-connect", true, "Probe ComfyUI on startup")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	cfg := config.Config{}
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *configPath).Msg("failed to load config")
		}
		cfg = loaded
	}
	cfg.ApplyDefaults()
	addrSet := os.Getenv("GENBRIDGE_ADDR") != ""
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "addr" {
			addrSet = true
		}
	})
	if addrSet {
		cfg.Addr = *addr
	}
	if *comfyURL != "" {
		cfg.ComfyURL = *comfyURL
	}
	if *stylesDir != "" {
		cfg.StylesDir = *stylesDir
	}

	if cfg.StylesDir != "" && !fsutil.PathExists(cfg.StylesDir) {
		log.Warn().Str("dir", cfg.StylesDir).Msg("styles directory does not exist; no styles will be served")
	}
	styles, err := bridge.NewStyleStore(cfg.StylesDir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load styles")
	}

	mgr := comfy.NewManager(log)
	if *autoConnect {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := mgr.Connect(ctx, cfg.ComfyURL); err != nil {
			// The bridge still serves; clients connect explicitly later.
			log.Warn().Err(err).Str("url", cfg.ComfyURL).Msg("ComfyUI not reachable at startup")
		}
		cancel()
	}

	svc := bridge.NewCore(mgr, styles, cfg.ComfyURL, log)
	mux := bridge.NewMux(svc, bridge.MuxOptions{CORSEnabled: *corsEnabled, Logger: log})
	srv := &http.Server{Addr: cfg.Addr, Handler: mux}

	go func() {
		log.Info().Str("addr", cfg.Addr).Str("comfy_url", cfg.ComfyURL).Msg("bridged listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown error")
	}
	mgr.Close()
}
