package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GoCodeAlone/pageview"
	"github.com/GoCodeAlone/pageview/config"
)

var (
	configFile  = flag.String("config", "", "Path to pageview configuration YAML file")
	addr        = flag.String("addr", "", "HTTP listen address (overrides server.addr)")
	backendURL  = flag.String("backend", "", "Backend API base URL (overrides backend.baseURL)")
	pagesDir    = flag.String("pages", "", "Serve page models from this directory instead of the backend")
	watchConfig = flag.Bool("watch", false, "Reload the configuration file when it changes")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	level, err := cfg.Log.SlogLevel()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	logger := pageview.NewLogger(os.Stdout, cfg.Log.Format, level)

	b := pageview.NewEngineBuilder().WithConfig(cfg).WithLogger(logger)
	if *configFile != "" {
		b = b.WithConfigPath(*configFile)
		if *watchConfig {
			b = b.WatchConfig()
		}
	}
	engine, err := b.Build()
	if err != nil {
		log.Fatalf("Failed to build engine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := engine.Start(ctx); err != nil {
		log.Fatalf("Failed to start engine: %v", err)
	}
	fmt.Printf("pageview server started on %s\n", cfg.Server.Addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("Shutting down...")
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
	defer stop()
	if err := engine.Stop(shutdownCtx); err != nil {
		log.Printf("Engine shutdown error: %v", err)
	}
	fmt.Println("Shutdown complete")
}

// loadConfig reads the configuration file, if any, and applies the flag
// overrides.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.LoadFromFile(*configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *backendURL != "" {
		cfg.Backend.BaseURL = *backendURL
	}
	if *pagesDir != "" {
		cfg.Pages.Source = config.SourceFile
		cfg.Pages.Dir = *pagesDir
		cfg.Pages.URLPrefix = ""
		cfg.Pages.Watch = true
	}
	return cfg, cfg.Validate()
}
