package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/strandlabs/hairstyle-gateway/internal/auth"
	"github.com/strandlabs/hairstyle-gateway/internal/blob/httpblob"
	"github.com/strandlabs/hairstyle-gateway/internal/config"
	"github.com/strandlabs/hairstyle-gateway/internal/core"
	"github.com/strandlabs/hairstyle-gateway/internal/credits"
	creditspg "github.com/strandlabs/hairstyle-gateway/internal/credits/postgres"
	creditssqlite "github.com/strandlabs/hairstyle-gateway/internal/credits/sqlite"
	"github.com/strandlabs/hairstyle-gateway/internal/history"
	historypg "github.com/strandlabs/hairstyle-gateway/internal/history/postgres"
	historysqlite "github.com/strandlabs/hairstyle-gateway/internal/history/sqlite"
	"github.com/strandlabs/hairstyle-gateway/internal/httpserver"
	"github.com/strandlabs/hairstyle-gateway/internal/logging"
	"github.com/strandlabs/hairstyle-gateway/internal/provider"
	"github.com/strandlabs/hairstyle-gateway/internal/provider/gemini"
	"github.com/strandlabs/hairstyle-gateway/internal/provider/wavespeed"
	"github.com/strandlabs/hairstyle-gateway/internal/styles"
	"github.com/strandlabs/hairstyle-gateway/internal/version"
)

func main() {
	configPath := flag.String("config", "config/gateway.ini", "path to the gateway config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.FullInfo())
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	if target := strings.TrimSpace(cfg.LogFile); target != "" {
		rot, err := logging.NewFileWriter(target, logging.DefaultMaxBytes)
		if err != nil {
			log.Fatalf("init rotating log: %v", err)
		}
		// Mirror to stdout as well for foreground runs
		log.SetOutput(io.MultiWriter(os.Stdout, rot))
		log.SetFlags(log.LstdFlags | log.Lmicroseconds)
		log.SetPrefix("[hairstyled] ")
		defer rot.Close()
	}
	log.Printf("hairstyle gateway %s starting", version.Info())

	creditStore, historyStore, err := openStores(cfg)
	if err != nil {
		log.Fatalf("open stores: %v", err)
	}
	defer creditStore.Close()
	defer historyStore.Close()

	imageProvider, err := buildProvider(cfg)
	if err != nil {
		log.Fatalf("init provider: %v", err)
	}
	log.Printf("image provider selected: %s", imageProvider.Name())

	catalog, err := styles.Load(cfg.StylesFile)
	if err != nil {
		log.Fatalf("load styles catalog: %v", err)
	}

	var verifier auth.Verifier
	if cfg.AuthBaseURL != "" {
		client, err := auth.New(auth.Config{BaseURL: cfg.AuthBaseURL})
		if err != nil {
			log.Fatalf("init auth client: %v", err)
		}
		verifier = client
	} else {
		log.Printf("auth service not configured: all requests treated as anonymous")
		verifier = anonymousVerifier{}
	}

	orchestrator := core.NewOrchestrator(creditStore, historyStore, imageProvider)
	orchestrator.SetLogger(log.New(log.Writer(), "[hairstyled/core] ", log.LstdFlags|log.Lmicroseconds))

	httpSrv := httpserver.New(orchestrator, creditStore, historyStore, verifier, catalog, cfg.WebhookSecret)
	httpSrv.SetLogger(log.New(log.Writer(), "[hairstyled/http] ", log.LstdFlags|log.Lmicroseconds))

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      httpSrv.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	rootCtx, stopReconcile := context.WithCancel(context.Background())
	go runReconcileLoop(rootCtx, orchestrator, cfg.ReconcileInterval)

	go func() {
		log.Printf("gateway server listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT)
	<-sigs

	stopReconcile()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}

func openStores(cfg config.Config) (credits.Store, history.Store, error) {
	if cfg.UsesPostgres() {
		cs, err := creditspg.New(cfg.DatabaseDSN, cfg.PGMaxOpenConns, cfg.PGMaxIdleConns, cfg.PGConnLifetimeMins, cfg.PGConnIdleMins)
		if err != nil {
			return nil, nil, fmt.Errorf("open credit store: %w", err)
		}
		hs, err := historypg.New(cfg.DatabaseDSN, cfg.PGMaxOpenConns, cfg.PGMaxIdleConns, cfg.PGConnLifetimeMins, cfg.PGConnIdleMins)
		if err != nil {
			cs.Close()
			return nil, nil, fmt.Errorf("open history store: %w", err)
		}
		log.Printf("stores opened database=postgres")
		return cs, hs, nil
	}

	cs, err := creditssqlite.New(cfg.DatabaseDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open credit store: %w", err)
	}
	hs, err := historysqlite.New(cfg.DatabaseDSN)
	if err != nil {
		cs.Close()
		return nil, nil, fmt.Errorf("open history store: %w", err)
	}
	log.Printf("stores opened database=sqlite path=%s", cfg.DatabaseDSN)
	return cs, hs, nil
}

// buildProvider prefers WaveSpeed and falls back to Gemini when only its
// credential is configured.
func buildProvider(cfg config.Config) (provider.ImageEditProvider, error) {
	var wave provider.ImageEditProvider
	if strings.TrimSpace(cfg.WaveSpeedAPIKey) != "" {
		blobs, err := httpblob.New(httpblob.Config{
			Token:   cfg.BlobToken,
			BaseURL: cfg.BlobBaseURL,
		})
		if err != nil {
			return nil, err
		}
		wave, err = wavespeed.New(wavespeed.Config{
			APIKey:  cfg.WaveSpeedAPIKey,
			BaseURL: cfg.WaveSpeedBaseURL,
			Blobs:   blobs,
		})
		if err != nil {
			return nil, err
		}
	}

	var gem provider.ImageEditProvider
	if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		p, err := gemini.New(gemini.Config{
			APIKey:  cfg.GeminiAPIKey,
			BaseURL: cfg.GeminiBaseURL,
			Model:   cfg.GeminiModel,
		})
		if err != nil {
			return nil, err
		}
		gem = p
	}

	return provider.FirstConfigured(wave, gem)
}

func runReconcileLoop(ctx context.Context, orchestrator *core.Orchestrator, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			settled, err := orchestrator.ReconcileStale(sweepCtx, core.StaleAfter)
			cancel()
			if err != nil {
				log.Printf("reconcile sweep failed: %v", err)
			} else if settled > 0 {
				log.Printf("reconcile sweep settled %d stuck records", settled)
			}
		}
	}
}

// anonymousVerifier is used when no auth service is configured; every caller
// is anonymous and the ledger endpoints respond 401.
type anonymousVerifier struct{}

func (anonymousVerifier) AuthUser(ctx context.Context, r *http.Request) (*auth.User, error) {
	return nil, nil
}
