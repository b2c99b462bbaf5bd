package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskhive.org/internal/auth"
	"taskhive.org/internal/config"
	"taskhive.org/internal/obs"
	"taskhive.org/internal/store/pg"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	if !cfg.Production() {
		log.Printf("running in %s mode with development signing keys", cfg.Environment)
	}

	var store *pg.Store
	if cfg.PGDSN != "" {
		store, err = pg.Open(cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
	}

	issuer, err := auth.NewIssuer(auth.IssuerConfig{
		AccessSigningKey:  cfg.AccessSigningKey,
		RefreshSigningKey: cfg.RefreshSigningKey,
		AccessTTL:         cfg.AccessTTL,
		RefreshTTL:        cfg.RefreshTTL,
	})
	if err != nil {
		log.Fatalf("issuer: %v", err)
	}

	var session *auth.Session
	if store != nil {
		session, err = auth.NewSession(store, issuer,
			auth.WithThrottle(auth.NewThrottle(cfg.LoginAttemptsPerMinute, cfg.LoginAttemptsPerMinute)),
		)
		if err != nil {
			log.Fatalf("session: %v", err)
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", obs.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/readyz", readyProbe(storeDB(store)))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           obs.Instrument(mux),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("starting taskhive-auth %s on %s", version, srv.Addr)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	if session != nil && cfg.SweepInterval > 0 {
		go sweepExpired(sweepCtx, session, cfg.SweepInterval)
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("shutting down...")
	stopSweep()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if store != nil {
		_ = store.Close()
	}
	log.Println("stopped")
}

// sweepExpired garbage-collects expired ledger records off the request path.
func sweepExpired(ctx context.Context, session *auth.Session, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := session.SweepExpired(ctx)
			if err != nil {
				log.Printf("token sweep: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("token sweep: removed %d expired credentials", n)
			}
		}
	}
}

func storeDB(store *pg.Store) *sql.DB {
	if store == nil {
		return nil
	}
	return store.DB()
}

func readyProbe(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db == nil {
			w.WriteHeader(http.StatusOK)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
