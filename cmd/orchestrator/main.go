package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanwahyu/scanfleet/internal/application"
	appquota "github.com/bryanwahyu/scanfleet/internal/application/quota"
	appregistry "github.com/bryanwahyu/scanfleet/internal/application/registry"
	appscans "github.com/bryanwahyu/scanfleet/internal/application/scans"
	appverdicts "github.com/bryanwahyu/scanfleet/internal/application/verdicts"
	"github.com/bryanwahyu/scanfleet/internal/config"
	"github.com/bryanwahyu/scanfleet/internal/domain/probes"
	domain "github.com/bryanwahyu/scanfleet/internal/domain/scans"
	"github.com/bryanwahyu/scanfleet/internal/domain/users"
	"github.com/bryanwahyu/scanfleet/internal/domain/verdicts"
	aiopenai "github.com/bryanwahyu/scanfleet/internal/infra/ai/openai"
	"github.com/bryanwahyu/scanfleet/internal/infra/bus/inmem"
	"github.com/bryanwahyu/scanfleet/internal/infra/busserver"
	mysqlp "github.com/bryanwahyu/scanfleet/internal/infra/db/mysql"
	postgresp "github.com/bryanwahyu/scanfleet/internal/infra/db/postgres"
	"github.com/bryanwahyu/scanfleet/internal/infra/httpserver"
	minioStore "github.com/bryanwahyu/scanfleet/internal/infra/storage"
	"github.com/bryanwahyu/scanfleet/internal/middleware"
)

// store flattens the driver-specific repository bundles to the ports the
// application layer consumes.
type store struct {
	scans    domain.ScanRepository
	files    domain.FileRepository
	jobs     domain.JobRepository
	probes   probes.Repository
	users    users.Repository
	verdicts verdicts.Repository
	locker   appregistry.Locker
}

func openStore(ctx context.Context, cfg *config.Config) (*sql.DB, *store, error) {
	switch cfg.Database.Driver {
	case "mysql":
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, nil, err
		}
		s := mysqlp.NewStore(db)
		return db, &store{
			scans: s.Scans, files: s.Files, jobs: s.Jobs,
			probes: s.Probes, users: s.Users, verdicts: s.Verdicts,
			locker: s.Locker,
		}, nil
	case "postgres":
		db, err := postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, nil, err
		}
		s := postgresp.NewStore(db)
		return db, &store{
			scans: s.Scans, files: s.Files, jobs: s.Jobs,
			probes: s.Probes, users: s.Users, verdicts: s.Verdicts,
			locker: s.Locker,
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

func main() {
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, st, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("database connect error: %v", err)
	}
	defer db.Close()

	blobs, err := minioStore.New(
		cfg.Minio.Endpoint,
		cfg.Minio.Region,
		cfg.Minio.AccessKey,
		cfg.Minio.SecretKey,
		cfg.Minio.UseSSL,
	)
	if err != nil {
		log.Fatalf("minio init error: %v", err)
	}

	clock := application.SystemClock{}
	b := inmem.New()

	registrySvc := &appregistry.Service{
		Probes:   st.probes,
		Bus:      b,
		Lock:     st.locker,
		Jobs:     st.jobs,
		Clock:    clock,
		TTL:      cfg.Orchestrator.CacheTTL,
		MaxStale: cfg.Orchestrator.MaxStale,
	}

	tracker := &appquota.Tracker{
		Users:  st.users,
		Jobs:   st.jobs,
		Clock:  clock,
		Window: cfg.Orchestrator.QuotaWindow,
	}

	scansSvc := &appscans.Service{
		Scans:            st.scans,
		Files:            st.files,
		Jobs:             st.jobs,
		Users:            st.users,
		Registry:         registrySvc,
		Quota:            tracker,
		Bus:              b,
		Blobs:            blobs,
		Clock:            clock,
		MaxResubmitDepth: cfg.Orchestrator.MaxResubmitDepth,
	}

	if cfg.OpenAI.APIKey != "" {
		verdictSvc := &appverdicts.Service{
			Client: aiopenai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model),
			Repo:   st.verdicts,
			Files:  st.files,
			Clock:  clock,
		}
		scansSvc.Hook = verdictSvc.Hook
	}

	bserver := &busserver.Server{Bus: b, Scans: scansSvc, Registry: registrySvc}
	if err := bserver.Start(ctx); err != nil {
		log.Fatalf("bus server error: %v", err)
	}

	// Initial discovery; transport outages are retried with backoff.
	if err := registrySvc.RefreshWithRetry(ctx); err != nil {
		log.Printf("initial probe discovery failed: %v", err)
	}

	checkers := map[string]middleware.HealthChecker{
		"database": &middleware.DatabaseHealthChecker{DB: db},
		"bus": middleware.CheckerFunc(func(ctx context.Context) error {
			_, err := b.Queues(ctx)
			return err
		}),
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpserver.NewRouter(scansSvc, registrySvc, st.verdicts, checkers),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down server...")
	cancel()

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
