package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Sb253/tenantguard/internal/adapters/events"
	"github.com/Sb253/tenantguard/internal/adapters/httpapi"
	sqliteadapter "github.com/Sb253/tenantguard/internal/adapters/sqlite"
	"github.com/Sb253/tenantguard/internal/adapters/sqlite/gormsqlite"
	"github.com/Sb253/tenantguard/internal/core/domain"
	"github.com/Sb253/tenantguard/internal/core/ports"
	"github.com/Sb253/tenantguard/internal/core/usecase"
	"github.com/Sb253/tenantguard/internal/core/validation"
	"github.com/Sb253/tenantguard/migrations"
)

type Config struct {
	Addr             string
	DBPath           string
	BootstrapAPIKey  string
	BootstrapTenant  string
	BootstrapKeyName string
	AlertWebhookURL  string
	AlertSecret      string
}

type resourceCloser struct {
	closers []io.Closer
}

func (r resourceCloser) Close() error {
	var firstErr error
	for _, c := range r.closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func NewServer(ctx context.Context, cfg Config) (*http.Server, io.Closer, error) {
	db, err := gormsqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}

	writeSQLDB, err := db.WriteSQLDB()
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("resolve writer sql db: %w", err)
	}

	migrateCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := migrations.Up(migrateCtx, writeSQLDB); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	recordRepo := sqliteadapter.NewRecordRepository(db)
	schemaRepo := sqliteadapter.NewSchemaRepository(db)
	apiKeyRepo := sqliteadapter.NewAPIKeyRepository(db)
	incidentRepo := sqliteadapter.NewIncidentRepository(db)

	// Schema registration is a startup-phase write; request handling only
	// reads the registry afterwards.
	validator := validation.NewValidator()
	validation.RegisterBuiltins(validator)
	checker := validation.NewIsolationChecker(incidentRepo)

	schemaService := usecase.NewSchemaService(schemaRepo, validator)
	recordService := usecase.NewRecordService(recordRepo, schemaService, checker)
	authService := usecase.NewAuthService(apiKeyRepo)
	incidentService := usecase.NewIncidentService(incidentRepo)

	var publisher ports.AlertPublisher = events.NewLogPublisher()
	if cfg.AlertWebhookURL != "" {
		publisher = events.NewWebhookPublisher(cfg.AlertWebhookURL, cfg.AlertSecret, 0)
	}
	dispatcher := usecase.NewAlertDispatcher(incidentRepo, publisher, 2*time.Second, 100)
	dispatcher.Start(context.Background())

	if cfg.BootstrapAPIKey != "" {
		tenant := cfg.BootstrapTenant
		if tenant == "" {
			tenant = "default"
		}
		name := cfg.BootstrapKeyName
		if name == "" {
			name = "bootstrap"
		}

		bootstrapCtx, bootstrapCancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := apiKeyRepo.Upsert(bootstrapCtx, domain.APIKey{
			TokenHash: usecase.HashToken(cfg.BootstrapAPIKey),
			TenantID:  tenant,
			Name:      name,
			Active:    true,
			CreatedAt: time.Now().UTC(),
		})
		bootstrapCancel()
		if err != nil {
			_ = dispatcher.Close()
			_ = db.Close()
			return nil, nil, fmt.Errorf("bootstrap api key: %w", err)
		}
	}

	handler := httpapi.NewHandler(recordService, schemaService, authService, incidentService)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return server, resourceCloser{closers: []io.Closer{dispatcher, db}}, nil
}
