// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

// Command blog serves authors and posts as a REST API, either from postgres or
// from memory.
package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joeshaw/envdecode"
	"github.com/sirupsen/logrus"

	"github.com/relabs-tech/scaffold/core/access"
	"github.com/relabs-tech/scaffold/core/backend"
	"github.com/relabs-tech/scaffold/core/csql"
	"github.com/relabs-tech/scaffold/core/logger"
	"github.com/relabs-tech/scaffold/core/memstore"
	"github.com/relabs-tech/scaffold/core/record"
	"github.com/relabs-tech/scaffold/core/registry"
	"github.com/relabs-tech/scaffold/core/schema"
)

//go:embed resources.json
var defaultResources []byte

//go:embed schemas
var defaultSchemas embed.FS

// Service holds the configuration for this service
//
// use POSTGRES="host=localhost port=5432 user=postgres dbname=postgres sslmode=disable"
// and POSTGRES_PASSWORD="docker"
type Service struct {
	Port                 int    `env:"PORT,default=3000" description:"the port to listen on"`
	Store                string `env:"STORE,default=memory" description:"where records are kept, postgres or memory"`
	Postgres             string `env:"POSTGRES" description:"the connection string for the Postgres DB without password"`
	PostgresPassword     string `env:"POSTGRES_PASSWORD" description:"password to the Postgres DB"`
	PostgresSchema       string `env:"POSTGRES_SCHEMA,default=blog" description:"the database schema for all tables"`
	Resources            string `env:"RESOURCES" description:"path to a JSON resource configuration, the built-in blog configuration if empty"`
	Schemas              string `env:"SCHEMAS" description:"directory with JSON schemas, the built-in schemas if empty"`
	JwtSecret            string `env:"JWT_SECRET" description:"the HMAC secret for access tokens"`
	JwtIssuer            string `env:"JWT_ISSUER" description:"the accepted issuer of access tokens"`
	AuthorizationEnabled bool   `env:"AUTHORIZATION_ENABLED,default=true" description:"whether permits are enforced"`
	Backdoor             string `env:"BACKDOOR" description:"bearer token which grants the admin role, for development only"`
	LogLevel             string `env:"LOG_LEVEL,default=info" description:"the log level"`
}

func main() {
	service := &Service{}
	if err := envdecode.Decode(service); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		panic(err)
	}
	level, err := logrus.ParseLevel(service.LogLevel)
	if err != nil {
		panic(err)
	}
	logger.InitLogger(level)
	rlog := logger.Default()

	if err := run(service); err != nil {
		rlog.WithError(err).Fatalln("service stopped")
	}
	rlog.Infoln("service stopped")
}

func run(service *Service) error {
	rlog := logger.Default()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resources := defaultResources
	if service.Resources != "" {
		data, err := os.ReadFile(service.Resources)
		if err != nil {
			return fmt.Errorf("cannot read resources: %w", err)
		}
		resources = data
	}
	config, err := registry.ParseConfiguration(resources)
	if err != nil {
		return err
	}

	factory, closeStore, err := storeFactory(ctx, service)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := registry.New()
	if err := reg.Load(config, factory); err != nil {
		return err
	}

	var schemaFS fs.FS
	if service.Schemas != "" {
		schemaFS = os.DirFS(service.Schemas)
	} else if schemaFS, err = fs.Sub(defaultSchemas, "schemas"); err != nil {
		return err
	}
	validator, err := schema.NewValidatorFromFS(schemaFS)
	if err != nil {
		return err
	}

	router := mux.NewRouter()
	logger.AddRequestID(router)
	logger.LogRequests(router)
	if service.Backdoor != "" {
		rlog.Warnln("backdoor enabled")
		router.Use(access.NewBackdoorMiddleware(&access.BackdoorMiddlewareBuilder{
			Backdoors: map[string]access.Authorization{
				service.Backdoor: {Identity: "backdoor", Roles: []string{"admin"}},
			},
		}))
	}
	if service.JwtSecret != "" {
		router.Use(access.NewJwtMiddleware(&access.JwtMiddlewareBuilder{
			Secret: []byte(service.JwtSecret),
			Issuer: service.JwtIssuer,
		}))
	}

	backend.New(&backend.Builder{
		Registry:             reg,
		Router:               router,
		AuthorizationEnabled: service.AuthorizationEnabled,
		Validator:            validator,
		CORS:                 true,
		Compression:          true,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", service.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 1)
	go func() {
		rlog.Infof("listen on port :%d", service.Port)
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	rlog.Infoln("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// storeFactory returns the factory which creates the store of each resource, and a
// function to release the underlying database
func storeFactory(ctx context.Context, service *Service) (registry.StoreFactory, func(), error) {
	switch service.Store {
	case "memory":
		return func(d *record.Descriptor) (record.Store, error) {
			if f, ok := d.Field(d.PrimaryKey); ok && f.Type == record.TypeInteger {
				return memstore.New(d, memstore.WithSequence()), nil
			}
			return memstore.New(d), nil
		}, func() {}, nil
	case "postgres":
		if service.Postgres == "" {
			return nil, nil, errors.New("POSTGRES is required for the postgres store")
		}
		dsn := service.Postgres
		if service.PostgresPassword != "" {
			dsn += " password=" + service.PostgresPassword
		}
		db, err := csql.Open(dsn, service.PostgresSchema)
		if err != nil {
			return nil, nil, fmt.Errorf("cannot connect to postgres: %w", err)
		}
		return func(d *record.Descriptor) (record.Store, error) {
			store := csql.NewStore(db, d)
			if err := store.CreateTable(ctx); err != nil {
				return nil, err
			}
			return store, nil
		}, func() { db.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown store %q", service.Store)
}
