// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

// Package test runs the backend against a real Postgres database in a container.
// The suites only run with SCAFFOLD_INTEGRATION=1 and a docker daemon.
package test

import (
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/relabs-tech/scaffold/core/backend"
	"github.com/relabs-tech/scaffold/core/client"
	"github.com/relabs-tech/scaffold/core/csql"
	"github.com/relabs-tech/scaffold/core/record"
	"github.com/relabs-tech/scaffold/core/registry"
)

const configurationJSON = `{
	"resources": [
		{
			"resource": "author",
			"fields": [
				{ "name": "id", "type": "integer" },
				{ "name": "name", "required": true },
				{ "name": "balance", "type": "integer", "hidden": true }
			],
			"searchable_properties": ["name"],
			"permits": [
				{ "role": "reader", "operations": ["read", "list"] }
			]
		},
		{
			"resource": "post",
			"fields": [
				{ "name": "id", "type": "integer" },
				{ "name": "title", "required": true },
				{ "name": "status" },
				{ "name": "author", "type": "integer", "relation": "author" }
			],
			"filterable_properties": ["status", "author"],
			"searchable_properties": ["title"],
			"default_sort": ["id"],
			"permits": [
				{ "role": "reader", "operations": ["read", "list"] }
			]
		}
	]
}`

// IntegrationTestSuite starts a Postgres container and serves a backend on top of it,
// both in-process through the router and over HTTP.
type IntegrationTestSuite struct {
	suite.Suite
	*backend.Backend

	postgresContainer testcontainers.Container
	dbConn            *csql.DB
	router            *mux.Router
	server            *httptest.Server

	client       client.Client
	clientNoAuth client.Client
	httpClient   client.Client
}

// SetupSuite implements suite.SetupAllSuite
func (s *IntegrationTestSuite) SetupSuite() {
	if os.Getenv("SCAFFOLD_INTEGRATION") != "1" {
		s.T().Skip("set SCAFFOLD_INTEGRATION=1 to run the postgres integration tests")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	postgresUser := "testuser"
	postgresPassword := "testpass"
	postgresDB := "testdb"

	pgReq := testcontainers.ContainerRequest{
		Image:        "postgres:15",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     postgresUser,
			"POSTGRES_PASSWORD": postgresPassword,
			"POSTGRES_DB":       postgresDB,
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: pgReq,
		Started:          true,
	})
	s.Require().NoError(err)
	s.postgresContainer = pgC

	pgHost, err := pgC.Host(ctx)
	s.Require().NoError(err)
	pgPort, err := pgC.MappedPort(ctx, "5432")
	s.Require().NoError(err)

	s.dbConn, err = csql.Open(fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		pgHost, pgPort.Port(), postgresUser, postgresPassword, postgresDB), "scaffold_test")
	s.Require().NoError(err)

	config, err := registry.ParseConfiguration([]byte(configurationJSON))
	s.Require().NoError(err)
	reg := registry.New()
	err = reg.Load(config, func(d *record.Descriptor) (record.Store, error) {
		store := csql.NewStore(s.dbConn, d)
		return store, store.CreateTable(ctx)
	})
	s.Require().NoError(err)

	s.router = mux.NewRouter()
	s.Backend = backend.New(&backend.Builder{
		Registry:             reg,
		Router:               s.router,
		AuthorizationEnabled: true,
	})
	s.server = httptest.NewServer(s.router)

	s.client = client.NewWithRouter(s.router).WithAdminAuthorization()
	s.clientNoAuth = client.NewWithRouter(s.router)
	s.httpClient = client.NewWithURL(s.server.URL)
}

// TearDownSuite implements suite.TearDownAllSuite
func (s *IntegrationTestSuite) TearDownSuite() {
	if s.server != nil {
		s.server.Close()
	}
	if s.dbConn != nil {
		s.dbConn.Close()
	}
	if s.postgresContainer != nil {
		s.Require().NoError(s.postgresContainer.Terminate(context.Background()))
	}
}

// SetupTest empties all tables
func (s *IntegrationTestSuite) SetupTest() {
	_, err := s.dbConn.Exec(`TRUNCATE ` + s.dbConn.Schema + `.posts, ` + s.dbConn.Schema + `.authors RESTART IDENTITY;`)
	s.Require().NoError(err)
}
