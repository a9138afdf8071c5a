// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/moov-io/accounts/admin"
	"github.com/moov-io/accounts/pkg/password"
	"github.com/moov-io/accounts/pkg/token"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/metrics/prometheus"
	"github.com/gorilla/mux"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

var (
	flagConfig = flag.String("config", "", "Path to a TOML config file")
	httpAddr   = flag.String("http.addr", "", "HTTP listen address (overrides config)")
	adminAddr  = flag.String("admin.addr", "", "Admin HTTP listen address (overrides config)")

	// Metrics
	authSuccesses = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "auth_successes",
		Help: "Count of successful authorizations",
	}, []string{"method"})
	authFailures = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "auth_failures",
		Help: "Count of failed authorizations",
	}, []string{"method"})

	tokenGenerations = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "auth_token_generations",
		Help: "Count of auth tokens created",
	}, []string{"method"})

	accountsRegistered = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "accounts_registered",
		Help: "Count of accounts created",
	}, nil)

	internalServerErrors = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "http_internal_server_errors",
		Help: "Count of how many 5xx errors we send out",
	}, nil)
)

const Version = "0.2.0-dev"

// repository is a storage backend serving both accounts and addresses.
type repository interface {
	accountRepository
	addressRepository

	Close() error
}

func openRepository(logger log.Logger, cfg StorageConfig) (repository, error) {
	switch cfg.Driver {
	case "buntdb":
		return openBuntDB(logger, cfg.BuntDBPath)
	case "sqlite", "":
		return openSqlite(logger, cfg.SqlitePath)
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

// setupRouter builds the services over repo and registers every route.
func setupRouter(logger log.Logger, repo repository, hasher *password.Hasher, issuer *token.Issuer, verifier *token.Verifier) (*mux.Router, error) {
	accounts, err := newAccountService(logger, repo, repo, hasher, issuer)
	if err != nil {
		return nil, err
	}
	addresses := &addressService{
		logger:    logger,
		accounts:  repo,
		addresses: repo,
	}
	gate := &authGate{
		logger:   logger,
		verifier: verifier,
	}

	router := mux.NewRouter()
	addSignupRoutes(router, logger, accounts)
	addLoginRoutes(router, logger, accounts)
	addAuthRoutes(router, gate)
	addUserRoutes(router, logger, gate, accounts)
	addAddressRoutes(router, logger, gate, addresses)
	return router, nil
}

func main() {
	flag.Parse()

	// Setup logging, default to stderr
	var logger log.Logger
	logger = log.NewLogfmtLogger(os.Stderr)
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	logger = log.With(logger, "caller", log.DefaultCaller)
	logger.Log("startup", fmt.Sprintf("Starting accounts server version %s", Version))

	cfg, err := loadConfig(*flagConfig)
	if err != nil {
		logger.Log("config", err)
		os.Exit(1)
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}
	if *adminAddr != "" {
		cfg.AdminAddr = *adminAddr
	}

	// The signing secret is read once here, missing or bad values stop startup.
	issuer, err := token.NewIssuer([]byte(cfg.Token.Secret), cfg.Token.TTL)
	if err != nil {
		logger.Log("token", err)
		os.Exit(1)
	}
	verifier, err := token.NewVerifier([]byte(cfg.Token.Secret))
	if err != nil {
		logger.Log("token", err)
		os.Exit(1)
	}
	hasher := password.New(cfg.Token.BcryptCost)

	repo, err := openRepository(logger, cfg.Storage)
	if err != nil {
		logger.Log("storage", err)
		os.Exit(1)
	}
	defer repo.Close()

	handler, err := setupRouter(logger, repo, hasher, issuer, verifier)
	if err != nil {
		logger.Log("startup", err)
		os.Exit(1)
	}

	// Listen for application termination.
	errs := make(chan error)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errs <- fmt.Errorf("%s", <-c)
	}()

	serve := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler,
		TLSConfig: &tls.Config{
			InsecureSkipVerify:       false,
			PreferServerCipherSuites: true,
			MinVersion:               tls.VersionTLS12,
		},
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	shutdownServer := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := serve.Shutdown(ctx); err != nil {
			logger.Log("shutdown", err)
		}
	}

	if err := admin.Init(); err != nil {
		logger.Log("admin", err)
	}
	adminService := admin.SetupServer(cfg.AdminAddr)
	go func() {
		logger.Log("admin", fmt.Sprintf("Starting admin service on %s", adminService.BindAddress()))
		if err := adminService.Listen(); err != nil {
			logger.Log("admin", "shutting down", "error", err)
		}
	}()

	go func() {
		logger.Log("transport", "HTTP", "addr", cfg.HTTPAddr)
		errs <- serve.ListenAndServe()
	}()

	if err := <-errs; err != nil {
		adminService.Shutdown()
		shutdownServer()
		logger.Log("exit", err)
	}
}
