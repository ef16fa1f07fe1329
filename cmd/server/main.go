/*
 * Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
 *
 * WSO2 LLC. licenses this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

// Package main is the entry point for starting the Conduit node execution server.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/asgardeo/conduit/internal/cert"
	"github.com/asgardeo/conduit/internal/managers"
	"github.com/asgardeo/conduit/internal/system/config"
	"github.com/asgardeo/conduit/internal/system/log"
	"github.com/asgardeo/conduit/internal/system/tracing"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := log.GetLogger()
	defer log.Sync()

	// Get the Conduit home directory.
	conduitHome := getConduitHome(logger)

	// Initialize the configurations.
	cfg := initConduitConfigurations(logger, conduitHome)
	if cfg == nil {
		logger.Fatal("Failed to initialize configurations")
	}

	// Initialize tracing.
	tp := tracing.NewTracerProvider(cfg.Tracing)
	shutdownTracing := tracing.Install(tp)
	var tracerProvider trace.TracerProvider
	if tp != nil {
		tracerProvider = tp
	}

	// Initialize the shared components and the node executors.
	executorManager, err := managers.NewExecutorManager(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize node executors", log.Error(err))
	}

	// Initialize the multiplexer and register services.
	mux := initMultiplexer(logger, executorManager, tracerProvider)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Server.HTTPOnly {
		logger.Info("TLS is not enabled, starting server without TLS")
		serve(ctx, logger, cfg, mux, nil)
	} else {
		tlsConfig, err := cert.GetTLSConfig(cfg, conduitHome)
		if err != nil {
			logger.Fatal("Failed to load TLS configuration", log.Error(err))
		}
		serve(ctx, logger, cfg, mux, tlsConfig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("Failed to flush traces", log.Error(err))
	}
	if err := executorManager.Close(); err != nil {
		logger.Error("Failed to close the artifact store", log.Error(err))
	}
	logger.Info("Conduit server stopped")
}

// getConduitHome retrieves and returns the Conduit home directory.
func getConduitHome(logger *log.Logger) string {
	// Parse project directory from command line arguments.
	projectHome := ""
	projectHomeFlag := flag.String("home", "", "Path to Conduit home directory")
	flag.Parse()

	if *projectHomeFlag != "" {
		logger.Info("Using home from command line argument", log.String("home", *projectHomeFlag))
		projectHome = *projectHomeFlag
	} else {
		// If no command line argument is provided, use the current working directory.
		dir, dirErr := os.Getwd()
		if dirErr != nil {
			logger.Fatal("Failed to get current working directory", log.Error(dirErr))
		}
		projectHome = dir
	}

	return projectHome
}

// initConduitConfigurations loads the Conduit configurations.
func initConduitConfigurations(logger *log.Logger, conduitHome string) *config.Config {
	configFilePath := path.Join(conduitHome, "repository/conf/deployment.yaml")
	cfg, err := config.LoadConfig(configFilePath)
	if err != nil {
		logger.Fatal("Failed to load configurations", log.Error(err))
	}

	if cfg.Storage.ArtifactPath != "" && !path.IsAbs(cfg.Storage.ArtifactPath) {
		cfg.Storage.ArtifactPath = path.Join(conduitHome, cfg.Storage.ArtifactPath)
	}

	logger.Info("Configurations loaded", log.String("environment", cfg.Environment),
		log.Bool("production", cfg.IsProduction()))
	return cfg
}

// initMultiplexer initializes the HTTP multiplexer and registers the services.
func initMultiplexer(logger *log.Logger, executorManager *managers.ExecutorManager,
	tp trace.TracerProvider) *http.ServeMux {
	mux := http.NewServeMux()
	serviceManager := managers.NewServiceManager(mux, executorManager.Executors(),
		executorManager.HealthChecks(), tp)

	// Register the services.
	if err := serviceManager.RegisterServices(); err != nil {
		logger.Fatal("Failed to register the services", log.Error(err))
	}

	return mux
}

// serve runs the server until ctx is cancelled, then drains in-flight requests.
func serve(ctx context.Context, logger *log.Logger, cfg *config.Config, mux *http.ServeMux, tlsConfig *tls.Config) {
	server, serverAddr := createHTTPServer(logger, cfg, mux)

	ln, err := net.Listen("tcp", serverAddr)
	if err != nil {
		logger.Fatal("Failed to start listener", log.Error(err))
	}
	scheme := "HTTP"
	if tlsConfig != nil {
		ln = tls.NewListener(ln, tlsConfig)
		scheme = "HTTPS"
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()
	logger.Info(fmt.Sprintf("Conduit server started (%s)...", scheme), log.String("address", serverAddr))

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to serve requests", log.Error(err))
		}
	case <-ctx.Done():
		logger.Info("Shutting down Conduit server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Failed to shut down the server gracefully", log.Error(err))
		}
	}
}

// createHTTPServer creates and configures an HTTP server with common settings.
func createHTTPServer(logger *log.Logger, cfg *config.Config, mux *http.ServeMux) (*http.Server, string) {
	// Wrap the multiplexer with AccessLogHandler.
	wrappedMux := log.AccessLogHandler(logger, mux)

	// Build the server address using hostname and port from the configurations.
	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Hostname, cfg.Server.Port)

	server := &http.Server{
		Addr:              serverAddr,
		Handler:           wrappedMux,
		ReadHeaderTimeout: 10 * time.Second, // Mitigate Slowloris attacks
		// Node executions can legitimately run for minutes.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return server, serverAddr
}
