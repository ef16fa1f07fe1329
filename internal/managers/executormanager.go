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

// Package managers builds the server components and registers their services.
package managers

import (
	"fmt"
	"os"

	"github.com/asgardeo/conduit/internal/executor/filetransfer"
	"github.com/asgardeo/conduit/internal/executor/httprequest"
	"github.com/asgardeo/conduit/internal/executor/llm"
	"github.com/asgardeo/conduit/internal/executor/queryapi"
	"github.com/asgardeo/conduit/internal/executor/script"
	"github.com/asgardeo/conduit/internal/executor/sqladmin"
	"github.com/asgardeo/conduit/internal/executor/tabular"
	"github.com/asgardeo/conduit/internal/flow/model"
	"github.com/asgardeo/conduit/internal/sandbox"
	"github.com/asgardeo/conduit/internal/security/urlguard"
	"github.com/asgardeo/conduit/internal/storage/artifact"
	"github.com/asgardeo/conduit/internal/system/config"
	"github.com/asgardeo/conduit/internal/system/database/provider"
	"github.com/asgardeo/conduit/internal/system/healthcheck/service"
	httpclient "github.com/asgardeo/conduit/internal/system/http"
	"github.com/asgardeo/conduit/internal/system/log"
)

const loggerComponentName = "ExecutorManager"

// ExecutorManager owns the shared components the node executors are built from.
type ExecutorManager struct {
	Guard     *urlguard.Guard
	Limiter   *httpclient.TenantLimiter
	Store     *artifact.Store
	Sandbox   *sandbox.Executor
	executors []model.NodeExecutorInterface
}

// NewExecutorManager creates the guard, rate limiter, artifact store and sandbox described by cfg
// and builds one executor per node type on top of them.
func NewExecutorManager(cfg *config.Config) (*ExecutorManager, error) {
	logger := log.GetLogger().With(log.String(log.LoggerKeyComponentName, loggerComponentName))

	guard := urlguard.NewGuard(urlguard.OptionsFromConfig(cfg))
	if guard.AllowInternal() {
		logger.Warn("Running in non-production mode: internal outbound targets are allowed",
			log.String("environment", cfg.Environment))
	}
	limiter := httpclient.NewTenantLimiter(cfg.HTTP.RateLimit.RequestsPerSecond, cfg.HTTP.RateLimit.Burst)

	store, err := artifact.NewStore(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact store: %w", err)
	}

	sb, err := sandbox.NewExecutor(sandbox.ConfigFromServer(cfg.Sandbox), sandbox.Capabilities{
		Env:     sandbox.FilterEnv(os.Environ(), cfg.Sandbox.EnvAllowPrefixes),
		Helpers: sandbox.DefaultHelpers(),
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create script sandbox: %w", err)
	}

	m := &ExecutorManager{
		Guard:   guard,
		Limiter: limiter,
		Store:   store,
		Sandbox: sb,
	}
	m.executors = []model.NodeExecutorInterface{
		httprequest.NewHTTPRequestExecutor(guard, limiter, cfg.HTTP),
		sqladmin.NewSQLAdminExecutor(provider.NewDBProvider(), guard, cfg.SQL),
		tabular.NewTabularIngestExecutor(guard, limiter, store, cfg.Ingestion, cfg.HTTP),
		filetransfer.NewFileTransferExecutor(guard, limiter, store, cfg.HTTP),
		llm.NewLLMExecutor(guard, limiter, cfg.LLM, cfg.HTTP),
		queryapi.NewQueryAPIExecutor(guard, limiter, cfg.HTTP),
		script.NewScriptExecutor(sb),
	}

	logger.Debug("Node executors initialized", log.Int("count", len(m.executors)))
	return m, nil
}

// Executors returns the node executors.
func (m *ExecutorManager) Executors() []model.NodeExecutorInterface {
	return m.executors
}

// HealthChecks returns the readiness checks of the shared components.
func (m *ExecutorManager) HealthChecks() []service.Check {
	return []service.Check{
		service.ArtifactStoreCheck(m.Store),
		service.SandboxCheck(m.Sandbox),
	}
}

// Close releases the artifact store.
func (m *ExecutorManager) Close() error {
	return m.Store.Close()
}
