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

// Package service provides the readiness checks of the server dependencies.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/asgardeo/conduit/internal/sandbox"
	"github.com/asgardeo/conduit/internal/storage/artifact"
	"github.com/asgardeo/conduit/internal/system/healthcheck/model"
	"github.com/asgardeo/conduit/internal/system/log"
)

const (
	loggerComponentName = "HealthCheckService"
	checkTimeout        = 2 * time.Second
	sentinelArtifactID  = "00000000-0000-0000-0000-000000000000"
)

// Check pings a single dependency. A nil error means the dependency is up.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// HealthCheckServiceInterface defines the interface for the health check service.
type HealthCheckServiceInterface interface {
	CheckReadiness(ctx context.Context) model.ServerStatus
}

// HealthCheckService is the default implementation of the HealthCheckServiceInterface.
type HealthCheckService struct {
	checks []Check
}

var _ HealthCheckServiceInterface = (*HealthCheckService)(nil)

// NewHealthCheckService creates a health check service running the given checks.
func NewHealthCheckService(checks ...Check) *HealthCheckService {
	return &HealthCheckService{checks: checks}
}

// CheckReadiness runs every check and reports the server down when any of them fails.
func (hcs *HealthCheckService) CheckReadiness(ctx context.Context) model.ServerStatus {
	logger := log.GetLogger().With(log.String(log.LoggerKeyComponentName, loggerComponentName))

	status := model.StatusUp
	statuses := make([]model.ServiceStatus, 0, len(hcs.checks))
	for _, check := range hcs.checks {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := check.Ping(checkCtx)
		cancel()

		serviceStatus := model.ServiceStatus{ServiceName: check.Name, Status: model.StatusUp}
		if err != nil {
			logger.Error("Readiness check failed", log.String("service", check.Name), log.Error(err))
			serviceStatus.Status = model.StatusDown
			status = model.StatusDown
		}
		statuses = append(statuses, serviceStatus)
	}

	return model.ServerStatus{Status: status, ServiceStatus: statuses}
}

// ArtifactStoreCheck reports the artifact store up when a metadata lookup completes.
func ArtifactStoreCheck(store artifact.StoreInterface) Check {
	return Check{
		Name: "ArtifactStore",
		Ping: func(ctx context.Context) error {
			_, err := store.Stat(ctx, sentinelArtifactID)
			if err == nil || errors.Is(err, artifact.ErrNotFound) {
				return nil
			}
			return err
		},
	}
}

// SandboxCheck reports the script sandbox up when a trivial script completes.
func SandboxCheck(executor sandbox.ExecutorInterface) Check {
	return Check{
		Name: "ScriptSandbox",
		Ping: func(ctx context.Context) error {
			_, err := executor.Run(ctx, sandbox.Request{Script: "result = true;", TimeoutMs: 1000})
			return err
		},
	}
}
