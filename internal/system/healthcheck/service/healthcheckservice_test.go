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

package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/asgardeo/conduit/internal/sandbox"
	"github.com/asgardeo/conduit/internal/storage/artifact"
	"github.com/asgardeo/conduit/internal/system/config"
	"github.com/asgardeo/conduit/internal/system/healthcheck/model"
)

type HealthCheckServiceTestSuite struct {
	suite.Suite
}

func TestHealthCheckServiceSuite(t *testing.T) {
	suite.Run(t, new(HealthCheckServiceTestSuite))
}

func (suite *HealthCheckServiceTestSuite) TestAllUp() {
	store, err := artifact.NewStore(config.StorageConfig{InMemory: true})
	require.NoError(suite.T(), err)
	defer func() { _ = store.Close() }()

	executor, err := sandbox.NewExecutor(sandbox.ConfigFromServer(config.DefaultConfig().Sandbox), sandbox.Capabilities{})
	require.NoError(suite.T(), err)

	status := NewHealthCheckService(ArtifactStoreCheck(store), SandboxCheck(executor)).
		CheckReadiness(context.Background())

	assert.Equal(suite.T(), model.StatusUp, status.Status)
	assert.Equal(suite.T(), []model.ServiceStatus{
		{ServiceName: "ArtifactStore", Status: model.StatusUp},
		{ServiceName: "ScriptSandbox", Status: model.StatusUp},
	}, status.ServiceStatus)
}

func (suite *HealthCheckServiceTestSuite) TestClosedStoreIsDown() {
	store, err := artifact.NewStore(config.StorageConfig{InMemory: true})
	require.NoError(suite.T(), err)
	require.NoError(suite.T(), store.Close())

	status := NewHealthCheckService(ArtifactStoreCheck(store)).CheckReadiness(context.Background())

	assert.Equal(suite.T(), model.StatusDown, status.Status)
	assert.Equal(suite.T(), model.StatusDown, status.ServiceStatus[0].Status)
}

func (suite *HealthCheckServiceTestSuite) TestOneFailingCheckMarksServerDown() {
	status := NewHealthCheckService(
		Check{Name: "A", Ping: func(ctx context.Context) error { return nil }},
		Check{Name: "B", Ping: func(ctx context.Context) error { return errors.New("unreachable") }},
	).CheckReadiness(context.Background())

	assert.Equal(suite.T(), model.StatusDown, status.Status)
	assert.Equal(suite.T(), model.StatusUp, status.ServiceStatus[0].Status)
	assert.Equal(suite.T(), model.StatusDown, status.ServiceStatus[1].Status)
}

func (suite *HealthCheckServiceTestSuite) TestNoChecks() {
	status := NewHealthCheckService().CheckReadiness(context.Background())
	assert.Equal(suite.T(), model.StatusUp, status.Status)
	assert.Empty(suite.T(), status.ServiceStatus)
}
