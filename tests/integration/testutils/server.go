//go:build integration

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

// Package testutils provides the server lifecycle and API helpers of the integration tests.
package testutils

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

const (
	// TargetDir holds the build output and the server home.
	TargetDir = "./target"
	// ServerBinary is the name of the built server binary.
	ServerBinary = "conduit"
	// ServerPort is the port the test server listens on.
	ServerPort = 8095
)

// TestServerURL is the base URL of the test server.
var TestServerURL = fmt.Sprintf("http://localhost:%d", ServerPort)

const deploymentYAML = `server:
  hostname: "localhost"
  port: %d
  http_only: true

environment: "development"

sandbox:
  timeout_ms: 2000
  max_timeout_ms: 5000
  max_concurrent: 4
  env_allow_prefixes:
    - "WORKFLOW_"

storage:
  in_memory: true
`

// BuildServer compiles the server binary into the target directory.
func BuildServer() error {
	log.Println("Building server...")
	if err := os.MkdirAll(TargetDir, 0o750); err != nil {
		return err
	}
	cmd := exec.Command("go", "build", "-o", filepath.Join(TargetDir, ServerBinary), "./cmd/server")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// PrepareHome writes the test deployment configuration and returns the server home directory.
func PrepareHome() (string, error) {
	home, err := filepath.Abs(filepath.Join(TargetDir, "home"))
	if err != nil {
		return "", err
	}
	confDir := filepath.Join(home, "repository", "conf")
	if err := os.MkdirAll(confDir, 0o750); err != nil {
		return "", err
	}
	content := fmt.Sprintf(deploymentYAML, ServerPort)
	if err := os.WriteFile(filepath.Join(confDir, "deployment.yaml"), []byte(content), 0o600); err != nil {
		return "", err
	}
	return home, nil
}

// StartServer starts the server binary with the given home directory.
func StartServer(home string) (*exec.Cmd, error) {
	log.Println("Starting server...")
	cmd := exec.Command(filepath.Join(TargetDir, ServerBinary), "-home", home)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), "WORKFLOW_REGION=integration")
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start server: %w", err)
	}
	return cmd, nil
}

// WaitForServer polls the liveness endpoint until the server answers or the deadline passes.
func WaitForServer() error {
	client := &http.Client{Timeout: time.Second}
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := client.Get(TestServerURL + "/health/liveness")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(250 * time.Millisecond)
	}
	return errors.New("timed out waiting for the server")
}

// StopServer stops the server process.
func StopServer(cmd *exec.Cmd) {
	log.Println("Stopping server...")
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Signal(os.Interrupt)
		_ = cmd.Wait()
	}
}
