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

// Package main builds and starts the Conduit server and runs the integration test suites against it.
package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/asgardeo/conduit/tests/integration/testutils"
)

func main() {
	// Step 1: Build the server binary.
	if err := testutils.BuildServer(); err != nil {
		fmt.Printf("Failed to build server: %v\n", err)
		os.Exit(1)
	}

	// Step 2: Prepare the server home with the test configuration.
	home, err := testutils.PrepareHome()
	if err != nil {
		fmt.Printf("Failed to prepare server home: %v\n", err)
		os.Exit(1)
	}

	// Step 3: Start the server.
	serverCmd, err := testutils.StartServer(home)
	if err != nil {
		fmt.Printf("Failed to start server: %v\n", err)
		os.Exit(1)
	}
	defer testutils.StopServer(serverCmd)

	// Step 4: Wait for the server to report liveness.
	fmt.Println("Waiting for the server to start...")
	if err := testutils.WaitForServer(); err != nil {
		fmt.Printf("Server did not start: %v\n", err)
		testutils.StopServer(serverCmd)
		os.Exit(1)
	}

	// Step 5: Run all tests.
	if err := runTests(); err != nil {
		fmt.Printf("there are test failures: %v\n", err)
		testutils.StopServer(serverCmd)
		os.Exit(1)
	}
}

func runTests() error {
	// Clean the test cache to avoid getting results from previous runs.
	cmd := exec.Command("go", "clean", "-testcache")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to clean test cache: %w", err)
	}

	if _, err := exec.LookPath("gotestsum"); err == nil {
		fmt.Println("Running integration tests using gotestsum...")
		cmd = exec.Command("gotestsum", "--format", "testname", "--", "-tags=integration", "-p=1",
			"./tests/integration/...")
	} else {
		fmt.Println("Running integration tests using go test...")
		cmd = exec.Command("go", "test", "-tags=integration", "-p=1", "-v", "./tests/integration/...")
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
