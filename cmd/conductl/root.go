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

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/asgardeo/conduit/internal/system/config"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	home        string
	environment string
}

// errCheckFailed is returned when a validation command reports at least one rejection.
var errCheckFailed = errors.New("one or more checks failed")

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "conductl",
		Short: "Conduit node execution toolkit",
		Long: `conductl validates outbound URLs and SQL statements, runs sandboxed scripts and
executes single workflow nodes with the same policies the Conduit server applies.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.home, "home", "",
		"Conduit home directory containing repository/conf/deployment.yaml")
	root.PersistentFlags().StringVar(&opts.environment, "env", "",
		"Override the deployment environment (production or development)")

	root.AddCommand(newURLCmd(opts))
	root.AddCommand(newSQLCmd(opts))
	root.AddCommand(newScriptCmd(opts))
	root.AddCommand(newNodeCmd(opts))
	return root
}

// loadConfig loads the deployment configuration from the home directory when present and falls
// back to the built-in defaults otherwise.
func (o *globalOptions) loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error

	path := filepath.Join(o.home, "repository/conf/deployment.yaml")
	if _, statErr := os.Stat(path); o.home != "" && statErr == nil {
		cfg, err = config.LoadConfig(path)
	} else {
		cfg, err = config.NewConfig()
	}
	if err != nil {
		return nil, err
	}
	if o.home != "" && cfg.Storage.ArtifactPath != "" && !filepath.IsAbs(cfg.Storage.ArtifactPath) {
		cfg.Storage.ArtifactPath = filepath.Join(o.home, cfg.Storage.ArtifactPath)
	}

	if o.environment != "" {
		cfg.Environment = o.environment
		if err := config.NewValidator().Validate(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

// readJSONFile decodes the JSON document at path into out. "-" reads from in.
func readJSONFile(path string, in io.Reader, out any) error {
	data, err := readSource(path, in)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// readSource returns the content of path, or of in when path is "-".
func readSource(path string, in io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(in)
	}
	return os.ReadFile(filepath.Clean(path))
}
