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
	"os"

	"github.com/spf13/cobra"

	"github.com/asgardeo/conduit/internal/sandbox"
)

func newScriptCmd(opts *globalOptions) *cobra.Command {
	var contextFile, inputFile string
	var timeoutMs, memoryLimitMB int

	runCmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Run a script in the sandbox",
		Long: `Run a script file (- for stdin) in the sandbox with the configured resource limits and
print the result binding, the captured console output and the final state.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			code, err := readSource(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}

			req := sandbox.Request{
				Script:        string(code),
				TimeoutMs:     timeoutMs,
				MemoryLimitMB: memoryLimitMB,
			}
			if contextFile != "" {
				if err := readJSONFile(contextFile, cmd.InOrStdin(), &req.Context); err != nil {
					return err
				}
			}
			if inputFile != "" {
				if err := readJSONFile(inputFile, cmd.InOrStdin(), &req.Input); err != nil {
					return err
				}
			}

			executor, err := sandbox.NewExecutor(sandbox.ConfigFromServer(cfg.Sandbox), sandbox.Capabilities{
				Env:     sandbox.FilterEnv(os.Environ(), cfg.Sandbox.EnvAllowPrefixes),
				Helpers: sandbox.DefaultHelpers(),
			})
			if err != nil {
				return err
			}

			res, err := executor.Run(cmd.Context(), req)
			if err != nil {
				_ = printJSON(cmd.OutOrStdout(), err)
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	runCmd.Flags().StringVar(&contextFile, "context", "", "JSON file exposed as the context binding")
	runCmd.Flags().StringVar(&inputFile, "input", "", "JSON file exposed as the input binding")
	runCmd.Flags().IntVar(&timeoutMs, "timeout-ms", 0, "Execution timeout in milliseconds")
	runCmd.Flags().IntVar(&memoryLimitMB, "memory-limit-mb", 0, "Memory ceiling in megabytes")

	scriptCmd := &cobra.Command{
		Use:   "script",
		Short: "Sandboxed script tools",
	}
	scriptCmd.AddCommand(runCmd)
	return scriptCmd
}
