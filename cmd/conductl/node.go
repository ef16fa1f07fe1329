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
	"github.com/spf13/cobra"

	"github.com/asgardeo/conduit/internal/flow/constants"
	"github.com/asgardeo/conduit/internal/flow/model"
	"github.com/asgardeo/conduit/internal/flow/nodeexec"
	"github.com/asgardeo/conduit/internal/managers"
	"github.com/asgardeo/conduit/internal/system/log"
)

func newNodeExecCmd(opts *globalOptions) *cobra.Command {
	var nodeType, configFile, contextFile string

	execCmd := &cobra.Command{
		Use:   "exec",
		Short: "Execute a single workflow node",
		Long: `Execute a single node with the executors, outbound policy and limits of the configured
environment and print the node result envelope.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			req := model.NodeRequest{NodeType: constants.NodeType(nodeType), Config: map[string]any{}}
			if configFile != "" {
				if err := readJSONFile(configFile, cmd.InOrStdin(), &req.Config); err != nil {
					return err
				}
			}
			if contextFile != "" {
				if err := readJSONFile(contextFile, cmd.InOrStdin(), &req.Context); err != nil {
					return err
				}
			}

			executorManager, err := managers.NewExecutorManager(cfg)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := executorManager.Close(); cerr != nil {
					log.GetLogger().Error("Failed to close the artifact store", log.Error(cerr))
				}
			}()

			service := nodeexec.NewNodeExecService(nil, executorManager.Executors()...)
			if svcErr := service.ValidateRequest(&req); svcErr != nil {
				_ = printJSON(cmd.OutOrStdout(), svcErr)
				return errCheckFailed
			}

			result := service.Execute(cmd.Context(), req.NodeType, req.Config, &req.Context)
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if !result.IsSuccess() {
				return errCheckFailed
			}
			return nil
		},
	}
	execCmd.Flags().StringVarP(&nodeType, "type", "t", "", "Node type")
	execCmd.Flags().StringVarP(&configFile, "config", "c", "", "JSON file with the node configuration (- for stdin)")
	execCmd.Flags().StringVar(&contextFile, "context", "", "JSON file with the execution context")
	_ = execCmd.MarkFlagRequired("type")

	return execCmd
}

func newNodeCmd(opts *globalOptions) *cobra.Command {
	nodeCmd := &cobra.Command{
		Use:   "node",
		Short: "Workflow node tools",
	}
	nodeCmd.AddCommand(newNodeExecCmd(opts))
	return nodeCmd
}
