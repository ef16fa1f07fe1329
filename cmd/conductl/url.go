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

	"github.com/asgardeo/conduit/internal/security/urlguard"
)

func newURLCmd(opts *globalOptions) *cobra.Command {
	urlCmd := &cobra.Command{
		Use:   "url",
		Short: "Outbound URL policy tools",
	}
	urlCmd.AddCommand(&cobra.Command{
		Use:   "validate URL...",
		Short: "Validate URLs against the outbound policy",
		Long: `Validate one or more URLs against the outbound request policy of the configured
environment and print the normalized result of each.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			guard := urlguard.NewGuard(urlguard.OptionsFromConfig(cfg))

			failed := false
			results := make([]urlguard.Result, 0, len(args))
			for _, raw := range args {
				res := guard.Validate(raw)
				failed = failed || !res.IsValid
				results = append(results, res)
			}
			if err := printJSON(cmd.OutOrStdout(), results); err != nil {
				return err
			}
			if failed {
				return errCheckFailed
			}
			return nil
		},
	})
	return urlCmd
}
