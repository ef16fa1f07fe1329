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
	"strings"

	"github.com/spf13/cobra"

	"github.com/asgardeo/conduit/internal/security/sqlguard"
)

func newSQLCmd(opts *globalOptions) *cobra.Command {
	var allowed []string
	var admin bool
	var file string

	validateCmd := &cobra.Command{
		Use:   "validate [STATEMENT]",
		Short: "Validate a SQL statement against the statement policy",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			var statement string
			switch {
			case len(args) == 1:
				statement = args[0]
			case file != "":
				data, err := readSource(file, cmd.InOrStdin())
				if err != nil {
					return err
				}
				statement = string(data)
			default:
				return cmd.Usage()
			}

			operations := make([]string, 0, len(allowed))
			for _, op := range allowed {
				operations = append(operations, strings.ToUpper(strings.TrimSpace(op)))
			}
			res := sqlguard.ValidateStatement(statement, sqlguard.StatementOptions{
				AllowedOperations: operations,
				IsAdminQuery:      admin,
				MaxLength:         cfg.SQL.MaxStatementLength,
			})
			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.IsValid {
				return errCheckFailed
			}
			return nil
		},
	}
	validateCmd.Flags().StringSliceVar(&allowed, "allow", nil, "Permitted operations (default SELECT)")
	validateCmd.Flags().BoolVar(&admin, "admin", false, "Permit administrative operations")
	validateCmd.Flags().StringVarP(&file, "file", "f", "", "Read the statement from a file (- for stdin)")

	sqlCmd := &cobra.Command{
		Use:   "sql",
		Short: "SQL statement policy tools",
	}
	sqlCmd.AddCommand(validateCmd)
	return sqlCmd
}
