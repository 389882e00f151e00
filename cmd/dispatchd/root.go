/*
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"github.com/spf13/cobra"
)

const (
	shortName = "dispatchd"
)

const rootUsage = `A reference event-dispatch runtime

Common actions for dispatchd:
- dispatchd serve            Run the reference worker-pool demo
- dispatchd version          Show build version
`

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          shortName,
		Short:        "A reference event-dispatch runtime",
		Long:         rootUsage,
		SilenceUsage: true,
	}

	cmd.Flags().SortFlags = false

	cmd.AddCommand(
		newVersionCmd(),
		newServeCmd(),
	)

	return cmd
}

func execute() error {
	return newRootCmd().Execute()
}
