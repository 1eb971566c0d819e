package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/lyallcooper/mediadupes/internal/app"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "mediadupes %s (%s, %s/%s)\n",
				app.BuildVersionString(version, commit), runtime.Version(), runtime.GOOS, runtime.GOARCH)
			return err
		},
	}
}
