package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/pvrun/internal/version"
)

func newVersionCmd(a *app) *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			if short {
				fmt.Fprintln(a.stdout, version.Version)
				return
			}
			fmt.Fprintln(a.stdout, version.Full())
		},
	}

	cmd.Flags().BoolVar(&short, "short", false, "print only the version number")
	return cmd
}
