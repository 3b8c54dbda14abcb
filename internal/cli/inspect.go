package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nerrad567/pvrun/internal/flatconf"
)

func newInspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <encoded-file|-> [path...]",
		Short: "Read a flat encoding back and print it as YAML",
		Long: `Inspect parses a file written by pvrun and prints the value at each
path as YAML. Without paths the whole document is printed.

Paths use the encoding's form, e.g. /nics[0]/dev or /memory.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			r, closeFn, err := a.openInput(args[0])
			if err != nil {
				return err
			}
			defer closeFn()

			doc, err := flatconf.Parse(r)
			if err != nil {
				return err
			}

			paths := args[1:]
			if len(paths) == 0 {
				paths = []string{"/"}
			}
			for _, p := range paths {
				v, err := doc.Value(strings.TrimSuffix(p, "/"))
				if err != nil {
					return err
				}
				out, err := yaml.Marshal(v)
				if err != nil {
					return fmt.Errorf("rendering %s: %w", p, err)
				}
				if len(paths) > 1 {
					fmt.Fprintf(a.stdout, "# %s\n", p)
				}
				if _, err := a.stdout.Write(out); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
