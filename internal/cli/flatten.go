package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerrad567/pvrun/internal/flatconf"
)

func newFlattenCmd(a *app) *cobra.Command {
	var root string

	cmd := &cobra.Command{
		Use:   "flatten <file.yaml|->",
		Short: "Print the flat encoding of a YAML document",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			r, closeFn, err := a.openInput(args[0])
			if err != nil {
				return err
			}
			defer closeFn()

			tree, err := flatconf.Decode(r)
			if err != nil {
				return err
			}
			entries, err := flatconf.EntriesAt(tree, root)
			if err != nil {
				return err
			}
			for _, path := range flatconf.LongLines(entries) {
				fmt.Fprintf(a.stderr, "warning: %s exceeds the %d byte line limit\n", path, flatconf.MaxLineLength)
			}

			_, err = fmt.Fprintf(a.stdout, "%s\n", flatconf.Join(entries))
			return err
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "path prefix for every line, e.g. /app")
	return cmd
}

// openInput opens name, or stdin for "-".
func (a *app) openInput(name string) (io.Reader, func(), error) {
	if name == "-" {
		return a.stdin, func() {}, nil
	}
	f, err := os.Open(name) //nolint:gosec // path is operator-supplied
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil //nolint:errcheck // Read-only file
}
