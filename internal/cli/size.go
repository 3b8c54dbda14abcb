package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/pvrun/internal/appconfig"
	"github.com/nerrad567/pvrun/internal/hugepage"
)

func newSizeCmd(a *app) *cobra.Command {
	var pageSize int64

	cmd := &cobra.Command{
		Use:   "size <config.yaml>",
		Short: "Print the hugepage reservation an application config needs",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if pageSize == 0 {
				pageSize = a.cfg.Hugepages.PageSize
			}

			appCfg, err := appconfig.Load(args[0])
			if err != nil {
				return err
			}
			in := appCfg.HugepageInput()
			raw, err := hugepage.Raw(in)
			if err != nil {
				return err
			}
			size, err := hugepage.Required(in, pageSize)
			if err != nil {
				return err
			}

			fmt.Fprintf(a.stdout, "required:  %s\n", hugepage.Describe(size))
			fmt.Fprintf(a.stdout, "pages:     %d x %s\n", hugepage.Pages(size, pageSize), hugepage.Describe(pageSize))
			fmt.Fprintf(a.stdout, "unrounded: %s\n", hugepage.Describe(raw))
			return nil
		},
	}

	cmd.Flags().Int64Var(&pageSize, "page-size", 0, "hugepage size in bytes (default hugepages.page_size)")
	return cmd
}
