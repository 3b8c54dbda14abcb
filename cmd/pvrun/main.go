// pvrun prepares hugepages and network device bindings for a userspace
// packet processing application, runs it, and restores the host afterwards.
//
// Usage:
//
//	pvrun run [--app-config FILE] [--dry-run] <application> [args...]
//	pvrun flatten <file.yaml>
//	pvrun inspect <encoded-file> [path...]
//	pvrun size <config.yaml>
//	pvrun devices
//	pvrun history [--limit N]
//	pvrun version
//
// Settings are read from /etc/pvrun/pvrun.yaml, $PVRUN_CONFIG or --config.
package main

import (
	"os"

	"github.com/nerrad567/pvrun/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
