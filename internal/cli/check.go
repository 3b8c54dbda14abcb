package cli

import (
	"context"
	"fmt"
	"os/exec"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/nerrad567/pvrun/internal/hugepage"
	"github.com/nerrad567/pvrun/internal/infrastructure/influxdb"
	"github.com/nerrad567/pvrun/internal/infrastructure/mqtt"
	"github.com/nerrad567/pvrun/internal/launcher"
)

// Check outcomes.
const (
	checkOK       = "ok"
	checkWarn     = "warn"
	checkFail     = "FAIL"
	checkDisabled = "disabled"
)

type checkResult struct {
	name   string
	status string
	detail string
}

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check that the host is ready to launch applications",
		Long: `Check looks for the host tools, the hugetlbfs mount, the device inventory
and every enabled telemetry sink. Only failures exit non-zero; warnings
describe things a launch may still recover from.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			results := a.runChecks(cmd.Context())

			failed := 0
			w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			for _, r := range results {
				if r.status == checkFail {
					failed++
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", r.name, r.status, r.detail)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if failed > 0 {
				return &ExitError{Code: 1, Err: fmt.Errorf("%d check(s) failed", failed)}
			}
			return nil
		},
	}
}

func (a *app) runChecks(ctx context.Context) []checkResult {
	cfg := a.cfg
	var results []checkResult

	for _, tool := range []string{cfg.Tools.Hugepages, cfg.Tools.Devbind, cfg.Tools.Modprobe} {
		path, err := exec.LookPath(tool)
		if err != nil {
			results = append(results, checkResult{"tool " + tool, checkFail, err.Error()})
			continue
		}
		results = append(results, checkResult{"tool " + tool, checkOK, path})
	}

	switch {
	case cfg.Tools.Sudo:
		results = append(results, checkResult{"privileges", checkOK, "tools run through sudo"})
	case unix.Geteuid() != 0:
		results = append(results, checkResult{"privileges", checkWarn, "not running as root"})
	default:
		results = append(results, checkResult{"privileges", checkOK, "root"})
	}

	if err := hugepage.CheckMount(cfg.Hugepages.MountPoint); err != nil {
		// dpdk-hugepages.py mounts it during setup unless verification is on.
		status := checkWarn
		if cfg.Hugepages.VerifyMount {
			status = checkFail
		}
		results = append(results, checkResult{"hugetlbfs", status, err.Error()})
	} else {
		results = append(results, checkResult{"hugetlbfs", checkOK, cfg.Hugepages.MountPoint})
	}

	runner := a.runner
	if runner == nil {
		runner = launcher.NewRunner(cfg)
	}
	if devices, err := launcher.NewInventory(cfg, runner).Devices(ctx); err != nil {
		results = append(results, checkResult{"inventory", checkFail, err.Error()})
	} else {
		results = append(results, checkResult{"inventory", checkOK, fmt.Sprintf("%d device(s) via %s", len(devices), cfg.Inventory.Source)})
	}

	results = append(results, a.checkHistory(ctx), a.checkMQTT(ctx), a.checkInfluxDB(ctx))
	return results
}

func (a *app) checkHistory(ctx context.Context) checkResult {
	if !a.cfg.History.Enabled {
		return checkResult{"history", checkDisabled, ""}
	}
	db, err := launcher.OpenHistoryDB(ctx, a.cfg.History)
	if err != nil {
		return checkResult{"history", checkFail, err.Error()}
	}
	defer db.Close() //nolint:errcheck // Check only

	if err := db.HealthCheck(ctx); err != nil {
		return checkResult{"history", checkFail, err.Error()}
	}
	return checkResult{"history", checkOK, db.Path()}
}

func (a *app) checkMQTT(ctx context.Context) checkResult {
	if !a.cfg.MQTT.Enabled {
		return checkResult{"mqtt", checkDisabled, ""}
	}
	client, err := mqtt.Connect(a.cfg.MQTT)
	if err != nil {
		// Events are best-effort, a launch still succeeds without them.
		return checkResult{"mqtt", checkWarn, err.Error()}
	}
	defer client.Close() //nolint:errcheck // Check only

	if err := client.HealthCheck(ctx); err != nil {
		return checkResult{"mqtt", checkWarn, err.Error()}
	}
	return checkResult{"mqtt", checkOK, fmt.Sprintf("%s:%d", a.cfg.MQTT.Broker.Host, a.cfg.MQTT.Broker.Port)}
}

func (a *app) checkInfluxDB(ctx context.Context) checkResult {
	if !a.cfg.InfluxDB.Enabled {
		return checkResult{"influxdb", checkDisabled, ""}
	}
	client, err := influxdb.Connect(ctx, a.cfg.InfluxDB)
	if err != nil {
		return checkResult{"influxdb", checkWarn, err.Error()}
	}
	defer client.Close() //nolint:errcheck // Check only

	if err := client.HealthCheck(ctx); err != nil {
		return checkResult{"influxdb", checkWarn, err.Error()}
	}
	return checkResult{"influxdb", checkOK, a.cfg.InfluxDB.URL}
}
