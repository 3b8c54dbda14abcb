// Package influxdb writes launcher run metrics to InfluxDB v2.
//
// Two measurements are written:
//   - pvrun_run: one point per launch (exit code, reservation size, duration)
//   - pvrun_step: one point per resource acquisition or release
//
// Writes are batched and non-blocking. Close flushes whatever is buffered,
// so the launcher calls it before exiting.
//
// Usage:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteRun(influxdb.RunMetric{App: app, ExitCode: code})
package influxdb
