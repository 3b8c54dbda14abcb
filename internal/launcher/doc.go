// Package launcher runs a packet processing application on a prepared host.
//
// A launch loads the application's config.yaml, resolves its network
// devices, sizes the hugepage reservation, rewrites the device and EAL
// fields, encodes the result for the child, then acquires host resources
// in order, supervises the child and releases everything in reverse order.
//
// Run history, MQTT events and InfluxDB metrics observe a launch through
// the Recorder interface. Recorders are best-effort: they log their own
// failures and never change the outcome of a run.
package launcher
