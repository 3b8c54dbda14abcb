// Package process supervises the packet-processing child for the duration
// of one run.
//
// The child is started as the leader of a new process group, so a Ctrl-C on
// the launcher's terminal is not delivered to it by the kernel. Instead the
// Supervisor receives the interrupt and forwards it explicitly, once per
// interrupt received, which lets the launcher stay alive to release host
// resources after the child has shut down.
//
// Example usage:
//
//	sup := process.NewSupervisor(process.Config{
//	    Name:   "l2fwd",
//	    Binary: "/opt/pv/examples/l2_fwd/l2_fwd",
//	    Env:    []string{"PV_CONFIG=" + configPath},
//	})
//
//	code, err := sup.Run(ctx)
package process
