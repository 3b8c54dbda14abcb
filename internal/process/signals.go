package process

import (
	"os"
	"os/signal"
)

// SignalNotifier registers and unregisters signal delivery to a channel.
// Supervisor uses it to scope its interrupt handler to the child's run.
type SignalNotifier interface {
	Notify(c chan<- os.Signal, sig ...os.Signal)
	Stop(c chan<- os.Signal)
}

// OSSignals delivers real process signals via os/signal. Stopping the last
// channel registered for a signal restores its previous disposition.
type OSSignals struct{}

// Notify calls signal.Notify.
func (OSSignals) Notify(c chan<- os.Signal, sig ...os.Signal) {
	signal.Notify(c, sig...)
}

// Stop calls signal.Stop.
func (OSSignals) Stop(c chan<- os.Signal) {
	signal.Stop(c)
}
