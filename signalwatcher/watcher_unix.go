//go:build !windows

package signalwatcher

import (
	"os"
	"os/signal"
	"syscall"
)

var names = map[os.Signal]Signal{
	syscall.SIGHUP:  HUP,
	syscall.SIGINT:  INT,
	syscall.SIGQUIT: QUIT,
	syscall.SIGTERM: TERM,
}

// Watch calls callback in a new goroutine for every interrupt, hangup,
// terminate or quit signal the process receives, until stop is called.
// After stop the signals get their default behaviour back.
func Watch(callback func(Signal)) (stop func()) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)

	go func() {
		for sig := range signals {
			go callback(names[sig])
		}
	}()

	return func() {
		signal.Stop(signals)
		close(signals)
	}
}
