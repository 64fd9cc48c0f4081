package signalwatcher

import (
	"os"
	"os/signal"
)

// Watch calls callback in a new goroutine for every interrupt the process
// receives, until stop is called.
func Watch(callback func(Signal)) (stop func()) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt)

	go func() {
		for range signals {
			go callback(INT)
		}
	}()

	return func() {
		signal.Stop(signals)
		close(signals)
	}
}
