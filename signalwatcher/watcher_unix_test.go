//go:build !windows

package signalwatcher

import (
	"os"
	"syscall"
	"testing"
	"time"
)

func TestWatchReportsTheSignalReceived(t *testing.T) {
	got := make(chan Signal, 1)
	stop := Watch(func(sig Signal) { got <- sig })
	defer stop()

	for sig, want := range map[syscall.Signal]Signal{
		syscall.SIGHUP:  HUP,
		syscall.SIGINT:  INT,
		syscall.SIGTERM: TERM,
	} {
		if err := syscall.Kill(os.Getpid(), sig); err != nil {
			t.Fatalf("syscall.Kill(self, %v) error = %v", sig, err)
		}

		select {
		case s := <-got:
			if s != want {
				t.Errorf("after %v callback got %v, want %v", sig, s, want)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("callback was not called within 5s of %v", sig)
		}
	}
}
