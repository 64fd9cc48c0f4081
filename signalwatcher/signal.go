// Package signalwatcher turns process signals into callbacks.
package signalwatcher

type Signal string

func (s Signal) String() string {
	return string(s)
}

const (
	HUP  = Signal("HUP")
	INT  = Signal("INT")
	QUIT = Signal("QUIT")
	TERM = Signal("TERM")
)
