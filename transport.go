package serial

import (
	"time"

	gobug "go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Port is the subset of go.bug.st/serial.Port a session drives.
type Port interface {
	SetReadTimeout(timeout time.Duration) error
	SetDTR(bool) error
	SetRTS(bool) error
	Write([]byte) (int, error)
	Read([]byte) (int, error)
	Close() error
}

// Opener claims the device at path with the given line settings.
type Opener func(path string, cfg Config) (Port, error)

// allow tests to override external dependencies
var (
	openPort            = func(name string, mode *gobug.Mode) (Port, error) { return gobug.Open(name, mode) }
	getPortsList        = gobug.GetPortsList
	getDetailedPortList = enumerator.GetDetailedPortsList
)

func defaultOpener(path string, cfg Config) (Port, error) {
	return openPort(path, cfg.mode())
}
