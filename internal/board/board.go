// Package board describes the lab boards and maps logical ids to the devices currently attached.
package board

import (
	"errors"
	"path/filepath"
	"strings"
)

var (
	// ErrUnknownBoard is returned for logical ids that are not configured.
	ErrUnknownBoard = errors.New("unknown board")
	// ErrBoardNotConnected is returned when enumeration cannot find a
	// configured board. The session cannot start without it.
	ErrBoardNotConnected = errors.New("board not connected")
)

// Config is the static description of a board slot.
type Config struct {
	ID      string `mapstructure:"id" json:"id" yaml:"id"`
	Name    string `mapstructure:"name" json:"name" yaml:"name"`
	Model   string `mapstructure:"model" json:"model" yaml:"model"`
	FQBN    string `mapstructure:"fqbn" json:"fqbn" yaml:"fqbn"`
	USBPort string `mapstructure:"usb_port" json:"usb_port" yaml:"usb_port"`
}

// Platform returns the FQBN in file-name form, e.g. arduino.avr.uno.
func (c Config) Platform() string {
	return strings.ReplaceAll(c.FQBN, ":", ".")
}

// USBPath returns the kernel USB path of the board below hub, e.g. 1-1.2.
func (c Config) USBPath(hub string) string {
	if hub == "" {
		return c.USBPort
	}
	return hub + "." + c.USBPort
}

// Board is a Config bound to the physical device currently attached.
type Board struct {
	Config `yaml:",inline"`

	SerialNumber string `json:"serial_number" yaml:"serial_number"`
	// Handle is the tty name assigned by the kernel (ttyACM0). It can change
	// whenever the device is re-enumerated.
	Handle string `json:"handle" yaml:"handle"`
}

// Valid reports whether both identity fields are resolved.
func (b Board) Valid() bool {
	return b.SerialNumber != "" && b.Handle != ""
}

// DevicePath returns the device file for the current handle.
func (b Board) DevicePath() string {
	if b.Handle == "" {
		return ""
	}
	if filepath.IsAbs(b.Handle) {
		return b.Handle
	}
	return filepath.Join("/dev", b.Handle)
}
