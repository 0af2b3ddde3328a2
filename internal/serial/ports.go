package serial

import (
	"path/filepath"
	"strings"

	"go.bug.st/serial/enumerator"
)

// PortInfo holds details about a serial port.
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
}

// Handle returns the kernel device name without the /dev/ prefix, e.g.
// "ttyACM0".
func (p PortInfo) Handle() string {
	return filepath.Base(p.Name)
}

// Lister lists the serial ports present on the host.
type Lister interface {
	ListPorts() ([]PortInfo, error)
}

// HostLister lists ports through the OS enumerator.
type HostLister struct{}

// ListPorts implements Lister.
func (HostLister) ListPorts() ([]PortInfo, error) {
	return ListPorts()
}

// ListPorts returns available serial ports.
func ListPorts() ([]PortInfo, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}

	var result []PortInfo
	for _, p := range ports {
		result = append(result, PortInfo{
			Name:         p.Name,
			IsUSB:        p.IsUSB,
			VID:          p.VID,
			PID:          p.PID,
			SerialNumber: p.SerialNumber,
		})
	}
	return result, nil
}

// FindBySerial returns the USB port reporting serial, compared without
// regard to case.
func FindBySerial(ports []PortInfo, serial string) (PortInfo, bool) {
	if serial == "" {
		return PortInfo{}, false
	}
	for _, p := range ports {
		if p.IsUSB && strings.EqualFold(p.SerialNumber, serial) {
			return p, true
		}
	}
	return PortInfo{}, false
}
