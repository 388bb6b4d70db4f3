package link

import (
	"errors"
	"fmt"
	"strings"

	"go.bug.st/serial/enumerator"
)

// AutoPort requests automatic port selection.
const AutoPort = "auto"

// ErrNoPorts is returned when no serial port is available.
var ErrNoPorts = errors.New("no serial ports found")

// PortInfo describes a serial port.
type PortInfo struct {
	Name        string
	Description string
	IsUSB       bool
	VID, PID    string
}

// Ports returns the available serial ports.
func Ports() ([]PortInfo, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]PortInfo, 0, len(ports))
	for _, p := range ports {
		desc := p.Name
		if p.Product != "" {
			desc = p.Product
		}
		result = append(result, PortInfo{
			Name:        p.Name,
			Description: desc,
			IsUSB:       p.IsUSB,
			VID:         strings.ToUpper(p.VID),
			PID:         strings.ToUpper(p.PID),
		})
	}
	return result, nil
}

// AutoSelect returns the name of the preferred available port.
func AutoSelect() (string, error) {
	ports, err := Ports()
	if err != nil {
		return "", err
	}
	return SelectPort(ports)
}

// SelectPort picks the first USB port with a known microcontroller vendor, then any USB
// port, then the first port.
func SelectPort(ports []PortInfo) (string, error) {
	for _, p := range ports {
		if p.IsUSB && knownVendors[p.VID] {
			return p.Name, nil
		}
	}
	for _, p := range ports {
		if p.IsUSB {
			return p.Name, nil
		}
	}
	if len(ports) > 0 {
		return ports[0].Name, nil
	}
	return "", ErrNoPorts
}

// USB vendor IDs of common microcontroller boards and USB-UART bridges.
var knownVendors = map[string]bool{
	"2E8A": true, // Raspberry Pi (Pico)
	"2886": true, // Seeed (XIAO)
	"239A": true, // Adafruit
	"2341": true, // Arduino
	"10C4": true, // Silicon Labs CP210x
	"1A86": true, // WCH CH34x
	"0403": true, // FTDI
}
