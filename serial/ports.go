package serial

import (
	"fmt"
	"path"
	"strings"

	"go.bug.st/serial/enumerator"
)

// PortKind identifies the bus a serial device hangs off. The set is
// closed; anything the platform cannot identify is KindUnknown.
type PortKind int

const (
	KindUnknown PortKind = iota
	KindUSB
	KindPCI
	KindBluetooth
)

func (k PortKind) String() string {
	switch k {
	case KindUSB:
		return "USB"
	case KindPCI:
		return "PCI"
	case KindBluetooth:
		return "Bluetooth"
	default:
		return "Unknown"
	}
}

// PortInfo describes one enumerated serial device.
type PortInfo struct {
	// Name is the device identifier used to open it (e.g. /dev/ttyUSB0).
	Name string `json:"name"`
	// Kind is the detected bus type.
	Kind PortKind `json:"-"`
	// KindLabel is the Kind rendered for transport.
	KindLabel string `json:"kind"`
	// Description is a human-readable device name.
	Description string `json:"description"`
}

// listDetailedPorts allows tests to stub out the platform enumerator.
var listDetailedPorts = enumerator.GetDetailedPortsList

// ListPorts enumerates the serial devices present on the system.
func ListPorts() ([]PortInfo, error) {
	details, err := listDetailedPorts()
	if err != nil {
		return nil, fmt.Errorf("list ports: %w", err)
	}
	infos := make([]PortInfo, 0, len(details))
	for _, d := range details {
		kind := detectPortKind(d.Name, d.IsUSB)
		infos = append(infos, PortInfo{
			Name:        d.Name,
			Kind:        kind,
			KindLabel:   kind.String(),
			Description: describePort(kind, d),
		})
	}
	return infos, nil
}

// detectPortKind derives the bus type. The enumerator only reports USB
// details, so the remaining kinds fall back to device-name conventions.
func detectPortKind(name string, isUSB bool) PortKind {
	base := path.Base(name)
	switch {
	case isUSB:
		return KindUSB
	case strings.HasPrefix(base, "rfcomm"):
		return KindBluetooth
	case strings.HasPrefix(base, "ttyS"):
		return KindPCI
	default:
		return KindUnknown
	}
}

func describePort(kind PortKind, d *enumerator.PortDetails) string {
	switch kind {
	case KindUSB:
		return usbDeviceName(d)
	case KindPCI:
		return "PCI Serial Port"
	case KindBluetooth:
		return "Bluetooth Serial Port"
	default:
		return "Unknown Serial Device"
	}
}

// usbDeviceName builds a descriptive name from the USB descriptor
// strings, falling back to VID/PID identification when they are empty.
func usbDeviceName(d *enumerator.PortDetails) string {
	if product := strings.TrimSpace(d.Product); product != "" {
		return product
	}
	return fmt.Sprintf("USB Serial (VID: %s, PID: %s)",
		strings.ToUpper(d.VID), strings.ToUpper(d.PID))
}
