package serial

import (
	"fmt"
	"sort"
	"strings"

	bugst "go.bug.st/serial"
)

// ListPorts returns the serial devices present on this host, USB CDC
// devices first.
func ListPorts() ([]string, error) {
	ports, err := bugst.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	sortPorts(ports)
	return ports, nil
}

func sortPorts(ports []string) {
	sort.SliceStable(ports, func(i, j int) bool {
		ai, aj := isUSB(ports[i]), isUSB(ports[j])
		if ai != aj {
			return ai
		}
		return ports[i] < ports[j]
	})
}

func isUSB(name string) bool {
	return strings.Contains(name, "ttyACM") || strings.Contains(name, "ttyUSB") ||
		strings.Contains(name, "usbmodem")
}
