package reachability

import (
	"net"
	"strings"
)

// DefaultCellularPrefixes are interface name prefixes used by cellular modems on Linux, Android and iOS.
var DefaultCellularPrefixes = []string{"wwan", "rmnet", "ccmni", "pdp_ip", "ppp"}

// Interface is the subset of net.Interface the prober needs.
type Interface struct {
	Name     string
	Up       bool
	Loopback bool
	HasIPv4  bool
}

// InterfaceProber derives path flags from the host's network interfaces. Any usable
// non-cellular interface counts as Wi-Fi; only cellular interfaces counts as WWAN.
type InterfaceProber struct {
	CellularPrefixes []string
	// List returns the interfaces to inspect. Defaults to the host's interfaces.
	List func() ([]Interface, error)
}

// NewInterfaceProber creates a prober with the given cellular prefixes (defaults when empty).
func NewInterfaceProber(cellularPrefixes []string) *InterfaceProber {
	if len(cellularPrefixes) == 0 {
		cellularPrefixes = DefaultCellularPrefixes
	}
	return &InterfaceProber{CellularPrefixes: cellularPrefixes, List: hostInterfaces}
}

// Probe implements Prober.
func (p *InterfaceProber) Probe() (Flags, bool) {
	list := p.List
	if list == nil {
		list = hostInterfaces
	}
	ifaces, err := list()
	if err != nil {
		return 0, false
	}
	var wifi, cellular bool
	for _, ifc := range ifaces {
		if !ifc.Up || ifc.Loopback || !ifc.HasIPv4 {
			continue
		}
		if p.isCellular(ifc.Name) {
			cellular = true
		} else {
			wifi = true
		}
	}
	switch {
	case wifi:
		return FlagReachable, true
	case cellular:
		return FlagReachable | FlagIsWWAN, true
	default:
		return 0, true
	}
}

func (p *InterfaceProber) isCellular(name string) bool {
	for _, prefix := range p.CellularPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

func hostInterfaces() ([]Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	out := make([]Interface, 0, len(ifaces))
	for _, ifc := range ifaces {
		entry := Interface{
			Name:     ifc.Name,
			Up:       ifc.Flags&net.FlagUp != 0,
			Loopback: ifc.Flags&net.FlagLoopback != 0,
		}
		if addrs, err := ifc.Addrs(); err == nil {
			for _, a := range addrs {
				if ipnet, ok := a.(*net.IPNet); ok && ipnet.IP.To4() != nil {
					entry.HasIPv4 = true
					break
				}
			}
		}
		out = append(out, entry)
	}
	return out, nil
}
