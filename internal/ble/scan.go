package ble

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"tinygo.org/x/bluetooth"
)

// ScanResult is one advertisement observed during a Scan call.
type ScanResult struct {
	MAC       string
	Name      string
	RSSI      int16
	IsPump    bool
	ServiceUs []string
}

// Scan listens for BLE advertisements for duration and returns everything
// it saw, strongest signal first. It is the library form of the
// `scan` CLI command; it enables the adapter itself so it can be used
// standalone.
func Scan(duration time.Duration) ([]ScanResult, error) {
	if err := ensureAdapterEnabled(); err != nil {
		return nil, fmt.Errorf("ble: enable adapter: %w", err)
	}

	seen := make(map[string]ScanResult)
	done := make(chan struct{})

	go func() {
		time.Sleep(duration)
		bluetooth.DefaultAdapter.StopScan()
		close(done)
	}()

	err := bluetooth.DefaultAdapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		mac := result.Address.String()
		seen[mac] = ScanResult{
			MAC:    mac,
			Name:   result.LocalName(),
			RSSI:   result.RSSI,
			IsPump: isPumpAdvertisement(result.LocalName()),
		}
	})
	if err != nil {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}
	<-done

	out := make([]ScanResult, 0, len(seen))
	for _, r := range seen {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RSSI > out[j].RSSI })
	return out, nil
}

func isPumpAdvertisement(name string) bool {
	lower := strings.ToLower(name)
	for _, pattern := range NameSubstrings {
		if strings.Contains(lower, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}

// PrintReport renders the scan results in the style of the scan utility
// this is modeled on: pumps found first, with a ready-to-paste config.yaml
// fragment, then (optionally) everything else seen during the scan.
func PrintReport(w io.Writer, results []ScanResult, showAll bool) {
	var pumps, others []ScanResult
	for _, r := range results {
		if r.IsPump {
			pumps = append(pumps, r)
		} else {
			others = append(others, r)
		}
	}

	if len(pumps) == 0 {
		fmt.Fprintln(w, "no pumps found")
		fmt.Fprintln(w, "- is the pump powered on and not connected to its vendor app?")
		fmt.Fprintln(w, "- try moving closer or scanning for longer")
	} else {
		fmt.Fprintf(w, "%d pump(s) found:\n\n", len(pumps))
		for _, p := range pumps {
			fmt.Fprintf(w, "  MAC:    %s\n", p.MAC)
			fmt.Fprintf(w, "  Name:   %s\n", p.Name)
			fmt.Fprintf(w, "  Signal: %d dBm %s\n\n", p.RSSI, signalQuality(p.RSSI))
		}

		fmt.Fprintln(w, "Add to your config.yaml:")
		fmt.Fprintln(w, "pumps:")
		for i, p := range pumps {
			fmt.Fprintf(w, "  - display_name: \"Wavemaker %d\"\n", i+1)
			fmt.Fprintf(w, "    mac: \"%s\"\n", p.MAC)
		}
	}

	if showAll && len(others) > 0 {
		fmt.Fprintf(w, "\nother BLE devices (%d):\n", len(others))
		for _, o := range others {
			name := o.Name
			if name == "" {
				name = "(unnamed)"
			}
			fmt.Fprintf(w, "  %s  %4d dBm  %s\n", o.MAC, o.RSSI, name)
		}
	}
}

func signalQuality(rssi int16) string {
	switch {
	case rssi > -60:
		return "(strong)"
	case rssi > -80:
		return "(good)"
	default:
		return "(weak - move closer)"
	}
}
