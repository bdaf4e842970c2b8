//go:build linux

package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/romshark/cecpoll/cec"
)

var capNames = []struct {
	bit  uint32
	name string
}{
	{cec.CapPhysAddr, "phys-addr"},
	{cec.CapLogAddrs, "log-addrs"},
	{cec.CapTransmit, "transmit"},
	{cec.CapPassthrough, "passthrough"},
	{cec.CapRC, "rc"},
	{cec.CapMonitorAll, "monitor-all"},
	{cec.CapNeedsHPD, "needs-hpd"},
	{cec.CapMonitorPin, "monitor-pin"},
	{cec.CapConnInfo, "conn-info"},
	{cec.CapReplyVendor, "reply-vendor"},
}

func capList(c uint32) string {
	var names []string
	for _, cn := range capNames {
		if c&cn.bit != 0 {
			names = append(names, cn.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, " ")
}

func main() {
	fDevice := flag.String("d", "/dev/cec0", "cec device path")
	flag.Parse()

	dev, err := cec.Open(*fDevice)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer dev.Close()

	caps, err := dev.Caps()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	major, minor, patch := caps.KernelVersion()

	fmt.Printf("%s:\n", dev.Name())
	fmt.Printf("  driver          %s\n", caps.DriverName())
	fmt.Printf("  adapter         %s\n", caps.AdapterName())
	fmt.Printf("  api version     %d.%d.%d\n", major, minor, patch)
	fmt.Printf("  logical addrs   %d available\n", caps.AvailableLogAddrs)
	fmt.Printf("  capabilities    %s\n", capList(caps.Capabilities))

	if mode, err := dev.Mode(); err != nil {
		fmt.Fprintf(os.Stderr, "reading mode: %v\n", err)
	} else {
		fmt.Printf("  mode            %s\n", mode)
	}
}
