// Package discovery advertises and finds smartrelay daemons with mDNS.
//
// A running daemon registers its REST API as a "_smartrelay._tcp" service.
// The instance name is the device name. TXT records carry:
//
//	name=<device name>
//	udn=<WeMo UDN of the device>
//	version=<daemon version>
//	path=/api/v1
//
// The CLI browses for the same service type so commands like "status" can
// find a daemon without being told its address.
//
// # Usage Example
//
//	adv := discovery.NewAdvertiser("_smartrelay._tcp", "")
//	if err := adv.Advertise(info); err != nil {
//	    return err
//	}
//	defer adv.Shutdown()
//
//	devices, err := discovery.NewScanner().ScanForDevices(ctx)
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Daemon and client must share a network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
