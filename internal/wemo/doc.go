// Package wemo emulates Belkin WeMo smart plugs so that voice assistants on
// the LAN can find and switch the controlled device.
//
// # Discovery
//
// A single SSDP responder listens on 239.255.255.250:1900 and answers
// M-SEARCH requests for any of these search targets:
//
//	ssdp:all
//	upnp:rootdevice
//	urn:Belkin:device:**
//	urn:Belkin:device:controllee:1
//	urn:Belkin:service:basicevent:1
//
// Each answer points the assistant at the device's setup.xml.
//
// # Control
//
// Every virtual device gets its own HTTP server (gin) serving
//
//	GET  /setup.xml
//	GET  /eventservice.xml
//	GET  /metainfoservice.xml
//	POST /upnp/control/basicevent1   SetBinaryState, GetBinaryState
//
// SetBinaryState requests are not applied on the HTTP goroutine. They are
// queued and handed to the OnSetState callback from Handle, which the poll
// loop calls once per tick, so the callback runs on the loop goroutine like
// every other controller input.
//
// # Identity
//
// Serial numbers and UDNs are derived from the device name with name-based
// UUIDs, so a renamed device looks new to the assistant and an unchanged
// one survives restarts.
package wemo
