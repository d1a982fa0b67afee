// Package device implements the controller for one relay-switched device.
//
// The controller takes three inputs: a remote command from the network, a
// physical button sampled once per tick, and the boot default. It folds them
// into one power state and drives two outputs from that state. The relay is
// energized when the device is on. The status LED is illuminated when it is
// off.
//
// Usage:
//
//	pins := gpio.NewSim(gpio.High)
//	ctrl := device.NewController(0, "office light", pins, device.PinsFromConfig(cfg.Pins))
//	if err := ctrl.Boot(); err != nil {
//		return err
//	}
//	ctrl.AddReporter(transport)
//	for range ticker.C {
//		ctrl.Tick()
//	}
//
// Edge detection compares each button sample with the previous one, so a
// press toggles exactly once however long the button is held. Sampling at a
// fixed tick is the only debounce.
package device
