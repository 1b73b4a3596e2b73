// Package simulator runs a software Project-A device.
//
// It answers discovery probes on UDP, accepts control sessions on TCP and
// moves a set of simulated steppers toward their targets at a fixed rate.
// Tests use it as the device on the far side of the loopback interface; the
// "projecta simulate" command runs it on the real network for demos.
//
//	sim := simulator.New(simulator.Config{Name: "bench", Steppers: 3})
//	if err := sim.Start(ctx); err != nil {
//	    return err
//	}
//	defer sim.Close()
//
//	c := control.NewClient("127.0.0.1", sim.ControlPort())
//
// With Advertise set the simulator also registers the "_projecta._tcp" mDNS
// service so MDNSScanner can find it.
package simulator
