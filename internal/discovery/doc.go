// Package discovery finds Project-A controllers on the local network.
//
// The primary method is a UDP broadcast exchange: the client sends a small
// number of 3-byte probes to the discovery port and collects responses until
// a deadline. Each response names the device and its TCP control port.
//
// # Sessions
//
// A Session is an explicit state object with no goroutines of its own. The
// caller starts it and then calls Poll repeatedly from any scheduler (a plain
// loop, a ticker, a Bubble Tea tick). Each Poll waits at most PollWait for a
// datagram, so the caller's own loop keeps running.
//
//	sess := discovery.NewSession()
//	if err := sess.Start(discovery.DefaultPort, 500*time.Millisecond, 2); err != nil {
//	    return err
//	}
//	for {
//	    status, err := sess.Poll(time.Now())
//	    if err != nil {
//	        return err
//	    }
//	    if status == discovery.StatusFinished {
//	        break
//	    }
//	}
//	for _, d := range sess.Devices() {
//	    fmt.Println(d.String())
//	}
//
// DiscoverDevices and Scanner wrap that loop for callers that just want the
// result.
//
// # Filtering
//
// Datagrams that are not Project-A responses (wrong device id, RESPONSE flag
// unset, truncated or non-UTF-8 name) are dropped. Only the first response
// from each source IP is kept.
//
// # mDNS
//
// MDNSScanner browses the "_projecta._tcp" DNS-SD service as a fallback for
// networks that filter broadcast. Advertise registers that service; the
// simulator uses it.
//
// # Thread Safety
//
// A Session must be driven by one goroutine at a time. Separate sessions are
// independent.
package discovery
