// Package discovery runs the SSDP engine: one multicast socket, a receive
// loop, a listener fan-out and the periodic work that keeps a network view
// fresh.
//
// # Components
//
//   - Service owns the socket (through a Transport), parses every datagram
//     with the protocol package and hands the result to each Listener. It
//     moves through created, running, stopping and terminated.
//   - Scheduler runs at-fixed-rate and delayed tasks on a bounded worker
//     pool. Time comes from an injectable clock.
//   - Cache is a Listener holding the latest live announcement per USN. When
//     attached it sweeps expired entries and searches again when entries are
//     about to go stale.
//   - Announcer is a Listener that advertises a local device tree, keeps it
//     alive and answers matching M-SEARCH requests at a bounded rate.
//   - Advertise and Browser mirror root devices over DNS-SD.
//
// # Usage Example
//
//	svc, err := discovery.New(discovery.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	cache := discovery.NewCache(discovery.DefaultCacheConfig(), nil)
//	_ = svc.AddListener(cache)
//	_ = svc.Start()
//	defer svc.Stop()
//
//	svc.MSearch(3, "ssdp:all")
//	time.Sleep(4 * time.Second)
//
//	for _, e := range cache.Entries() {
//	    fmt.Println(e.USN, e.Location)
//	}
//
// # Registration
//
// Listeners that schedule their own work implement Registrant. AddListener
// calls OnRegister, which returns the tasks it created; RemoveListener and
// Stop pass those tasks back to OnUnregister and cancel them, so nothing
// outlives the service.
//
// # Thread Safety
//
// Listener delivery iterates an immutable snapshot, so listeners may be
// added and removed from any goroutine while messages are flowing. A panic
// in one callback is logged and does not affect the others.
package discovery
