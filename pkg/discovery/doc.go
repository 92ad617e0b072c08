// ABOUTME: mDNS service discovery package
// ABOUTME: Discover and advertise Resonate servers on local network
// Package discovery provides mDNS service discovery for Resonate servers.
//
// Allows discovering servers on the local network and advertising
// server availability.
//
// Example:
//
//	mgr := discovery.NewManager(discovery.Config{ServiceName: "my-endpoint"})
//	err := mgr.Browse()
//	defer mgr.Stop()
//	server := <-mgr.Servers()
//	fmt.Printf("Found: %s at %s:%d\n", server.Name, server.Host, server.Port)
package discovery
