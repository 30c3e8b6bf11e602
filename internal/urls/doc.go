// Package urls holds the reference documents linked from help text and
// troubleshooting output.
//
// Usage:
//
//	import "github.com/muurk/ssdp/internal/urls"
//
//	fmt.Printf("For more information, see: %s\n", urls.DeviceArchitecture)
package urls
