// ABOUTME: Version constants for this endpoint build
// ABOUTME: Surfaced in client identification and hello handshakes
package version

// Version is the endpoint's semantic version, overridable at link time via
// -ldflags "-X github.com/airwave/endpoint/internal/version.Version=...".
var Version = "0.1.0"

// Product is the human-readable product name reported to servers.
const Product = "Airwave Endpoint"

// Manufacturer identifies the maker of this endpoint implementation.
const Manufacturer = "Airwave"
