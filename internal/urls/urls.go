package urls

// DeviceArchitecture is the UPnP Device Architecture 2.0 document. Section 1
// defines SSDP discovery, advertisement and search.
const DeviceArchitecture = "https://openconnectivity.org/upnp-specs/UPnP-arch-DeviceArchitecture-v2.0-20200417.pdf"

// SSDPDraft is the original IETF SSDP draft.
const SSDPDraft = "https://datatracker.ietf.org/doc/html/draft-cai-ssdp-v1-03"

// DNSSD is RFC 6763, used by the DNS-SD mirror.
const DNSSD = "https://www.rfc-editor.org/rfc/rfc6763"
