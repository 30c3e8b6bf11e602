// Package protocol implements the SSDP message model and search matching.
//
// SSDP messages are HTTP-like text datagrams sent over UDP, usually to the
// multicast group 239.255.255.250:1900. This package parses and encodes them
// and exposes the header-derived values the discovery engine needs.
//
// # Wire Format
//
//	NOTIFY * HTTP/1.1\r\n
//	HOST: 239.255.255.250:1900\r\n
//	CACHE-CONTROL: max-age=1800\r\n
//	LOCATION: http://192.168.1.10:8200/rootDesc.xml\r\n
//	NT: upnp:rootdevice\r\n
//	NTS: ssdp:alive\r\n
//	USN: uuid:4d696e69-444c-164e-9d41-b827eb96c6c2\r\n
//	\r\n
//
// A message starts with either a request line (M-SEARCH, NOTIFY) or a
// status line (HTTP/1.1 200 OK for search responses), followed by header
// lines. Header names are case-insensitive, values are kept verbatim and a
// name may repeat; derived accessors use the first occurrence.
//
// # Message Kinds
//
//   - KindMSearch: discovery request (ST, MX, MAN)
//   - KindAlive, KindUpdate, KindByeBye: NOTIFY with the matching NTS
//   - KindSearchResponse: 200 OK carrying ST and USN
//   - KindOtherRequest, KindOtherResponse: anything else that parses
//
// # Usage Example - Parsing
//
//	msg, err := protocol.Parse(datagram)
//	if err != nil {
//	    // errors.Is(err, protocol.ErrMalformedMessage)
//	    return
//	}
//	if msg.Kind() == protocol.KindAlive {
//	    fmt.Println(msg.USN(), "expires", msg.Expiration())
//	}
//
// # Usage Example - Construction
//
//	search := protocol.NewMSearch(3, protocol.SearchAll)
//	conn.WriteTo(search.Encode(), group)
//
// # Expiration
//
// Expiration is the DATE header (or the receipt time when DATE is absent)
// plus the CACHE-CONTROL max-age. It is computed once per message.
//
// # Matching
//
// Matches decides whether a search target is satisfied by a notification
// type. ssdp:all matches everything, uuid targets need equality, and urn
// targets accept any NT of the same type whose version is at least the one
// searched for.
//
// # Thread Safety
//
// Parsing, matching and construction are stateless. A Message must not be
// modified once it has been handed to the discovery service; after that it
// is safe for concurrent reads.
package protocol
