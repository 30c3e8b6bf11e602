package protocol

import (
	"bytes"
	"net/http"
	"strconv"
	"time"
)

// Message constructors for the datagrams this engine sends.
//
// Wire layout (UPnP Device Architecture 1.1, section 1):
//
//	METHOD * HTTP/1.1\r\n        or  HTTP/1.1 200 OK\r\n
//	NAME: value\r\n              one line per header, in order
//	\r\n                         end of message

const crlf = "\r\n"

func encode(startLine string, header Headers) []byte {
	var b bytes.Buffer
	b.Grow(len(startLine) + len(header)*32 + 4)
	b.WriteString(startLine)
	b.WriteString(crlf)
	for _, h := range header {
		b.WriteString(h.Name)
		b.WriteString(": ")
		b.WriteString(h.Value)
		b.WriteString(crlf)
	}
	b.WriteString(crlf)
	return b.Bytes()
}

// Encode returns the wire form of any message.
func Encode(m Message) []byte {
	return m.Encode()
}

// NewMSearch builds a multicast M-SEARCH for st, asking responders to reply
// within mx seconds.
func NewMSearch(mx int, st string) *Request {
	r := NewRequest(MethodMSearch)
	r.Header.Add(HeaderHost, HostIPv4)
	r.Header.Add(HeaderMan, ManDiscover)
	r.Header.Add(HeaderMX, strconv.Itoa(mx))
	r.Header.Add(HeaderST, st)
	return r
}

// NewNotify builds a NOTIFY with the given NTS, without LOCATION or
// CACHE-CONTROL. NewAlive and NewByeBye are the usual entry points.
func NewNotify(nts, nt, usn string) *Request {
	r := NewRequest(MethodNotify)
	r.Header.Add(HeaderHost, HostIPv4)
	r.Header.Add(HeaderNT, nt)
	r.Header.Add(HeaderNTS, nts)
	r.Header.Add(HeaderUSN, usn)
	return r
}

// NewAlive builds a ssdp:alive NOTIFY advertising nt under usn.
func NewAlive(nt, usn, location string, maxAge time.Duration) *Request {
	r := NewNotify(NTSAlive, nt, usn)
	r.Header.Add(HeaderCacheControl, cacheControl(maxAge))
	r.Header.Add(HeaderLocation, location)
	return r
}

// NewUpdate builds a ssdp:update NOTIFY advertising nt under usn.
func NewUpdate(nt, usn, location string, maxAge time.Duration) *Request {
	r := NewNotify(NTSUpdate, nt, usn)
	r.Header.Add(HeaderCacheControl, cacheControl(maxAge))
	r.Header.Add(HeaderLocation, location)
	return r
}

// NewByeBye builds a ssdp:byebye NOTIFY withdrawing nt under usn.
func NewByeBye(nt, usn string) *Request {
	return NewNotify(NTSByeBye, nt, usn)
}

// NewSearchResponse builds the unicast 200 OK sent in answer to an M-SEARCH.
func NewSearchResponse(st, usn, location string, maxAge time.Duration) *Response {
	r := NewResponse(http.StatusOK, "OK")
	r.Header.Add(HeaderCacheControl, cacheControl(maxAge))
	r.Header.Add(HeaderDate, r.timestamp.UTC().Format(http.TimeFormat))
	r.Header.Add(HeaderExt, "")
	r.Header.Add(HeaderLocation, location)
	r.Header.Add(HeaderST, st)
	r.Header.Add(HeaderUSN, usn)
	return r
}

func cacheControl(maxAge time.Duration) string {
	return "max-age=" + strconv.Itoa(int(maxAge/time.Second))
}
