package protocol

import (
	"net"
	"strconv"
	"strings"
	"time"
)

// MaxDatagramSize bounds the datagrams the parser accepts.
const MaxDatagramSize = 8192

// Parse decodes a datagram, trying a response first and then a request.
// The message is stamped with the current time.
func Parse(data []byte) (Message, error) {
	return ParseDatagram(data, nil, time.Now())
}

// ParseDatagram decodes a datagram received from addr at the given time.
func ParseDatagram(data []byte, from net.Addr, at time.Time) (Message, error) {
	if resp, err := parseResponse(data, from, at); err == nil {
		return resp, nil
	}
	return parseRequest(data, from, at)
}

// ParseRequest decodes a datagram that must carry a request line.
func ParseRequest(data []byte) (*Request, error) {
	return parseRequest(data, nil, time.Now())
}

// ParseResponse decodes a datagram that must carry a status line.
func ParseResponse(data []byte) (*Response, error) {
	return parseResponse(data, nil, time.Now())
}

func parseRequest(data []byte, from net.Addr, at time.Time) (*Request, error) {
	first, header, err := splitMessage(data)
	if err != nil {
		return nil, err
	}

	// METHOD * HTTP/1.1
	fields := strings.Fields(first)
	if len(fields) != 3 {
		return nil, malformed("bad request line", first)
	}
	if !isHTTPVersion(fields[2]) {
		return nil, malformed("bad protocol version", first)
	}
	if isHTTPVersion(fields[0]) {
		return nil, malformed("status line where request line expected", first)
	}

	return &Request{
		base:   base{Header: header, timestamp: at, remote: from},
		Method: fields[0],
		Target: fields[1],
		Proto:  fields[2],
	}, nil
}

func parseResponse(data []byte, from net.Addr, at time.Time) (*Response, error) {
	first, header, err := splitMessage(data)
	if err != nil {
		return nil, err
	}

	// HTTP/1.1 200 OK
	proto, rest, _ := strings.Cut(first, " ")
	if !isHTTPVersion(proto) {
		return nil, malformed("bad status line", first)
	}
	codeText, reason, _ := strings.Cut(strings.TrimLeft(rest, " "), " ")
	code, err := strconv.Atoi(codeText)
	if err != nil || len(codeText) != 3 || code < 100 {
		return nil, malformed("bad status code", first)
	}

	return &Response{
		base:       base{Header: header, timestamp: at, remote: from},
		Proto:      proto,
		StatusCode: code,
		Reason:     strings.TrimSpace(reason),
	}, nil
}

// splitMessage separates the start line from the header block. Lines are
// CRLF-delimited, bare LF is tolerated. Parsing stops at the first blank
// line; the trailing blank line itself is optional.
func splitMessage(data []byte) (string, Headers, error) {
	if len(data) == 0 {
		return "", nil, malformed("empty datagram", "")
	}
	if len(data) > MaxDatagramSize {
		return "", nil, malformed("datagram too large", "")
	}

	lines := strings.Split(string(data), "\n")
	first := strings.TrimRight(lines[0], "\r")
	if strings.TrimSpace(first) == "" {
		return "", nil, malformed("missing start line", "")
	}

	var header Headers
	for _, line := range lines[1:] {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			break
		}
		name, value, found := strings.Cut(line, ":")
		if !found {
			return "", nil, malformed("header line without colon", line)
		}
		name = strings.TrimSpace(name)
		if name == "" || strings.ContainsAny(name, " \t") {
			return "", nil, malformed("bad header name", line)
		}
		header = append(header, Header{Name: name, Value: strings.TrimSpace(value)})
	}

	return first, header, nil
}

func isHTTPVersion(s string) bool {
	rest, ok := strings.CutPrefix(strings.ToUpper(s), "HTTP/")
	if !ok {
		return false
	}
	major, minor, found := strings.Cut(rest, ".")
	if !found {
		return false
	}
	if _, err := strconv.Atoi(major); err != nil {
		return false
	}
	_, err := strconv.Atoi(minor)
	return err == nil
}
