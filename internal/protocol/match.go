package protocol

import (
	"net/url"
	"strconv"
	"strings"
)

// Matches reports whether a search target is satisfied by a notification
// type:
//
//   - ssdp:all matches everything
//   - equal URIs (ignoring case) match
//   - uuid: targets match only by equality
//   - urn: targets match an NT of the same case-folded prefix whose trailing
//     version is at least the searched one
//
// It never panics; anything that fails to parse does not match.
func Matches(st, nt string) bool {
	st = strings.TrimSpace(st)
	nt = strings.TrimSpace(nt)
	if st == "" || nt == "" {
		return false
	}
	if strings.EqualFold(st, SearchAll) {
		return true
	}
	if strings.EqualFold(st, nt) {
		return true
	}

	target, err := url.Parse(st)
	if err != nil || !strings.EqualFold(target.Scheme, "urn") {
		return false
	}
	return versionSatisfies(st, nt)
}

// MatchesURI is Matches over parsed URIs. A nil argument never matches.
func MatchesURI(st, nt *url.URL) bool {
	if st == nil || nt == nil {
		return false
	}
	return Matches(st.String(), nt.String())
}

// Matcher returns a predicate bound to st for filtering notification types.
func Matcher(st string) func(nt string) bool {
	return func(nt string) bool {
		return Matches(st, nt)
	}
}

// versionSatisfies compares urn:domain:kind:type:v strings. Both prefixes up
// to the last colon must agree, so URNs from different families never match
// even when both end in a number.
func versionSatisfies(st, nt string) bool {
	stPrefix, stVersion, ok := splitVersion(st)
	if !ok {
		return false
	}
	ntPrefix, ntVersion, ok := splitVersion(nt)
	if !ok {
		return false
	}
	if stPrefix != ntPrefix {
		return false
	}
	return stVersion <= ntVersion
}

func splitVersion(uri string) (prefix string, version int, ok bool) {
	i := strings.LastIndexByte(uri, ':')
	if i <= 0 || i == len(uri)-1 {
		return "", 0, false
	}
	v := uri[i+1:]
	for _, c := range v {
		if c < '0' || c > '9' {
			return "", 0, false
		}
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return "", 0, false
	}
	return strings.ToLower(uri[:i]), n, true
}
