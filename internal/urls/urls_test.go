package urls

import (
	"net/url"
	"testing"
)

func TestURLsAreAbsoluteHTTPS(t *testing.T) {
	for name, raw := range map[string]string{
		"DeviceArchitecture": DeviceArchitecture,
		"SSDPDraft":          SSDPDraft,
		"DNSSD":              DNSSD,
	} {
		t.Run(name, func(t *testing.T) {
			u, err := url.Parse(raw)
			if err != nil {
				t.Fatalf("url.Parse(%q) error = %v", raw, err)
			}
			if u.Scheme != "https" || u.Host == "" {
				t.Errorf("%s = %q, want an absolute https URL", name, raw)
			}
		})
	}
}
