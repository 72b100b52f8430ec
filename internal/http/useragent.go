package http

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	utls "github.com/refraction-networking/utls"
)

// BrowserProfile is a user agent preset: the header set a browser sends
// and the TLS ClientHello it is recognised by
type BrowserProfile struct {
	Name            string
	UserAgent       string
	Accept          string
	AcceptLanguage  string
	SecChUA         string
	SecChUAPlatform string
	SecChUAMobile   string
	ClientHello     utls.ClientHelloID
}

// TLSFingerprint names the ClientHello, e.g. "Chrome_131"
func (p BrowserProfile) TLSFingerprint() string {
	if p.ClientHello.Client == "" {
		return ""
	}
	return fmt.Sprintf("%s_%s", p.ClientHello.Client, p.ClientHello.Version)
}

// DefaultUserAgent is the preset name that leaves the choice to the backend
const DefaultUserAgent = "default"

const (
	acceptChromium = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8"
	acceptFirefox  = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"
	acceptSafari   = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	chromeUA       = `"Google Chrome";v="131", "Chromium";v="131", "Not_A Brand";v="24"`
)

var browserProfiles = map[string]BrowserProfile{
	"chrome_windows": {
		UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		Accept:          acceptChromium,
		AcceptLanguage:  "en-US,en;q=0.9",
		SecChUA:         chromeUA,
		SecChUAPlatform: `"Windows"`,
		SecChUAMobile:   "?0",
		ClientHello:     utls.HelloChrome_131,
	},
	"chrome_mac": {
		UserAgent:       "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		Accept:          acceptChromium,
		AcceptLanguage:  "en-US,en;q=0.9",
		SecChUA:         chromeUA,
		SecChUAPlatform: `"macOS"`,
		SecChUAMobile:   "?0",
		ClientHello:     utls.HelloChrome_131,
	},
	"chrome_linux": {
		UserAgent:       "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		Accept:          acceptChromium,
		AcceptLanguage:  "en-US,en;q=0.9",
		SecChUA:         chromeUA,
		SecChUAPlatform: `"Linux"`,
		SecChUAMobile:   "?0",
		ClientHello:     utls.HelloChrome_133,
	},
	"firefox_windows": {
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:134.0) Gecko/20100101 Firefox/134.0",
		Accept:         acceptFirefox,
		AcceptLanguage: "en-US,en;q=0.5",
		ClientHello:    utls.HelloFirefox_120,
	},
	"firefox_mac": {
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:134.0) Gecko/20100101 Firefox/134.0",
		Accept:         acceptFirefox,
		AcceptLanguage: "en-US,en;q=0.5",
		ClientHello:    utls.HelloFirefox_120,
	},
	"safari_mac": {
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.2 Safari/605.1.15",
		Accept:         acceptSafari,
		AcceptLanguage: "en-US,en;q=0.9",
		ClientHello:    utls.HelloSafari_16_0,
	},
	"edge_windows": {
		UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36 Edg/131.0.0.0",
		Accept:          acceptChromium,
		AcceptLanguage:  "en-US,en;q=0.9",
		SecChUA:         `"Microsoft Edge";v="131", "Chromium";v="131", "Not_A Brand";v="24"`,
		SecChUAPlatform: `"Windows"`,
		SecChUAMobile:   "?0",
		ClientHello:     utls.HelloEdge_106,
	},
	"chrome_android": {
		UserAgent:       "Mozilla/5.0 (Linux; Android 10; K) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Mobile Safari/537.36",
		Accept:          acceptChromium,
		AcceptLanguage:  "en-US,en;q=0.9",
		SecChUA:         chromeUA,
		SecChUAPlatform: `"Android"`,
		SecChUAMobile:   "?1",
		ClientHello:     utls.HelloChrome_120,
	},
	"safari_ios": {
		UserAgent:      "Mozilla/5.0 (iPhone; CPU iPhone OS 18_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.2 Mobile/15E148 Safari/604.1",
		Accept:         acceptSafari,
		AcceptLanguage: "en-US,en;q=0.9",
		ClientHello:    utls.HelloIOS_14,
	},
}

// PresetNames lists the built-in user agent presets, sorted
func PresetNames() []string {
	names := make([]string, 0, len(browserProfiles)+1)
	names = append(names, DefaultUserAgent)
	for name := range browserProfiles {
		names = append(names, name)
	}
	sort.Strings(names[1:])
	return names
}

// Preset returns the named browser profile
func Preset(name string) (BrowserProfile, bool) {
	p, ok := browserProfiles[strings.ToLower(strings.TrimSpace(name))]
	if ok {
		p.Name = strings.ToLower(strings.TrimSpace(name))
	}
	return p, ok
}

// ResolveUserAgent turns a user agent option into the literal string and
// TLS fingerprint to send. "default" and "" resolve to nothing; unknown
// values are treated as a custom user agent string with no fingerprint.
func ResolveUserAgent(value string) (userAgent, tlsFingerprint string) {
	value = strings.TrimSpace(value)
	if value == "" || strings.EqualFold(value, DefaultUserAgent) {
		return "", ""
	}
	if p, ok := Preset(value); ok {
		return p.UserAgent, p.TLSFingerprint()
	}
	return value, ""
}

// ApplyHeaders sets the browser headers of the named preset, or a bare
// User-Agent for custom values, on req
func ApplyHeaders(req *http.Request, value string) {
	p, ok := Preset(value)
	if !ok {
		if ua, _ := ResolveUserAgent(value); ua != "" {
			req.Header.Set("User-Agent", ua)
		}
		return
	}

	req.Header.Set("User-Agent", p.UserAgent)
	req.Header.Set("Accept", p.Accept)
	req.Header.Set("Accept-Language", p.AcceptLanguage)
	if p.SecChUA != "" {
		req.Header.Set("Sec-Ch-Ua", p.SecChUA)
	}
	if p.SecChUAPlatform != "" {
		req.Header.Set("Sec-Ch-Ua-Platform", p.SecChUAPlatform)
	}
	if p.SecChUAMobile != "" {
		req.Header.Set("Sec-Ch-Ua-Mobile", p.SecChUAMobile)
	}
}
