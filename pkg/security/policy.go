// Package security checks the URLs the client is about to contact.
//
// Every request the client makes goes to a configured base URL, a remote token
// service or a release asset link handed out by a third party. The latter
// two are not under the user's control, so they are checked before use.
package security

import (
	"net/netip"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var ErrURLRejected = errors.New("url rejected")

// URLPolicy describes which outbound targets are acceptable.
type URLPolicy struct {
	// AllowHTTP permits plain http URLs; https is always allowed.
	AllowHTTP bool
	// AllowLocalNetworks permits localhost names and loopback, private or link-local addresses.
	AllowLocalNetworks bool
}

// Strict only accepts https URLs pointing outside the local network.
var Strict = URLPolicy{}

// Local accepts anything a test server or a local proxy may listen on.
var Local = URLPolicy{AllowHTTP: true, AllowLocalNetworks: true}

type rejection struct {
	url    string
	reason string
}

func (r *rejection) Error() string {
	return ErrURLRejected.Error() + ": " + r.url + ": " + r.reason
}

func (r *rejection) Is(target error) bool { return target == ErrURLRejected }

// Check returns an error matching ErrURLRejected when rawURL violates the policy.
// IP literals are checked without any DNS lookup.
func (p URLPolicy) Check(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return &rejection{url: rawURL, reason: err.Error()}
	}

	switch parsed.Scheme {
	case "https":
	case "http":
		if !p.AllowHTTP {
			return &rejection{url: rawURL, reason: "plain http is not allowed"}
		}
	default:
		return &rejection{url: rawURL, reason: "unsupported scheme " + strconv.Quote(parsed.Scheme)}
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return &rejection{url: rawURL, reason: "missing host"}
	}
	if p.AllowLocalNetworks {
		if addr, err := netip.ParseAddr(host); err == nil && (addr.IsUnspecified() || addr.IsMulticast()) {
			return &rejection{url: rawURL, reason: "unroutable address"}
		}
		return nil
	}

	if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local") {
		return &rejection{url: rawURL, reason: "local hostname"}
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		// a regular hostname
		return nil
	}
	if addr.Zone() != "" {
		return &rejection{url: rawURL, reason: "zoned address"}
	}
	addr = addr.Unmap()
	switch {
	case addr.IsUnspecified(), addr.IsMulticast():
		return &rejection{url: rawURL, reason: "unroutable address"}
	case addr.IsLoopback(), addr.IsPrivate(), addr.IsLinkLocalUnicast(), addr.IsLinkLocalMulticast():
		return &rejection{url: rawURL, reason: "local network address"}
	}
	return nil
}

// CheckAll checks a set of named URLs in name order and reports the first
// failure together with its name.
func (p URLPolicy) CheckAll(urls map[string]string) error {
	names := make([]string, 0, len(urls))
	for name := range urls {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := p.Check(urls[name]); err != nil {
			return errors.Wrap(err, name)
		}
	}
	return nil
}
