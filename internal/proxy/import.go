package proxy

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/BenjaminSRussell/scrapedeck/internal/types"
)

// ParseLine parses one proxy in any of these forms:
//
//	host:port
//	host:port:user:pass
//	scheme://[user:pass@]host:port
//
// A missing scheme means http.
func ParseLine(line string) (types.Proxy, error) {
	line = strings.TrimSpace(line)
	p := types.Proxy{ProxyType: types.ProxyHTTP, IsActive: true}

	if strings.Contains(line, "://") {
		u, err := url.Parse(line)
		if err != nil {
			return p, fmt.Errorf("invalid proxy %q: %w", line, err)
		}
		p.ProxyType = types.ProxyType(strings.ToLower(u.Scheme))
		p.Address = u.Hostname()
		port, err := types.ParseFlexInt(u.Port())
		if err != nil || u.Port() == "" {
			return p, fmt.Errorf("invalid proxy %q: missing port", line)
		}
		p.Port = port
		if u.User != nil {
			p.Username = u.User.Username()
			p.Password, _ = u.User.Password()
		}
	} else {
		parts := strings.Split(line, ":")
		switch len(parts) {
		case 2, 4:
			p.Address = parts[0]
			port, err := types.ParseFlexInt(parts[1])
			if err != nil {
				return p, fmt.Errorf("invalid proxy %q: bad port", line)
			}
			p.Port = port
			if len(parts) == 4 {
				p.Username, p.Password = parts[2], parts[3]
			}
		default:
			return p, fmt.Errorf("invalid proxy %q: want host:port", line)
		}
	}

	Normalize(&p)
	if err := Validate(p); err != nil {
		return p, fmt.Errorf("invalid proxy %q: %w", line, err)
	}
	return p, nil
}

// ParseList reads one proxy per line, skipping blanks and # comments.
// Lines that fail to parse are returned as errors with their line
// number; the rest are returned in order.
func ParseList(r io.Reader) ([]types.Proxy, []error) {
	var proxies []types.Proxy
	var errs []error

	scanner := bufio.NewScanner(r)
	n := 0
	for scanner.Scan() {
		n++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		p, err := ParseLine(line)
		if err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", n, err))
			continue
		}
		proxies = append(proxies, p)
	}
	if err := scanner.Err(); err != nil {
		errs = append(errs, fmt.Errorf("failed to read proxy list: %w", err))
	}
	return proxies, errs
}
