package logic

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/avct/uasurfer"

	"github.com/patrickwarner/portalmetrics/internal/geoip"
)

// Visitor describes the client behind a tracked request.
type Visitor struct {
	IP         string
	Country    string
	DeviceType string
	Browser    string
	IsBot      bool
}

// Limiter admits or rejects a visitor key.
type Limiter interface {
	Allow(key string) bool
}

// ClassifyUA parses a User-Agent into device, browser and bot flag.
func ClassifyUA(ua string) Visitor {
	u := uasurfer.Parse(ua)

	var device string
	switch u.DeviceType {
	case uasurfer.DeviceComputer:
		device = "desktop"
	case uasurfer.DevicePhone:
		device = "mobile"
	case uasurfer.DeviceTablet:
		device = "tablet"
	default:
		device = "other"
	}

	return Visitor{
		DeviceType: device,
		Browser:    strings.TrimPrefix(u.Browser.Name.String(), "Browser"),
		IsBot:      u.IsBot(),
	}
}

// TrustedProxies lists the networks whose X-Forwarded-For headers are
// believed. The zero value trusts nobody.
type TrustedProxies []*net.IPNet

// ParseTrustedProxies parses a comma separated list of CIDRs or bare IPs.
func ParseTrustedProxies(list string) (TrustedProxies, error) {
	var out TrustedProxies
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.Contains(part, "/") {
			ip := net.ParseIP(part)
			if ip == nil {
				return nil, fmt.Errorf("invalid proxy address %q", part)
			}
			bits := 128
			if ip.To4() != nil {
				ip, bits = ip.To4(), 32
			}
			out = append(out, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(part)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy network %q: %w", part, err)
		}
		out = append(out, n)
	}
	return out, nil
}

// Contains reports whether addr belongs to a trusted network.
func (t TrustedProxies) Contains(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range t {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP returns the originating address of r. X-Forwarded-For is only
// consulted when the direct peer is a trusted proxy; the hops are then walked
// right to left and the first address not owned by a trusted proxy wins, so a
// client cannot choose its own key by prepending entries.
func ClientIP(r *http.Request, trusted TrustedProxies) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(peer); err == nil {
		peer = host
	}
	if !trusted.Contains(peer) {
		return peer
	}
	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" || net.ParseIP(hop) == nil {
			break
		}
		if !trusted.Contains(hop) {
			return hop
		}
		peer = hop
	}
	return peer
}

// VisitorFromRequest classifies the client behind r. g may be nil.
func VisitorFromRequest(r *http.Request, g *geoip.GeoIP, trusted TrustedProxies) Visitor {
	v := ClassifyUA(r.Header.Get("User-Agent"))
	v.IP = ClientIP(r, trusted)
	v.Country = g.CountryString(v.IP)
	return v
}

// AdmitView decides whether a view from v should be counted.
func AdmitView(v Visitor, limiter Limiter) error {
	if v.IsBot {
		return ErrBotVisitor
	}
	if limiter != nil && !limiter.Allow(v.IP) {
		return ErrRateLimited
	}
	return nil
}
