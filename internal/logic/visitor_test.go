package logic

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/portalmetrics/internal/geoip"
)

func TestClassifyUA(t *testing.T) {
	tests := []struct {
		name           string
		ua             string
		expectedDevice string
		expectedIsBot  bool
	}{
		{
			name:           "Windows Chrome",
			ua:             "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/100.0.4896.75 Safari/537.36",
			expectedDevice: "desktop",
		},
		{
			name:           "iPhone Safari",
			ua:             "Mozilla/5.0 (iPhone; CPU iPhone OS 15_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.0 Mobile/15E148 Safari/605.1.15",
			expectedDevice: "mobile",
		},
		{
			name:           "iPad Safari",
			ua:             "Mozilla/5.0 (iPad; CPU OS 15_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.0 Mobile/15E148 Safari/605.1.15",
			expectedDevice: "tablet",
		},
		{
			name:          "Googlebot",
			ua:            "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
			expectedIsBot: true,
		},
		{
			name:           "Empty UA",
			ua:             "",
			expectedDevice: "other",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := ClassifyUA(tc.ua)
			assert.Equal(t, tc.expectedIsBot, v.IsBot)
			if tc.expectedDevice != "" {
				assert.Equal(t, tc.expectedDevice, v.DeviceType)
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	proxies, err := ParseTrustedProxies("10.0.0.0/8, 172.16.0.5")
	require.NoError(t, err)

	tests := []struct {
		name    string
		remote  string
		xff     string
		trusted TrustedProxies
		want    string
	}{
		{"no header", "10.1.2.3:5555", "", proxies, "10.1.2.3"},
		{"header ignored without trusted proxies", "203.0.113.7:5555", "192.0.2.9", nil, "203.0.113.7"},
		{"header ignored from untrusted peer", "203.0.113.7:5555", "192.0.2.9", proxies, "203.0.113.7"},
		{"trusted peer", "10.1.2.3:5555", "192.0.2.9", proxies, "192.0.2.9"},
		{"spoofed leftmost entry", "10.1.2.3:5555", "198.51.100.1, 192.0.2.9", proxies, "192.0.2.9"},
		{"proxy chain", "10.1.2.3:5555", "192.0.2.9, 172.16.0.5, 10.9.9.9", proxies, "192.0.2.9"},
		{"garbage hop stops the walk", "10.1.2.3:5555", "192.0.2.9, not-an-ip", proxies, "10.1.2.3"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/view", nil)
			r.RemoteAddr = tc.remote
			if tc.xff != "" {
				r.Header.Set("X-Forwarded-For", tc.xff)
			}
			assert.Equal(t, tc.want, ClientIP(r, tc.trusted))
		})
	}
}

func TestParseTrustedProxies(t *testing.T) {
	p, err := ParseTrustedProxies("")
	require.NoError(t, err)
	assert.Empty(t, p)

	p, err = ParseTrustedProxies("192.0.2.1, ::1, 10.0.0.0/8")
	require.NoError(t, err)
	assert.Len(t, p, 3)
	assert.True(t, p.Contains("192.0.2.1"))
	assert.False(t, p.Contains("192.0.2.2"))
	assert.True(t, p.Contains("::1"))
	assert.True(t, p.Contains("10.20.30.40"))

	_, err = ParseTrustedProxies("10.0.0.0/99")
	assert.Error(t, err)
	_, err = ParseTrustedProxies("proxy.local")
	assert.Error(t, err)
}

func TestVisitorFromRequest_Country(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ranges.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"net":"192.0.2.0/24","country":"US"}]`), 0o600))
	g, err := geoip.Open(path)
	require.NoError(t, err)

	r := httptest.NewRequest("GET", "/view", nil)
	r.RemoteAddr = "127.0.0.1:4000"
	r.Header.Set("X-Forwarded-For", "192.0.2.9")
	proxies, err := ParseTrustedProxies("127.0.0.1")
	require.NoError(t, err)
	v := VisitorFromRequest(r, g, proxies)
	assert.Equal(t, "US", v.Country)
	assert.Equal(t, "192.0.2.9", v.IP)

	v = VisitorFromRequest(r, nil, proxies)
	assert.Equal(t, "", v.Country)
}

type denyAll struct{}

func (denyAll) Allow(string) bool { return false }

func TestAdmitView(t *testing.T) {
	assert.ErrorIs(t, AdmitView(Visitor{IsBot: true, IP: "1.2.3.4"}, nil), ErrBotVisitor)
	assert.ErrorIs(t, AdmitView(Visitor{IP: "1.2.3.4"}, denyAll{}), ErrRateLimited)
	assert.NoError(t, AdmitView(Visitor{IP: "1.2.3.4"}, nil))
}

func TestSelectionTrace_NilSafe(t *testing.T) {
	var tr *SelectionTrace
	tr.AddStep("candidates", nil)

	tr = &SelectionTrace{}
	tr.AddStep("candidates", []TraceCandidate{{AdID: "a", Weight: 1}})
	tr.AddStepWithDetails("chosen", nil, map[string]string{"ad_id": "a"})
	require.Len(t, tr.Steps, 2)
	assert.Equal(t, "chosen", tr.Steps[1].Stage)
}
