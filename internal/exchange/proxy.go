package exchange

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	doubleColonScheme = regexp.MustCompile(`(?i)^(https?)::\/\/`)
	hasScheme         = regexp.MustCompile(`(?i)^[a-z]+://`)
)

// NormalizeProxyURL repairs `http::/` style typos and defaults to http://.
func NormalizeProxyURL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if m := doubleColonScheme.FindStringSubmatch(s); m != nil {
		s = strings.ToLower(m[1]) + "://" + s[len(m[0]):]
	}
	if !hasScheme.MatchString(s) {
		return "http://" + s
	}
	return s
}

// proxyAuthTransport sets Proxy-Authorization on plain-http requests; https
// requests carry it on the CONNECT via ProxyConnectHeader.
type proxyAuthTransport struct {
	header string
	base   http.RoundTripper
}

func (t proxyAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme == "http" {
		req = req.Clone(req.Context())
		req.Header.Set("Proxy-Authorization", t.header)
	}
	return t.base.RoundTrip(req)
}

// NewHTTPClient builds the outbound client for one venue. An empty proxy
// means direct connections.
func NewHTTPClient(name, proxyRaw string, timeout time.Duration) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	client := &http.Client{Timeout: timeout, Transport: transport}

	proxy := NormalizeProxyURL(proxyRaw)
	if proxy == "" {
		return client, nil
	}

	u, err := url.Parse(proxy)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%s: invalid proxy url", name)
	}

	auth := basicAuth(u.User)
	transport.Proxy = http.ProxyURL(&url.URL{Scheme: u.Scheme, Host: u.Host})
	if auth != "" {
		transport.ProxyConnectHeader = http.Header{"Proxy-Authorization": []string{auth}}
		client.Transport = proxyAuthTransport{header: auth, base: transport}
	}

	log.Info().
		Str("client", name).
		Str("proxy", u.Scheme+"://"+u.Host).
		Bool("auth", auth != "").
		Msg("proxy enabled")

	return client, nil
}

func basicAuth(user *url.Userinfo) string {
	if user == nil {
		return ""
	}
	name := user.Username()
	pass, _ := user.Password()
	if name == "" && pass == "" {
		return ""
	}
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(name+":"+pass))
}
