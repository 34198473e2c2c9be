package security

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"strings"
)

// URLValidator はブラウザへそのまま渡す外部URL（アバター画像など）の静的検証。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// ErrUnsafeURL は検証に失敗したURLを表す。詳細はラップされたメッセージに含まれる。
var ErrUnsafeURL = errors.New("unsafe url")

const maxURLLength = 2048

// privatePrefixes は内部ネットワーク・ループバック・リンクローカル（クラウドメタデータ含む）。
var privatePrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
}

type urlGuard struct{}

// NewURLGuard はDNS解決を行わない静的なURLValidatorを返す。
func NewURLGuard() URLValidator {
	return urlGuard{}
}

func (urlGuard) ValidateURL(rawURL string) error {
	switch {
	case rawURL == "":
		return fmt.Errorf("%w: empty", ErrUnsafeURL)
	case len(rawURL) > maxURLLength:
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrUnsafeURL, len(rawURL), maxURLLength)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsafeURL, err)
	}
	if s := strings.ToLower(u.Scheme); s != "http" && s != "https" {
		return fmt.Errorf("%w: scheme %q", ErrUnsafeURL, u.Scheme)
	}
	if u.User != nil {
		return fmt.Errorf("%w: embedded credentials", ErrUnsafeURL)
	}

	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "" {
		return fmt.Errorf("%w: no host", ErrUnsafeURL)
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		if isPrivateAddr(addr) {
			return fmt.Errorf("%w: private address %s", ErrUnsafeURL, addr)
		}
		return nil
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return fmt.Errorf("%w: host %s", ErrUnsafeURL, host)
	}
	return nil
}

func isPrivateAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range privatePrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
