// Package security はユーザーが登録する外部URLへのアクセスを安全に行うための機能を提供する。
package security

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// ErrUnsafeFeedURL はアクセスを許可しないICSフィードURLを表す。
var ErrUnsafeFeedURL = errors.New("unsafe feed URL")

// fetchSchemes は実際の取得で許可するスキーム。webcalは登録時にhttpsへ読み替える。
var fetchSchemes = []string{"http", "https"}

// blockedNetworks は取得先として許可しないネットワーク範囲。
// safeurlは接続時（DNS解決後）にも検証するため、ここでは登録時の静的検証に使う。
var blockedNetworks = mustParseCIDRs(
	"10.0.0.0/8",     // RFC 1918
	"172.16.0.0/12",  // RFC 1918
	"192.168.0.0/16", // RFC 1918
	"100.64.0.0/10",  // キャリアグレードNAT
	"127.0.0.0/8",    // ループバック
	"169.254.0.0/16", // リンクローカル（メタデータIPを含む）
	"0.0.0.0/8",
	"::1/128",
	"fe80::/10",
	"fc00::/7",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		out = append(out, network)
	}
	return out
}

// FeedGuard はICS購読フィードURLの検証と、SSRF防止済みHTTPクライアントの生成を行う。
type FeedGuard struct{}

// NewFeedGuard はFeedGuardの新しいインスタンスを生成する。
func NewFeedGuard() *FeedGuard {
	return &FeedGuard{}
}

// NewSafeClient はSSRF防止機能付きのHTTPクライアントを生成する。
// プライベートIP・ループバック・リンクローカル・メタデータIPへの接続は
// safeurlがDNS解決後のIPアドレスで拒否する。
// レスポンスサイズの上限は呼び出し側が読み取り時に適用する。
func (g *FeedGuard) NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(fetchSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	return safeurl.Client(config).Client
}

// NormalizeFeedURL はフィードURLを取得用の形式に正規化し、安全性を検証する。
// webcal:// は https:// に読み替える。
func (g *FeedGuard) NormalizeFeedURL(rawURL string) (string, error) {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return "", fmt.Errorf("%w: empty URL", ErrUnsafeFeedURL)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsafeFeedURL, err)
	}
	if strings.EqualFold(parsed.Scheme, "webcal") {
		parsed.Scheme = "https"
	}

	normalized := parsed.String()
	if err := g.ValidateURL(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

// ValidateURL はDNS解決を伴わない静的な検証を行う。
// DNS再バインディングはNewSafeClientのDialer側で防止される。
func (g *FeedGuard) ValidateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsafeFeedURL, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("%w: disallowed scheme %q", ErrUnsafeFeedURL, scheme)
	}
	if parsed.User != nil {
		return fmt.Errorf("%w: credentials in URL", ErrUnsafeFeedURL)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("%w: empty host", ErrUnsafeFeedURL)
	}
	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("%w: blocked IP address %s", ErrUnsafeFeedURL, ip)
		}
		return nil
	}

	lower := strings.ToLower(strings.TrimSuffix(host, "."))
	if lower == "localhost" || strings.HasSuffix(lower, ".localhost") {
		return fmt.Errorf("%w: blocked host %s", ErrUnsafeFeedURL, host)
	}
	return nil
}

func isBlockedIP(ip net.IP) bool {
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
