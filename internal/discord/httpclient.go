// Package discord はDiscord REST APIへのアクセスを提供する。
package discord

import (
	"net"
	"net/http"
	"time"
)

// DefaultAPIBaseURL はDiscord REST APIのベースURL。
const DefaultAPIBaseURL = "https://discord.com/api/v10"

// NewHTTPClient はDiscord API呼び出し用のHTTPクライアントを生成する。
// timeoutはリクエスト全体の上限。0以下の場合は10秒を使う。
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: timeout,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}
