package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// CookieSigner はCookie値にHMAC-SHA256署名を付与・検証する。
type CookieSigner struct {
	key []byte
}

// NewCookieSigner は署名鍵secretでCookieSignerを生成する。
func NewCookieSigner(secret string) *CookieSigner {
	return &CookieSigner{key: []byte(secret)}
}

// Sign は "value.signature" 形式の署名付き値を返す。
func (s *CookieSigner) Sign(value string) string {
	return value + "." + s.mac(value)
}

// Verify は署名付き値を検証し、元の値を返す。改ざんされている場合はfalse。
func (s *CookieSigner) Verify(signed string) (string, bool) {
	i := strings.LastIndexByte(signed, '.')
	if i <= 0 || i == len(signed)-1 {
		return "", false
	}
	value, sig := signed[:i], signed[i+1:]
	if !hmac.Equal([]byte(sig), []byte(s.mac(value))) {
		return "", false
	}
	return value, true
}

func (s *CookieSigner) mac(value string) string {
	h := hmac.New(sha256.New, s.key)
	h.Write([]byte(value))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
