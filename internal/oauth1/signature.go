// Package oauth1 implementa la firma HMAC-SHA1 de OAuth 1.0a (RFC 5849).
//
// Todo en este paquete es determinístico: mismas entradas, misma firma.
// El reloj y el nonce se inyectan desde Signer.
package oauth1

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net"
	"net/url"
	"sort"
	"strings"
)

// SignatureMethod es el único método soportado.
const SignatureMethod = "HMAC-SHA1"

// Version es el valor de oauth_version.
const Version = "1.0"

const paramSignature = "oauth_signature"

// PercentEncode codifica s según RFC 5849 §3.6: solo ALPHA, DIGIT, '-', '.', '_' y '~'
// quedan literales. No es url.QueryEscape (que usa '+' para espacios y deja otros chars).
func PercentEncode(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0F])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9':
		return true
	case c == '-', c == '.', c == '_', c == '~':
		return true
	}
	return false
}

// NormalizeURL devuelve el base string URI: esquema y host en minúsculas,
// sin puerto por defecto, sin query ni fragment.
func NormalizeURL(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	if h, port, err := net.SplitHostPort(host); err == nil {
		if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
			host = h
			if strings.Contains(h, ":") {
				host = "[" + h + "]"
			}
		}
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return scheme + "://" + host + path
}

// NormalizeParameters codifica, ordena y concatena los parámetros.
// oauth_signature se excluye siempre.
func NormalizeParameters(params url.Values) string {
	type pair struct{ k, v string }
	pairs := make([]pair, 0, len(params))
	for k, vs := range params {
		if k == paramSignature {
			continue
		}
		ek := PercentEncode(k)
		for _, v := range vs {
			pairs = append(pairs, pair{ek, PercentEncode(v)})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].k != pairs[j].k {
			return pairs[i].k < pairs[j].k
		}
		return pairs[i].v < pairs[j].v
	})
	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = p.k + "=" + p.v
	}
	return strings.Join(parts, "&")
}

// BaseString construye el signature base string.
// Los parámetros de query presentes en rawURL se suman a params.
func BaseString(method, rawURL string, params url.Values) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	all := url.Values{}
	for k, vs := range params {
		all[k] = append(all[k], vs...)
	}
	for k, vs := range u.Query() {
		all[k] = append(all[k], vs...)
	}
	return strings.ToUpper(method) + "&" +
		PercentEncode(NormalizeURL(u)) + "&" +
		PercentEncode(NormalizeParameters(all)), nil
}

// SigningKey returns encode(consumerSecret)&encode(tokenSecret).
func SigningKey(consumerSecret, tokenSecret string) string {
	return PercentEncode(consumerSecret) + "&" + PercentEncode(tokenSecret)
}

// Sign calcula la firma HMAC-SHA1 en base64. tokenSecret vacío si todavía no hay token.
// Una URL que no parsea produce una firma sobre el texto crudo para mantener la función total;
// el request HTTP fallará igual al construirse.
func Sign(method, baseURL string, params url.Values, consumerSecret, tokenSecret string) string {
	base, err := BaseString(method, baseURL, params)
	if err != nil {
		base = strings.ToUpper(method) + "&" + PercentEncode(baseURL) + "&" + PercentEncode(NormalizeParameters(params))
	}
	mac := hmac.New(sha1.New, []byte(SigningKey(consumerSecret, tokenSecret)))
	mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
