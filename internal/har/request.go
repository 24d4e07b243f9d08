package har

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/chromedp/cdproto/network"
)

// headerPairs flattens DevTools headers into HAR pairs. DevTools joins
// repeated headers (Set-Cookie in particular) with newlines. Pairs are
// sorted by name so the output is stable.
func headerPairs(h network.Headers) []NameValuePair {
	pairs := make([]NameValuePair, 0, len(h))
	for name, raw := range h {
		value := fmt.Sprint(raw)
		for _, v := range strings.Split(value, "\n") {
			pairs = append(pairs, NameValuePair{Name: name, Value: v})
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		return strings.ToLower(pairs[i].Name) < strings.ToLower(pairs[j].Name)
	})
	return pairs
}

// headerValue returns the first value for name, matched case-insensitively.
func headerValue(pairs []NameValuePair, name string) string {
	for _, p := range pairs {
		if strings.EqualFold(p.Name, name) {
			return p.Value
		}
	}
	return ""
}

func toHTTPHeader(pairs []NameValuePair) http.Header {
	h := make(http.Header, len(pairs))
	for _, p := range pairs {
		h.Add(p.Name, p.Value)
	}
	return h
}

// requestCookies parses the Cookie request header.
func requestCookies(pairs []NameValuePair) []Cookie {
	req := &http.Request{Header: toHTTPHeader(pairs)}
	parsed := req.Cookies()
	cookies := make([]Cookie, 0, len(parsed))
	for _, c := range parsed {
		cookies = append(cookies, Cookie{Name: c.Name, Value: c.Value})
	}
	return cookies
}

// responseCookies parses Set-Cookie response headers.
func responseCookies(pairs []NameValuePair) []Cookie {
	resp := &http.Response{Header: toHTTPHeader(pairs)}
	parsed := resp.Cookies()
	cookies := make([]Cookie, 0, len(parsed))
	for _, c := range parsed {
		cookie := Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			HTTPOnly: c.HttpOnly,
			Secure:   c.Secure,
		}
		if !c.Expires.IsZero() {
			exp := c.Expires.UTC()
			cookie.Expires = &exp
		}
		cookies = append(cookies, cookie)
	}
	return cookies
}

// queryString returns the query parameters in the order they appear in
// the URL. url.Values would lose that order.
func queryString(rawURL string) []NameValuePair {
	pairs := []NameValuePair{}
	u, err := url.Parse(rawURL)
	if err != nil || u.RawQuery == "" {
		return pairs
	}
	for _, part := range strings.Split(u.RawQuery, "&") {
		if part == "" {
			continue
		}
		name, value, _ := strings.Cut(part, "=")
		pairs = append(pairs, NameValuePair{Name: unescape(name), Value: unescape(value)})
	}
	return pairs
}

func unescape(s string) string {
	if v, err := url.QueryUnescape(s); err == nil {
		return v
	}
	return s
}

// postData builds the HAR postData object from the raw request body.
func postData(body string, headers []NameValuePair) *PostData {
	if body == "" {
		return nil
	}
	mimeType := headerValue(headers, "Content-Type")
	pd := &PostData{MimeType: mimeType, Text: body}

	if strings.HasPrefix(strings.ToLower(mimeType), "application/x-www-form-urlencoded") {
		for _, part := range strings.Split(body, "&") {
			if part == "" {
				continue
			}
			name, value, _ := strings.Cut(part, "=")
			pd.Params = append(pd.Params, PostParam{Name: unescape(name), Value: unescape(value)})
		}
	}
	return pd
}

// httpVersion maps the DevTools protocol string to a HAR httpVersion.
func httpVersion(protocol string) string {
	p := strings.ToLower(protocol)
	switch {
	case p == "":
		return ""
	case p == "h2":
		return "HTTP/2.0"
	case strings.HasPrefix(p, "h3"), p == "quic":
		return "HTTP/3.0"
	case strings.HasPrefix(p, "http/"):
		return strings.ToUpper(p)
	default:
		return protocol
	}
}

func isHTTP1x(version string) bool {
	return strings.HasPrefix(strings.ToUpper(version), "HTTP/1.")
}

// requestHeadersSize computes the size of an HTTP/1.x request head:
// request line, one line per header and the blank line.
func requestHeadersSize(method, rawURL, version string, headers []NameValuePair) int64 {
	target := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		target = u.RequestURI()
	}
	size := len(method) + 1 + len(target) + 1 + len(version) + 2
	return int64(size) + headerBlockSize(headers)
}

// responseHeadersSize computes the size of an HTTP/1.x response head.
func responseHeadersSize(version string, status int, statusText string, headers []NameValuePair) int64 {
	size := len(version) + 1 + len(fmt.Sprint(status)) + 1 + len(statusText) + 2
	return int64(size) + headerBlockSize(headers)
}

func headerBlockSize(headers []NameValuePair) int64 {
	var size int64
	for _, h := range headers {
		size += int64(len(h.Name) + 2 + len(h.Value) + 2)
	}
	return size + 2
}
