// pkg/driver/cookies.go
package driver

import (
	"strconv"
	"strings"
	"time"
)

// ParseCookie splits a raw "name=value; attr=val; attr2=val2" cookie
// string into its name, value and attribute map. Segments are separated by
// "; " and each splits on its first "=". Attribute keys keep their
// original spelling; a flag attribute without "=" maps to the empty
// string.
func ParseCookie(raw string) (name, value string, attrs map[string]string) {
	attrs = make(map[string]string)
	for i, segment := range strings.Split(raw, "; ") {
		k, v, _ := strings.Cut(segment, "=")
		if i == 0 {
			name, value = k, v
			continue
		}
		attrs[k] = v
	}
	return name, value, attrs
}

// cookieFromAttrs builds a Cookie from a parsed attribute map. Attribute
// names are matched case-insensitively, as cookie attributes are on the
// wire.
func cookieFromAttrs(name, value string, attrs map[string]string) Cookie {
	c := Cookie{Name: name, Value: value}
	for k, v := range attrs {
		switch strings.ToLower(k) {
		case "domain":
			c.Domain = v
		case "path":
			c.Path = v
		case "secure":
			c.Secure = true
		case "httponly":
			c.HTTPOnly = true
		case "samesite":
			c.SameSite = v
		case "expires":
			if t, err := time.Parse(time.RFC1123, v); err == nil {
				c.Expires = t
			}
		case "max-age":
			if secs, err := strconv.Atoi(v); err == nil {
				c.Expires = time.Now().Add(time.Duration(secs) * time.Second)
			}
		}
	}
	return c
}
