package assets

import (
	"encoding/base64"
	"errors"
	"net/url"
	"strings"
)

// DataURL is a decoded RFC 2397 payload.
type DataURL struct {
	MediaType string
	Data      []byte
}

var ErrNotDataURL = errors.New("not a data url")

func IsDataURL(s string) bool {
	return len(s) >= 5 && strings.EqualFold(s[:5], "data:")
}

// ParseDataURL decodes "data:[<mediatype>][;base64],<data>".
func ParseDataURL(s string) (*DataURL, error) {
	if !IsDataURL(s) {
		return nil, ErrNotDataURL
	}
	meta, payload, ok := strings.Cut(s[5:], ",")
	if !ok {
		return nil, errors.New("data url: missing comma")
	}

	isBase64 := false
	if strings.HasSuffix(strings.ToLower(meta), ";base64") {
		isBase64 = true
		meta = meta[:len(meta)-len(";base64")]
	}
	mediaType := strings.TrimSpace(meta)
	switch {
	case mediaType == "":
		mediaType = "text/plain;charset=US-ASCII"
	case strings.HasPrefix(mediaType, ";"):
		mediaType = "text/plain" + mediaType
	}

	var data []byte
	if isBase64 {
		// some editors emit unpadded or whitespace-wrapped base64
		clean := strings.Map(func(r rune) rune {
			if r == ' ' || r == '\n' || r == '\r' || r == '\t' {
				return -1
			}
			return r
		}, payload)
		if unescaped, err := url.PathUnescape(clean); err == nil {
			clean = unescaped
		}
		var err error
		data, err = base64.StdEncoding.DecodeString(clean)
		if err != nil {
			data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(clean, "="))
			if err != nil {
				return nil, errors.New("data url: invalid base64 payload")
			}
		}
	} else {
		unescaped, err := url.PathUnescape(payload)
		if err != nil {
			return nil, errors.New("data url: invalid percent-encoding")
		}
		data = []byte(unescaped)
	}
	return &DataURL{MediaType: mediaType, Data: data}, nil
}
