package client

import (
	"bytes"
	"io"
	"mime"
	"strings"

	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
)

// DetectCharset guesses the charset of body
func DetectCharset(body []byte) string {
	detector := chardet.NewTextDetector()
	result, err := detector.DetectBest(body)
	if err != nil || result == nil {
		return "utf-8"
	}
	return strings.ToLower(result.Charset)
}

// DeclaredCharset returns the charset parameter of a Content-Type header
func DeclaredCharset(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.ToLower(params["charset"])
}

// DecodeText converts body to a UTF-8 string. The declared charset wins,
// then an HTML meta prescan, then statistical detection.
func DecodeText(body []byte, contentType string) string {
	if len(body) == 0 {
		return ""
	}

	label := DeclaredCharset(contentType)
	if label == "" {
		// windows-1252 is also the prescan's fallback, so chardet decides it
		_, name, certain := charset.DetermineEncoding(body, "")
		switch {
		case certain, name != "utf-8" && name != "windows-1252":
			label = name
		case name == "utf-8":
			return string(body)
		default:
			label = DetectCharset(body)
		}
	}
	if label == "utf-8" || label == "utf8" {
		return string(body)
	}

	r, err := charset.NewReaderLabel(label, bytes.NewReader(body))
	if err != nil {
		return string(body)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return string(body)
	}
	return string(out)
}
