package client

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// AcceptEncoding lists the codings the decompressor understands
const AcceptEncoding = "gzip, deflate, br, zstd"

// Decompressor is a RoundTripper that advertises every supported coding
// and decodes the body before handing the response on.
type Decompressor struct {
	Transport http.RoundTripper
}

// NewDecompressor wraps transport
func NewDecompressor(transport http.RoundTripper) *Decompressor {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Decompressor{Transport: transport}
}

// RoundTrip implements http.RoundTripper
func (d *Decompressor) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("Accept-Encoding", AcceptEncoding)
	}

	resp, err := d.Transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if err := Decompress(resp); err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("decompress response: %w", err)
	}
	return resp, nil
}

// Decompress replaces resp.Body with a decoding reader for its
// Content-Encoding. Unknown codings are an error.
func Decompress(resp *http.Response) error {
	if resp == nil || resp.Body == nil {
		return nil
	}
	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	if encoding == "" || encoding == "identity" {
		return nil
	}

	reader, err := NewDecodingReader(encoding, resp.Body)
	if err != nil {
		return err
	}

	resp.Body = &decodedBody{ReadCloser: reader, original: resp.Body}
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

// NewDecodingReader returns a reader that decodes one content coding
func NewDecodingReader(encoding string, r io.Reader) (io.ReadCloser, error) {
	switch encoding {
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return zr, nil
	case "deflate":
		// zlib-wrapped in practice; some servers send raw deflate
		br := &peekReader{r: r, record: true}
		if zr, err := zlib.NewReader(br); err == nil {
			br.record = false
			return zr, nil
		}
		return flate.NewReader(br.replay()), nil
	case "br":
		return io.NopCloser(brotli.NewReader(r)), nil
	case "zstd":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return zr.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("unsupported Content-Encoding: %s", encoding)
	}
}

// decodedBody closes both the decoder and the wire body
type decodedBody struct {
	io.ReadCloser
	original io.ReadCloser
}

func (b *decodedBody) Close() error {
	err1 := b.ReadCloser.Close()
	err2 := b.original.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// peekReader remembers what the zlib header check consumed
type peekReader struct {
	r      io.Reader
	seen   []byte
	record bool
}

func (p *peekReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if p.record {
		p.seen = append(p.seen, b[:n]...)
	}
	return n, err
}

func (p *peekReader) replay() io.Reader {
	return io.MultiReader(strings.NewReader(string(p.seen)), p.r)
}
