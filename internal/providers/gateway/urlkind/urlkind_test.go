package urlkind

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		raw  string
		want Kind
	}{
		{"https://example.com/a", Absolute},
		{"HTTP://EXAMPLE.COM", Absolute},
		{"//cdn.example.com/x.js", Absolute},
		{"ftp://files.example.com", Absolute},
		{"data:image/png;base64,AAAA", Data},
		{"  DATA:text/plain,hi", Data},
		{"mailto:me@example.com", Mailto},
		{"javascript:void(0)", JavaScript},
		{"blob:https://example.com/123", Blob},
		{"/logo.png", Relative},
		{"img/logo.png", Relative},
		{"../up.css", Relative},
		{"?page=2", Relative},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.raw))
		})
	}
}

func TestIsSkippable(t *testing.T) {
	assert.True(t, IsSkippable(""))
	assert.True(t, IsSkippable("#top"))
	assert.True(t, IsSkippable("data:,x"))
	assert.True(t, IsSkippable("mailto:a@b.c"))
	assert.True(t, IsSkippable("javascript:alert(1)"))
	assert.True(t, IsSkippable("blob:abc"))
	assert.False(t, IsSkippable("/a.png"))
	assert.False(t, IsSkippable("https://example.com"))
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		relative string
		base     string
		want     string
	}{
		{"root relative", "/logo.png", "https://example.com/page", "https://example.com/logo.png"},
		{"path relative", "img/a.png", "https://example.com/dir/page.html", "https://example.com/dir/img/a.png"},
		{"parent", "../b.css", "https://example.com/a/b/c.html", "https://example.com/a/b.css"},
		{"protocol relative", "//cdn.example.net/x.js", "https://example.com/", "https://cdn.example.net/x.js"},
		{"absolute passes through", "http://other.org/y", "https://example.com/", "http://other.org/y"},
		{"query only", "?q=1", "https://example.com/search", "https://example.com/search?q=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Resolve(tt.relative, tt.base)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveMalformed(t *testing.T) {
	_, ok := Resolve("/a", "://broken")
	assert.False(t, ok)

	_, ok = Resolve("http://[::1", "https://example.com")
	assert.False(t, ok)

	_, ok = ResolveURL("/a", nil)
	assert.False(t, ok)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "https://example.com", Normalize("example.com"))
	assert.Equal(t, "https://example.com/x", Normalize("  example.com/x "))
	assert.Equal(t, "http://example.org", Normalize("http://example.org"))
	assert.Equal(t, "https://cdn.example.com/a", Normalize("//cdn.example.com/a"))
	assert.Equal(t, "https://localhost:8080/x", Normalize("localhost:8080/x"))
	assert.Equal(t, "data:text/html,hi", Normalize("data:text/html,hi"))
	assert.Equal(t, "", Normalize("   "))
}

func TestFromInput(t *testing.T) {
	const search = "https://duckduckgo.com/html/?q="

	assert.Equal(t, "https://example.com", FromInput("example.com", search))
	assert.Equal(t, "http://example.org/a", FromInput("http://example.org/a", search))
	assert.Equal(t, "https://localhost:3000", FromInput("localhost:3000", search))
	assert.Equal(t, search+"golang+tabs", FromInput("golang tabs", search))
	assert.Equal(t, search+"weather", FromInput("weather", search))
	assert.Equal(t, "https://weather", FromInput("weather", ""))
	assert.Equal(t, "", FromInput("", search))
}

func TestHostname(t *testing.T) {
	assert.Equal(t, "example.com", Hostname("https://example.com:8443/a"))
	assert.Equal(t, "", Hostname("not a url at all %%"))
}
