package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		in     string
		want   string
	}{
		{"empty", "", "", "/media/placeholder.png"},
		{"empty with origin", "https://cdn.test/", "  ", "https://cdn.test/media/placeholder.png"},
		{"absolute", "https://cdn.test", "http://x.test/a.png", "http://x.test/a.png"},
		{"data", "https://cdn.test", "data:image/png;base64,AA", "data:image/png;base64,AA"},
		{"blob upper case", "", "BLOB:abc", "BLOB:abc"},
		{"media path", "", "/media/products/a.png", "/media/products/a.png"},
		{"bare key", "", "products/a.png", "/media/products/a.png"},
		{"leading slashes", "https://cdn.test", "//products/a.png", "https://cdn.test/media/products/a.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.origin, "").Resolve(tt.in))
		})
	}
}

func TestProduct(t *testing.T) {
	r := New("", "http://10.0.0.47:8000")
	tests := []struct {
		in, want string
	}{
		{"", "/media/placeholder.png"},
		{"http://localhost:8000/media/p/a.png", "http://10.0.0.47:8000/media/p/a.png"},
		{"/media/p/a.png", "http://10.0.0.47:8000/media/p/a.png"},
		{"gallery/b.webp", "http://10.0.0.47:8000/media/gallery/b.webp"},
		{"sock.JPG", "http://10.0.0.47:8000/media/sock.JPG"},
		{"static/odd.svg", "static/odd.svg"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Product(tt.in))
		})
	}
}

func TestSameOrigin(t *testing.T) {
	r := New("", "https://api.test:8443")
	assert.Equal(t, "", r.SameOrigin(""))
	assert.Equal(t, "https://api.test:8443/media/a.png?x=1", r.SameOrigin("http://old.test/media/a.png?x=1"))
	assert.Equal(t, "https://api.test:8443/media/a.png", r.SameOrigin("/media/a.png"))
	assert.Equal(t, "relative.png", r.SameOrigin("relative.png"))

	bare := New("", "")
	assert.Equal(t, "http://old.test/a.png", bare.SameOrigin("http://old.test/a.png"))
	assert.Equal(t, "/media/a.png", bare.SameOrigin("/media/a.png"))
}

func TestFirst(t *testing.T) {
	assert.Equal(t, "b", First("", " ", "b", "c"))
	assert.Equal(t, "", First())
}
