package crawler

import "testing"

// TestNormalizePath tests path normalization.
func TestNormalizePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"/", "/"},
		{"", "/"},
		{"data", "/data"},
		{"/data/", "/data"},
		{"//data///sub//", "/data/sub"},
		{"/data/./sub/../x", "/data/x"},
		{`/data/a\b.txt`, `/data/a\b.txt`},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			if got := NormalizePath(tt.in); got != tt.want {
				t.Errorf("NormalizePath(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// TestJoinPath tests joining of directory and child name.
func TestJoinPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		dir, name, want string
	}{
		{"/", "a", "/a"},
		{"/data", "a.txt", "/data/a.txt"},
		{"/data/", "a.txt", "/data/a.txt"},
		{"/data//", "/a.txt", "/data/a.txt"},
		{"/data", `a\b.txt`, `/data/a\b.txt`},
	}

	for _, tt := range tests {
		if got := JoinPath(tt.dir, tt.name); got != tt.want {
			t.Errorf("JoinPath(%q, %q) = %q, want %q", tt.dir, tt.name, got, tt.want)
		}
	}
}

// TestChildName tests reduction of backend names to one path element.
func TestChildName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"a.txt":         "a.txt",
		"sub/":          "sub",
		"/pub/full.iso": "full.iso",
		".":             "",
		"..":            "",
		"":              "",
		`a\b.txt`:       `a\b.txt`,
	}
	for in, want := range tests {
		if got := childName(in); got != want {
			t.Errorf("childName(%q) = %q, want %q", in, got, want)
		}
	}
}
