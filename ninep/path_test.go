package ninep

import (
	"errors"
	"io/fs"
	"testing"
)

func TestJoinPathDescends(t *testing.T) {
	root := "/a/b/c"

	p, err := JoinPath("/a/b/c/d/e/f", "nested", root)
	if err != nil {
		t.Fatalf("JoinPath failed: %s", err)
	}
	if p != "/a/b/c/d/e/f/nested" {
		t.Errorf("JoinPath => %q, expected %q", p, "/a/b/c/d/e/f/nested")
	}
}

func TestJoinPathParentClampsAtRoot(t *testing.T) {
	root := "/a/b/c"
	path := "/a/b/c/d/e/f"

	expected := []string{"/a/b/c/d/e", "/a/b/c/d", "/a/b/c", "/a/b/c", "/a/b/c"}
	for i, want := range expected {
		var err error
		path, err = JoinPath(path, "..", root)
		if err != nil {
			t.Fatalf("step %d: JoinPath failed: %s", i, err)
		}
		if path != want {
			t.Errorf("step %d: JoinPath => %q, expected %q", i, path, want)
		}
	}
}

func TestJoinPathRejectsInvalidSegments(t *testing.T) {
	root := "/a"
	var tcs = []struct {
		segment string
	}{
		{"."},
		{""},
		{"c/d/e"},
		{"/c/d/e"},
	}
	for _, tc := range tcs {
		_, err := JoinPath("/a/b", tc.segment, root)
		if err == nil {
			t.Errorf("JoinPath(%q) succeeded, expected error", tc.segment)
			continue
		}
		if !errors.Is(err, fs.ErrInvalid) {
			t.Errorf("JoinPath(%q) => %v, expected an invalid-argument error", tc.segment, err)
		}
	}
}
