//go:build unix && cgo

package semguard

import (
	"encoding/base64"
	"errors"
	"io/fs"
	"strings"
	"testing"
)

func TestNamedBasic(t *testing.T) {
	name := testName(t)
	n, err := Open(name, Create(true, 0o600, 0))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if n.Name() != name {
		t.Errorf("Name() = %q, want %q", n.Name(), name)
	}

	r := n.Ref()
	if err := r.Signal(); err != nil {
		t.Fatalf("Signal: %v", err)
	}
	if err := r.TryWait(); err != nil {
		t.Fatalf("TryWait: %v", err)
	}
	if err := r.TryWait(); Classify(err) != ClassWouldBlock {
		t.Fatalf("TryWait on zero: got %v, want would block", err)
	}

	if err := n.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := n.Close(); !errors.Is(err, fs.ErrClosed) {
		t.Errorf("second Close: got %v, want fs.ErrClosed", err)
	}
	if n.String() != "<Semaphore closed>" {
		t.Errorf("String() after Close = %q", n.String())
	}
	func() {
		defer func() {
			if recover() == nil {
				t.Error("Ref of a closed Named did not panic")
			}
		}()
		n.Ref()
	}()
}

func TestNamedInitialValue(t *testing.T) {
	name := testName(t)
	n, err := Open(name, Create(true, 0o600, 2))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer n.Close()
	for i := 0; i < 2; i++ {
		if err := n.Ref().TryWait(); err != nil {
			t.Fatalf("TryWait %d: %v", i, err)
		}
	}
	if err := n.Ref().TryWait(); Classify(err) != ClassWouldBlock {
		t.Fatalf("TryWait: got %v, want would block", err)
	}
}

func TestNamedSharedByName(t *testing.T) {
	name := testName(t)
	a, err := Open(name, Create(false, 0o600, 0))
	if err != nil {
		t.Fatalf("Open create: %v", err)
	}
	defer a.Close()
	// Not exclusive: opening an existing name succeeds and ignores value.
	b, err := Open(name, Create(false, 0o600, 7))
	if err != nil {
		t.Fatalf("Open existing: %v", err)
	}
	defer b.Close()

	if err := a.Ref().Signal(); err != nil {
		t.Fatalf("Signal: %v", err)
	}
	if err := b.Ref().TryWait(); err != nil {
		t.Fatalf("TryWait through second handle: %v", err)
	}
	if err := b.Ref().TryWait(); Classify(err) != ClassWouldBlock {
		t.Fatalf("TryWait: got %v, want would block", err)
	}
}

func TestNamedExclusiveExists(t *testing.T) {
	name := testName(t)
	n, err := Open(name, Create(true, 0o600, 0))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer n.Close()

	_, err = Open(name, Create(true, 0o600, 0))
	if Classify(err) != ClassExists {
		t.Fatalf("exclusive Open of existing name: got %v, want already exists", err)
	}
	if !errors.Is(err, fs.ErrExist) {
		t.Errorf("error %v does not match fs.ErrExist", err)
	}
	var oe *OpError
	if !errors.As(err, &oe) || oe.Op != "sem_open" || oe.Name != name {
		t.Errorf("error %#v is not an OpError for sem_open %s", err, name)
	}
}

func TestNamedAccessMissing(t *testing.T) {
	name := testName(t)
	_, err := Open(name, AccessOnly)
	if Classify(err) != ClassNotFound {
		t.Fatalf("AccessOnly Open of missing name: got %v, want not found", err)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("error %v does not match fs.ErrNotExist", err)
	}
}

func TestUnlink(t *testing.T) {
	name := testName(t)
	n, err := Open(name, Create(true, 0o600, 0))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer n.Close()

	if err := Unlink(name); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	// The open handle still works.
	if err := n.Ref().Signal(); err != nil {
		t.Fatalf("Signal after Unlink: %v", err)
	}
	if err := Unlink(name); Classify(err) != ClassNotFound {
		t.Fatalf("second Unlink: got %v, want not found", err)
	}
}

func TestNamedNUL(t *testing.T) {
	if _, err := Open("/bad\x00name", Create(false, 0o600, 0)); Classify(err) != ClassInvalid {
		t.Errorf("Open: got %v, want invalid argument", err)
	}
	if err := Unlink("/bad\x00name"); Classify(err) != ClassInvalid {
		t.Errorf("Unlink: got %v, want invalid argument", err)
	}
}

func TestValidName(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
	}{
		{"/jobs", true},
		{"/a", true},
		{"/" + strings.Repeat("x", PortableNameMax-1), true},
		{"/" + strings.Repeat("x", PortableNameMax), false},
		{"", false},
		{"/", false},
		{"jobs", false},
		{"/a/b", false},
		{"/a\x00b", false},
	}
	for _, tt := range tests {
		err := ValidName(tt.name)
		if (err == nil) != tt.ok {
			t.Errorf("ValidName(%q) = %v, want ok=%t", tt.name, err, tt.ok)
		}
	}
}

func TestOpenFlagsString(t *testing.T) {
	if got := AccessOnly.String(); got != "AccessOnly" {
		t.Errorf("AccessOnly.String() = %q", got)
	}
	if got := Create(true, 0o640, 3).String(); got != "Create{exclusive:true mode:0640 value:3}" {
		t.Errorf("Create(...).String() = %q", got)
	}
}

func TestAnonymousInvisible(t *testing.T) {
	n, err := Anonymous(1)
	if err != nil {
		t.Fatalf("Anonymous: %v", err)
	}
	defer n.Close()

	if _, err := Open(n.Name(), AccessOnly); Classify(err) != ClassNotFound {
		t.Fatalf("Open of anonymous name: got %v, want not found", err)
	}
	if err := ValidName(n.Name()); err != nil {
		t.Errorf("generated name: %v", err)
	}
	if err := n.Ref().TryWait(); err != nil {
		t.Fatalf("TryWait: %v", err)
	}
}

func TestAnonymousNamesDiffer(t *testing.T) {
	a, err := Anonymous(0)
	if err != nil {
		t.Fatalf("Anonymous: %v", err)
	}
	defer a.Close()
	b, err := Anonymous(0)
	if err != nil {
		t.Fatalf("Anonymous: %v", err)
	}
	defer b.Close()
	if a.Name() == b.Name() {
		t.Errorf("two anonymous semaphores got the same name %q", a.Name())
	}
	if a.Ref().Same(b.Ref()) {
		t.Error("two anonymous semaphores share a sem_t")
	}
}

// failRandom makes name generation fall back to the fixed name.
func failRandom(t *testing.T) string {
	t.Helper()
	orig := readRandom
	readRandom = func([]byte) error { return errors.New("no entropy") }
	t.Cleanup(func() { readRandom = orig })
	return "/" + base64.RawURLEncoding.EncodeToString(anonFallback[:])
}

func TestAnonymousFallbackName(t *testing.T) {
	want := failRandom(t)
	for i := 0; i < 2; i++ {
		n, err := Anonymous(0)
		if err != nil {
			t.Fatalf("Anonymous %d: %v", i, err)
		}
		if n.Name() != want {
			t.Errorf("name %q, want fallback %q", n.Name(), want)
		}
		n.Close()
	}
}

func TestAnonymousExhausted(t *testing.T) {
	name := failRandom(t)
	// Occupy the only name generation can produce.
	occupant, err := Open(name, Create(true, 0o600, 0))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() {
		occupant.Close()
		Unlink(name)
	}()

	_, err = Anonymous(0)
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("Anonymous: got %v, want ErrExhausted", err)
	}
	if Classify(err) != ClassExists {
		t.Errorf("class %v, want already exists", Classify(err))
	}
}
