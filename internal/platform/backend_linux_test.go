//go:build linux

package platform

import (
	"errors"
	"testing"
)

func TestLinuxBackend_DisconnectedRequestsFail(t *testing.T) {
	b := NewLinuxBackend(nil)
	for name, call := range map[string]func(WindowID) error{
		"hide":     b.Hide,
		"minimize": b.Minimize,
		"close":    b.Close,
		"focus":    b.Focus,
	} {
		if err := call(1); !errors.Is(err, errNoConnection) {
			t.Fatalf("%s: err = %v, want errNoConnection", name, err)
		}
	}
}
