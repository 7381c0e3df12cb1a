package schema

import (
	"reflect"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/rawbytedev/fractus/pkg/errs"
)

var unions = struct {
	sync.RWMutex
	members map[reflect.Type][]reflect.Type
}{members: make(map[reflect.Type][]reflect.Type)}

// RegisterUnion declares the members of the union carried by the interface
// type iface. Members are *T for table members and T for struct members;
// the first member gets discriminator 1. Register before the first Compile
// that reaches the interface.
func RegisterUnion(iface reflect.Type, members ...reflect.Type) error {
	if iface == nil || iface.Kind() != reflect.Interface {
		return errors.Wrapf(errs.ErrUnsupported, "union carrier %v is not an interface", iface)
	}
	if len(members) == 0 || len(members) > 255 {
		return errors.Wrapf(errs.ErrUnsupported, "union %v: %d members (want 1..255)", iface, len(members))
	}
	seen := make(map[reflect.Type]bool, len(members))
	for _, m := range members {
		if m == nil {
			return errors.Wrapf(errs.ErrUnsupported, "union %v: nil member", iface)
		}
		isTable := m.Kind() == reflect.Pointer && m.Elem().Kind() == reflect.Struct
		if !isTable && m.Kind() != reflect.Struct {
			return errors.Wrapf(errs.ErrUnsupported, "union %v: member %v must be a struct or a pointer to one", iface, m)
		}
		if !m.Implements(iface) {
			return errors.Wrapf(errs.ErrTypeMismatch, "union %v: member %v does not implement it", iface, m)
		}
		if seen[m] {
			return errors.Newf("union %v: member %v listed twice", iface, m)
		}
		seen[m] = true
	}

	unions.Lock()
	defer unions.Unlock()
	unions.members[iface] = append([]reflect.Type(nil), members...)
	return nil
}

func unionMembers(iface reflect.Type) ([]reflect.Type, bool) {
	unions.RLock()
	defer unions.RUnlock()
	m, ok := unions.members[iface]
	return m, ok
}
