package propertyhandler

import (
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hanpama/pathway/internal/scope"
)

type named struct{ tag string }

func (n named) GetProperty(string, any, *scope.Scope) (any, error)      { return n.tag, nil }
func (n named) SetProperty(string, any, *scope.Scope, any) (any, error) { return n.tag, nil }

type point struct{ X int }

func (p point) String() string { return fmt.Sprint(p.X) }

type plain struct{}

var stringerType = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()

func TestLookup(t *testing.T) {
	r := New()
	r.Register(stringerType, named{"stringer"})
	r.Register(reflect.TypeOf(point{}), named{"point"})

	require.Equal(t, named{"point"}, r.Lookup(reflect.TypeOf(point{})))
	require.Equal(t, named{"stringer"}, r.Lookup(reflect.TypeOf(&point{})))
	require.Nil(t, r.Lookup(reflect.TypeOf(plain{})))
	require.Nil(t, r.Lookup(nil))
	require.Equal(t, 2, r.Len())

	var nilReg *Registry
	require.Nil(t, nilReg.Lookup(reflect.TypeOf(point{})))
}

func TestRegisterInvalidatesLookups(t *testing.T) {
	r := New()
	pt := reflect.TypeOf(&point{})
	require.Nil(t, r.Lookup(pt))

	r.Register(stringerType, named{"a"})
	require.Equal(t, named{"a"}, r.Lookup(pt))

	r.Register(stringerType, named{"b"})
	require.Equal(t, named{"b"}, r.Lookup(pt))
	require.Equal(t, 1, r.Len())

	r.Register(stringerType, nil)
	require.Nil(t, r.Lookup(pt))

	r.Register(pt, named{"exact"})
	require.Equal(t, named{"exact"}, r.Lookup(pt))
	r.Register(pt, nil)
	require.Nil(t, r.Lookup(pt))
	require.Zero(t, r.Len())
}

func TestInterfaceOrder(t *testing.T) {
	r := New()
	anyType := reflect.TypeOf((*any)(nil)).Elem()
	r.Register(stringerType, named{"first"})
	r.Register(anyType, named{"fallback"})

	require.Equal(t, named{"first"}, r.Lookup(reflect.TypeOf(point{})))
	require.Equal(t, named{"fallback"}, r.Lookup(reflect.TypeOf(plain{})))
}

func TestConcurrentLookup(t *testing.T) {
	r := New()
	r.Register(stringerType, named{"s"})
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 100 {
				if (i+j)%10 == 0 {
					r.Register(reflect.TypeOf(plain{}), named{"p"})
				}
				if h := r.Lookup(reflect.TypeOf(point{})); h != (named{"s"}) {
					t.Errorf("lookup = %v", h)
				}
			}
		}()
	}
	wg.Wait()
}
