package member

import (
	"fmt"
	"reflect"

	"github.com/hanpama/pathway/internal/accessor"
	"github.com/hanpama/pathway/internal/convert"
)

// Callable is a method or function that a chain segment can invoke.
type Callable struct {
	Name string
	// Recv is the receiver type for methods and nil for plain functions.
	Recv reflect.Type

	fn       reflect.Value
	in       []reflect.Type
	variadic bool
	out      reflect.Type
	outErr   bool
}

// LookupMethods returns the callables named name on t, in declaration order.
func LookupMethods(t reflect.Type, name string) []*Callable {
	if t == nil {
		return nil
	}
	var out []*Callable
	for _, cand := range candidateNames(name) {
		if !isExported(cand) {
			continue
		}
		m, ok := t.MethodByName(cand)
		if !ok {
			continue
		}
		out = append(out, newCallable(name, t, m.Func, m.Type, 1))
	}
	return out
}

// FuncCallable wraps a function value, such as a constructor or a
// function-valued property.
func FuncCallable(name string, fn reflect.Value) *Callable {
	return newCallable(name, nil, fn, fn.Type(), 0)
}

func newCallable(name string, recv reflect.Type, fn reflect.Value, ft reflect.Type, skip int) *Callable {
	c := &Callable{Name: name, Recv: recv, fn: fn, variadic: ft.IsVariadic()}
	for i := skip; i < ft.NumIn(); i++ {
		c.in = append(c.in, ft.In(i))
	}
	n := ft.NumOut()
	if n > 0 && ft.Out(n-1) == errorType {
		c.outErr = true
		n--
	}
	if n > 0 {
		c.out = ft.Out(0)
	}
	return c
}

// Out is the declared type of the first non-error result, or nil.
func (c *Callable) Out() reflect.Type { return c.out }

// NumIn is the number of declared parameters excluding the receiver.
func (c *Callable) NumIn() int { return len(c.in) }

func (c *Callable) acceptsArity(n int) bool {
	if c.variadic {
		return n >= len(c.in)-1
	}
	return n == len(c.in)
}

// Score rates how well args fit the signature; -1 means they do not fit.
func (c *Callable) Score(args []any, conv convert.Converter) int {
	if !c.acceptsArity(len(args)) {
		return -1
	}
	last := len(c.in) - 1
	total := 0
	for i, a := range args {
		t := c.in[min(i, last)]
		if c.variadic && i >= last {
			if len(args) == len(c.in) && a != nil && reflect.TypeOf(a).AssignableTo(t) {
				total += argScore(a, t, conv)
				continue
			}
			t = t.Elem()
		}
		s := argScore(a, t, conv)
		if s < 0 {
			return -1
		}
		total += s
	}
	return total
}

func argScore(a any, t reflect.Type, conv convert.Converter) int {
	if a == nil {
		if convert.Nilable(t) {
			return 2
		}
		return -1
	}
	at := reflect.TypeOf(a)
	switch {
	case at == t:
		return 3
	case at.AssignableTo(t):
		return 2
	case conv.CanConvert(at, t):
		return 1
	}
	return -1
}

// Bind coerces args to the parameter types, normalizing a variadic tail into
// a slice. The result is meant for CallSlice when the callable is variadic.
func (c *Callable) Bind(args []any, conv convert.Converter) ([]reflect.Value, error) {
	if !c.acceptsArity(len(args)) {
		return nil, &accessor.PropertyAccessError{Op: "method", Name: c.Name, Type: c.Recv,
			Err: fmt.Errorf("%w: want %d arguments, got %d", accessor.ErrNoMatch, len(c.in), len(args))}
	}
	fixed := len(c.in)
	if c.variadic {
		fixed--
	}
	out := make([]reflect.Value, 0, len(c.in))
	for i := 0; i < fixed; i++ {
		v, err := Coerce(args[i], c.in[i], conv)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if !c.variadic {
		return out, nil
	}
	st := c.in[fixed]
	tail := args[fixed:]
	if len(tail) == 1 && tail[0] != nil && reflect.TypeOf(tail[0]).AssignableTo(st) {
		return append(out, reflect.ValueOf(tail[0])), nil
	}
	sl := reflect.MakeSlice(st, len(tail), len(tail))
	for i, a := range tail {
		v, err := Coerce(a, st.Elem(), conv)
		if err != nil {
			return nil, err
		}
		sl.Index(i).Set(v)
	}
	return append(out, sl), nil
}

// Call invokes the callable with bound arguments. recv is ignored for plain
// functions. A non-nil trailing error result is returned wrapped in a
// PropertyAccessError.
func (c *Callable) Call(recv reflect.Value, in []reflect.Value) (any, error) {
	if c.Recv != nil {
		in = append([]reflect.Value{recv}, in...)
	}
	var out []reflect.Value
	if c.variadic {
		out = c.fn.CallSlice(in)
	} else {
		out = c.fn.Call(in)
	}
	if c.outErr {
		errV := out[len(out)-1]
		if !errV.IsNil() {
			return nil, &accessor.PropertyAccessError{Op: "method", Name: c.Name, Type: c.Recv, Err: errV.Interface().(error)}
		}
		out = out[:len(out)-1]
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0].Interface(), nil
}

// Invoke binds args and calls.
func (c *Callable) Invoke(recv reflect.Value, args []any, conv convert.Converter) (any, error) {
	in, err := c.Bind(args, conv)
	if err != nil {
		return nil, err
	}
	return c.Call(recv, in)
}

// Resolve picks the best candidate for args and binds them. A single
// candidate is bound directly, so its conversion errors surface unchanged.
func Resolve(cands []*Callable, args []any, conv convert.Converter) (*Callable, []reflect.Value, error) {
	switch len(cands) {
	case 0:
		return nil, nil, accessor.ErrNotFound
	case 1:
		in, err := cands[0].Bind(args, conv)
		return cands[0], in, err
	}
	best, bestScore := -1, -1
	for i, c := range cands {
		if s := c.Score(args, conv); s > bestScore {
			best, bestScore = i, s
		}
	}
	if best < 0 {
		c := cands[0]
		return nil, nil, &accessor.PropertyAccessError{Op: "method", Name: c.Name, Type: c.Recv,
			Err: fmt.Errorf("%w for %d arguments", accessor.ErrNoMatch, len(args))}
	}
	in, err := cands[best].Bind(args, conv)
	return cands[best], in, err
}

// InvokeFunc calls fn, which must be a function value, with args.
func InvokeFunc(name string, fn any, args []any, conv convert.Converter) (any, error) {
	rv := reflect.ValueOf(fn)
	if !rv.IsValid() || rv.Kind() != reflect.Func || rv.IsNil() {
		return nil, accessor.NewAccessError("method", name, fn, fmt.Errorf("%w: not a function", accessor.ErrNotFound))
	}
	return FuncCallable(name, rv).Invoke(reflect.Value{}, args, conv)
}
