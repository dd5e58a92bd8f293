package value

// Array is an ordered, owning container. Pushing Nothing is a no-op; absence
// is never stored.
type Array struct {
	elements []Value
}

func NewArray() *Array {
	return &Array{}
}

// Push appends v, taking ownership of it.
func (a *Array) Push(v Value) {
	if v.tag == TypeNothing {
		return
	}
	a.elements = append(a.elements, v)
}

func (a *Array) Len() int { return len(a.elements) }

func (a *Array) At(idx int) Value { return a.elements[idx] }

// SetAt overwrites the element at idx, taking ownership of v.
func (a *Array) SetAt(idx int, v Value) { a.elements[idx] = v }

func (a *Array) Reserve(n int) {
	if cap(a.elements) < n {
		grown := make([]Value, len(a.elements), n)
		copy(grown, a.elements)
		a.elements = grown
	}
}

func (a *Array) Clone() *Array {
	out := &Array{elements: make([]Value, 0, len(a.elements))}
	for _, el := range a.elements {
		out.elements = append(out.elements, el.Copy())
	}
	return out
}

// ArraySet is an order-insensitive, deduplicating container. Equality is the
// cross-type total order, optionally collator-aware for strings.
type ArraySet struct {
	values   []Value
	collator *Collator
}

func NewArraySet() *ArraySet {
	return &ArraySet{}
}

func NewArraySetWithCollator(c *Collator) *ArraySet {
	return &ArraySet{collator: c}
}

// Push inserts v, taking ownership. If an equal element is already present
// the new value is released and the set is unchanged.
func (s *ArraySet) Push(v Value) bool {
	if v.tag == TypeNothing {
		return false
	}
	if s.Contains(v) {
		v.Release()
		return false
	}
	s.values = append(s.values, v)
	return true
}

func (s *ArraySet) Contains(v Value) bool {
	for _, el := range s.values {
		if Compare(el, v, s.collator) == 0 {
			return true
		}
	}
	return false
}

func (s *ArraySet) Len() int { return len(s.values) }

func (s *ArraySet) At(idx int) Value { return s.values[idx] }

func (s *ArraySet) Clone() *ArraySet {
	out := &ArraySet{collator: s.collator, values: make([]Value, 0, len(s.values))}
	for _, el := range s.values {
		out.values = append(out.values, el.Copy())
	}
	return out
}

// Object is an ordered field map with linear lookup, owning its values.
type Object struct {
	names  []string
	values []Value
}

func NewObject() *Object {
	return &Object{}
}

// Set appends the field, taking ownership of v. Nothing is dropped.
func (o *Object) Set(name string, v Value) {
	if v.tag == TypeNothing {
		return
	}
	o.names = append(o.names, name)
	o.values = append(o.values, v)
}

// Get returns an unowned view of the named field, or Nothing.
func (o *Object) Get(name string) Value {
	for i, n := range o.names {
		if n == name {
			return o.values[i]
		}
	}
	return Nothing
}

func (o *Object) Len() int { return len(o.names) }

func (o *Object) FieldAt(idx int) (string, Value) {
	return o.names[idx], o.values[idx]
}

func (o *Object) Clone() *Object {
	out := &Object{
		names:  append([]string(nil), o.names...),
		values: make([]Value, 0, len(o.values)),
	}
	for _, el := range o.values {
		out.values = append(out.values, el.Copy())
	}
	return out
}
