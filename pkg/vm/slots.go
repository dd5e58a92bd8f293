package vm

import "slotvm/pkg/value"

// SlotAccessor binds a stack-push instruction to externally supplied data.
// Accessors must stay valid for as long as any fragment referencing them.
type SlotAccessor interface {
	// GetViewOfValue returns the current value without transferring
	// ownership.
	GetViewOfValue() value.Value
	// CopyOrMoveValue hands the value to the caller. Owning accessors
	// transfer ownership and keep a dead husk; non-owning ones return a
	// deep copy.
	CopyOrMoveValue() (value.Value, bool)
}

// OwnedValueAccessor owns the value it holds until it is moved out.
type OwnedValueAccessor struct {
	val   value.Value
	owned bool
}

func NewOwnedValueAccessor(v value.Value) *OwnedValueAccessor {
	return &OwnedValueAccessor{val: v, owned: true}
}

// Reset releases any held value and installs a new owned one.
func (a *OwnedValueAccessor) Reset(v value.Value) {
	if a.owned {
		a.val.Release()
	}
	a.val = v
	a.owned = true
}

func (a *OwnedValueAccessor) GetViewOfValue() value.Value {
	return a.val
}

func (a *OwnedValueAccessor) CopyOrMoveValue() (value.Value, bool) {
	if a.owned {
		a.owned = false
		out := a.val
		a.val = value.Nothing
		return out, true
	}
	return a.val.Copy(), true
}

// ViewOfValueAccessor exposes a value it never owns.
type ViewOfValueAccessor struct {
	val value.Value
}

func NewViewOfValueAccessor(v value.Value) *ViewOfValueAccessor {
	return &ViewOfValueAccessor{val: v}
}

func (a *ViewOfValueAccessor) Set(v value.Value) { a.val = v }

func (a *ViewOfValueAccessor) GetViewOfValue() value.Value {
	return a.val
}

func (a *ViewOfValueAccessor) CopyOrMoveValue() (value.Value, bool) {
	return a.val.Copy(), true
}
