package mlirtv

import (
	"fmt"

	"github.com/benbjohnson/immutable"
)

// RegFile maps IR values to the abstract values bound to them. Entries
// are write-once; rebinding or a missing lookup is a programmer error.
// The map is persistent so loop-body encodings fork it cheaply.
type RegFile struct {
	m *immutable.SortedMap
}

// NewRegFile returns an empty register file.
func NewRegFile() *RegFile {
	return &RegFile{m: immutable.NewSortedMap(&uint64Comparer{})}
}

// Add binds v to sv. Panics if v is already bound.
func (r *RegFile) Add(v *Value, sv SymValue) {
	if _, ok := r.m.Get(v.ID()); ok {
		panic(fmt.Sprintf("regfile: %s is already bound", v))
	}
	r.m = r.m.Set(v.ID(), sv)
}

// Find returns the binding of v, if any.
func (r *RegFile) Find(v *Value) (SymValue, bool) {
	sv, ok := r.m.Get(v.ID())
	if !ok {
		return nil, false
	}
	return sv.(SymValue), true
}

// FindOrCrash returns the binding of v. Panics if v is unbound.
func (r *RegFile) FindOrCrash(v *Value) SymValue {
	sv, ok := r.Find(v)
	if !ok {
		panic(fmt.Sprintf("regfile: %s is not bound", v))
	}
	return sv
}

// GetTensor returns the tensor bound to v.
func (r *RegFile) GetTensor(v *Value) *Tensor {
	t, ok := r.FindOrCrash(v).(*Tensor)
	assert(ok, "%s is not bound to a tensor", v)
	return t
}

// GetMemRef returns the memref bound to v.
func (r *RegFile) GetMemRef(v *Value) *MemRef {
	m, ok := r.FindOrCrash(v).(*MemRef)
	assert(ok, "%s is not bound to a memref", v)
	return m
}

// GetIndex returns the index bound to v.
func (r *RegFile) GetIndex(v *Value) Index {
	i, ok := r.FindOrCrash(v).(Index)
	assert(ok, "%s is not bound to an index", v)
	return i
}

// GetInteger returns the integer bound to v.
func (r *RegFile) GetInteger(v *Value) Integer {
	i, ok := r.FindOrCrash(v).(Integer)
	assert(ok, "%s is not bound to an integer", v)
	return i
}

// GetFloat returns the float bound to v.
func (r *RegFile) GetFloat(v *Value) Float {
	f, ok := r.FindOrCrash(v).(Float)
	assert(ok, "%s is not bound to a float", v)
	return f
}

// GetExpr returns the expression of the scalar bound to v.
func (r *RegFile) GetExpr(v *Value) Expr {
	return getExpr(r.FindOrCrash(v))
}

// fork returns a register file sharing the persistent map.
func (r *RegFile) fork() *RegFile {
	return &RegFile{m: r.m}
}

// uint64Comparer compares two 64-bit unsigned integers. Implements
// immutable.Comparer.
type uint64Comparer struct{}

// Compare returns -1 if a is less than b, returns 1 if a is greater
// than b, and returns 0 if a is equal to b.
func (c *uint64Comparer) Compare(a, b interface{}) int {
	if i, j := a.(uint64), b.(uint64); i < j {
		return -1
	} else if i > j {
		return 1
	}
	return 0
}

// LoopScope is one level of the loop-nest being encoded: the fresh
// induction variables and their inclusive upper bounds.
type LoopScope struct {
	IndVars           []Expr
	IndVarUpperBounds []Expr
}

type opWelldef struct {
	op   *Operation
	pred Expr
}

// State is the result of encoding a function: the register bindings,
// the accumulated well-definedness predicate, the return values, and
// the symbolic memory.
type State struct {
	Regs      *RegFile
	M         *Memory
	RetValues []SymValue

	// HasQuantifier is set when an encoded op materially introduced a
	// quantifier; HasConstArray when a sparse constant was encoded.
	HasQuantifier bool
	HasConstArray bool

	welldefs []opWelldef
	scopes   []*LoopScope
}

// NewState returns a state seeded from the function signature: tensor
// arguments become fresh unconstrained tensors, memref arguments get
// argument blocks in memory, scalars become fresh variables.
func NewState(fn *Function) (*State, error) {
	st := &State{Regs: NewRegFile(), M: NewMemory()}
	if fn == nil {
		return st, nil
	}
	for _, arg := range fn.Args {
		name := fmt.Sprintf("%s.%s", fn.FuncName, arg.Name)
		switch ty := arg.Type.(type) {
		case TensorType:
			dims := typeDimsFresh(ty.Shape, name)
			st.Regs.Add(arg, NewSymbolicTensor(ty.Elem, name, dims))
		case MemRefType:
			dims := typeDimsFresh(ty.Shape, name)
			layout, ok := LayoutFromAffineMap(ty.Layout, dims)
			if !ok {
				return nil, unsupported(nil, fmt.Sprintf("argument %s has an unsupported layout map", arg))
			}
			bid := st.M.AddArgBlock(ty.Elem, name)
			st.Regs.Add(arg, NewMemRef(st.M, ty.Elem, bid, idxZero(), dims, layout))
		case IndexType:
			st.Regs.Add(arg, NewIndexExpr(NewVarExpr(name, IndexSort())))
		case IntType:
			st.Regs.Add(arg, NewIntegerExpr(NewVarExpr(name, BitVecSort(ty.Width))))
		case FloatType:
			st.Regs.Add(arg, NewFloatExpr(NewVarExpr(name, FloatExprSort(ty.Prec)), ty.Prec))
		default:
			return nil, unsupported(nil, fmt.Sprintf("argument %s has an unsupported type", arg))
		}
	}
	return st, nil
}

// WellDefined conjoins pred onto the well-definedness tracked for op.
func (st *State) WellDefined(op *Operation, pred Expr) {
	st.welldefs = append(st.welldefs, opWelldef{op: op, pred: pred})
}

// IsOpWellDefined returns the conjunction of the predicates recorded
// for op.
func (st *State) IsOpWellDefined(op *Operation) Expr {
	pred := Expr(NewBoolConstExpr(true))
	for _, wd := range st.welldefs {
		if wd.op == op {
			pred = NewAndExpr(pred, wd.pred)
		}
	}
	return pred
}

// WellDefinedness returns the conjunction of every predicate recorded
// so far. It grows monotonically and is never cleared.
func (st *State) WellDefinedness() Expr {
	pred := Expr(NewBoolConstExpr(true))
	for _, wd := range st.welldefs {
		pred = NewAndExpr(pred, wd.pred)
	}
	return pred
}

// Fork returns a state for encoding a nested body: register bindings
// are shared persistently, the well-definedness log and scope stack are
// copied, and memory is shared.
func (st *State) Fork() *State {
	welldefs := make([]opWelldef, len(st.welldefs))
	copy(welldefs, st.welldefs)
	scopes := make([]*LoopScope, len(st.scopes))
	copy(scopes, st.scopes)
	return &State{
		Regs:          st.Regs.fork(),
		M:             st.M,
		HasQuantifier: st.HasQuantifier,
		HasConstArray: st.HasConstArray,
		welldefs:      welldefs,
		scopes:        scopes,
	}
}

// PushLoopScope enters a loop body: fresh induction variables are
// created, one per upper bound. Callers must pop the scope on every
// exit path, typically via defer.
func (st *State) PushLoopScope(upperBounds []Expr) *LoopScope {
	scope := &LoopScope{
		IndVars:           NewBoundIndexVars(len(upperBounds)),
		IndVarUpperBounds: upperBounds,
	}
	st.scopes = append(st.scopes, scope)
	return scope
}

// PopLoopScope leaves the innermost loop body.
func (st *State) PopLoopScope() {
	assert(len(st.scopes) > 0, "loop scope stack underflow")
	st.scopes = st.scopes[:len(st.scopes)-1]
}

// CurLoopScope returns the innermost loop scope.
func (st *State) CurLoopScope() *LoopScope {
	assert(len(st.scopes) > 0, "no active loop scope")
	return st.scopes[len(st.scopes)-1]
}
