package mlirtv

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// SortKind enumerates the kinds of sorts the backend understands.
type SortKind int

const (
	SortBool SortKind = iota
	SortBitVec
	SortFloat
	SortArray
)

// FPPrecision is the precision tag of an uninterpreted float sort.
type FPPrecision int

const (
	F32 FPPrecision = iota
	F64
)

func (p FPPrecision) String() string {
	if p == F32 {
		return "fp32"
	}
	return "fp64"
}

// Sort describes the sort of an expression.
type Sort struct {
	Kind   SortKind
	Width  uint        // bit-vector width
	Prec   FPPrecision // float precision
	Domain *Sort       // array domain
	Range  *Sort       // array range
}

// BitVecSort returns the bit-vector sort of the given width.
func BitVecSort(width uint) Sort { return Sort{Kind: SortBitVec, Width: width} }

// BoolSort returns the boolean sort.
func BoolSort() Sort { return Sort{Kind: SortBool} }

// FloatExprSort returns the uninterpreted float sort of the given precision.
func FloatExprSort(prec FPPrecision) Sort { return Sort{Kind: SortFloat, Prec: prec} }

// ArraySort returns the array sort from domain to rng.
func ArraySort(domain, rng Sort) Sort {
	return Sort{Kind: SortArray, Domain: &domain, Range: &rng}
}

// IndexSort returns the bit-vector sort all indices share.
func IndexSort() Sort { return BitVecSort(IndexBits) }

func (s Sort) IsBool() bool   { return s.Kind == SortBool }
func (s Sort) IsBitVec() bool { return s.Kind == SortBitVec }
func (s Sort) IsFloat() bool  { return s.Kind == SortFloat }
func (s Sort) IsArray() bool  { return s.Kind == SortArray }

// Equal returns true if the two sorts are identical.
func (s Sort) Equal(other Sort) bool {
	if s.Kind != other.Kind {
		return false
	}
	switch s.Kind {
	case SortBool:
		return true
	case SortBitVec:
		return s.Width == other.Width
	case SortFloat:
		return s.Prec == other.Prec
	default:
		return s.Domain.Equal(*other.Domain) && s.Range.Equal(*other.Range)
	}
}

// String returns the string representation of the sort.
func (s Sort) String() string {
	switch s.Kind {
	case SortBool:
		return "bool"
	case SortBitVec:
		return fmt.Sprintf("bv%d", s.Width)
	case SortFloat:
		return s.Prec.String()
	default:
		return fmt.Sprintf("(array %s %s)", s.Domain, s.Range)
	}
}

// Expr represents a symbolic expression.
type Expr interface {
	Sort() Sort
	String() string
	expr()
}

func (*ConstantExpr) expr()  {}
func (*BoolConstExpr) expr() {}
func (*VarExpr) expr()       {}
func (*BinaryExpr) expr()    {}
func (*NotExpr) expr()       {}
func (*IteExpr) expr()       {}
func (*ExtractExpr) expr()   {}
func (*CastExpr) expr()      {}
func (*LambdaExpr) expr()    {}
func (*SelectExpr) expr()    {}
func (*StoreExpr) expr()     {}
func (*ForallExpr) expr()    {}
func (*UFExpr) expr()        {}

// BinaryOp represents a binary expression operation.
type BinaryOp int

const (
	arithmetic_op_begin = BinaryOp(iota)
	ADD
	SUB
	MUL
	UDIV
	UREM
	AND
	OR
	XOR
	arithmetic_op_end

	compare_op_begin
	EQ
	ULT
	ULE
	IMPLIES
	compare_op_end
)

var binaryOps = [...]string{
	ADD:     "add",
	SUB:     "sub",
	MUL:     "mul",
	UDIV:    "udiv",
	UREM:    "urem",
	AND:     "and",
	OR:      "or",
	XOR:     "xor",
	EQ:      "eq",
	ULT:     "ult",
	ULE:     "ule",
	IMPLIES: "=>",
}

// String returns the string representation of the operation.
func (op BinaryOp) String() string {
	if op >= 0 && op < BinaryOp(len(binaryOps)) && binaryOps[op] != "" {
		return binaryOps[op]
	}
	return fmt.Sprintf("BinaryOp<%d>", int(op))
}

// IsCompare returns true if op produces a boolean result.
func (op BinaryOp) IsCompare() bool {
	return op > compare_op_begin && op < compare_op_end
}

// ConstantExpr represents a bit-vector literal.
type ConstantExpr struct {
	Value uint64
	Width uint
}

// truncVal truncates v to the given bit width.
func truncVal(v uint64, width uint) uint64 {
	if width >= 64 {
		return v
	}
	return v & ((uint64(1) << width) - 1)
}

// NewConstantExpr returns the interned bit-vector literal of v at width.
func NewConstantExpr(value uint64, width uint) *ConstantExpr {
	value = truncVal(value, width)
	e := intern(fmt.Sprintf("bv:%d:%d", value, width), func() Expr {
		return &ConstantExpr{Value: value, Width: width}
	})
	return e.(*ConstantExpr)
}

func (e *ConstantExpr) Sort() Sort { return BitVecSort(e.Width) }

func (e *ConstantExpr) String() string {
	return fmt.Sprintf("(const %d %d)", e.Value, e.Width)
}

// IsConstantExpr returns true if expr is a bit-vector literal.
func IsConstantExpr(expr Expr) bool {
	_, ok := expr.(*ConstantExpr)
	return ok
}

// BoolConstExpr represents a boolean literal.
type BoolConstExpr struct {
	Value bool
}

var (
	boolTrueExpr  = &BoolConstExpr{Value: true}
	boolFalseExpr = &BoolConstExpr{Value: false}
)

// NewBoolConstExpr returns the boolean literal for value.
func NewBoolConstExpr(value bool) *BoolConstExpr {
	if value {
		return boolTrueExpr
	}
	return boolFalseExpr
}

func (e *BoolConstExpr) Sort() Sort { return BoolSort() }

func (e *BoolConstExpr) String() string {
	if e.Value {
		return "true"
	}
	return "false"
}

// VarExpr represents a named variable. Free variables are interned by
// name; bound variables are unique objects created for one binder.
type VarExpr struct {
	Name    string
	VarSort Sort
	Bound   bool
}

// NewVarExpr returns the interned free variable of the given name and sort.
func NewVarExpr(name string, sort Sort) *VarExpr {
	e := intern("var:"+name+":"+sort.String(), func() Expr {
		return &VarExpr{Name: name, VarSort: sort}
	})
	return e.(*VarExpr)
}

var boundVarSeq uint64

// newBoundVar returns a fresh bound variable of the given sort.
func newBoundVar(prefix string, sort Sort) *VarExpr {
	n := atomic.AddUint64(&boundVarSeq, 1)
	return &VarExpr{Name: fmt.Sprintf("%s!%d", prefix, n), VarSort: sort, Bound: true}
}

// NewBoundIndexVars returns n fresh bound variables of the index sort.
func NewBoundIndexVars(n int) []Expr {
	vars := make([]Expr, n)
	for i := range vars {
		vars[i] = newBoundVar("idx", IndexSort())
	}
	return vars
}

func (e *VarExpr) Sort() Sort     { return e.VarSort }
func (e *VarExpr) String() string { return e.Name }

// BinaryExpr represents an operation on two expressions.
type BinaryExpr struct {
	Op  BinaryOp
	LHS Expr
	RHS Expr
}

func (e *BinaryExpr) Sort() Sort {
	if e.Op.IsCompare() {
		return BoolSort()
	}
	return e.LHS.Sort()
}

func (e *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Op, e.LHS, e.RHS)
}

// NewBinaryExpr returns a new expression for op over lhs & rhs.
// Constant operands are folded.
func NewBinaryExpr(op BinaryOp, lhs, rhs Expr) Expr {
	switch op {
	case ADD:
		return newAddExpr(lhs, rhs)
	case SUB:
		return newSubExpr(lhs, rhs)
	case MUL:
		return newMulExpr(lhs, rhs)
	case UDIV, UREM:
		return newDivRemExpr(op, lhs, rhs)
	case AND:
		return NewAndExpr(lhs, rhs)
	case OR:
		return NewOrExpr(lhs, rhs)
	case XOR:
		return newXorExpr(lhs, rhs)
	case EQ:
		return NewEqExpr(lhs, rhs)
	case ULT:
		return newUltExpr(lhs, rhs)
	case ULE:
		return newUleExpr(lhs, rhs)
	case IMPLIES:
		return NewImpliesExpr(lhs, rhs)
	default:
		panic("unreachable")
	}
}

func bvWidth(e Expr) uint {
	s := e.Sort()
	assert(s.IsBitVec(), "expected a bit-vector, got %s", s)
	return s.Width
}

func newAddExpr(lhs, rhs Expr) Expr {
	if !IsConstantExpr(lhs) && IsConstantExpr(rhs) {
		lhs, rhs = rhs, lhs
	}
	if lhs, ok := lhs.(*ConstantExpr); ok {
		if lhs.Value == 0 {
			return rhs
		} else if rhs, ok := rhs.(*ConstantExpr); ok {
			return NewConstantExpr(lhs.Value+rhs.Value, lhs.Width)
		}
	}
	return &BinaryExpr{Op: ADD, LHS: lhs, RHS: rhs}
}

func newSubExpr(lhs, rhs Expr) Expr {
	if rhs, ok := rhs.(*ConstantExpr); ok {
		if rhs.Value == 0 {
			return lhs
		} else if lhs, ok := lhs.(*ConstantExpr); ok {
			return NewConstantExpr(lhs.Value-rhs.Value, lhs.Width)
		}
	}
	if exprEqual(lhs, rhs) {
		return NewConstantExpr(0, bvWidth(lhs))
	}
	return &BinaryExpr{Op: SUB, LHS: lhs, RHS: rhs}
}

func newMulExpr(lhs, rhs Expr) Expr {
	if !IsConstantExpr(lhs) && IsConstantExpr(rhs) {
		lhs, rhs = rhs, lhs
	}
	if lhs, ok := lhs.(*ConstantExpr); ok {
		if lhs.Value == 1 {
			return rhs
		} else if lhs.Value == 0 {
			return lhs
		} else if rhs, ok := rhs.(*ConstantExpr); ok {
			return NewConstantExpr(lhs.Value*rhs.Value, lhs.Width)
		}
	}
	return &BinaryExpr{Op: MUL, LHS: lhs, RHS: rhs}
}

func newDivRemExpr(op BinaryOp, lhs, rhs Expr) Expr {
	if rhs, ok := rhs.(*ConstantExpr); ok && rhs.Value != 0 {
		if rhs.Value == 1 {
			if op == UDIV {
				return lhs
			}
			return NewConstantExpr(0, rhs.Width)
		}
		if lhs, ok := lhs.(*ConstantExpr); ok {
			if op == UDIV {
				return NewConstantExpr(lhs.Value/rhs.Value, lhs.Width)
			}
			return NewConstantExpr(lhs.Value%rhs.Value, lhs.Width)
		}
	}
	return &BinaryExpr{Op: op, LHS: lhs, RHS: rhs}
}

// NewAndExpr returns the conjunction (boolean) or bitwise and (bit-vector)
// of lhs & rhs.
func NewAndExpr(lhs, rhs Expr) Expr {
	if lhs.Sort().IsBool() {
		if lhs, ok := lhs.(*BoolConstExpr); ok {
			if lhs.Value {
				return rhs
			}
			return lhs
		}
		if rhs, ok := rhs.(*BoolConstExpr); ok {
			if rhs.Value {
				return lhs
			}
			return rhs
		}
		if exprEqual(lhs, rhs) {
			return lhs
		}
		return &BinaryExpr{Op: AND, LHS: lhs, RHS: rhs}
	}
	if lhs, ok := lhs.(*ConstantExpr); ok {
		if rhs, ok := rhs.(*ConstantExpr); ok {
			return NewConstantExpr(lhs.Value&rhs.Value, lhs.Width)
		}
	}
	return &BinaryExpr{Op: AND, LHS: lhs, RHS: rhs}
}

// NewOrExpr returns the disjunction (boolean) or bitwise or (bit-vector)
// of lhs & rhs.
func NewOrExpr(lhs, rhs Expr) Expr {
	if lhs.Sort().IsBool() {
		if lhs, ok := lhs.(*BoolConstExpr); ok {
			if lhs.Value {
				return lhs
			}
			return rhs
		}
		if rhs, ok := rhs.(*BoolConstExpr); ok {
			if rhs.Value {
				return rhs
			}
			return lhs
		}
		if exprEqual(lhs, rhs) {
			return lhs
		}
		return &BinaryExpr{Op: OR, LHS: lhs, RHS: rhs}
	}
	if lhs, ok := lhs.(*ConstantExpr); ok {
		if rhs, ok := rhs.(*ConstantExpr); ok {
			return NewConstantExpr(lhs.Value|rhs.Value, lhs.Width)
		}
	}
	return &BinaryExpr{Op: OR, LHS: lhs, RHS: rhs}
}

func newXorExpr(lhs, rhs Expr) Expr {
	if lhs, ok := lhs.(*ConstantExpr); ok {
		if rhs, ok := rhs.(*ConstantExpr); ok {
			return NewConstantExpr(lhs.Value^rhs.Value, lhs.Width)
		}
	}
	return &BinaryExpr{Op: XOR, LHS: lhs, RHS: rhs}
}

// NewEqExpr returns the equality of lhs & rhs.
func NewEqExpr(lhs, rhs Expr) Expr {
	if lhs, ok := lhs.(*ConstantExpr); ok {
		if rhs, ok := rhs.(*ConstantExpr); ok {
			return NewBoolConstExpr(lhs.Value == rhs.Value)
		}
	}
	if lhs, ok := lhs.(*BoolConstExpr); ok {
		if rhs, ok := rhs.(*BoolConstExpr); ok {
			return NewBoolConstExpr(lhs.Value == rhs.Value)
		}
	}
	if exprEqual(lhs, rhs) {
		return NewBoolConstExpr(true)
	}
	return &BinaryExpr{Op: EQ, LHS: lhs, RHS: rhs}
}

func newUltExpr(lhs, rhs Expr) Expr {
	if lhs, ok := lhs.(*ConstantExpr); ok {
		if rhs, ok := rhs.(*ConstantExpr); ok {
			return NewBoolConstExpr(lhs.Value < rhs.Value)
		}
	}
	if rhs, ok := rhs.(*ConstantExpr); ok && rhs.Value == 0 {
		return NewBoolConstExpr(false)
	}
	if exprEqual(lhs, rhs) {
		return NewBoolConstExpr(false)
	}
	return &BinaryExpr{Op: ULT, LHS: lhs, RHS: rhs}
}

func newUleExpr(lhs, rhs Expr) Expr {
	if lhs, ok := lhs.(*ConstantExpr); ok {
		if rhs, ok := rhs.(*ConstantExpr); ok {
			return NewBoolConstExpr(lhs.Value <= rhs.Value)
		}
		if lhs.Value == 0 {
			return NewBoolConstExpr(true)
		}
	}
	if exprEqual(lhs, rhs) {
		return NewBoolConstExpr(true)
	}
	return &BinaryExpr{Op: ULE, LHS: lhs, RHS: rhs}
}

// NewImpliesExpr returns the implication lhs => rhs.
func NewImpliesExpr(lhs, rhs Expr) Expr {
	if lhs, ok := lhs.(*BoolConstExpr); ok {
		if lhs.Value {
			return rhs
		}
		return NewBoolConstExpr(true)
	}
	if rhs, ok := rhs.(*BoolConstExpr); ok {
		if rhs.Value {
			return rhs
		}
		return NewNotExpr(lhs)
	}
	return &BinaryExpr{Op: IMPLIES, LHS: lhs, RHS: rhs}
}

// NotExpr represents a boolean negation.
type NotExpr struct {
	X Expr
}

// NewNotExpr returns the negation of x.
func NewNotExpr(x Expr) Expr {
	if x, ok := x.(*BoolConstExpr); ok {
		return NewBoolConstExpr(!x.Value)
	}
	if x, ok := x.(*NotExpr); ok {
		return x.X
	}
	return &NotExpr{X: x}
}

func (e *NotExpr) Sort() Sort     { return BoolSort() }
func (e *NotExpr) String() string { return fmt.Sprintf("(not %s)", e.X) }

// IteExpr represents a sort-generic if-then-else.
type IteExpr struct {
	Cond Expr
	Then Expr
	Else Expr
}

// NewIteExpr returns the conditional expression over cond.
func NewIteExpr(cond, then, els Expr) Expr {
	if cond, ok := cond.(*BoolConstExpr); ok {
		if cond.Value {
			return then
		}
		return els
	}
	if exprEqual(then, els) {
		return then
	}
	return &IteExpr{Cond: cond, Then: then, Else: els}
}

func (e *IteExpr) Sort() Sort { return e.Then.Sort() }

func (e *IteExpr) String() string {
	return fmt.Sprintf("(ite %s %s %s)", e.Cond, e.Then, e.Else)
}

// ExtractExpr represents extraction of Width bits of a bit-vector,
// starting at bit Offset.
type ExtractExpr struct {
	X      Expr
	Offset uint
	Width  uint
}

// NewExtractExpr returns the extraction of width bits from x at offset.
func NewExtractExpr(x Expr, offset, width uint) Expr {
	if offset == 0 && width == bvWidth(x) {
		return x
	}
	if x, ok := x.(*ConstantExpr); ok {
		return NewConstantExpr(x.Value>>offset, width)
	}
	return &ExtractExpr{X: x, Offset: offset, Width: width}
}

func (e *ExtractExpr) Sort() Sort { return BitVecSort(e.Width) }

func (e *ExtractExpr) String() string {
	return fmt.Sprintf("(extract %s %d %d)", e.X, e.Offset, e.Width)
}

// CastExpr represents a zero or sign extension to a wider bit-vector.
type CastExpr struct {
	Src    Expr
	Width  uint
	Signed bool
}

// NewCastExpr returns src extended to width bits.
func NewCastExpr(src Expr, width uint, signed bool) Expr {
	srcWidth := bvWidth(src)
	assert(srcWidth <= width, "cast: cannot extend %d bits into %d", srcWidth, width)
	if srcWidth == width {
		return src
	}
	if src, ok := src.(*ConstantExpr); ok {
		v := src.Value
		if signed && srcWidth < 64 && v&(uint64(1)<<(srcWidth-1)) != 0 {
			v |= ^((uint64(1) << srcWidth) - 1)
		}
		return NewConstantExpr(v, width)
	}
	return &CastExpr{Src: src, Width: width, Signed: signed}
}

func (e *CastExpr) Sort() Sort { return BitVecSort(e.Width) }

func (e *CastExpr) String() string {
	if e.Signed {
		return fmt.Sprintf("(sext %s %d)", e.Src, e.Width)
	}
	return fmt.Sprintf("(zext %s %d)", e.Src, e.Width)
}

// LambdaExpr represents a unary lambda; its sort is the array from the
// parameter sort to the body sort. Element reads beta-reduce.
type LambdaExpr struct {
	Param *VarExpr
	Body  Expr
}

// NewLambdaExpr returns a lambda binding param over body.
func NewLambdaExpr(param *VarExpr, body Expr) *LambdaExpr {
	assert(param.Bound, "lambda parameter must be a bound variable")
	return &LambdaExpr{Param: param, Body: body}
}

func (e *LambdaExpr) Sort() Sort { return ArraySort(e.Param.VarSort, e.Body.Sort()) }

func (e *LambdaExpr) String() string {
	return fmt.Sprintf("(lambda (%s) %s)", e.Param, e.Body)
}

// SelectExpr represents an array read.
type SelectExpr struct {
	Array Expr
	Index Expr
}

// NewSelectExpr returns the value of array at index. Reading a lambda
// beta-reduces; reading through a store with comparable indices walks
// the update history like the reference engine's byte reads.
func NewSelectExpr(array, index Expr) Expr {
	for {
		switch a := array.(type) {
		case *LambdaExpr:
			return Substitute(a.Body, []*VarExpr{a.Param}, []Expr{index})
		case *StoreExpr:
			cond, ok := NewEqExpr(index, a.Index).(*BoolConstExpr)
			if !ok {
				return &SelectExpr{Array: array, Index: index}
			} else if cond.Value {
				return a.Value
			}
			array = a.Array
		default:
			return &SelectExpr{Array: array, Index: index}
		}
	}
}

func (e *SelectExpr) Sort() Sort { return *e.Array.Sort().Range }

func (e *SelectExpr) String() string {
	return fmt.Sprintf("(select %s %s)", e.Array, e.Index)
}

// StoreExpr represents an array updated at one index.
type StoreExpr struct {
	Array Expr
	Index Expr
	Value Expr
}

// NewStoreExpr returns array updated with value at index.
func NewStoreExpr(array, index, value Expr) Expr {
	return &StoreExpr{Array: array, Index: index, Value: value}
}

func (e *StoreExpr) Sort() Sort { return e.Array.Sort() }

func (e *StoreExpr) String() string {
	return fmt.Sprintf("(store %s %s %s)", e.Array, e.Index, e.Value)
}

// ForallExpr represents universal quantification over bound variables.
type ForallExpr struct {
	Vars []*VarExpr
	Body Expr
}

// NewForallExpr returns the closure of body over vars.
func NewForallExpr(vars []Expr, body Expr) Expr {
	if body, ok := body.(*BoolConstExpr); ok {
		return body
	}
	bound := make([]*VarExpr, len(vars))
	for i, v := range vars {
		bv, ok := v.(*VarExpr)
		assert(ok && bv.Bound, "forall requires bound variables")
		bound[i] = bv
	}
	return &ForallExpr{Vars: bound, Body: body}
}

func (e *ForallExpr) Sort() Sort { return BoolSort() }

func (e *ForallExpr) String() string {
	names := make([]string, len(e.Vars))
	for i, v := range e.Vars {
		names[i] = v.Name
	}
	return fmt.Sprintf("(forall (%s) %s)", strings.Join(names, " "), e.Body)
}

// UFExpr represents an application of an uninterpreted function.
type UFExpr struct {
	Name string
	Args []Expr
	Res  Sort
}

// NewUFExpr returns the application of the named uninterpreted function.
func NewUFExpr(name string, args []Expr, res Sort) Expr {
	return &UFExpr{Name: name, Args: args, Res: res}
}

func (e *UFExpr) Sort() Sort { return e.Res }

func (e *UFExpr) String() string {
	var sb strings.Builder
	sb.WriteString("(" + e.Name)
	for _, a := range e.Args {
		sb.WriteString(" " + a.String())
	}
	sb.WriteString(")")
	return sb.String()
}

// Substitute returns e with every occurrence of vars[i] replaced by
// repl[i]. Bound variables are globally unique so capture cannot occur.
func Substitute(e Expr, vars []*VarExpr, repl []Expr) Expr {
	assert(len(vars) == len(repl), "substitute: length mismatch")
	switch e := e.(type) {
	case *ConstantExpr, *BoolConstExpr:
		return e
	case *VarExpr:
		for i, v := range vars {
			if e == v {
				return repl[i]
			}
		}
		return e
	case *BinaryExpr:
		return NewBinaryExpr(e.Op, Substitute(e.LHS, vars, repl), Substitute(e.RHS, vars, repl))
	case *NotExpr:
		return NewNotExpr(Substitute(e.X, vars, repl))
	case *IteExpr:
		return NewIteExpr(Substitute(e.Cond, vars, repl), Substitute(e.Then, vars, repl), Substitute(e.Else, vars, repl))
	case *ExtractExpr:
		return NewExtractExpr(Substitute(e.X, vars, repl), e.Offset, e.Width)
	case *CastExpr:
		return NewCastExpr(Substitute(e.Src, vars, repl), e.Width, e.Signed)
	case *LambdaExpr:
		return &LambdaExpr{Param: e.Param, Body: Substitute(e.Body, vars, repl)}
	case *SelectExpr:
		return NewSelectExpr(Substitute(e.Array, vars, repl), Substitute(e.Index, vars, repl))
	case *StoreExpr:
		return NewStoreExpr(Substitute(e.Array, vars, repl), Substitute(e.Index, vars, repl), Substitute(e.Value, vars, repl))
	case *ForallExpr:
		body := Substitute(e.Body, vars, repl)
		return &ForallExpr{Vars: e.Vars, Body: body}
	case *UFExpr:
		args := make([]Expr, len(e.Args))
		for i, a := range e.Args {
			args[i] = Substitute(a, vars, repl)
		}
		return NewUFExpr(e.Name, args, e.Res)
	default:
		panic("unreachable")
	}
}

// exprEqual reports structural equality. The printed form is a complete
// serialization, so it doubles as the comparison key.
func exprEqual(a, b Expr) bool {
	if a == b {
		return true
	}
	return a.String() == b.String()
}

// exprCache interns leaf expressions, bucketed by a 64-bit hash in the
// manner of gosmt's expression builder. Bucket entries keep the full
// key, so hash collisions cannot conflate distinct expressions.
type exprCache struct {
	mu      sync.Mutex
	buckets map[uint64][]cacheEntry
}

type cacheEntry struct {
	key string
	e   Expr
}

var cache = &exprCache{buckets: make(map[uint64][]cacheEntry)}

func intern(key string, mk func() Expr) Expr {
	h := xxhash.Sum64String(key)
	cache.mu.Lock()
	defer cache.mu.Unlock()
	for _, ent := range cache.buckets[h] {
		if ent.key == key {
			return ent.e
		}
	}
	e := mk()
	cache.buckets[h] = append(cache.buckets[h], cacheEntry{key: key, e: e})
	return e
}
