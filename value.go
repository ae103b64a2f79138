package mlirtv

import (
	"fmt"
)

// SymValue is an abstract value bound to an IR value: one of Index,
// Integer, Float, *Tensor, or *MemRef.
type SymValue interface {
	symValue()
}

func (Index) symValue()   {}
func (Integer) symValue() {}
func (Float) symValue()   {}
func (*Tensor) symValue() {}
func (*MemRef) symValue() {}

// ShapedValue is the capability shared by the shape-bearing variants.
type ShapedValue interface {
	SymValue
	Rank() int
	Dims() []Expr
	Dim(i int) Expr
	ElemType() Type
	Get(indices []Expr) (Expr, Expr)
}

// Index is a bit-vector of the fixed index width.
type Index struct {
	E Expr
}

// NewIndex returns the index literal v.
func NewIndex(v uint64) Index { return Index{E: NewConstantExpr(v, IndexBits)} }

// NewIndexExpr wraps an expression of the index sort.
func NewIndexExpr(e Expr) Index {
	assert(e.Sort().Equal(IndexSort()), "index value must have the index sort, got %s", e.Sort())
	return Index{E: e}
}

// idxConst is shorthand for an index-sorted bit-vector literal.
func idxConst(v uint64) Expr { return NewConstantExpr(v, IndexBits) }

// idxOne and idxZero are the unit index literals.
func idxZero() Expr { return idxConst(0) }
func idxOne() Expr  { return idxConst(1) }

// Integer is a bit-vector of its type's width.
type Integer struct {
	E Expr
}

// NewInteger returns the integer literal v at the given width.
func NewInteger(v uint64, width uint) Integer {
	return Integer{E: NewConstantExpr(v, width)}
}

// NewIntegerExpr wraps a bit-vector expression.
func NewIntegerExpr(e Expr) Integer {
	assert(e.Sort().IsBitVec(), "integer value must be a bit-vector, got %s", e.Sort())
	return Integer{E: e}
}

// boolTrue is the i1 true value.
func boolTrue() Integer { return NewInteger(1, 1) }

// Float is an expression of an uninterpreted float sort. Only the
// equational theory below is available; floats are never evaluated.
type Float struct {
	E    Expr
	Prec FPPrecision
}

// NewFloatExpr wraps an expression of a float sort.
func NewFloatExpr(e Expr, prec FPPrecision) Float {
	assert(e.Sort().Equal(FloatExprSort(prec)), "float value sort mismatch")
	return Float{E: e, Prec: prec}
}

// FloatConst returns the interned constant for the numeric value f.
// Distinct numeric values map to distinct free variables of the float
// sort; nothing else is assumed about them.
func FloatConst(f float64, prec FPPrecision) Float {
	name := fmt.Sprintf("%s(%v)", prec, f)
	return Float{E: NewVarExpr(name, FloatExprSort(prec)), Prec: prec}
}

func floatUF(name string, args []Expr, prec FPPrecision) Expr {
	return NewUFExpr(prec.String()+"."+name, args, FloatExprSort(prec))
}

// Add returns the uninterpreted sum of f and other.
func (f Float) Add(other Float) Float {
	return Float{E: floatUF("add", []Expr{f.E, other.E}, f.Prec), Prec: f.Prec}
}

// Mul returns the uninterpreted product of f and other.
func (f Float) Mul(other Float) Float {
	return Float{E: floatUF("mul", []Expr{f.E, other.E}, f.Prec), Prec: f.Prec}
}

// Neg returns the uninterpreted negation of f.
func (f Float) Neg() Float {
	return Float{E: floatUF("neg", []Expr{f.E}, f.Prec), Prec: f.Prec}
}

// Abs returns the uninterpreted absolute value of f.
func (f Float) Abs() Float {
	return Float{E: floatUF("abs", []Expr{f.E}, f.Prec), Prec: f.Prec}
}

// Extend widens f to the target precision.
func (f Float) Extend(target FPPrecision) Float {
	assert(f.Prec < target, "extend must target a higher precision")
	return Float{
		E:    NewUFExpr(f.Prec.String()+".extend", []Expr{f.E}, FloatExprSort(target)),
		Prec: target,
	}
}

// Truncate narrows f to the target precision.
func (f Float) Truncate(target FPPrecision) Float {
	assert(f.Prec > target, "truncate must target a lower precision")
	return Float{
		E:    NewUFExpr(f.Prec.String()+".truncate", []Expr{f.E}, FloatExprSort(target)),
		Prec: target,
	}
}

// Fult returns the i1 result of the uninterpreted float less-than
// comparison; cmpf's olt predicate is encoded with it.
func (f Float) Fult(other Float) Integer {
	return Integer{E: NewUFExpr(f.Prec.String()+".fult", []Expr{f.E, other.E}, BitVecSort(1))}
}

// floatSumExpr applies the uninterpreted total over a 1-D array of n
// float elements.
func floatSumExpr(arr, n Expr, prec FPPrecision) Expr {
	return NewUFExpr(prec.String()+".sum", []Expr{arr, n}, FloatExprSort(prec))
}

// intSumExpr applies the uninterpreted total over a 1-D array of n
// integer elements of the given width.
func intSumExpr(arr, n Expr, width uint) Expr {
	return NewUFExpr(fmt.Sprintf("i%d.sum", width), []Expr{arr, n}, BitVecSort(width))
}

// sumExprOf dispatches on the element type.
func sumExprOf(arr, n Expr, elemType Type) Expr {
	switch t := elemType.(type) {
	case FloatType:
		return floatSumExpr(arr, n, t.Prec)
	case IntType:
		return intSumExpr(arr, n, t.Width)
	}
	panic(fmt.Sprintf("sum: unsupported element type %v", elemType))
}

// FloatAxioms returns the equational axioms of the uninterpreted float
// theory at the given precision: add and mul commute, neg is an
// involution, abs is idempotent, and, at F32 only, truncating an
// extension to F64 is the identity.
func FloatAxioms(prec FPPrecision) []Expr {
	fs := FloatExprSort(prec)
	a := newBoundVar("fp", fs)
	b := newBoundVar("fp", fs)
	av, bv := Float{E: a, Prec: prec}, Float{E: b, Prec: prec}

	axioms := []Expr{
		NewForallExpr([]Expr{a, b}, NewEqExpr(av.Add(bv).E, bv.Add(av).E)),
		NewForallExpr([]Expr{a, b}, NewEqExpr(av.Mul(bv).E, bv.Mul(av).E)),
		NewForallExpr([]Expr{a}, NewEqExpr(av.Neg().Neg().E, a)),
		NewForallExpr([]Expr{a}, NewEqExpr(av.Abs().Abs().E, av.Abs().E)),
	}
	if prec == F32 {
		axioms = append(axioms, NewForallExpr([]Expr{a},
			NewEqExpr(av.Extend(F64).Truncate(F32).E, a)))
	}
	return axioms
}

// getExpr unwraps the expression of a scalar abstract value.
func getExpr(v SymValue) Expr {
	switch v := v.(type) {
	case Index:
		return v.E
	case Integer:
		return v.E
	case Float:
		return v.E
	}
	panic(fmt.Sprintf("getExpr: %T carries no scalar expression", v))
}

// fromExpr wraps e as the abstract value matching ty.
func fromExpr(e Expr, ty Type) (SymValue, bool) {
	switch ty := ty.(type) {
	case IndexType:
		return NewIndexExpr(e), true
	case FloatType:
		return Float{E: e, Prec: ty.Prec}, true
	case IntType:
		assert(e.Sort().IsBitVec() && e.Sort().Width == ty.Width,
			"integer width mismatch: %s vs %s", e.Sort(), ty)
		return Integer{E: e}, true
	}
	return nil, false
}

// zeroOf returns the zero element of a scalar type.
func zeroOf(ty Type) (Expr, bool) {
	switch ty := ty.(type) {
	case FloatType:
		return FloatConst(0, ty.Prec).E, true
	case IntType:
		return NewConstantExpr(0, ty.Width), true
	case IndexType:
		return idxZero(), true
	}
	return nil, false
}

// scalarSortOf returns the expression sort encoding a scalar type.
func scalarSortOf(ty Type) (Sort, bool) {
	switch ty := ty.(type) {
	case IndexType:
		return IndexSort(), true
	case IntType:
		return BitVecSort(ty.Width), true
	case FloatType:
		return FloatExprSort(ty.Prec), true
	}
	return Sort{}, false
}
