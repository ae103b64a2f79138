package mlirtv

import (
	"fmt"
	"strings"
)

// Tensor is an immutable N-D array: an element sort array indexed by
// the 1-D linearization of its logical indices, together with its
// dimension sizes.
type Tensor struct {
	elemType Type
	dims     []Expr
	arr      Expr // sort: (array index elem)
}

// get1DSize returns the product of dims.
func get1DSize(dims []Expr) Expr {
	size := idxOne()
	for _, d := range dims {
		size = NewBinaryExpr(MUL, size, d)
	}
	return size
}

// to1DIdx linearizes indices row-major with respect to dims.
func to1DIdx(indices, dims []Expr) Expr {
	assert(len(indices) == len(dims), "to1DIdx: rank mismatch (%d vs %d)", len(indices), len(dims))
	if len(indices) == 0 {
		return idxZero()
	}
	idx := indices[0]
	for i := 1; i < len(indices); i++ {
		idx = NewBinaryExpr(ADD, NewBinaryExpr(MUL, idx, dims[i]), indices[i])
	}
	return idx
}

// from1DIdx recovers the per-axis indices of a linearized index.
func from1DIdx(idx Expr, dims []Expr) []Expr {
	indices := make([]Expr, len(dims))
	for i := len(dims) - 1; i >= 0; i-- {
		if i == 0 {
			indices[i] = idx
		} else {
			indices[i] = NewBinaryExpr(UREM, idx, dims[i])
			idx = NewBinaryExpr(UDIV, idx, dims[i])
		}
	}
	return indices
}

// inBoundsPred conjoins idx_i < dim_i over all axes.
func inBoundsPred(indices, dims []Expr) Expr {
	pred := Expr(NewBoolConstExpr(true))
	for i := range indices {
		pred = NewAndExpr(pred, NewBinaryExpr(ULT, indices[i], dims[i]))
	}
	return pred
}

// listsEqual conjoins pointwise equality of two equally long lists.
func listsEqual(a, b []Expr) Expr {
	assert(len(a) == len(b), "listsEqual: length mismatch")
	pred := Expr(NewBoolConstExpr(true))
	for i := range a {
		pred = NewAndExpr(pred, NewEqExpr(a[i], b[i]))
	}
	return pred
}

// typeDims turns a static shape into dim expressions, consuming one
// entry of dynamics per DynamicSize slot. Rank-0 shapes get [1].
func typeDims(shape []int64, dynamics []Expr) []Expr {
	if len(shape) == 0 {
		return []Expr{idxOne()}
	}
	dims := make([]Expr, 0, len(shape))
	for _, d := range shape {
		if d == DynamicSize {
			assert(len(dynamics) > 0, "typeDims: missing dynamic size operand")
			dims = append(dims, dynamics[0])
			dynamics = dynamics[1:]
		} else {
			dims = append(dims, idxConst(uint64(d)))
		}
	}
	assert(len(dynamics) == 0, "typeDims: too many dynamic size operands")
	return dims
}

// typeDimsFresh is typeDims with a fresh variable per dynamic slot.
func typeDimsFresh(shape []int64, prefix string) []Expr {
	if len(shape) == 0 {
		return []Expr{idxOne()}
	}
	dims := make([]Expr, len(shape))
	for i, d := range shape {
		if d == DynamicSize {
			dims[i] = NewVarExpr(fmt.Sprintf("%s.dim%d", prefix, i), IndexSort())
		} else {
			dims[i] = idxConst(uint64(d))
		}
	}
	return dims
}

func elemArraySort(elemType Type) Sort {
	s, ok := scalarSortOf(elemType)
	assert(ok, "unsupported element type %v", elemType)
	return ArraySort(IndexSort(), s)
}

// NewSplatTensor returns the tensor whose every element is elem.
func NewSplatTensor(elemType Type, elem Expr, dims []Expr) *Tensor {
	i := newBoundVar("idx", IndexSort())
	return &Tensor{elemType: elemType, dims: dims, arr: NewLambdaExpr(i, elem)}
}

// NewTensorFromElems returns the rank-1 tensor holding elems in order.
func NewTensorFromElems(elemType Type, elems []Expr) *Tensor {
	assert(len(elems) > 0, "element list must not be empty")
	i := newBoundVar("idx", IndexSort())
	body := elems[len(elems)-1]
	for k := len(elems) - 2; k >= 0; k-- {
		body = NewIteExpr(NewEqExpr(Expr(i), idxConst(uint64(k))), elems[k], body)
	}
	return &Tensor{
		elemType: elemType,
		dims:     []Expr{idxConst(uint64(len(elems)))},
		arr:      NewLambdaExpr(i, body),
	}
}

// NewSparseTensor returns the tensor that is values[k] at indices[k]
// and zero elsewhere.
func NewSparseTensor(elemType Type, indices [][]uint64, values []Expr, shape []uint64, zero Expr) *Tensor {
	dims := make([]Expr, len(shape))
	for i, d := range shape {
		dims[i] = idxConst(d)
	}
	i := newBoundVar("idx", IndexSort())
	body := zero
	for k := len(indices) - 1; k >= 0; k-- {
		idxExprs := make([]Expr, len(indices[k]))
		for j, v := range indices[k] {
			idxExprs[j] = idxConst(v)
		}
		lin := to1DIdx(idxExprs, dims)
		body = NewIteExpr(NewEqExpr(Expr(i), lin), values[k], body)
	}
	return &Tensor{elemType: elemType, dims: dims, arr: NewLambdaExpr(i, body)}
}

// NewSymbolicTensor returns a tensor backed by a fresh unconstrained
// array variable.
func NewSymbolicTensor(elemType Type, name string, dims []Expr) *Tensor {
	return &Tensor{
		elemType: elemType,
		dims:     dims,
		arr:      NewVarExpr(name, elemArraySort(elemType)),
	}
}

// MkLambdaTensor returns the tensor whose element at vars is body.
// The bound vars are replaced by the unlinearized lambda index.
func MkLambdaTensor(elemType Type, dims []Expr, vars []Expr, body Expr) *Tensor {
	assert(len(dims) == len(vars), "lambda tensor: dims and vars must pair up")
	if len(vars) == 1 {
		v := vars[0].(*VarExpr)
		return &Tensor{elemType: elemType, dims: dims, arr: NewLambdaExpr(v, body)}
	}
	i := newBoundVar("idx", IndexSort())
	bound := make([]*VarExpr, len(vars))
	for k, v := range vars {
		bound[k] = v.(*VarExpr)
	}
	body = Substitute(body, bound, from1DIdx(i, dims))
	return &Tensor{elemType: elemType, dims: dims, arr: NewLambdaExpr(i, body)}
}

// MkIteTensor returns the elementwise conditional of a and b; cond maps
// an index vector to an i1 expression.
func MkIteTensor(cond func(indices []Expr) Expr, a, b *Tensor) *Tensor {
	vars := NewBoundIndexVars(a.Rank())
	av, _ := a.Get(vars)
	bv, _ := b.Get(vars)
	isTrue := NewEqExpr(cond(vars), NewConstantExpr(1, 1))
	return MkLambdaTensor(a.elemType, a.Dims(), vars, NewIteExpr(isTrue, av, bv))
}

func (t *Tensor) Rank() int      { return len(t.dims) }
func (t *Tensor) ElemType() Type { return t.elemType }

// Dims returns a copy of the dimension sizes.
func (t *Tensor) Dims() []Expr {
	dims := make([]Expr, len(t.dims))
	copy(dims, t.dims)
	return dims
}

func (t *Tensor) Dim(i int) Expr { return t.dims[i] }

// Get1DSize returns the total element count.
func (t *Tensor) Get1DSize() Expr { return get1DSize(t.dims) }

// AsArray exposes the 1-D content array.
func (t *Tensor) AsArray() Expr { return t.arr }

// Get returns the element at indices and the in-bounds predicate.
func (t *Tensor) Get(indices []Expr) (Expr, Expr) {
	return NewSelectExpr(t.arr, to1DIdx(indices, t.dims)), inBoundsPred(indices, t.dims)
}

// IsInBounds returns the in-bounds predicate for indices.
func (t *Tensor) IsInBounds(indices []Expr) Expr {
	return inBoundsPred(indices, t.dims)
}

// Insert returns the tensor updated with value at indices, plus the
// in-bounds predicate.
func (t *Tensor) Insert(value Expr, indices []Expr) (*Tensor, Expr) {
	arr := NewStoreExpr(t.arr, to1DIdx(indices, t.dims), value)
	return &Tensor{elemType: t.elemType, dims: t.Dims(), arr: arr}, inBoundsPred(indices, t.dims)
}

// ElementwiseUnaryOp maps f over every element.
func (t *Tensor) ElementwiseUnaryOp(newElemType Type, f func(Expr) (Expr, error)) (*Tensor, error) {
	i := newBoundVar("idx", IndexSort())
	body, err := f(NewSelectExpr(t.arr, i))
	if err != nil {
		return nil, err
	}
	return &Tensor{elemType: newElemType, dims: t.Dims(), arr: NewLambdaExpr(i, body)}, nil
}

// ElementwiseBinOp combines t and other pointwise with f. The caller
// enforces matching dims as well-definedness.
func (t *Tensor) ElementwiseBinOp(other *Tensor, newElemType Type, f func(a, b Expr) (Expr, error)) (*Tensor, error) {
	i := newBoundVar("idx", IndexSort())
	body, err := f(NewSelectExpr(t.arr, i), NewSelectExpr(other.arr, i))
	if err != nil {
		return nil, err
	}
	return &Tensor{elemType: newElemType, dims: t.Dims(), arr: NewLambdaExpr(i, body)}, nil
}

// Reshape reinterprets the 1-D linearization under new dims. The caller
// enforces matching 1-D sizes as well-definedness.
func (t *Tensor) Reshape(newDims []Expr) *Tensor {
	return &Tensor{elemType: t.elemType, dims: newDims, arr: t.arr}
}

// Reverse flips the tensor along axis.
func (t *Tensor) Reverse(axis int) *Tensor {
	vars := NewBoundIndexVars(t.Rank())
	src := make([]Expr, len(vars))
	copy(src, vars)
	last := NewBinaryExpr(SUB, t.dims[axis], idxOne())
	src[axis] = NewBinaryExpr(SUB, last, vars[axis])
	elem, _ := t.Get(src)
	return MkLambdaTensor(t.elemType, t.Dims(), vars, elem)
}

// Tile repeats the tensor along each axis by the repeat vector.
func (t *Tensor) Tile(repeat []uint64) *Tensor {
	assert(len(repeat) == t.Rank(), "tile: repeat vector must have one entry per axis")
	vars := NewBoundIndexVars(t.Rank())
	dims := make([]Expr, t.Rank())
	src := make([]Expr, t.Rank())
	for i := range dims {
		dims[i] = NewBinaryExpr(MUL, t.dims[i], idxConst(repeat[i]))
		src[i] = NewBinaryExpr(UREM, vars[i], t.dims[i])
	}
	elem, _ := t.Get(src)
	return MkLambdaTensor(t.elemType, dims, vars, elem)
}

// Concat stacks other after t along axis. The caller enforces matching
// off-axis dims as well-definedness.
func (t *Tensor) Concat(other *Tensor, axis int) *Tensor {
	vars := NewBoundIndexVars(t.Rank())
	dims := t.Dims()
	dims[axis] = NewBinaryExpr(ADD, t.dims[axis], other.dims[axis])
	src := make([]Expr, len(vars))
	copy(src, vars)
	src[axis] = NewBinaryExpr(SUB, vars[axis], t.dims[axis])
	inFirst := NewBinaryExpr(ULT, vars[axis], t.dims[axis])
	a, _ := t.Get(vars)
	b, _ := other.Get(src)
	return MkLambdaTensor(t.elemType, dims, vars, NewIteExpr(inFirst, a, b))
}

// Sum returns the uninterpreted total over all elements.
func (t *Tensor) Sum() Expr {
	return sumExprOf(t.arr, t.Get1DSize(), t.elemType)
}

// Dot returns the sum of the elementwise product of t and other.
func (t *Tensor) Dot(other *Tensor) (Expr, error) {
	prod, err := t.ElementwiseBinOp(other, t.elemType, mulOf(t.elemType))
	if err != nil {
		return nil, err
	}
	return prod.Sum(), nil
}

// mulOf returns the elementwise multiplication for an element type.
func mulOf(elemType Type) func(a, b Expr) (Expr, error) {
	switch ty := elemType.(type) {
	case FloatType:
		return func(a, b Expr) (Expr, error) {
			return NewFloatExpr(a, ty.Prec).Mul(NewFloatExpr(b, ty.Prec)).E, nil
		}
	case IntType:
		return func(a, b Expr) (Expr, error) {
			return NewBinaryExpr(MUL, a, b), nil
		}
	}
	return func(a, b Expr) (Expr, error) {
		return nil, &UnsupportedError{Reason: fmt.Sprintf("unsupported element type %v", elemType)}
	}
}

// Matmul contracts the inner axis of two rank-2 tensors.
func (t *Tensor) Matmul(other *Tensor) (*Tensor, error) {
	if t.Rank() != 2 || other.Rank() != 2 {
		return nil, &UnsupportedError{Reason: "matmul requires rank-2 operands"}
	}
	vars := NewBoundIndexVars(2)
	i, j := vars[0], vars[1]
	k := NewBoundIndexVars(1)

	rowElem, _ := t.Get([]Expr{i, k[0]})
	row := MkLambdaTensor(t.elemType, []Expr{t.dims[1]}, k, rowElem)
	k2 := NewBoundIndexVars(1)
	colElem, _ := other.Get([]Expr{k2[0], j})
	col := MkLambdaTensor(other.elemType, []Expr{other.dims[0]}, k2, colElem)

	body, err := row.Dot(col)
	if err != nil {
		return nil, err
	}
	return MkLambdaTensor(t.elemType, []Expr{t.dims[0], other.dims[1]}, vars, body), nil
}

// ConvLayout selects the operand layouts of a 2-D convolution.
type ConvLayout int

const (
	ConvNCHWFCHW ConvLayout = iota
	ConvNHWCHWCF
)

// convOutDim computes (in - (kernel-1)*dilation - 1) / stride + 1.
func convOutDim(in, kernel, stride, dilation Expr) Expr {
	span := NewBinaryExpr(ADD,
		NewBinaryExpr(MUL, NewBinaryExpr(SUB, kernel, idxOne()), dilation), idxOne())
	return NewBinaryExpr(ADD,
		NewBinaryExpr(UDIV, NewBinaryExpr(SUB, in, span), stride), idxOne())
}

// Conv computes the valid 2-D convolution of t by filter.
func (t *Tensor) Conv(filter *Tensor, strides, dilations []Expr, layout ConvLayout) (*Tensor, error) {
	if t.Rank() != 4 || filter.Rank() != 4 {
		return nil, &UnsupportedError{Reason: "conv requires rank-4 operands"}
	}
	if len(strides) != 2 || len(dilations) != 2 {
		return nil, &UnsupportedError{Reason: "conv requires 2-D strides and dilations"}
	}

	var inH, inW, kH, kW, kC Expr
	switch layout {
	case ConvNCHWFCHW:
		// input NxCxHxW, filter FxCxKHxKW
		inH, inW = t.dims[2], t.dims[3]
		kC, kH, kW = filter.dims[1], filter.dims[2], filter.dims[3]
	case ConvNHWCHWCF:
		// input NxHxWxC, filter KHxKWxCxF
		inH, inW = t.dims[1], t.dims[2]
		kH, kW, kC = filter.dims[0], filter.dims[1], filter.dims[2]
	default:
		return nil, &UnsupportedError{Reason: "unknown convolution layout"}
	}

	outH := convOutDim(inH, kH, strides[0], dilations[0])
	outW := convOutDim(inW, kW, strides[1], dilations[1])

	outVars := NewBoundIndexVars(4)
	var outDims []Expr
	var n, f, oh, ow Expr
	if layout == ConvNCHWFCHW {
		outDims = []Expr{t.dims[0], filter.dims[0], outH, outW}
		n, f, oh, ow = outVars[0], outVars[1], outVars[2], outVars[3]
	} else {
		outDims = []Expr{t.dims[0], outH, outW, filter.dims[3]}
		n, oh, ow, f = outVars[0], outVars[1], outVars[2], outVars[3]
	}

	// The window and the filter slice share the (c, kh, kw) domain.
	winVars := NewBoundIndexVars(3)
	c, wh, ww := winVars[0], winVars[1], winVars[2]
	ih := NewBinaryExpr(ADD, NewBinaryExpr(MUL, oh, strides[0]), NewBinaryExpr(MUL, wh, dilations[0]))
	iw := NewBinaryExpr(ADD, NewBinaryExpr(MUL, ow, strides[1]), NewBinaryExpr(MUL, ww, dilations[1]))

	var winElem Expr
	if layout == ConvNCHWFCHW {
		winElem, _ = t.Get([]Expr{n, c, ih, iw})
	} else {
		winElem, _ = t.Get([]Expr{n, ih, iw, c})
	}
	window := MkLambdaTensor(t.elemType, []Expr{kC, kH, kW}, winVars, winElem)

	fltVars := NewBoundIndexVars(3)
	var fltElem Expr
	if layout == ConvNCHWFCHW {
		fltElem, _ = filter.Get([]Expr{f, fltVars[0], fltVars[1], fltVars[2]})
	} else {
		fltElem, _ = filter.Get([]Expr{fltVars[1], fltVars[2], fltVars[0], f})
	}
	flt := MkLambdaTensor(filter.elemType, []Expr{kC, kH, kW}, fltVars, fltElem)

	body, err := window.Dot(flt)
	if err != nil {
		return nil, err
	}
	return MkLambdaTensor(t.elemType, outDims, outVars, body), nil
}

func (t *Tensor) String() string {
	dims := make([]string, len(t.dims))
	for i, d := range t.dims {
		dims[i] = d.String()
	}
	return fmt.Sprintf("(tensor %s [%s] %s)", t.elemType, strings.Join(dims, " "), t.arr)
}
