package mlirtv

import (
	"fmt"
)

// MemBlock is one contiguous symbolic buffer: a 1-D element count, a
// writability predicate, and a content array.
type MemBlock struct {
	NumElems Expr // index sort
	Writable Expr // bool sort
	Array    Expr // (array index elem)
}

// Memory is the per-encoding block table. Argument blocks come first,
// local blocks are appended as allocation-like ops are encoded.
type Memory struct {
	blocks       []*MemBlock
	numArgBlocks int
}

// NewMemory returns an empty memory.
func NewMemory() *Memory {
	return &Memory{}
}

// bidExpr returns the block-id literal for block index i.
func bidExpr(i int) Expr { return NewConstantExpr(uint64(i), BlockIDBits) }

// NumBlocks returns the number of blocks.
func (m *Memory) NumBlocks() int { return len(m.blocks) }

// AddArgBlock adds a pre-existing block with unconstrained contents,
// size and writability, and returns its block id.
func (m *Memory) AddArgBlock(elemType Type, name string) Expr {
	m.blocks = append(m.blocks, &MemBlock{
		NumElems: NewVarExpr(name+".numelems", IndexSort()),
		Writable: NewVarExpr(name+".writable", BoolSort()),
		Array:    NewVarExpr(name+".array", elemArraySort(elemType)),
	})
	m.numArgBlocks++
	return bidExpr(len(m.blocks) - 1)
}

// AddLocalBlock adds a fresh non-aliasing block of the given size and
// writability, and returns its block id.
func (m *Memory) AddLocalBlock(numElems Expr, writable bool, elemType Type) Expr {
	name := fmt.Sprintf("block%d", len(m.blocks))
	m.blocks = append(m.blocks, &MemBlock{
		NumElems: numElems,
		Writable: NewBoolConstExpr(writable),
		Array:    NewVarExpr(name+".array", elemArraySort(elemType)),
	})
	return bidExpr(len(m.blocks) - 1)
}

// iteOverBlocks folds f over all blocks selected by bid.
func (m *Memory) iteOverBlocks(bid Expr, f func(blk *MemBlock) Expr) Expr {
	assert(len(m.blocks) > 0, "memory has no blocks")
	res := f(m.blocks[0])
	for i := 1; i < len(m.blocks); i++ {
		res = NewIteExpr(NewEqExpr(bid, bidExpr(i)), f(m.blocks[i]), res)
	}
	return res
}

// GetWritable returns the writability predicate of the block bid.
func (m *Memory) GetWritable(bid Expr) Expr {
	return m.iteOverBlocks(bid, func(blk *MemBlock) Expr { return blk.Writable })
}

// GetNumElems returns the element count of the block bid.
func (m *Memory) GetNumElems(bid Expr) Expr {
	return m.iteOverBlocks(bid, func(blk *MemBlock) Expr { return blk.NumElems })
}

// Load reads the element at idx of the block bid.
func (m *Memory) Load(bid, idx Expr) Expr {
	return m.iteOverBlocks(bid, func(blk *MemBlock) Expr {
		return NewSelectExpr(blk.Array, idx)
	})
}

// SetWritable flips writability of the block bid. Writability is
// monotonic: callers only ever pass false after block creation.
func (m *Memory) SetWritable(bid Expr, writable bool) {
	w := Expr(NewBoolConstExpr(writable))
	for i, blk := range m.blocks {
		blk.Writable = NewIteExpr(NewEqExpr(bid, bidExpr(i)), w, blk.Writable)
	}
}

// Store writes value at idx of the block bid.
func (m *Memory) Store(bid, idx, value Expr) {
	for i, blk := range m.blocks {
		blk.Array = NewIteExpr(NewEqExpr(bid, bidExpr(i)),
			NewStoreExpr(blk.Array, idx, value), blk.Array)
	}
}

// StoreArray bulk-writes n elements of src into the block bid starting
// at base.
func (m *Memory) StoreArray(bid, src, base, n Expr) {
	for i, blk := range m.blocks {
		v := newBoundVar("idx", IndexSort())
		inRange := NewAndExpr(
			NewBinaryExpr(ULE, base, Expr(v)),
			NewBinaryExpr(ULT, Expr(v), NewBinaryExpr(ADD, base, n)))
		guarded := NewLambdaExpr(v, NewIteExpr(inRange,
			NewSelectExpr(src, NewBinaryExpr(SUB, Expr(v), base)),
			NewSelectExpr(blk.Array, Expr(v))))
		blk.Array = NewIteExpr(NewEqExpr(bid, bidExpr(i)), guarded, blk.Array)
	}
}

// MemRefLayout is an affine function from logical indices to a linear
// element offset, with its in-bounds condition.
type MemRefLayout struct {
	vars     []Expr // bound index vars, one per dim
	expr     Expr   // linear offset over vars
	inbounds Expr   // predicate over vars
	identity bool
}

// NewIdentityLayout returns the row-major layout for dims.
func NewIdentityLayout(dims []Expr) MemRefLayout {
	vars := NewBoundIndexVars(len(dims))
	return MemRefLayout{
		vars:     vars,
		expr:     to1DIdx(vars, dims),
		inbounds: inBoundsPred(vars, dims),
		identity: true,
	}
}

// LayoutFromAffineMap evaluates a single-result layout map over dims.
func LayoutFromAffineMap(m AffineMap, dims []Expr) (MemRefLayout, bool) {
	if len(m.Results) == 0 || m.IsIdentity() {
		return NewIdentityLayout(dims), true
	}
	if len(m.Results) != 1 {
		return MemRefLayout{}, false
	}
	vars := NewBoundIndexVars(m.NumDims)
	expr, ok := EncodeAffineExpr(m.Results[0], vars, nil)
	if !ok {
		return MemRefLayout{}, false
	}
	return MemRefLayout{
		vars:     vars,
		expr:     expr,
		inbounds: inBoundsPred(vars, dims),
	}, true
}

// at instantiates the layout at the given logical indices.
func (l MemRefLayout) at(indices []Expr) (Expr, Expr) {
	bound := make([]*VarExpr, len(l.vars))
	for i, v := range l.vars {
		bound[i] = v.(*VarExpr)
	}
	return Substitute(l.expr, bound, indices), Substitute(l.inbounds, bound, indices)
}

// MemRef is a mutable view over one block of a Memory.
type MemRef struct {
	m        *Memory
	elemType Type
	bid      Expr // BlockIDBits-wide bit-vector
	offset   Expr // index sort
	dims     []Expr
	layout   MemRefLayout
}

// NewMemRef returns a view over the block bid.
func NewMemRef(m *Memory, elemType Type, bid, offset Expr, dims []Expr, layout MemRefLayout) *MemRef {
	return &MemRef{m: m, elemType: elemType, bid: bid, offset: offset, dims: dims, layout: layout}
}

func (mr *MemRef) Rank() int      { return len(mr.dims) }
func (mr *MemRef) ElemType() Type { return mr.elemType }
func (mr *MemRef) BID() Expr      { return mr.bid }
func (mr *MemRef) Offset() Expr   { return mr.offset }

// Dims returns a copy of the dimension sizes.
func (mr *MemRef) Dims() []Expr {
	dims := make([]Expr, len(mr.dims))
	copy(dims, mr.dims)
	return dims
}

func (mr *MemRef) Dim(i int) Expr { return mr.dims[i] }

// Get1DSize returns the logical element count.
func (mr *MemRef) Get1DSize() Expr { return get1DSize(mr.dims) }

// IsIdentityMap returns true if the view's layout is row-major.
func (mr *MemRef) IsIdentityMap() bool { return mr.layout.identity }

// absOffset maps logical indices to the absolute in-block offset.
func (mr *MemRef) absOffset(indices []Expr) (Expr, Expr) {
	ofs, inb := mr.layout.at(indices)
	abs := NewBinaryExpr(ADD, mr.offset, ofs)
	welldef := NewAndExpr(inb, NewBinaryExpr(ULT, abs, mr.m.GetNumElems(mr.bid)))
	return abs, welldef
}

// Get reads the element at indices; the second result is the
// well-definedness of the access.
func (mr *MemRef) Get(indices []Expr) (Expr, Expr) {
	abs, welldef := mr.absOffset(indices)
	return mr.m.Load(mr.bid, abs), welldef
}

// Store writes value at indices and returns the well-definedness of
// the write, which requires the block to be writable.
func (mr *MemRef) Store(value Expr, indices []Expr) Expr {
	abs, welldef := mr.absOffset(indices)
	mr.m.Store(mr.bid, abs, value)
	return NewAndExpr(welldef, mr.m.GetWritable(mr.bid))
}

// StoreArray bulk-writes n elements of src starting at base and
// returns the well-definedness of the write. checkWritable is false
// when initializing a block that was created read-only.
func (mr *MemRef) StoreArray(src, base, n Expr, checkWritable bool) Expr {
	start := NewBinaryExpr(ADD, mr.offset, base)
	mr.m.StoreArray(mr.bid, src, start, n)
	success := NewBinaryExpr(ULE, NewBinaryExpr(ADD, start, n), mr.m.GetNumElems(mr.bid))
	if checkWritable {
		success = NewAndExpr(success, mr.m.GetWritable(mr.bid))
	}
	return success
}

// IsInBounds returns true iff the whole view lies inside its block.
func (mr *MemRef) IsInBounds() Expr {
	end := NewBinaryExpr(ADD, mr.offset, mr.Get1DSize())
	return NewBinaryExpr(ULE, end, mr.m.GetNumElems(mr.bid))
}

// NoAlias returns the predicate that mr and other do not overlap:
// either different blocks, or disjoint ranges within the same block.
func (mr *MemRef) NoAlias(other *MemRef) Expr {
	diffBlock := NewNotExpr(NewEqExpr(mr.bid, other.bid))
	end1 := NewBinaryExpr(ADD, mr.offset, mr.Get1DSize())
	end2 := NewBinaryExpr(ADD, other.offset, other.Get1DSize())
	disjoint := NewOrExpr(
		NewBinaryExpr(ULE, end1, other.offset),
		NewBinaryExpr(ULE, end2, mr.offset))
	return NewOrExpr(diffBlock, disjoint)
}

// MkIteMemRef selects between two views on an i1 condition. The caller
// constrains the dims to be equal.
func MkIteMemRef(cond Integer, a, b *MemRef) *MemRef {
	isTrue := NewEqExpr(cond.E, NewConstantExpr(1, 1))
	return &MemRef{
		m:        a.m,
		elemType: a.elemType,
		bid:      NewIteExpr(isTrue, a.bid, b.bid),
		offset:   NewIteExpr(isTrue, a.offset, b.offset),
		dims:     a.Dims(),
		layout:   a.layout,
	}
}

// Subview returns a reduced-rank view sharing the block: the k-th
// source index is offset_k + i*stride_k for retained axes and offset_k
// for dropped ones. unusedDims marks the size-1 axes dropped by the
// rank reduction; rankDiff is how many are dropped.
func (mr *MemRef) Subview(offsets, sizes, strides []Expr, unusedDims []bool, rankDiff int) *MemRef {
	srcRank := mr.Rank()
	assert(len(offsets) == srcRank && len(sizes) == srcRank && len(strides) == srcRank,
		"subview: offsets/sizes/strides must cover every source axis")
	assert(len(unusedDims) == srcRank, "subview: reduction mask must cover every source axis")

	newVars := NewBoundIndexVars(srcRank - rankDiff)
	var newDims []Expr
	inner := make([]Expr, srcRank)
	j := 0
	for k := 0; k < srcRank; k++ {
		if unusedDims[k] {
			inner[k] = offsets[k]
			continue
		}
		inner[k] = NewBinaryExpr(ADD, offsets[k], NewBinaryExpr(MUL, newVars[j], strides[k]))
		newDims = append(newDims, sizes[k])
		j++
	}
	assert(j == len(newVars), "subview: rank reduction mismatch")

	ofs, inb := mr.layout.at(inner)
	return &MemRef{
		m:        mr.m,
		elemType: mr.elemType,
		bid:      mr.bid,
		offset:   mr.offset,
		dims:     newDims,
		layout: MemRefLayout{
			vars:     newVars,
			expr:     ofs,
			inbounds: NewAndExpr(inb, inBoundsPred(newVars, newDims)),
		},
	}
}

// LoadTensor materializes the viewed elements as a tensor.
func (mr *MemRef) LoadTensor() *Tensor {
	dims := mr.Dims()
	vars := NewBoundIndexVars(len(dims))
	elem, _ := mr.Get(vars)
	return MkLambdaTensor(mr.elemType, dims, vars, elem)
}

// Conv bulk-writes the valid 2-D convolution of input by filter into
// mr, which must have the identity layout. The result is the success
// predicate of the write.
func (mr *MemRef) Conv(input, filter *MemRef, strides, dilations []Expr, layout ConvLayout) (Expr, error) {
	assert(mr.IsIdentityMap(), "conv output must have the identity layout")
	res, err := input.LoadTensor().Conv(filter.LoadTensor(), strides, dilations, layout)
	if err != nil {
		return nil, err
	}
	return mr.StoreArray(res.AsArray(), idxZero(), res.Get1DSize(), true), nil
}

func (mr *MemRef) String() string {
	return fmt.Sprintf("(memref %s bid=%s offset=%s)", mr.elemType, mr.bid, mr.offset)
}
