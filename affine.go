package mlirtv

// EncodeAffineExpr translates an affine expression to an index
// expression under the given dim and symbol bindings. It returns false
// for unsupported constructors and negative constants.
func EncodeAffineExpr(ae AffineExpr, dimVars, symbolVars []Expr) (Expr, bool) {
	switch ae := ae.(type) {
	case AffineBinaryExpr:
		lhs, ok := EncodeAffineExpr(ae.LHS, dimVars, symbolVars)
		if !ok {
			return nil, false
		}
		rhs, ok := EncodeAffineExpr(ae.RHS, dimVars, symbolVars)
		if !ok {
			return nil, false
		}
		if ae.Kind == AffineAdd {
			return NewBinaryExpr(ADD, lhs, rhs), true
		}
		return NewBinaryExpr(MUL, lhs, rhs), true
	case AffineDimExpr:
		assert(ae.Pos < len(dimVars), "affine dim %d out of range", ae.Pos)
		return dimVars[ae.Pos], true
	case AffineSymbolExpr:
		assert(ae.Pos < len(symbolVars), "affine symbol %d out of range", ae.Pos)
		return symbolVars[ae.Pos], true
	case AffineConstantExpr:
		if ae.Value < 0 {
			return nil, false
		}
		return idxConst(uint64(ae.Value)), true
	default:
		return nil, false
	}
}

// doMap permutes input through the dim positions of map's results:
// map (i, j, k) -> (j, k, i) sends [a, b, c] to [b, c, a].
func doMap(input []Expr, m AffineMap) []Expr {
	if m.IsIdentity() {
		return input
	}
	output := make([]Expr, 0, len(m.Results))
	for _, r := range m.Results {
		d := r.(AffineDimExpr)
		output = append(output, input[d.Pos])
	}
	return output
}

// addOne adds the unit index to every entry.
func addOne(vec []Expr) []Expr {
	out := make([]Expr, len(vec))
	for i, e := range vec {
		out[i] = NewBinaryExpr(ADD, e, idxOne())
	}
	return out
}

// vecAdd adds two equally long vectors pointwise.
func vecAdd(a, b []Expr) []Expr {
	assert(len(a) == len(b), "vecAdd: length mismatch")
	c := make([]Expr, len(a))
	for i := range a {
		c[i] = NewBinaryExpr(ADD, a[i], b[i])
	}
	return c
}

// broadcastTensors broadcasts two ranked tensor operands to a common
// shape following the trailing-edge alignment rule. The two results
// keep their dim vectors separate so a shape mismatch stays a
// well-definedness obligation; mixing a dynamic and a static dim is
// unsupported.
func broadcastTensors(st *State, arg0, arg1 *Value) (*Tensor, *Tensor, error) {
	ty0 := arg0.Type.(TensorType)
	ty1 := arg1.Type.(TensorType)
	t0 := st.Regs.GetTensor(arg0)
	t1 := st.Regs.GetTensor(arg1)

	rank0 := ty0.Rank()
	if rank0 < 1 {
		rank0 = 1
	}
	rank1 := ty1.Rank()
	if rank1 < 1 {
		rank1 = 1
	}
	getDimSize := func(ty TensorType, i int) int64 {
		if ty.Rank() == 0 {
			return 1
		}
		return ty.Shape[i]
	}

	resRank := rank0
	if rank1 > resRank {
		resRank = rank1
	}
	inVars0 := NewBoundIndexVars(resRank)
	inVars1 := NewBoundIndexVars(resRank)

	var outVars0, outVars1, resDims0, resDims1 []Expr
	minRank := rank0
	if rank1 < minRank {
		minRank = rank1
	}
	for i := 0; i < minRank; i++ {
		idx0 := rank0 - 1 - i
		idx1 := rank1 - 1 - i
		d0 := getDimSize(ty0, idx0)
		d1 := getDimSize(ty1, idx1)

		dyn0 := d0 == DynamicSize
		dyn1 := d1 == DynamicSize
		if dyn0 != dyn1 {
			return nil, nil, unsupported(nil, "broadcast between a static and a dynamic dim")
		}

		if dyn0 && dyn1 {
			resDims0 = prepend(t0.Dim(idx0), resDims0)
			resDims1 = prepend(t1.Dim(idx1), resDims1)
		} else {
			d := d0
			if d1 > d {
				d = d1
			}
			resDims0 = prepend(idxConst(uint64(d)), resDims0)
			resDims1 = prepend(idxConst(uint64(d)), resDims1)
		}

		// The aligned result axis, counted from the trailing edge.
		pos := resRank - 1 - i
		if d0 == 1 {
			outVars0 = prepend(idxZero(), outVars0)
		} else {
			outVars0 = prepend(inVars0[pos], outVars0)
		}
		if d1 == 1 {
			outVars1 = prepend(idxZero(), outVars1)
		} else {
			outVars1 = prepend(inVars1[pos], outVars1)
		}
	}

	if rank0 < rank1 {
		for i := rank1 - rank0 - 1; i >= 0; i-- {
			d := t1.Dim(i)
			resDims0 = prepend(d, resDims0)
			resDims1 = prepend(d, resDims1)
			outVars1 = prepend(inVars1[i], outVars1)
		}
	} else if rank1 < rank0 {
		for i := rank0 - rank1 - 1; i >= 0; i-- {
			d := t0.Dim(i)
			resDims0 = prepend(d, resDims0)
			resDims1 = prepend(d, resDims1)
			outVars0 = prepend(inVars0[i], outVars0)
		}
	}

	e0, _ := t0.Get(outVars0)
	e1, _ := t1.Get(outVars1)
	m0 := MkLambdaTensor(t0.ElemType(), resDims0, inVars0, e0)
	m1 := MkLambdaTensor(t1.ElemType(), resDims1, inVars1, e1)
	return m0, m1, nil
}

func prepend(e Expr, vec []Expr) []Expr {
	return append([]Expr{e}, vec...)
}
