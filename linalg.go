package mlirtv

// This file encodes the loop-nest construct: the structured loop whose
// body block is encoded symbolically under fresh induction variables,
// in its parallel and reduction flavors.

func indexingMaps(op *Operation) ([]AffineMap, bool) {
	a, ok := op.Attr("indexing_maps").(AffineMapsAttr)
	if !ok {
		return nil, false
	}
	return a.Maps, true
}

func shapedShape(t Type) ([]int64, bool) {
	switch t := t.(type) {
	case TensorType:
		return t.Shape, true
	case MemRefType:
		return t.Shape, true
	}
	return nil, false
}

func shapedRank(t Type) int {
	if shape, ok := shapedShape(t); ok {
		return len(shape)
	}
	return 0
}

// shapedDims returns the dim expressions of the shaped value bound to v.
func shapedDims(st *State, v *Value) ([]Expr, bool) {
	switch sv := st.Regs.FindOrCrash(v).(type) {
	case *Tensor:
		return sv.Dims(), true
	case *MemRef:
		return sv.Dims(), true
	}
	return nil, false
}

func makeCube(e Expr, rank int) []Expr {
	if rank < 1 {
		rank = 1
	}
	dims := make([]Expr, rank)
	for i := range dims {
		dims[i] = e
	}
	return dims
}

// findLoopBounds derives the inclusive upper bound of each induction
// variable: for every operand axis referenced by a dim expression in
// its indexing map, the axis size minus one is recorded at the first
// occurrence of that dim.
func findLoopBounds(st *State, op *Operation) ([]Expr, error) {
	var viewSizes []Expr
	for _, operand := range op.Operands {
		if shapedRank(operand.Type) == 0 {
			continue
		}
		dims, ok := shapedDims(st, operand)
		if !ok {
			return nil, unsupported(op, "unsupported shaped operand")
		}
		viewSizes = append(viewSizes, dims...)
	}
	if len(viewSizes) == 0 {
		// All operands have zero rank; there exists only one element.
		return []Expr{idxZero()}, nil
	}

	maps, ok := indexingMaps(op)
	if !ok {
		return nil, unsupported(op, "unsupported form")
	}
	numDims := maps[0].NumDims

	res := make([]Expr, 0, numDims)
	resFilled := make([]int, numDims)
	for i := range resFilled {
		resFilled[i] = -1
	}
	idx := 0
	for _, m := range maps {
		for _, r := range m.Results {
			d, isDim := r.(AffineDimExpr)
			if !isDim {
				idx++
				continue
			}
			if resFilled[d.Pos] != -1 {
				idx++
				continue
			}
			// If i < N, store N - 1: it also bounds sums of dims.
			resFilled[d.Pos] = len(res)
			res = append(res, NewBinaryExpr(SUB, viewSizes[idx], idxOne()))
			idx++
		}
	}

	ordered := make([]Expr, 0, numDims)
	for i := 0; i < numDims; i++ {
		if resFilled[i] == -1 {
			return nil, unsupported(op, "an induction variable has no bounding operand dim")
		}
		ordered = append(ordered, res[resFilled[i]])
	}
	return ordered, nil
}

// encodeUBForTensorShapeMatch emits, for every result position of the
// combined loops-to-shapes map, size != 0 => value < size.
func encodeUBForTensorShapeMatch(st *State, op *Operation, indVarBounds []Expr) error {
	maps, ok := indexingMaps(op)
	if !ok {
		return unsupported(op, "unsupported form")
	}
	var viewSizes []Expr
	for _, operand := range op.Operands {
		if shapedRank(operand.Type) == 0 {
			continue
		}
		dims, ok := shapedDims(st, operand)
		if !ok {
			return unsupported(op, "unsupported shaped operand")
		}
		viewSizes = append(viewSizes, dims...)
	}

	idx := 0
	for _, m := range maps {
		for _, r := range m.Results {
			ae, ok := EncodeAffineExpr(r, indVarBounds, nil)
			if !ok {
				return unsupported(op, "unsupported affine expr")
			}
			size := viewSizes[idx]
			nonZero := NewNotExpr(NewEqExpr(size, idxZero()))
			st.WellDefined(op, NewImpliesExpr(nonZero, NewBinaryExpr(ULT, ae, size)))
			idx++
		}
	}
	return nil
}

// initInputStateForLoopBody binds the i-th body block argument to the
// i-th operand read through its indexing map at the induction vars.
func initInputStateForLoopBody(newst *State, op *Operation, block *Block, welldef *Expr) error {
	maps, ok := indexingMaps(op)
	if !ok {
		return unsupported(op, "unsupported form")
	}
	assert(len(maps) == len(op.Operands), "one indexing map per operand")
	inductionVars := newst.CurLoopScope().IndVars

	for argI, opI := range op.Operands {
		indexMap := maps[argI]
		arg := block.Args[argI]

		switch ty := opI.Type.(type) {
		case FloatType:
			// A scalar value.
			newst.Regs.Add(arg, newst.Regs.GetFloat(opI))

		case TensorType:
			elemty := ty.Elem
			tInput := newst.Regs.GetTensor(opI)
			if len(indexMap.Results) == 0 {
				// A tensor with a single element.
				elem, _ := tInput.Get([]Expr{idxZero()})
				v, ok := fromExpr(elem, elemty)
				if !ok {
					return unsupported(op, "unsupported block argument type")
				}
				newst.Regs.Add(arg, v)
				continue
			}
			affineExprs := make([]Expr, 0, len(indexMap.Results))
			for _, r := range indexMap.Results {
				ae, ok := EncodeAffineExpr(r, inductionVars, nil)
				if !ok {
					return unsupported(op, "unsupported affine expr")
				}
				affineExprs = append(affineExprs, ae)
			}
			// The out-of-bounds checking is done when encoding loop bounds.
			elem, _ := tInput.Get(affineExprs)
			v, ok := fromExpr(elem, elemty)
			if !ok {
				return unsupported(op, "unsupported block argument type")
			}
			newst.Regs.Add(arg, v)

		case MemRefType:
			mInput := newst.Regs.GetMemRef(opI)
			affineExprs := make([]Expr, 0, len(indexMap.Results))
			for _, r := range indexMap.Results {
				ae, ok := EncodeAffineExpr(r, inductionVars, nil)
				if !ok {
					return unsupported(op, "unsupported affine expr")
				}
				affineExprs = append(affineExprs, ae)
			}
			elem, wd := mInput.Get(affineExprs)
			*welldef = NewAndExpr(*welldef, wd)
			v, ok := fromExpr(elem, ty.Elem)
			if !ok {
				return unsupported(op, "unsupported block argument type")
			}
			newst.Regs.Add(arg, v)

		default:
			return unsupported(op, "unsupported block argument type")
		}
	}
	return nil
}

// encodeParallelLoopBodyAndOutputs encodes the body block under the
// active loop scope, skipping yield-like terminators (collecting their
// operands) and accumulating per-op well-definedness. The result
// tensors have the upper bounds plus one mapped through the output map
// as dims and the yielded expression, optionally post-processed by
// outputValMap, as body.
func encodeParallelLoopBodyAndOutputs(
	newst *State, block *Block, outputMap AffineMap,
	outputValMap func(yielded Expr, outputIndVars []Expr) Expr,
) ([]*Tensor, Expr, error) {
	var yieldedValues []*Value
	welldef := Expr(NewBoolConstExpr(true))

	err := encodeBlock(newst, block, false, false,
		func(op *Operation, index int) (bool, error) {
			switch op.Name {
			case "linalg.yield":
				assert(len(op.Operands) > 0, "yield must have operands")
				yieldedValues = append(yieldedValues, op.Operands...)
				return true, nil
			case "tensor.yield":
				yieldedValues = append(yieldedValues, op.Operands[0])
				return true, nil
			}
			return false, nil
		},
		func(op *Operation) {
			welldef = NewAndExpr(welldef, newst.IsOpWellDefined(op))
		})
	if err != nil {
		return nil, nil, err
	}

	scope := newst.CurLoopScope()
	outputIndVars := doMap(scope.IndVars, outputMap)
	tensorSz := addOne(doMap(scope.IndVarUpperBounds, outputMap))

	tvec := make([]*Tensor, 0, len(yieldedValues))
	for _, y := range yieldedValues {
		resExpr := newst.Regs.GetExpr(y)
		if outputValMap != nil {
			resExpr = outputValMap(resExpr, outputIndVars)
		}
		tvec = append(tvec, MkLambdaTensor(y.Type, tensorSz, outputIndVars, resExpr))
	}
	return tvec, welldef, nil
}

// encodeReductionLoopBodyAndOutput recognizes the simple reduction
// pattern: the terminator yields add(v, acc) or add(acc, v) where acc
// is the last block argument, and acc is used nowhere else.
func encodeReductionLoopBodyAndOutput(
	newst *State, op *Operation, block *Block, maps []AffineMap, outputShape []int64,
) (*Tensor, Expr, error) {
	const errmsg = "permutated output map or simple reduction form is supported only"

	ops := block.Ops
	instCount := len(ops)
	if instCount < 2 {
		return nil, nil, unsupported(op, errmsg)
	}
	lastarg := block.Args[len(block.Args)-1]

	yield := ops[instCount-1]
	if yield.Name != "linalg.yield" || len(yield.Operands) != 1 {
		return nil, nil, unsupported(op, errmsg)
	}
	sum := ops[instCount-2]
	if (sum.Name != "arith.addf" && sum.Name != "arith.addi") ||
		len(sum.Results) != 1 || sum.Results[0] != yield.Operands[0] {
		return nil, nil, unsupported(op, errmsg)
	}
	var sumvar *Value
	if sum.Operands[0] == lastarg {
		sumvar = sum.Operands[1]
	} else if sum.Operands[1] == lastarg {
		sumvar = sum.Operands[0]
	} else {
		return nil, nil, unsupported(op, errmsg)
	}

	welldef := Expr(NewBoolConstExpr(true))
	err := encodeBlock(newst, block, false, false,
		func(op2 *Operation, opindex int) (bool, error) {
			if opindex >= instCount-2 {
				// Don't directly encode the sum and the yield.
				return true, nil
			}
			for _, operand := range op2.Operands {
				if operand == lastarg {
					return false, unsupported(op, "unsupported reduction form: the accumulator escapes")
				}
			}
			return false, nil
		},
		func(op2 *Operation) {
			welldef = NewAndExpr(welldef, newst.IsOpWellDefined(op2))
		})
	if err != nil {
		return nil, nil, err
	}

	outputMap := maps[len(maps)-1]
	scope := newst.CurLoopScope()

	// Represent v as an element of a tensor over all induction vars.
	tV := MkLambdaTensor(sumvar.Type,
		addOne(append([]Expr{}, scope.IndVarUpperBounds...)),
		append([]Expr{}, scope.IndVars...),
		newst.Regs.GetExpr(sumvar))

	allZero := true
	for _, r := range outputMap.Results {
		c, ok := r.(AffineConstantExpr)
		if !ok || c.Value != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		// out: (i, j) -> (0): the whole iteration space reduces into a
		// single element, so the result is a splat.
		return NewSplatTensor(tV.ElemType(), tV.Sum(), makeCube(idxOne(), len(outputShape))),
			welldef, nil
	}

	// out: (i, j) -> (i): partition the induction vars into retained
	// and reduced ones, then sum the reduced sub-tensor per retained
	// tuple.
	isInputIdxUsed := make([]bool, outputMap.NumDims)
	for _, r := range outputMap.Results {
		d, ok := r.(AffineDimExpr)
		if !ok {
			return nil, nil, unsupported(op, errmsg)
		}
		isInputIdxUsed[d.Pos] = true
	}

	var boundsForRes, indVarsForRes []Expr
	for j, used := range isInputIdxUsed {
		if !used {
			boundsForRes = append(boundsForRes, scope.IndVarUpperBounds[j])
			indVarsForRes = append(indVarsForRes, scope.IndVars[j])
		}
	}

	tensorSz := addOne(doMap(scope.IndVarUpperBounds, outputMap))
	elem, _ := tV.Get(scope.IndVars)
	tSum := MkLambdaTensor(tV.ElemType(), addOne(boundsForRes), indVarsForRes, elem).Sum()

	outputIndVars := doMap(scope.IndVars, outputMap)
	return MkLambdaTensor(tV.ElemType(), tensorSz, outputIndVars, tSum), welldef, nil
}

func encodeLinalgGeneric(st *State, op *Operation, encodeMemWrites bool) error {
	tensorSem := true
	bufferSem := true
	for _, operand := range op.Operands {
		switch operand.Type.(type) {
		case TensorType:
			bufferSem = false
		case MemRefType:
			tensorSem = false
		}
	}
	if !tensorSem && !bufferSem {
		return unsupported(op, "tensor/buffer semantics is supported only")
	}
	if bufferSem && !encodeMemWrites {
		return unsupported(op, "we do not support memory writes in this scope")
	}
	if op.Region == nil {
		return unsupported(op, "a single block is supported only")
	}
	block := op.Region
	for _, arg := range block.Args {
		if !isIntOrFloat(arg.Type) {
			return unsupported(op, "unsupported block arguments")
		}
	}
	iters, ok := op.Attr("iterator_types").(StringsAttr)
	if !ok {
		return unsupported(op, "unsupported form")
	}
	for _, it := range iters.Values {
		if it != "parallel" && it != "reduction" && it != "window" {
			return unsupported(op, "unsupported iterator type")
		}
	}
	maps, ok := indexingMaps(op)
	if !ok || len(maps) != len(op.Operands) {
		return unsupported(op, "unsupported form")
	}

	// Find the inclusive upper bounds.
	loopBounds, err := findLoopBounds(st, op)
	if err != nil {
		return err
	}
	if err := encodeUBForTensorShapeMatch(st, op, loopBounds); err != nil {
		return err
	}

	outputMap := maps[len(maps)-1]
	isParallelLoop := outputMap.IsPermutation()
	numOutputs := len(op.Operands) - op.NumInputs

	var tvecRes []*Tensor
	var tWelldef Expr
	newst := st.Fork()
	if err := func() error {
		scope := newst.PushLoopScope(loopBounds)
		defer newst.PopLoopScope()

		welldef := Expr(NewBoolConstExpr(true))
		if err := initInputStateForLoopBody(newst, op, block, &welldef); err != nil {
			return err
		}

		if isParallelLoop {
			tvec, bodyWelldef, err := encodeParallelLoopBodyAndOutputs(newst, block, outputMap, nil)
			if err != nil {
				return err
			}
			tvecRes = tvec
			welldef = NewAndExpr(welldef, bodyWelldef)
		} else {
			// Reduction loops returning multiple values are not
			// supported yet.
			if numOutputs > 1 {
				return unsupported(op, "unsupported reduction form")
			}
			outputShape, ok := shapedShape(op.Operands[len(op.Operands)-1].Type)
			if !ok {
				return unsupported(op, "unsupported form")
			}
			tRes, bodyWelldef, err := encodeReductionLoopBodyAndOutput(newst, op, block, maps, outputShape)
			if err != nil {
				return err
			}
			tvecRes = []*Tensor{tRes}
			welldef = NewAndExpr(welldef, bodyWelldef)
		}

		for _, t := range tvecRes {
			assert(t.Rank() > 0, "loop result must be ranked")
		}

		// For all induction vars' values, there must be no UB.
		inbounds := Expr(NewBoolConstExpr(true))
		for i, iv := range scope.IndVars {
			inbounds = NewAndExpr(inbounds, NewBinaryExpr(ULE, iv, loopBounds[i]))
		}
		tWelldef = NewForallExpr(scope.IndVars, NewImpliesExpr(inbounds, welldef))
		return nil
	}(); err != nil {
		return err
	}

	st.WellDefined(op, tWelldef)

	if tensorSem {
		// The output operand itself isn't updated; only results are.
		for i, t := range tvecRes {
			st.Regs.Add(op.Results[i], t)
		}
		return nil
	}
	success := Expr(NewBoolConstExpr(true))
	for i, t := range tvecRes {
		mRes := st.Regs.GetMemRef(op.Operands[op.NumInputs+i])
		success = NewAndExpr(success, mRes.StoreArray(t.AsArray(), idxZero(), t.Get1DSize(), true))
	}
	st.WellDefined(op, success)
	return nil
}
