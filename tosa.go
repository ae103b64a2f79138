package mlirtv

// Elementwise tensor ops with numpy-style broadcasting.

func rankedTensorResult(op *Operation) (TensorType, bool) {
	ty, ok := op.Results[0].Type.(TensorType)
	return ty, ok
}

func encodeTosaAbs(st *State, op *Operation) error {
	dty, ok := rankedTensorResult(op)
	if !ok {
		return unsupported(op, "unsupported type")
	}
	t := st.Regs.GetTensor(op.Operands[0])
	ety, ok := dty.Elem.(FloatType)
	if !ok {
		return unsupported(op, "unsupported element type")
	}
	res, err := t.ElementwiseUnaryOp(dty.Elem, func(e Expr) (Expr, error) {
		return NewFloatExpr(e, ety.Prec).Abs().E, nil
	})
	if err != nil {
		return err
	}
	st.Regs.Add(op.Results[0], res)
	return nil
}

func encodeTosaBinary(st *State, op *Operation,
	fFloat func(a, b Float) Float, fInt func(a, b Expr) Expr) error {
	if _, ok := op.Operands[0].Type.(TensorType); !ok {
		return unsupported(op, "unsupported operand types")
	}
	if _, ok := op.Operands[1].Type.(TensorType); !ok {
		return unsupported(op, "unsupported operand types")
	}
	return encodeBinaryArith(st, op, fFloat, fInt)
}

func encodeTosaMul(st *State, op *Operation) error {
	if shift, ok := op.Attr("shift").(IntAttr); ok && shift.Value != 0 {
		return unsupported(op, "mul with shift is unsupported")
	}
	return encodeTosaBinary(st, op,
		func(a, b Float) Float { return a.Mul(b) },
		func(a, b Expr) Expr { return NewBinaryExpr(MUL, a, b) })
}

func encodeTosaNegate(st *State, op *Operation) error {
	if _, ok := op.Operands[0].Type.(TensorType); !ok {
		return unsupported(op, "unsupported operand type")
	}
	if op.Attr("quantization_info") != nil {
		return unsupported(op, "quantization is unsupported")
	}
	return encodeUnaryArith(st, op,
		func(a Float) Float { return a.Neg() },
		func(a Expr) Expr {
			return NewBinaryExpr(SUB, NewConstantExpr(0, bvWidth(a)), a)
		})
}

func tosaIntElemCheck(op *Operation, operands ...*Value) error {
	if _, ok := rankedTensorResult(op); !ok {
		return unsupported(op, "unsupported type")
	}
	for _, v := range operands {
		if _, ok := elemTypeOf(v.Type).(IntType); !ok {
			return unsupported(op, "unsupported element type")
		}
	}
	return nil
}

func encodeTosaBitwise(st *State, op *Operation, bop BinaryOp) error {
	if err := tosaIntElemCheck(op, op.Operands[0], op.Operands[1]); err != nil {
		return err
	}
	return encodeTosaBinary(st, op, nil,
		func(a, b Expr) Expr { return NewBinaryExpr(bop, a, b) })
}

func encodeTosaBitwiseNot(st *State, op *Operation) error {
	if err := tosaIntElemCheck(op, op.Operands[0]); err != nil {
		return err
	}
	return encodeUnaryArith(st, op, nil, func(a Expr) Expr {
		w := bvWidth(a)
		return NewBinaryExpr(XOR, a, NewConstantExpr(^uint64(0), w))
	})
}

func encodeTosaConcat(st *State, op *Operation) error {
	if _, ok := rankedTensorResult(op); !ok {
		return unsupported(op, "unsupported type")
	}
	axisAttr, ok := op.Attr("axis").(IntAttr)
	if !ok {
		return unsupported(op, "unsupported form")
	}
	axis := int(axisAttr.Value)

	t := st.Regs.GetTensor(op.Operands[0])
	for _, operand := range op.Operands[1:] {
		t2 := st.Regs.GetTensor(operand)
		for i := 0; i < t2.Rank(); i++ {
			if i != axis {
				st.WellDefined(op, NewEqExpr(t.Dim(i), t2.Dim(i)))
			}
		}
		t = t.Concat(t2, axis)
	}
	st.Regs.Add(op.Results[0], t)
	return nil
}

func encodeTosaConst(st *State, op *Operation) error {
	dty, ok := rankedTensorResult(op)
	if !ok {
		return unsupported(op, "unsupported type")
	}
	a := op.Attr("value")
	if a == nil {
		return unsupported(op, "unsupported attribute")
	}
	t, sparse, err := elemAttrToTensor(a, dty)
	if err != nil {
		return unsupported(op, "unsupported attribute")
	}
	st.Regs.Add(op.Results[0], t)
	if sparse {
		st.HasConstArray = true
	}
	return nil
}

func encodeTosaReshape(st *State, op *Operation) error {
	t := st.Regs.GetTensor(op.Operands[0])
	shape, ok := staticInts(op, "new_shape")
	if !ok {
		return unsupported(op, "unsupported form")
	}
	newDims := make([]Expr, 0, len(shape))
	for _, d := range shape {
		if d == DynamicSize {
			return unsupported(op, "dynamic shape is unsupported")
		}
		newDims = append(newDims, idxConst(uint64(d)))
	}
	st.WellDefined(op, NewEqExpr(t.Get1DSize(), get1DSize(newDims)))
	st.Regs.Add(op.Results[0], t.Reshape(newDims))
	return nil
}

func encodeTosaReverse(st *State, op *Operation) error {
	if _, ok := rankedTensorResult(op); !ok {
		return unsupported(op, "unsupported type")
	}
	axis, ok := op.Attr("axis").(IntAttr)
	if !ok {
		return unsupported(op, "unsupported form")
	}
	t := st.Regs.GetTensor(op.Operands[0])
	st.Regs.Add(op.Results[0], t.Reverse(int(axis.Value)))
	return nil
}

func encodeTosaTile(st *State, op *Operation) error {
	if _, ok := rankedTensorResult(op); !ok {
		return unsupported(op, "unsupported type")
	}
	multiples, ok := staticInts(op, "multiples")
	if !ok {
		return unsupported(op, "unsupported form")
	}
	repeat := make([]uint64, 0, len(multiples))
	for _, m := range multiples {
		repeat = append(repeat, uint64(m))
	}
	t := st.Regs.GetTensor(op.Operands[0])
	st.Regs.Add(op.Results[0], t.Tile(repeat))
	return nil
}
