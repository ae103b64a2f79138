package mlirtv

import (
	"fmt"
	"log"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
)

// spewConfig renders freshly bound values in the printOps trace.
var spewConfig = spew.ConfigState{Indent: " ", MaxDepth: 3}

// Encode encodes fn into st, populating the register bindings, the
// well-definedness predicate, the return values and the memory. On an
// unsupported construct the error aborts the whole encoding.
func Encode(st *State, fn *Function, printOps bool) error {
	return encodeBlock(st, fn.Body, printOps, true, nil, nil)
}

// encodeBlock encodes ops in program order. checkBeforeEnc may skip an
// op (loop-body terminators are consumed by the loop encoder);
// callbackAfterEnc runs after each successfully encoded op.
func encodeBlock(
	st *State, blk *Block, printOps, encodeMemWrites bool,
	checkBeforeEnc func(op *Operation, index int) (bool, error),
	callbackAfterEnc func(op *Operation),
) error {
	for index, op := range blk.Ops {
		if printOps {
			log.Printf("  %s", op)
		}
		if checkBeforeEnc != nil {
			skip, err := checkBeforeEnc(op, index)
			if err != nil {
				return err
			} else if skip {
				continue
			}
		}
		if err := encodeOp(st, op, encodeMemWrites); err != nil {
			return errors.Wrapf(err, "op %d", index)
		}
		if printOps {
			for _, r := range op.Results {
				log.Printf("    %s = %s", r, spewConfig.Sprintf("%v", st.Regs.FindOrCrash(r)))
			}
		}
		if callbackAfterEnc != nil {
			callbackAfterEnc(op)
		}
	}
	return nil
}

// encodeOp dispatches over the supported op catalog.
func encodeOp(st *State, op *Operation, encodeMemWrites bool) error {
	switch op.Name {
	case "affine.apply":
		return encodeAffineApply(st, op)
	case "select":
		return encodeSelect(st, op)
	case "func.return":
		return encodeReturn(st, op)

	case "arith.addf":
		return encodeBinaryArith(st, op, func(a, b Float) Float { return a.Add(b) }, nil)
	case "arith.subf":
		return encodeBinaryArith(st, op, func(a, b Float) Float { return a.Add(b.Neg()) }, nil)
	case "arith.mulf":
		return encodeBinaryArith(st, op, func(a, b Float) Float { return a.Mul(b) }, nil)
	case "arith.negf":
		return encodeUnaryArith(st, op, func(a Float) Float { return a.Neg() }, nil)
	case "arith.addi":
		return encodeIntArith(st, op, ADD)
	case "arith.subi":
		return encodeIntArith(st, op, SUB)
	case "arith.muli":
		return encodeIntArith(st, op, MUL)
	case "arith.cmpf":
		return encodeCmpF(st, op)
	case "arith.constant":
		return encodeConstant(st, op)
	case "arith.extf":
		return encodeExtF(st, op)
	case "arith.truncf":
		return encodeTruncF(st, op)
	case "arith.index_cast":
		return encodeIndexCast(st, op)

	case "math.abs":
		return encodeMathAbs(st, op)

	case "memref.alloc":
		return encodeAlloc(st, op)
	case "memref.buffer_cast":
		return encodeBufferCast(st, op, encodeMemWrites)
	case "memref.clone":
		return encodeClone(st, op, encodeMemWrites)
	case "memref.dim":
		return encodeMemRefDim(st, op)
	case "memref.load":
		return encodeLoad(st, op)
	case "memref.store":
		return encodeStore(st, op, encodeMemWrites)
	case "memref.subview":
		return encodeSubView(st, op)
	case "memref.tensor_load":
		return encodeTensorLoad(st, op)
	case "memref.tensor_store":
		return encodeTensorStore(st, op, encodeMemWrites)

	case "linalg.conv_2d_nchw_fchw":
		return encodeConv(st, op, ConvNCHWFCHW, encodeMemWrites)
	case "linalg.conv_2d_nhwc_hwcf":
		return encodeConv(st, op, ConvNHWCHWCF, encodeMemWrites)
	case "linalg.copy":
		return encodeCopy(st, op, encodeMemWrites)
	case "linalg.dot":
		return encodeDot(st, op)
	case "linalg.fill":
		return encodeFill(st, op, encodeMemWrites)
	case "linalg.generic":
		return encodeLinalgGeneric(st, op, encodeMemWrites)
	case "linalg.index":
		return encodeLinalgIndex(st, op)
	case "linalg.init_tensor":
		return encodeInitTensor(st, op)
	case "linalg.matmul":
		return encodeMatmul(st, op)
	case "linalg.pad_tensor":
		return encodePadTensor(st, op)
	case "linalg.collapse_shape":
		return encodeCollapseShape(st, op)
	case "linalg.expand_shape":
		return encodeExpandShape(st, op)

	case "shape.shape_of":
		return encodeShapeOf(st, op)
	case "shape.to_extent_tensor":
		return encodeToExtentTensor(st, op)

	case "sparse_tensor.convert":
		return encodeSparseConvert(st, op)

	case "tensor.cast":
		return encodeTensorCast(st, op)
	case "tensor.dim":
		return encodeTensorDim(st, op)
	case "tensor.extract":
		return encodeExtract(st, op)
	case "tensor.extract_slice":
		return encodeExtractSlice(st, op)
	case "tensor.from_elements":
		return encodeFromElements(st, op)
	case "tensor.generate":
		return encodeGenerate(st, op)
	case "tensor.insert":
		return encodeInsert(st, op)
	case "tensor.insert_slice":
		return encodeInsertSlice(st, op)

	case "tosa.abs":
		return encodeTosaAbs(st, op)
	case "tosa.add":
		return encodeTosaBinary(st, op,
			func(a, b Float) Float { return a.Add(b) },
			func(a, b Expr) Expr { return NewBinaryExpr(ADD, a, b) })
	case "tosa.sub":
		return encodeTosaBinary(st, op,
			func(a, b Float) Float { return a.Add(b.Neg()) },
			func(a, b Expr) Expr { return NewBinaryExpr(SUB, a, b) })
	case "tosa.mul":
		return encodeTosaMul(st, op)
	case "tosa.negate":
		return encodeTosaNegate(st, op)
	case "tosa.bitwise_and":
		return encodeTosaBitwise(st, op, AND)
	case "tosa.bitwise_or":
		return encodeTosaBitwise(st, op, OR)
	case "tosa.bitwise_xor":
		return encodeTosaBitwise(st, op, XOR)
	case "tosa.bitwise_not":
		return encodeTosaBitwiseNot(st, op)
	case "tosa.concat":
		return encodeTosaConcat(st, op)
	case "tosa.const":
		return encodeTosaConst(st, op)
	case "tosa.reshape":
		return encodeTosaReshape(st, op)
	case "tosa.reverse":
		return encodeTosaReverse(st, op)
	case "tosa.tile":
		return encodeTosaTile(st, op)

	default:
		return unsupported(op, "unknown operation")
	}
}

// attrToValue turns a scalar literal attribute into an abstract value.
func attrToValue(a Attr) (SymValue, error) {
	switch a := a.(type) {
	case FloatAttr:
		ty, ok := a.Type.(FloatType)
		if !ok {
			return nil, &UnsupportedError{Reason: "float attribute with a non-float type"}
		}
		return FloatConst(a.Value, ty.Prec), nil
	case IntAttr:
		switch ty := a.Type.(type) {
		case IndexType:
			return NewIndex(uint64(a.Value)), nil
		case IntType:
			if ty.Width > 64 {
				return nil, &UnsupportedError{Reason: "integer size is too large"}
			}
			return NewInteger(uint64(a.Value), ty.Width), nil
		}
	}
	return nil, &UnsupportedError{Reason: "unsupported attribute"}
}

// elemAttrToTensor materializes a dense or sparse elements attribute.
func elemAttrToTensor(a Attr, ty TensorType) (*Tensor, bool, error) {
	switch a := a.(type) {
	case DenseAttr:
		if a.Splat {
			v, err := attrToValue(a.Values[0])
			if err != nil {
				return nil, false, err
			}
			// A constant tensor's type cannot have unknown dimensions.
			return NewSplatTensor(ty.Elem, getExpr(v), typeDims(ty.Shape, nil)), false, nil
		}
		exprs := make([]Expr, 0, len(a.Values))
		for _, va := range a.Values {
			v, err := attrToValue(va)
			if err != nil {
				return nil, false, err
			}
			exprs = append(exprs, getExpr(v))
		}
		return NewTensorFromElems(ty.Elem, exprs).Reshape(typeDims(ty.Shape, nil)), false, nil
	case SparseAttr:
		zero, ok := zeroOf(ty.Elem)
		if !ok {
			return nil, false, &UnsupportedError{Reason: "unsupported element type"}
		}
		values := make([]Expr, 0, len(a.Values))
		for _, va := range a.Values {
			v, err := attrToValue(va)
			if err != nil {
				return nil, false, err
			}
			values = append(values, getExpr(v))
		}
		shape := make([]uint64, len(ty.Shape))
		for i, d := range ty.Shape {
			shape[i] = uint64(d)
		}
		return NewSparseTensor(ty.Elem, a.Indices, values, shape, zero), true, nil
	}
	return nil, false, &UnsupportedError{Reason: "unsupported attribute"}
}

// evalIndexCast narrows by extracting the low bits or widens by sign
// extension.
func evalIndexCast(e Expr, dstWidth uint) Expr {
	srcWidth := bvWidth(e)
	if srcWidth > dstWidth {
		return NewExtractExpr(e, 0, dstWidth)
	} else if srcWidth < dstWidth {
		return NewCastExpr(e, dstWidth, true)
	}
	return e
}

func addIntOrIndex(st *State, res *Value, e Expr) {
	if _, ok := res.Type.(IndexType); ok {
		st.Regs.Add(res, NewIndexExpr(e))
	} else {
		st.Regs.Add(res, NewIntegerExpr(e))
	}
}

// encodeBinaryArith lifts a binary op over scalars or broadcast ranked
// tensors. A nil fFloat or fInt rejects that element kind.
func encodeBinaryArith(st *State, op *Operation,
	fFloat func(a, b Float) Float, fInt func(a, b Expr) Expr) error {
	arg0, arg1 := op.Operands[0], op.Operands[1]

	switch ty := arg0.Type.(type) {
	case FloatType:
		if fFloat == nil {
			return unsupported(op, "unsupported type")
		}
		a := st.Regs.GetFloat(arg0)
		b := st.Regs.GetFloat(arg1)
		st.Regs.Add(op.Results[0], fFloat(a, b))
		return nil

	case TensorType:
		elemty := ty.Elem
		if !isIntOrFloat(elemty) {
			return unsupported(op, "unsupported element type")
		}
		a, b, err := broadcastTensors(st, arg0, arg1)
		if err != nil {
			return unsupported(op, "unsupported broadcast form")
		}
		f := func(x, y Expr) (Expr, error) {
			switch ety := elemty.(type) {
			case FloatType:
				if fFloat == nil {
					return nil, unsupported(op, "unsupported element type")
				}
				return fFloat(NewFloatExpr(x, ety.Prec), NewFloatExpr(y, ety.Prec)).E, nil
			case IntType:
				if fInt == nil {
					return nil, unsupported(op, "unsupported element type")
				}
				return fInt(x, y), nil
			}
			return nil, unsupported(op, "unknown value type")
		}
		res, err := a.ElementwiseBinOp(b, elemty, f)
		if err != nil {
			return err
		}
		st.Regs.Add(op.Results[0], res)
		st.WellDefined(op, listsEqual(a.Dims(), b.Dims()))
		return nil
	}
	return unsupported(op, "unsupported type")
}

// encodeUnaryArith lifts a unary op over a scalar or a ranked tensor.
func encodeUnaryArith(st *State, op *Operation,
	fFloat func(a Float) Float, fInt func(a Expr) Expr) error {
	arg := op.Operands[0]

	switch ty := arg.Type.(type) {
	case FloatType:
		if fFloat == nil {
			return unsupported(op, "unsupported type")
		}
		st.Regs.Add(op.Results[0], fFloat(st.Regs.GetFloat(arg)))
		return nil

	case TensorType:
		elemty := ty.Elem
		if !isIntOrFloat(elemty) {
			return unsupported(op, "unsupported element type")
		}
		a := st.Regs.GetTensor(arg)
		f := func(x Expr) (Expr, error) {
			switch ety := elemty.(type) {
			case FloatType:
				if fFloat == nil {
					return nil, unsupported(op, "unsupported element type")
				}
				return fFloat(NewFloatExpr(x, ety.Prec)).E, nil
			case IntType:
				if fInt == nil {
					return nil, unsupported(op, "unsupported element type")
				}
				return fInt(x), nil
			}
			return nil, unsupported(op, "unknown value type")
		}
		// Precision casts change the element type of the result.
		resElem := elemTypeOf(op.Results[0].Type)
		if resElem == nil {
			resElem = elemty
		}
		res, err := a.ElementwiseUnaryOp(resElem, f)
		if err != nil {
			return err
		}
		st.Regs.Add(op.Results[0], res)
		return nil
	}
	return unsupported(op, "unsupported type")
}

func encodeIntArith(st *State, op *Operation, bop BinaryOp) error {
	a := st.Regs.GetExpr(op.Operands[0])
	b := st.Regs.GetExpr(op.Operands[1])
	addIntOrIndex(st, op.Results[0], NewBinaryExpr(bop, a, b))
	return nil
}

func encodeCmpF(st *State, op *Operation) error {
	pred, ok := op.Attr("predicate").(StringAttr)
	if !ok || pred.Value != "olt" {
		return unsupported(op, "unsupported cmpf predicate")
	}
	ty0 := op.Operands[0].Type
	ty1 := op.Operands[1].Type

	if _, ok := ty0.(TensorType); ok {
		if _, ok := ty1.(TensorType); !ok {
			return unsupported(op, "unsupported cmpf operand")
		}
		a := st.Regs.GetTensor(op.Operands[0])
		b := st.Regs.GetTensor(op.Operands[1])
		elemty := a.ElemType()
		resultElemTy := elemTypeOf(op.Results[0].Type)
		f := func(x, y Expr) (Expr, error) {
			fty, ok := elemty.(FloatType)
			if !ok {
				return nil, unsupported(op, "cmpf only accepts floating-like elemtype")
			}
			return NewFloatExpr(x, fty.Prec).Fult(NewFloatExpr(y, fty.Prec)).E, nil
		}
		res, err := a.ElementwiseBinOp(b, resultElemTy, f)
		if err != nil {
			return err
		}
		st.Regs.Add(op.Results[0], res)
		st.WellDefined(op, listsEqual(a.Dims(), b.Dims()))
		return nil
	}
	if _, ok := ty0.(FloatType); ok {
		a := st.Regs.GetFloat(op.Operands[0])
		b := st.Regs.GetFloat(op.Operands[1])
		st.Regs.Add(op.Results[0], a.Fult(b))
		return nil
	}
	return unsupported(op, "unsupported cmpf operand")
}

func encodeConstant(st *State, op *Operation) error {
	a := op.Attr("value")
	res := op.Results[0]

	if ty, ok := res.Type.(TensorType); ok {
		t, sparse, err := elemAttrToTensor(a, ty)
		if err != nil {
			return errors.Wrap(err, op.Name)
		}
		if sparse {
			st.HasConstArray = true
		}
		st.Regs.Add(res, t)
		return nil
	}
	v, err := attrToValue(a)
	if err != nil {
		return unsupported(op, "unsupported constant")
	}
	st.Regs.Add(res, v)
	return nil
}

func getPrecision(t Type) (FPPrecision, error) {
	ft, ok := t.(FloatType)
	if !ok {
		if tt, ok := t.(TensorType); ok {
			return getPrecision(tt.Elem)
		}
		return 0, &UnsupportedError{Reason: "unsupported FP type"}
	}
	return ft.Prec, nil
}

func encodeExtF(st *State, op *Operation) error {
	tgt, err := getPrecision(op.Results[0].Type)
	if err != nil {
		return unsupported(op, "unsupported FP type")
	}
	src, err := getPrecision(op.Operands[0].Type)
	if err != nil {
		return unsupported(op, "unsupported FP type")
	}
	if src == tgt {
		// Extending into the identical type is a no-op.
		st.Regs.Add(op.Results[0], st.Regs.FindOrCrash(op.Operands[0]))
		return nil
	} else if src > tgt {
		return unsupported(op, "cannot extend into a lower precision type")
	}
	return encodeUnaryArith(st, op, func(a Float) Float { return a.Extend(tgt) }, nil)
}

func encodeTruncF(st *State, op *Operation) error {
	tgt, err := getPrecision(op.Results[0].Type)
	if err != nil {
		return unsupported(op, "unsupported FP type")
	}
	src, err := getPrecision(op.Operands[0].Type)
	if err != nil {
		return unsupported(op, "unsupported FP type")
	}
	if src == tgt {
		// Truncating into the identical type is a no-op.
		st.Regs.Add(op.Results[0], st.Regs.FindOrCrash(op.Operands[0]))
		return nil
	} else if src < tgt {
		return unsupported(op, "cannot truncate into a higher precision type")
	}
	return encodeUnaryArith(st, op, func(a Float) Float { return a.Truncate(tgt) }, nil)
}

func intOrIndexWidth(t Type) (uint, error) {
	switch t := t.(type) {
	case IndexType:
		return IndexBits, nil
	case IntType:
		return t.Width, nil
	}
	return 0, &UnsupportedError{Reason: "unsupported cast type"}
}

func encodeIndexCast(st *State, op *Operation) error {
	srcTy := op.Operands[0].Type
	dstTy := op.Results[0].Type

	if _, ok := srcTy.(TensorType); ok {
		dstTensorTy, ok := dstTy.(TensorType)
		if !ok {
			return unsupported(op, "unknown type")
		}
		dstWidth, err := intOrIndexWidth(dstTensorTy.Elem)
		if err != nil {
			return unsupported(op, "unsupported element type")
		}
		src := st.Regs.GetTensor(op.Operands[0])
		res, err := src.ElementwiseUnaryOp(dstTensorTy.Elem, func(e Expr) (Expr, error) {
			return evalIndexCast(e, dstWidth), nil
		})
		if err != nil {
			return err
		}
		st.Regs.Add(op.Results[0], res)
		return nil
	}

	dstWidth, err := intOrIndexWidth(dstTy)
	if err != nil {
		return unsupported(op, "unsupported type")
	}
	res := evalIndexCast(st.Regs.GetExpr(op.Operands[0]), dstWidth)
	addIntOrIndex(st, op.Results[0], res)
	return nil
}

func encodeAffineApply(st *State, op *Operation) error {
	mapsAttr, ok := op.Attr("map").(AffineMapsAttr)
	if !ok || len(mapsAttr.Maps) != 1 {
		return unsupported(op, "unsupported form")
	}
	m := mapsAttr.Maps[0]
	if len(m.Results) != 1 {
		return unsupported(op, "num results is larger than one")
	}
	dims := make([]Expr, 0, m.NumDims)
	syms := make([]Expr, 0, m.NumSymbols)
	for i, arg := range op.Operands {
		if i < m.NumDims {
			dims = append(dims, st.Regs.GetIndex(arg).E)
		} else {
			syms = append(syms, st.Regs.GetIndex(arg).E)
		}
	}
	res, ok := EncodeAffineExpr(m.Results[0], dims, syms)
	if !ok {
		return unsupported(op, "unsupported affine expr")
	}
	st.Regs.Add(op.Results[0], NewIndexExpr(res))
	return nil
}

func encodeReturn(st *State, op *Operation) error {
	for _, operand := range op.Operands {
		st.RetValues = append(st.RetValues, st.Regs.FindOrCrash(operand))
	}
	return nil
}

func encodeSelect(st *State, op *Operation) error {
	cond := op.Operands[0]
	tv, fv := op.Operands[1], op.Operands[2]

	switch tv.Type.(type) {
	case TensorType:
		trueValue := st.Regs.GetTensor(tv)
		falseValue := st.Regs.GetTensor(fv)
		// Shape equality is encoded as UB so tensor select matches the
		// loop construct it lowers to.
		welldef := listsEqual(trueValue.Dims(), falseValue.Dims())
		condFn := func(indices []Expr) Expr {
			return st.Regs.GetInteger(cond).E
		}
		if _, ok := cond.Type.(TensorType); ok {
			condValue := st.Regs.GetTensor(cond)
			condFn = func(indices []Expr) Expr {
				e, _ := condValue.Get(indices)
				return e
			}
			welldef = NewAndExpr(welldef, listsEqual(trueValue.Dims(), condValue.Dims()))
		}
		st.Regs.Add(op.Results[0], MkIteTensor(condFn, trueValue, falseValue))
		st.WellDefined(op, welldef)
		return nil

	case MemRefType:
		if _, ok := cond.Type.(IntType); !ok {
			return unsupported(op, "for memref operands, i1 typed condition is supported only")
		}
		trueValue := st.Regs.GetMemRef(tv)
		falseValue := st.Regs.GetMemRef(fv)
		st.Regs.Add(op.Results[0], MkIteMemRef(st.Regs.GetInteger(cond), trueValue, falseValue))
		// Constrain the dimensions to be equivalent, otherwise the
		// layout info becomes bogus.
		st.WellDefined(op, listsEqual(trueValue.Dims(), falseValue.Dims()))
		return nil
	}

	trueValue := st.Regs.GetExpr(tv)
	falseValue := st.Regs.GetExpr(fv)
	isTrue := NewEqExpr(st.Regs.GetInteger(cond).E, boolTrue().E)
	v, ok := fromExpr(NewIteExpr(isTrue, trueValue, falseValue), op.Results[0].Type)
	if !ok {
		return unsupported(op, "unsupported type")
	}
	st.Regs.Add(op.Results[0], v)
	return nil
}

func encodeMathAbs(st *State, op *Operation) error {
	f := st.Regs.GetFloat(op.Operands[0])
	st.Regs.Add(op.Results[0], f.Abs())
	return nil
}

func encodeLinalgIndex(st *State, op *Operation) error {
	dim, ok := op.Attr("dim").(IntAttr)
	if !ok {
		return unsupported(op, "unsupported form")
	}
	scope := st.CurLoopScope()
	assert(int(dim.Value) < len(scope.IndVars), "linalg.index out of range")
	st.Regs.Add(op.Results[0], NewIndexExpr(scope.IndVars[dim.Value]))
	return nil
}

func encodeInitTensor(st *State, op *Operation) error {
	ty, ok := op.Results[0].Type.(TensorType)
	if !ok {
		return unsupported(op, "unsupported tensor type")
	}
	if _, ok := scalarSortOf(ty.Elem); !ok {
		return unsupported(op, "unsupported tensor type")
	}
	dynamics := make([]Expr, 0, len(op.Operands))
	for _, operand := range op.Operands {
		dynamics = append(dynamics, st.Regs.GetIndex(operand).E)
	}
	sizes := typeDims(ty.Shape, dynamics)
	name := fmt.Sprintf("init_tensor_%d", op.Results[0].ID())
	st.Regs.Add(op.Results[0], NewSymbolicTensor(ty.Elem, name, sizes))
	return nil
}

func encodeCollapseShape(st *State, op *Operation) error {
	t := st.Regs.GetTensor(op.Operands[0])
	resTy, ok := op.Results[0].Type.(TensorType)
	if !ok {
		return unsupported(op, "unsupported type")
	}
	reassoc, ok := op.Attr("reassociation").(IntsListAttr)
	if !ok {
		return unsupported(op, "unsupported form")
	}
	assert(len(reassoc.Groups) == resTy.Rank(), "reassociation must cover the result rank")

	var newDims []Expr
	if len(reassoc.Groups) == 0 {
		newDims = append(newDims, idxOne())
	} else {
		// If the collapsed size does not match the result type, it is UB.
		for i, group := range reassoc.Groups {
			size := idxOne()
			for _, idx := range group {
				size = NewBinaryExpr(MUL, size, t.Dim(int(idx)))
			}
			if resTy.Shape[i] != DynamicSize {
				st.WellDefined(op, NewEqExpr(size, idxConst(uint64(resTy.Shape[i]))))
			}
			newDims = append(newDims, size)
		}
	}

	st.WellDefined(op, NewEqExpr(t.Get1DSize(), get1DSize(newDims)))
	st.Regs.Add(op.Results[0], t.Reshape(newDims))
	return nil
}

func encodeExpandShape(st *State, op *Operation) error {
	t := st.Regs.GetTensor(op.Operands[0])
	resTy, ok := op.Results[0].Type.(TensorType)
	if !ok {
		return unsupported(op, "unsupported type")
	}
	reassoc, ok := op.Attr("reassociation").(IntsListAttr)
	if !ok {
		return unsupported(op, "unsupported form")
	}

	// The fresh dims for dynamic axes are overwritten below.
	newDims := typeDimsFresh(resTy.Shape, fmt.Sprintf("expand_%d", op.Results[0].ID()))
	i := 0
	for srci, group := range reassoc.Groups {
		orgDim := t.Dim(srci)

		// Allow one '?' only.
		unknownDim := -1
		constSize := int64(1)
		for _, id := range group {
			if resTy.Shape[id] == DynamicSize {
				if unknownDim != -1 {
					return unsupported(op, "it has more than one unknown dimension size in one group")
				}
				unknownDim = i
			} else {
				constSize *= resTy.Shape[id]
			}
			i++
		}
		if unknownDim == -1 {
			// Nothing to do; it is already well-defined.
			continue
		}
		if IndexBits < 64 && uint64(constSize) >= uint64(1)<<IndexBits {
			return unsupported(op, "tensor size is too large")
		}

		// If the original size isn't divisible, raise UB.
		cs := idxConst(uint64(constSize))
		st.WellDefined(op, NewEqExpr(NewBinaryExpr(UREM, orgDim, cs), idxZero()))
		newDims[unknownDim] = NewBinaryExpr(UDIV, orgDim, cs)
	}

	st.Regs.Add(op.Results[0], t.Reshape(newDims))
	return nil
}

func encodeMatmul(st *State, op *Operation) error {
	if !hasTensorSemantics(op) {
		return unsupported(op, "tensor semantics is supported only")
	}
	if len(op.Operands) != 3 || len(op.Results) != 1 {
		return unsupported(op, "unsupported form")
	}
	e0 := elemTypeOf(op.Operands[0].Type)
	e1 := elemTypeOf(op.Operands[1].Type)
	er := elemTypeOf(op.Results[0].Type)
	if e0 != e1 || e0 != er {
		return unsupported(op, "unsupported types")
	}
	a := st.Regs.GetTensor(op.Operands[0])
	b := st.Regs.GetTensor(op.Operands[1])
	res, err := a.Matmul(b)
	if err != nil {
		return errors.Wrap(err, op.Name)
	}
	st.Regs.Add(op.Results[0], res)
	return nil
}

// getMixedValues reads one entry per static slot, consuming an operand
// for every DynamicSize slot.
func getMixedValues(st *State, static []int64, operands []*Value, next *int) []Expr {
	vec := make([]Expr, 0, len(static))
	for _, s := range static {
		if s == DynamicSize {
			vec = append(vec, st.Regs.GetIndex(operands[*next]).E)
			*next++
		} else {
			vec = append(vec, idxConst(uint64(s)))
		}
	}
	return vec
}

func staticInts(op *Operation, name string) ([]int64, bool) {
	a, ok := op.Attr(name).(IntsAttr)
	if !ok {
		return nil, false
	}
	return a.Values, true
}

func encodePadTensor(st *State, op *Operation) error {
	retTy, ok := op.Results[0].Type.(TensorType)
	if !ok {
		return unsupported(op, "unsupported type")
	}
	if op.Region == nil {
		return unsupported(op, "unsupported region")
	}
	blk := op.Region

	staticLow, ok := staticInts(op, "static_low")
	if !ok {
		return unsupported(op, "unsupported form")
	}
	staticHigh, ok := staticInts(op, "static_high")
	if !ok {
		return unsupported(op, "unsupported form")
	}
	next := 1 // operand 0 is the source
	padSizeLow := getMixedValues(st, staticLow, op.Operands, &next)
	padSizeHigh := getMixedValues(st, staticHigh, op.Operands, &next)

	sourceTensor := st.Regs.GetTensor(op.Operands[0])
	newTensorSize := vecAdd(vecAdd(sourceTensor.Dims(), padSizeLow), padSizeHigh)

	newst := st.Fork()
	loopUpperBound := make([]Expr, len(newTensorSize))
	for i, s := range newTensorSize {
		loopUpperBound[i] = NewBinaryExpr(SUB, s, idxOne())
	}
	scope := newst.PushLoopScope(loopUpperBound)
	defer newst.PopLoopScope()
	for i, arg := range blk.Args {
		newst.Regs.Add(arg, NewIndexExpr(scope.IndVars[i]))
	}

	identityMap := MultiDimIdentityMap(retTy.Rank())
	paddingOrSource := func(pad Expr, indVars []Expr) Expr {
		isSource := Expr(NewBoolConstExpr(true))
		assert(len(indVars) == len(padSizeLow) && len(indVars) == len(padSizeHigh),
			"pad sizes must cover every axis")
		sourceIndices := make([]Expr, 0, len(indVars))
		for i := range indVars {
			l := padSizeLow[i]
			h := NewBinaryExpr(ADD, padSizeLow[i], sourceTensor.Dim(i))
			isSource = NewAndExpr(isSource, NewAndExpr(
				NewBinaryExpr(ULE, l, indVars[i]),
				NewBinaryExpr(ULT, indVars[i], h)))
			sourceIndices = append(sourceIndices, NewBinaryExpr(SUB, indVars[i], l))
		}
		srcElem, _ := sourceTensor.Get(sourceIndices)
		return NewIteExpr(isSource, srcElem, pad)
	}

	tvecRes, welldef, err := encodeParallelLoopBodyAndOutputs(newst, blk, identityMap, paddingOrSource)
	if err != nil {
		return err
	}

	// pad_tensor has one output.
	welldef = NewForallExpr(scope.IndVars,
		NewImpliesExpr(tvecRes[0].IsInBounds(scope.IndVars), welldef))

	// If the output dimension sizes are known, the padding must match.
	if retTy.HasStaticShape() {
		for i := 0; i < retTy.Rank(); i++ {
			st.WellDefined(op, NewEqExpr(tvecRes[0].Dim(i), idxConst(uint64(retTy.Shape[i]))))
		}
	}

	st.Regs.Add(op.Results[0], tvecRes[0])
	st.WellDefined(op, welldef)
	return nil
}

// encodeDimOp selects the index-th entry of dims with an ite chain.
func encodeDimOp(st *State, dims []Expr, index *Value) (Expr, Expr) {
	idx := st.Regs.GetIndex(index).E
	res := dims[0]
	for i := 1; i < len(dims); i++ {
		res = NewIteExpr(NewEqExpr(idx, idxConst(uint64(i))), dims[i], res)
	}
	return res, NewBinaryExpr(ULT, idx, idxConst(uint64(len(dims))))
}

func encodeTensorDim(st *State, op *Operation) error {
	res, wf := encodeDimOp(st, st.Regs.GetTensor(op.Operands[0]).Dims(), op.Operands[1])
	st.Regs.Add(op.Results[0], NewIndexExpr(res))
	st.WellDefined(op, wf)
	return nil
}

func encodeMemRefDim(st *State, op *Operation) error {
	res, wf := encodeDimOp(st, st.Regs.GetMemRef(op.Operands[0]).Dims(), op.Operands[1])
	st.Regs.Add(op.Results[0], NewIndexExpr(res))
	st.WellDefined(op, wf)
	return nil
}

func encodeTensorCast(st *State, op *Operation) error {
	ty, ok := op.Results[0].Type.(TensorType)
	if !ok {
		return unsupported(op, "unsupported type")
	}
	t := st.Regs.GetTensor(op.Operands[0])
	for i := 0; i < ty.Rank(); i++ {
		if ty.IsDynamicDim(i) {
			continue
		}
		st.WellDefined(op, NewEqExpr(t.Dim(i), idxConst(uint64(ty.Shape[i]))))
	}
	st.Regs.Add(op.Results[0], t)
	return nil
}

func encodeExtract(st *State, op *Operation) error {
	// TODO: the IR spec isn't explicit about what happens if indices
	// are out-of-bounds. It is currently encoded as UB.
	t := st.Regs.GetTensor(op.Operands[0])
	indices := make([]Expr, 0, len(op.Operands)-1)
	for _, idx := range op.Operands[1:] {
		indices = append(indices, st.Regs.GetIndex(idx).E)
	}
	if len(indices) == 0 {
		// Deal with the zero-rank tensor case.
		indices = append(indices, idxZero())
	}
	elem, inbounds := t.Get(indices)
	v, ok := fromExpr(elem, op.Results[0].Type)
	if !ok {
		return unsupported(op, "unsupported type")
	}
	st.Regs.Add(op.Results[0], v)
	st.WellDefined(op, inbounds)
	return nil
}

func encodeInsert(st *State, op *Operation) error {
	val := st.Regs.GetExpr(op.Operands[0])
	dest := st.Regs.GetTensor(op.Operands[1])
	indices := make([]Expr, 0, len(op.Operands)-2)
	for _, idx := range op.Operands[2:] {
		indices = append(indices, st.Regs.GetIndex(idx).E)
	}
	if len(indices) == 0 {
		indices = append(indices, idxZero())
	}
	t, inbounds := dest.Insert(val, indices)
	st.Regs.Add(op.Results[0], t)
	st.WellDefined(op, inbounds)
	return nil
}

func encodeFromElements(st *State, op *Operation) error {
	elems := make([]Expr, 0, len(op.Operands))
	for _, operand := range op.Operands {
		elems = append(elems, st.Regs.GetExpr(operand))
	}
	ty, ok := op.Results[0].Type.(TensorType)
	if !ok {
		return unsupported(op, "unsupported type")
	}
	st.Regs.Add(op.Results[0], NewTensorFromElems(ty.Elem, elems))
	return nil
}

func encodeGenerate(st *State, op *Operation) error {
	retTy, ok := op.Results[0].Type.(TensorType)
	if !ok {
		return unsupported(op, "unsupported type")
	}
	if op.Region == nil {
		return unsupported(op, "unsupported form")
	}
	blk := op.Region

	upperBound := make([]Expr, 0, retTy.Rank())
	next := 0
	for i := 0; i < retTy.Rank(); i++ {
		var d Expr
		if retTy.IsDynamicDim(i) {
			d = st.Regs.GetIndex(op.Operands[next]).E
			next++
		} else {
			d = idxConst(uint64(retTy.Shape[i]))
		}
		upperBound = append(upperBound, NewBinaryExpr(SUB, d, idxOne()))
	}

	newst := st.Fork()
	scope := newst.PushLoopScope(upperBound)
	defer newst.PopLoopScope()
	for i, arg := range blk.Args {
		newst.Regs.Add(arg, NewIndexExpr(scope.IndVars[i]))
	}

	identityMap := MultiDimIdentityMap(retTy.Rank())
	tvecRes, welldef, err := encodeParallelLoopBodyAndOutputs(newst, blk, identityMap, nil)
	if err != nil {
		return err
	}
	welldef = NewForallExpr(scope.IndVars,
		NewImpliesExpr(tvecRes[0].IsInBounds(scope.IndVars), welldef))

	st.Regs.Add(op.Results[0], tvecRes[0])
	st.WellDefined(op, welldef)
	return nil
}

func encodeExtractSlice(st *State, op *Operation) error {
	src := st.Regs.GetTensor(op.Operands[0])
	srcTy, ok := op.Operands[0].Type.(TensorType)
	if !ok {
		return unsupported(op, "unsupported type")
	}
	resTy, ok := op.Results[0].Type.(TensorType)
	if !ok {
		return unsupported(op, "unsupported type")
	}
	staticOffsets, ok1 := staticInts(op, "static_offsets")
	staticSizes, ok2 := staticInts(op, "static_sizes")
	staticStrides, ok3 := staticInts(op, "static_strides")
	if !ok1 || !ok2 || !ok3 {
		return unsupported(op, "unsupported form")
	}
	next := 1
	offsets := getMixedValues(st, staticOffsets, op.Operands, &next)
	sizes := getMixedValues(st, staticSizes, op.Operands, &next)
	strides := getMixedValues(st, staticStrides, op.Operands, &next)

	if len(offsets) != len(sizes) || len(sizes) != len(strides) ||
		len(strides) != srcTy.Rank() {
		return unsupported(op, "unsupported form")
	}

	// Push output dimensions to dims, skipping static size-1 axes that
	// the result type dropped.
	var dims []Expr
	j := 0
	for i := 0; i < resTy.Rank(); i++ {
		if !resTy.IsDynamicDim(i) && resTy.Shape[i] == 1 {
			dims = append(dims, idxOne())
			continue
		}
		for {
			assert(j < len(sizes), "extract_slice: ran out of sizes")
			if staticSizes[j] != 1 {
				break
			}
			j++
		}
		dims = append(dims, sizes[j])
		j++
	}

	inIdxs := NewBoundIndexVars(resTy.Rank())
	var outIdxs []Expr
	idx := 0
	for i := 0; i < srcTy.Rank(); i++ {
		szConst, isConst := sizes[i].(*ConstantExpr)
		isDimSizeOne := idx >= resTy.Rank() ||
			(isConst && szConst.Value == 1 && resTy.Shape[idx] != DynamicSize)
		if isDimSizeOne {
			outIdxs = append(outIdxs, offsets[i])
		} else {
			outIdxs = append(outIdxs,
				NewBinaryExpr(ADD, NewBinaryExpr(MUL, inIdxs[idx], strides[i]), offsets[i]))
			idx++
		}
	}
	elem, _ := src.Get(outIdxs)
	st.Regs.Add(op.Results[0], MkLambdaTensor(src.ElemType(), dims, inIdxs, elem))
	return nil
}

func encodeInsertSlice(st *State, op *Operation) error {
	src := st.Regs.GetTensor(op.Operands[0])
	tgt := st.Regs.GetTensor(op.Operands[1])
	srcTy, ok0 := op.Operands[0].Type.(TensorType)
	tgtTy, ok1 := op.Operands[1].Type.(TensorType)
	resTy, ok2 := op.Results[0].Type.(TensorType)
	if !ok0 || !ok1 || !ok2 {
		return unsupported(op, "unsupported type")
	}
	rank := srcTy.Rank()
	if rank != tgtTy.Rank() || rank != resTy.Rank() {
		return unsupported(op, "unsupported tensor types of src and dest: their ranks do not match")
	}
	staticOffsets, okA := staticInts(op, "static_offsets")
	staticSizes, okB := staticInts(op, "static_sizes")
	staticStrides, okC := staticInts(op, "static_strides")
	if !okA || !okB || !okC {
		return unsupported(op, "unsupported form")
	}
	next := 2
	offsets := getMixedValues(st, staticOffsets, op.Operands, &next)
	sizes := getMixedValues(st, staticSizes, op.Operands, &next)
	strides := getMixedValues(st, staticStrides, op.Operands, &next)
	assert(len(offsets) == rank && len(sizes) == rank && len(strides) == rank,
		"insert_slice: offsets/sizes/strides must cover every axis")

	indVars := NewBoundIndexVars(rank)
	dims := tgt.Dims()
	srcIdxs := make([]Expr, 0, rank)
	cond := Expr(NewBoolConstExpr(true))
	for i := 0; i < rank; i++ {
		rel := NewBinaryExpr(SUB, indVars[i], offsets[i])
		srcIdxs = append(srcIdxs, NewBinaryExpr(UDIV, rel, strides[i]))
		cond = NewAndExpr(cond, NewAndExpr(
			NewEqExpr(NewBinaryExpr(UREM, rel, strides[i]), idxZero()),
			NewBinaryExpr(ULT, rel, NewBinaryExpr(MUL, sizes[i], strides[i]))))
	}

	srcElem, srcInBounds := src.Get(srcIdxs)
	tgtElem, tgtInBounds := tgt.Get(indVars)
	output := NewIteExpr(cond, srcElem, tgtElem)

	// If tgt[indVars] is in-bounds and src is to be chosen there,
	// src[srcIdxs] must be in-bounds as well.
	st.WellDefined(op, NewForallExpr(indVars,
		NewImpliesExpr(NewAndExpr(tgtInBounds, cond), srcInBounds)))
	st.Regs.Add(op.Results[0], MkLambdaTensor(src.ElemType(), dims, indVars, output))
	return nil
}

// hasTensorSemantics reports whether every shaped operand is a tensor.
func hasTensorSemantics(op *Operation) bool {
	for _, operand := range op.Operands {
		if _, ok := operand.Type.(MemRefType); ok {
			return false
		}
	}
	return true
}

// createNewLocalBlk allocates a fresh local block and returns a view
// over it.
func createNewLocalBlk(st *State, dims []Expr, memrefTy MemRefType, writable bool) (*MemRef, error) {
	if _, ok := scalarSortOf(memrefTy.Elem); !ok {
		return nil, &UnsupportedError{Reason: "unsupported element type"}
	}
	layout, ok := LayoutFromAffineMap(memrefTy.Layout, dims)
	if !ok {
		return nil, &UnsupportedError{Reason: "unsupported layout map"}
	}
	bid := st.M.AddLocalBlock(get1DSize(dims), writable, memrefTy.Elem)
	return NewMemRef(st.M, memrefTy.Elem, bid, idxZero(), dims, layout), nil
}

func encodeAlloc(st *State, op *Operation) error {
	ty, ok := op.Results[0].Type.(MemRefType)
	if !ok {
		return unsupported(op, "unsupported type")
	}
	if !ty.IsIdentityLayout() {
		return unsupported(op, "unsupported memref type for alloc: it has a non-identity layout map")
	}
	dynamics := make([]Expr, 0, len(op.Operands))
	for _, sz := range op.Operands {
		dynamics = append(dynamics, st.Regs.GetIndex(sz).E)
	}
	dims := typeDims(ty.Shape, dynamics)
	memref, err := createNewLocalBlk(st, dims, ty, true)
	if err != nil {
		return errors.Wrap(err, op.Name)
	}
	st.Regs.Add(op.Results[0], memref)
	return nil
}

func encodeLoad(st *State, op *Operation) error {
	// TODO: the IR spec isn't explicit about what happens if indices
	// are out-of-bounds. It is currently encoded as UB.
	m := st.Regs.GetMemRef(op.Operands[0])
	indices := make([]Expr, 0, len(op.Operands)-1)
	for _, idx := range op.Operands[1:] {
		indices = append(indices, st.Regs.GetIndex(idx).E)
	}
	elem, success := m.Get(indices)
	v, ok := fromExpr(elem, op.Results[0].Type)
	if !ok {
		return unsupported(op, "unsupported type")
	}
	st.Regs.Add(op.Results[0], v)
	st.WellDefined(op, success)
	return nil
}

func encodeStore(st *State, op *Operation, encodeMemWrites bool) error {
	if !encodeMemWrites {
		return unsupported(op, "we do not support memory writes in this scope")
	}
	// TODO: the IR spec isn't explicit about what happens if indices
	// are out-of-bounds. It is currently encoded as UB.
	m := st.Regs.GetMemRef(op.Operands[1])
	indices := make([]Expr, 0, len(op.Operands)-2)
	for _, idx := range op.Operands[2:] {
		indices = append(indices, st.Regs.GetIndex(idx).E)
	}
	if !isIntOrFloat(op.Operands[0].Type) {
		return unsupported(op, "unsupported type")
	}
	val := st.Regs.GetExpr(op.Operands[0])
	st.WellDefined(op, m.Store(val, indices))
	return nil
}

// computeRankReductionMask marks the static size-1 axes dropped when
// reducing fullShape to reducedShape. Returns false when no consistent
// mask exists.
func computeRankReductionMask(fullShape, reducedShape []int64) ([]bool, bool) {
	mask := make([]bool, len(fullShape))
	j := 0
	for k := 0; k < len(fullShape); k++ {
		if j < len(reducedShape) && fullShape[k] == reducedShape[j] {
			j++
			continue
		}
		if fullShape[k] == 1 {
			mask[k] = true
			continue
		}
		return nil, false
	}
	if j != len(reducedShape) {
		return nil, false
	}
	return mask, true
}

func encodeSubView(st *State, op *Operation) error {
	srcTy, ok := op.Operands[0].Type.(MemRefType)
	if !ok {
		return unsupported(op, "unsupported type")
	}
	resTy, ok := op.Results[0].Type.(MemRefType)
	if !ok {
		return unsupported(op, "unsupported type")
	}
	staticOffsets, ok1 := staticInts(op, "static_offsets")
	staticSizes, ok2 := staticInts(op, "static_sizes")
	staticStrides, ok3 := staticInts(op, "static_strides")
	if !ok1 || !ok2 || !ok3 {
		return unsupported(op, "unsupported form")
	}
	next := 1
	offsets := getMixedValues(st, staticOffsets, op.Operands, &next)
	sizes := getMixedValues(st, staticSizes, op.Operands, &next)
	strides := getMixedValues(st, staticStrides, op.Operands, &next)

	src := st.Regs.GetMemRef(op.Operands[0])
	rankDiff := srcTy.Rank() - resTy.Rank()
	assert(rankDiff >= 0, "subview only reduces rank")

	unusedDims, ok := computeRankReductionMask(staticSizes, resTy.Shape)
	if !ok {
		return unsupported(op, "subview result size mismatch")
	}
	st.Regs.Add(op.Results[0], src.Subview(offsets, sizes, strides, unusedDims, rankDiff))
	return nil
}

// storeTensorTo bulk-writes tensor into memref. A non-identity layout
// falls back to an element-by-element forall, which introduces a
// quantifier.
func storeTensorTo(st *State, op *Operation, tensor *Tensor, memref *MemRef, memrefTy MemRefType) {
	if memrefTy.IsIdentityLayout() {
		success := memref.StoreArray(tensor.AsArray(), idxZero(), tensor.Get1DSize(), false)
		st.WellDefined(op, success)
		return
	}

	idxs := NewBoundIndexVars(memrefTy.Rank())
	tVal, tSuccess := tensor.Get(idxs)
	mVal, mSuccess := memref.Get(idxs)
	success := NewAndExpr(tSuccess, mSuccess)

	// TODO: clarify whether this is precondition or UB.
	st.WellDefined(op, NewForallExpr(idxs,
		NewImpliesExpr(success, NewEqExpr(mVal, tVal))))
	st.HasQuantifier = true
}

func encodeBufferCast(st *State, op *Operation, encodeMemWrites bool) error {
	if !encodeMemWrites {
		return unsupported(op, "we do not support memory writes in this scope")
	}
	tensor := st.Regs.GetTensor(op.Operands[0])
	memrefTy, ok := op.Results[0].Type.(MemRefType)
	if !ok {
		return unsupported(op, "unsupported type")
	}
	dims := tensor.Dims()

	// Create a read-only block.
	memref, err := createNewLocalBlk(st, dims, memrefTy, false)
	if err != nil {
		return errors.Wrap(err, op.Name)
	}
	storeTensorTo(st, op, tensor, memref, memrefTy)
	st.Regs.Add(op.Results[0], memref)
	return nil
}

func encodeClone(st *State, op *Operation, encodeMemWrites bool) error {
	if !encodeMemWrites {
		return unsupported(op, "we do not support memory writes in this scope")
	}
	src := st.Regs.GetMemRef(op.Operands[0])
	srcTy, ok := op.Operands[0].Type.(MemRefType)
	if !ok {
		return unsupported(op, "unsupported type")
	}
	dims := src.Dims()

	// Create a read-only block.
	memref, err := createNewLocalBlk(st, dims, srcTy, false)
	if err != nil {
		return errors.Wrap(err, op.Name)
	}
	storeTensorTo(st, op, src.LoadTensor(), memref, srcTy)
	// Src is not writable as well.
	st.M.SetWritable(src.BID(), false)
	st.HasQuantifier = true
	st.Regs.Add(op.Results[0], memref)
	return nil
}

func encodeTensorLoad(st *State, op *Operation) error {
	m := st.Regs.GetMemRef(op.Operands[0])
	// Mark the block pointed to by the memref as read-only.
	st.M.SetWritable(m.BID(), false)

	st.Regs.Add(op.Results[0], m.LoadTensor())
	st.WellDefined(op, m.IsInBounds())
	return nil
}

func encodeTensorStore(st *State, op *Operation, encodeMemWrites bool) error {
	if !encodeMemWrites {
		return unsupported(op, "we do not support memory writes in this scope")
	}
	t := st.Regs.GetTensor(op.Operands[0])
	m := st.Regs.GetMemRef(op.Operands[1])
	memrefTy, ok := op.Operands[1].Type.(MemRefType)
	if !ok {
		return unsupported(op, "unsupported type")
	}

	// Src and tgt's shapes must match. The memref may have a layout.
	for i := 0; i < t.Rank(); i++ {
		st.WellDefined(op, NewEqExpr(t.Dim(i), m.Dim(i)))
	}
	storeTensorTo(st, op, t, m, memrefTy)
	st.HasQuantifier = true
	return nil
}

func encodeCopy(st *State, op *Operation, encodeMemWrites bool) error {
	if !encodeMemWrites {
		return unsupported(op, "we do not support memory writes in this scope")
	}
	if op.Attr("inputPermutation") != nil || op.Attr("outputPermutation") != nil {
		return unsupported(op, "copy with permutations is not supported")
	}
	mrIn := st.Regs.GetMemRef(op.Operands[0])
	mrOut := st.Regs.GetMemRef(op.Operands[1])
	outTy, ok := op.Operands[1].Type.(MemRefType)
	if !ok {
		return unsupported(op, "unsupported type")
	}

	// Src and tgt's shapes must match.
	for i := 0; i < mrIn.Rank(); i++ {
		st.WellDefined(op, NewEqExpr(mrIn.Dim(i), mrOut.Dim(i)))
	}
	// The operands must not overlap.
	st.WellDefined(op, mrIn.NoAlias(mrOut))

	storeTensorTo(st, op, mrIn.LoadTensor(), mrOut, outTy)
	return nil
}

func encodeFill(st *State, op *Operation, encodeMemWrites bool) error {
	if !hasTensorSemantics(op) && !encodeMemWrites {
		return unsupported(op, "we do not support memory writes in this scope")
	}
	if len(op.Results) > 1 {
		return unsupported(op, "it has multiple results")
	}
	elemval := st.Regs.GetExpr(op.Operands[0])
	dest := op.Operands[1]
	ety := elemTypeOf(dest.Type)

	if hasTensorSemantics(op) {
		t := st.Regs.GetTensor(dest)
		st.Regs.Add(op.Results[0], NewSplatTensor(ety, elemval, t.Dims()))
		return nil
	}
	m := st.Regs.GetMemRef(dest)
	memrefTy := dest.Type.(MemRefType)
	filled := NewSplatTensor(ety, elemval, m.Dims())
	storeTensorTo(st, op, filled, m, memrefTy)
	return nil
}

func encodeDot(st *State, op *Operation) error {
	if !hasTensorSemantics(op) {
		return unsupported(op, "tensor semantics is supported only")
	}
	if len(op.Results) != 1 {
		return unsupported(op, "it has multiple results")
	}
	outTy, ok := op.Results[0].Type.(TensorType)
	if !ok {
		return unsupported(op, "unsupported type")
	}
	outputDim := typeDims(outTy.Shape, nil)
	if len(outputDim) != 1 {
		return unsupported(op, "unknown dot format; shouldn't the result tensor have one element?")
	}
	if outTy.Elem != elemTypeOf(op.Operands[0].Type) {
		return unsupported(op, "casting is not supported")
	}

	t1 := st.Regs.GetTensor(op.Operands[0])
	t2 := st.Regs.GetTensor(op.Operands[1])
	st.WellDefined(op, NewEqExpr(t1.Get1DSize(), t2.Get1DSize()))

	res, err := t1.Dot(t2)
	if err != nil {
		return errors.Wrap(err, op.Name)
	}
	st.Regs.Add(op.Results[0], NewSplatTensor(t1.ElemType(), res, outputDim))
	return nil
}

func encodeConv(st *State, op *Operation, layout ConvLayout, encodeMemWrites bool) error {
	if !hasTensorSemantics(op) && !encodeMemWrites {
		return unsupported(op, "we do not support memory writes in this scope")
	}
	strideInts, ok1 := staticInts(op, "strides")
	dilationInts, ok2 := staticInts(op, "dilations")
	if !ok1 || !ok2 {
		return unsupported(op, "unsupported form")
	}
	// TODO: the result may not fit in IndexBits.
	strides := make([]Expr, 0, len(strideInts))
	for _, s := range strideInts {
		strides = append(strides, idxConst(uint64(s)))
	}
	dilations := make([]Expr, 0, len(dilationInts))
	for _, d := range dilationInts {
		dilations = append(dilations, idxConst(uint64(d)))
	}

	if hasTensorSemantics(op) {
		input := st.Regs.GetTensor(op.Operands[0])
		filter := st.Regs.GetTensor(op.Operands[1])
		res, err := input.Conv(filter, strides, dilations, layout)
		if err != nil {
			return errors.Wrap(err, op.Name)
		}
		st.Regs.Add(op.Results[0], res)
		return nil
	}

	input := st.Regs.GetMemRef(op.Operands[0])
	filter := st.Regs.GetMemRef(op.Operands[1])
	output := st.Regs.GetMemRef(op.Operands[2])
	if !output.IsIdentityMap() {
		return unsupported(op, "the output memref should have identity layout")
	}
	success, err := output.Conv(input, filter, strides, dilations, layout)
	if err != nil {
		return errors.Wrap(err, op.Name)
	}
	st.WellDefined(op, success)
	return nil
}

func encodeShapeOf(st *State, op *Operation) error {
	ty, ok := op.Results[0].Type.(TensorType)
	if !ok {
		return unsupported(op, "unsupported type")
	}
	if _, ok := op.Operands[0].Type.(TensorType); !ok {
		return unsupported(op, "unsupported type")
	}
	t := st.Regs.GetTensor(op.Operands[0])

	dims := t.Dims()
	if ity, ok := ty.Elem.(IntType); ok && ity.Width != IndexBits {
		for i, d := range dims {
			dims[i] = evalIndexCast(d, ity.Width)
		}
	}
	st.Regs.Add(op.Results[0], NewTensorFromElems(ty.Elem, dims))
	return nil
}

func encodeToExtentTensor(st *State, op *Operation) error {
	// TODO: if the shape represents an error, the op's behavior is
	// undefined. Whether this applies to a tensor operand is unclear;
	// it currently passes through.
	if _, ok := op.Operands[0].Type.(TensorType); !ok {
		return unsupported(op, "unsupported type")
	}
	t := st.Regs.GetTensor(op.Operands[0])
	resTy := op.Results[0].Type.(TensorType)
	assert(t.Rank() == resTy.Rank(), "to_extent_tensor rank mismatch")
	st.Regs.Add(op.Results[0], t)
	return nil
}

func encodeSparseConvert(st *State, op *Operation) error {
	st.Regs.Add(op.Results[0], st.Regs.GetTensor(op.Operands[0]))
	return nil
}
