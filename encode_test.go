package mlirtv_test

import (
	"strings"
	"testing"

	mlirtv "github.com/MerHS/mlir-tv"
	"github.com/google/go-cmp/cmp"
)

func mustEncode(t *testing.T, fn *mlirtv.Function) *mlirtv.State {
	t.Helper()
	st, err := mlirtv.NewState(fn)
	if err != nil {
		t.Fatal(err)
	}
	if err := mlirtv.Encode(st, fn, false); err != nil {
		t.Fatal(err)
	}
	return st
}

func constIndex(b *mlirtv.Block, v int64) *mlirtv.Value {
	op := b.AddOp("arith.constant", nil, mlirtv.IndexType{}).
		WithAttr("value", mlirtv.IntAttr{Value: v, Type: mlirtv.IndexType{}})
	return op.Results[0]
}

func denseF32(vals ...float64) mlirtv.DenseAttr {
	attrs := make([]mlirtv.Attr, len(vals))
	for i, v := range vals {
		attrs[i] = mlirtv.FloatAttr{Value: v, Type: tyF32}
	}
	return mlirtv.DenseAttr{Values: attrs}
}

func denseI32(vals ...int64) mlirtv.DenseAttr {
	attrs := make([]mlirtv.Attr, len(vals))
	for i, v := range vals {
		attrs[i] = mlirtv.IntAttr{Value: v, Type: tyI32}
	}
	return mlirtv.DenseAttr{Values: attrs}
}

func TestEncodeAddFConstTensors(t *testing.T) {
	t2 := mlirtv.TensorType{Elem: tyF32, Shape: []int64{2}}
	fn := mlirtv.NewFunction("f")
	b := fn.Body
	c1 := b.AddOp("arith.constant", nil, t2).WithAttr("value", denseF32(1, 2))
	c2 := b.AddOp("arith.constant", nil, t2).WithAttr("value", denseF32(3, 4))
	add := b.AddOp("arith.addf", []*mlirtv.Value{c1.Results[0], c2.Results[0]}, t2)

	st := mustEncode(t, fn)
	res := st.Regs.GetTensor(add.Results[0])
	if diff := cmp.Diff(idxs(2), res.Dims()); diff != "" {
		t.Fatal(diff)
	}
	elem0, _ := res.Get(idxs(0))
	if s := elem0.String(); s != "(fp32.add fp32(1) fp32(3))" {
		t.Fatalf("unexpected element: %s", s)
	}
	elem1, _ := res.Get(idxs(1))
	if s := elem1.String(); s != "(fp32.add fp32(2) fp32(4))" {
		t.Fatalf("unexpected element: %s", s)
	}
	if !st.WellDefinedness().(*mlirtv.BoolConstExpr).Value {
		t.Fatalf("unexpected well-definedness: %s", st.WellDefinedness())
	}
}

func TestEncodeDeterminism(t *testing.T) {
	build := func() (string, string) {
		t2 := mlirtv.TensorType{Elem: tyF32, Shape: []int64{2}}
		fn := mlirtv.NewFunction("f")
		c1 := fn.Body.AddOp("arith.constant", nil, t2).WithAttr("value", denseF32(1, 2))
		c2 := fn.Body.AddOp("arith.constant", nil, t2).WithAttr("value", denseF32(3, 4))
		add := fn.Body.AddOp("arith.addf", []*mlirtv.Value{c1.Results[0], c2.Results[0]}, t2)
		st := mustEncode(t, fn)
		elem, _ := st.Regs.GetTensor(add.Results[0]).Get(idxs(0))
		return elem.String(), st.WellDefinedness().String()
	}
	e1, w1 := build()
	e2, w2 := build()
	if e1 != e2 || w1 != w2 {
		t.Fatalf("unexpected divergence: %s vs %s, %s vs %s", e1, e2, w1, w2)
	}
}

func TestEncodeExtract(t *testing.T) {
	t22 := mlirtv.TensorType{Elem: tyI32, Shape: []int64{2, 2}}
	fn := mlirtv.NewFunction("f")
	b := fn.Body
	c := b.AddOp("arith.constant", nil, t22).WithAttr("value", denseI32(5, 6, 7, 8))
	i0 := constIndex(b, 0)
	i1 := constIndex(b, 1)
	ext := b.AddOp("tensor.extract", []*mlirtv.Value{c.Results[0], i0, i1}, tyI32)

	st := mustEncode(t, fn)
	if e := st.Regs.GetInteger(ext.Results[0]).E; e != i32Const(6) {
		t.Fatalf("unexpected element: %s", e)
	}
	if !st.WellDefinedness().(*mlirtv.BoolConstExpr).Value {
		t.Fatalf("unexpected well-definedness: %s", st.WellDefinedness())
	}
}

func identityMapsAttr(rank, count int) mlirtv.AffineMapsAttr {
	maps := make([]mlirtv.AffineMap, count)
	for i := range maps {
		maps[i] = mlirtv.MultiDimIdentityMap(rank)
	}
	return mlirtv.AffineMapsAttr{Maps: maps}
}

func TestEncodeLinalgGenericReduction(t *testing.T) {
	t34 := mlirtv.TensorType{Elem: tyF32, Shape: []int64{3, 4}}
	t3 := mlirtv.TensorType{Elem: tyF32, Shape: []int64{3}}
	fn := mlirtv.NewFunction("f", t34)
	b := fn.Body
	init := b.AddOp("linalg.init_tensor", nil, t3)

	body := mlirtv.NewBlock(tyF32, tyF32)
	sum := body.AddOp("arith.addf", []*mlirtv.Value{body.Args[0], body.Args[1]}, tyF32)
	body.AddOp("linalg.yield", []*mlirtv.Value{sum.Results[0]})

	gen := b.AddOp("linalg.generic", []*mlirtv.Value{fn.Args[0], init.Results[0]}, t3).
		WithNumInputs(1).
		WithRegion(body).
		WithAttr("iterator_types", mlirtv.StringsAttr{Values: []string{"parallel", "reduction"}}).
		WithAttr("indexing_maps", mlirtv.AffineMapsAttr{Maps: []mlirtv.AffineMap{
			mlirtv.MultiDimIdentityMap(2),
			{NumDims: 2, Results: []mlirtv.AffineExpr{mlirtv.AffineDimExpr{Pos: 0}}},
		}})

	st := mustEncode(t, fn)
	res := st.Regs.GetTensor(gen.Results[0])
	if diff := cmp.Diff(idxs(3), res.Dims()); diff != "" {
		t.Fatal(diff)
	}
	elem, _ := res.Get(idxs(0))
	if s := elem.String(); !strings.Contains(s, "fp32.sum") {
		t.Fatalf("unexpected element: %s", s)
	}
	// The reduced axis is summed over its four values.
	if s := elem.String(); !strings.Contains(s, "(const 4 32)") {
		t.Fatalf("unexpected element: %s", s)
	}
}

func TestEncodeLinalgGenericParallel(t *testing.T) {
	t34 := mlirtv.TensorType{Elem: tyF32, Shape: []int64{3, 4}}
	fn := mlirtv.NewFunction("f", t34)
	b := fn.Body
	init := b.AddOp("linalg.init_tensor", nil, t34)

	body := mlirtv.NewBlock(tyF32, tyF32)
	mul := body.AddOp("arith.mulf", []*mlirtv.Value{body.Args[0], body.Args[1]}, tyF32)
	body.AddOp("linalg.yield", []*mlirtv.Value{mul.Results[0]})

	gen := b.AddOp("linalg.generic", []*mlirtv.Value{fn.Args[0], init.Results[0]}, t34).
		WithNumInputs(1).
		WithRegion(body).
		WithAttr("iterator_types", mlirtv.StringsAttr{Values: []string{"parallel", "parallel"}}).
		WithAttr("indexing_maps", identityMapsAttr(2, 2))

	st := mustEncode(t, fn)
	res := st.Regs.GetTensor(gen.Results[0])
	if diff := cmp.Diff(idxs(3, 4), res.Dims()); diff != "" {
		t.Fatal(diff)
	}
	elem, _ := res.Get(idxs(1, 2))
	if s := elem.String(); !strings.Contains(s, "fp32.mul") {
		t.Fatalf("unexpected element: %s", s)
	}
}

func TestEncodeInsertSlice(t *testing.T) {
	t22 := mlirtv.TensorType{Elem: tyF32, Shape: []int64{2, 2}}
	t44 := mlirtv.TensorType{Elem: tyF32, Shape: []int64{4, 4}}
	fn := mlirtv.NewFunction("f", t22, t44)
	ins := fn.Body.AddOp("tensor.insert_slice", []*mlirtv.Value{fn.Args[0], fn.Args[1]}, t44).
		WithAttr("static_offsets", mlirtv.IntsAttr{Values: []int64{1, 1}}).
		WithAttr("static_sizes", mlirtv.IntsAttr{Values: []int64{2, 2}}).
		WithAttr("static_strides", mlirtv.IntsAttr{Values: []int64{1, 1}})

	st := mustEncode(t, fn)
	res := st.Regs.GetTensor(ins.Results[0])
	src := st.Regs.GetTensor(fn.Args[0])
	tgt := st.Regs.GetTensor(fn.Args[1])

	// Inside the region the source is read at the shifted index.
	resElem, _ := res.Get(idxs(1, 2))
	srcElem, _ := src.Get(idxs(0, 1))
	if resElem.String() != srcElem.String() {
		t.Fatalf("unexpected element: %s vs %s", resElem, srcElem)
	}
	// Outside the region the target passes through.
	resElem, _ = res.Get(idxs(0, 0))
	tgtElem, _ := tgt.Get(idxs(0, 0))
	if resElem.String() != tgtElem.String() {
		t.Fatalf("unexpected element: %s vs %s", resElem, tgtElem)
	}
	// The region choice quantifies over the target indices.
	if _, ok := st.WellDefinedness().(*mlirtv.ForallExpr); !ok {
		t.Fatalf("unexpected well-definedness: %s", st.WellDefinedness())
	}
}

func TestEncodeExtractSliceIdentity(t *testing.T) {
	t22 := mlirtv.TensorType{Elem: tyF32, Shape: []int64{2, 2}}
	fn := mlirtv.NewFunction("f", t22)
	ext := fn.Body.AddOp("tensor.extract_slice", []*mlirtv.Value{fn.Args[0]}, t22).
		WithAttr("static_offsets", mlirtv.IntsAttr{Values: []int64{0, 0}}).
		WithAttr("static_sizes", mlirtv.IntsAttr{Values: []int64{2, 2}}).
		WithAttr("static_strides", mlirtv.IntsAttr{Values: []int64{1, 1}})

	st := mustEncode(t, fn)
	res := st.Regs.GetTensor(ext.Results[0])
	src := st.Regs.GetTensor(fn.Args[0])
	if diff := cmp.Diff(src.Dims(), res.Dims()); diff != "" {
		t.Fatal(diff)
	}
	resElem, _ := res.Get(idxs(1, 0))
	srcElem, _ := src.Get(idxs(1, 0))
	if resElem.String() != srcElem.String() {
		t.Fatalf("unexpected element: %s vs %s", resElem, srcElem)
	}
}

func TestEncodeCopyAliasing(t *testing.T) {
	mrTy := mlirtv.MemRefType{Elem: tyF32, Shape: []int64{4}}
	fn := mlirtv.NewFunction("f")
	v1 := mlirtv.NewIRValue("a", mrTy)
	v2 := mlirtv.NewIRValue("b", mrTy)
	fn.Body.AddOp("linalg.copy", []*mlirtv.Value{v1, v2})

	st, err := mlirtv.NewState(fn)
	if err != nil {
		t.Fatal(err)
	}
	// Two views over the same block.
	bid := st.M.AddLocalBlock(idx(4), true, tyF32)
	layout := mlirtv.NewIdentityLayout(idxs(4))
	st.Regs.Add(v1, mlirtv.NewMemRef(st.M, tyF32, bid, idx(0), idxs(4), layout))
	st.Regs.Add(v2, mlirtv.NewMemRef(st.M, tyF32, bid, idx(0), idxs(4), layout))

	if err := mlirtv.Encode(st, fn, false); err != nil {
		t.Fatal(err)
	}
	if st.WellDefinedness().(*mlirtv.BoolConstExpr).Value {
		t.Fatalf("unexpected well-definedness: %s", st.WellDefinedness())
	}
}

func TestEncodeCloneThenStore(t *testing.T) {
	mrTy := mlirtv.MemRefType{Elem: tyF32, Shape: []int64{2, 2}}
	fn := mlirtv.NewFunction("f", mrTy, tyF32)
	b := fn.Body
	b.AddOp("memref.clone", []*mlirtv.Value{fn.Args[0]}, mrTy)
	i0 := constIndex(b, 0)
	b.AddOp("memref.store", []*mlirtv.Value{fn.Args[1], fn.Args[0], i0, i0})

	st := mustEncode(t, fn)
	if st.WellDefinedness().(*mlirtv.BoolConstExpr).Value {
		t.Fatalf("unexpected well-definedness: %s", st.WellDefinedness())
	}
	if !st.HasQuantifier {
		t.Fatal("expected the quantifier flag")
	}
}

func TestEncodeBroadcastSymmetry(t *testing.T) {
	t31 := mlirtv.TensorType{Elem: tyF32, Shape: []int64{3, 1}}
	t3 := mlirtv.TensorType{Elem: tyF32, Shape: []int64{3}}
	t33 := mlirtv.TensorType{Elem: tyF32, Shape: []int64{3, 3}}
	fn := mlirtv.NewFunction("f", t31, t3)
	ab := fn.Body.AddOp("tosa.add", []*mlirtv.Value{fn.Args[0], fn.Args[1]}, t33)
	ba := fn.Body.AddOp("tosa.add", []*mlirtv.Value{fn.Args[1], fn.Args[0]}, t33)

	st := mustEncode(t, fn)
	resAB := st.Regs.GetTensor(ab.Results[0])
	resBA := st.Regs.GetTensor(ba.Results[0])
	if diff := cmp.Diff(resAB.Dims(), resBA.Dims()); diff != "" {
		t.Fatal(diff)
	}
	if diff := cmp.Diff(idxs(3, 3), resAB.Dims()); diff != "" {
		t.Fatal(diff)
	}
}

func TestEncodeTensorStoreQuantifier(t *testing.T) {
	t22 := mlirtv.TensorType{Elem: tyF32, Shape: []int64{2, 2}}
	mr22 := mlirtv.MemRefType{Elem: tyF32, Shape: []int64{2, 2}}
	fn := mlirtv.NewFunction("f", t22, mr22)
	fn.Body.AddOp("memref.tensor_store", []*mlirtv.Value{fn.Args[0], fn.Args[1]})

	st := mustEncode(t, fn)
	if !st.HasQuantifier {
		t.Fatal("expected the quantifier flag")
	}
}

func TestEncodeSparseConstant(t *testing.T) {
	t22 := mlirtv.TensorType{Elem: tyI32, Shape: []int64{2, 2}}
	fn := mlirtv.NewFunction("f")
	c := fn.Body.AddOp("arith.constant", nil, t22).WithAttr("value", mlirtv.SparseAttr{
		Indices: [][]uint64{{0, 1}},
		Values:  []mlirtv.Attr{mlirtv.IntAttr{Value: 9, Type: tyI32}},
	})

	st := mustEncode(t, fn)
	if !st.HasConstArray {
		t.Fatal("expected the constant array flag")
	}
	res := st.Regs.GetTensor(c.Results[0])
	if elem, _ := res.Get(idxs(0, 1)); elem != i32Const(9) {
		t.Fatalf("unexpected element: %s", elem)
	}
	if elem, _ := res.Get(idxs(0, 0)); elem != i32Const(0) {
		t.Fatalf("unexpected element: %s", elem)
	}
}

func TestEncodeSelect(t *testing.T) {
	i1 := mlirtv.IntType{Width: 1}
	t.Run("Scalar", func(t *testing.T) {
		fn := mlirtv.NewFunction("f", i1, tyF32, tyF32)
		sel := fn.Body.AddOp("select", []*mlirtv.Value{fn.Args[0], fn.Args[1], fn.Args[2]}, tyF32)
		st := mustEncode(t, fn)
		e := st.Regs.GetFloat(sel.Results[0]).E
		if s := e.String(); s != "(ite (eq f.arg0 (const 1 1)) f.arg1 f.arg2)" {
			t.Fatalf("unexpected expr: %s", s)
		}
	})
	t.Run("Tensor", func(t *testing.T) {
		t2 := mlirtv.TensorType{Elem: tyF32, Shape: []int64{2}}
		fn := mlirtv.NewFunction("f", i1, t2, t2)
		sel := fn.Body.AddOp("select", []*mlirtv.Value{fn.Args[0], fn.Args[1], fn.Args[2]}, t2)
		st := mustEncode(t, fn)
		res := st.Regs.GetTensor(sel.Results[0])
		elem, _ := res.Get(idxs(0))
		if s := elem.String(); !strings.HasPrefix(s, "(ite (eq f.arg0 (const 1 1))") {
			t.Fatalf("unexpected element: %s", s)
		}
		if !st.WellDefinedness().(*mlirtv.BoolConstExpr).Value {
			t.Fatalf("unexpected well-definedness: %s", st.WellDefinedness())
		}
	})
}

func TestEncodePadTensor(t *testing.T) {
	t22 := mlirtv.TensorType{Elem: tyF32, Shape: []int64{2, 2}}
	t44 := mlirtv.TensorType{Elem: tyF32, Shape: []int64{4, 4}}
	fn := mlirtv.NewFunction("f", t22)

	body := mlirtv.NewBlock(mlirtv.IndexType{}, mlirtv.IndexType{})
	pad := body.AddOp("arith.constant", nil, tyF32).
		WithAttr("value", mlirtv.FloatAttr{Value: 7, Type: tyF32})
	body.AddOp("linalg.yield", []*mlirtv.Value{pad.Results[0]})

	op := fn.Body.AddOp("linalg.pad_tensor", []*mlirtv.Value{fn.Args[0]}, t44).
		WithRegion(body).
		WithAttr("static_low", mlirtv.IntsAttr{Values: []int64{1, 1}}).
		WithAttr("static_high", mlirtv.IntsAttr{Values: []int64{1, 1}})

	st := mustEncode(t, fn)
	res := st.Regs.GetTensor(op.Results[0])
	if diff := cmp.Diff(idxs(4, 4), res.Dims()); diff != "" {
		t.Fatal(diff)
	}
	// A border element takes the padding value.
	elem, _ := res.Get(idxs(0, 0))
	if s := elem.String(); s != "fp32(7)" {
		t.Fatalf("unexpected element: %s", s)
	}
	// An interior element reads the source.
	elem, _ = res.Get(idxs(1, 1))
	if s := elem.String(); !strings.Contains(s, "select") {
		t.Fatalf("unexpected element: %s", s)
	}
	if !st.WellDefinedness().(*mlirtv.BoolConstExpr).Value {
		t.Fatalf("unexpected well-definedness: %s", st.WellDefinedness())
	}
}

func TestEncodeGenerate(t *testing.T) {
	t22 := mlirtv.TensorType{Elem: tyF32, Shape: []int64{2, 2}}
	fn := mlirtv.NewFunction("f")

	body := mlirtv.NewBlock(mlirtv.IndexType{}, mlirtv.IndexType{})
	c := body.AddOp("arith.constant", nil, tyF32).
		WithAttr("value", mlirtv.FloatAttr{Value: 3, Type: tyF32})
	body.AddOp("tensor.yield", []*mlirtv.Value{c.Results[0]})

	op := fn.Body.AddOp("tensor.generate", nil, t22).WithRegion(body)

	st := mustEncode(t, fn)
	res := st.Regs.GetTensor(op.Results[0])
	if diff := cmp.Diff(idxs(2, 2), res.Dims()); diff != "" {
		t.Fatal(diff)
	}
	elem, _ := res.Get(idxs(1, 1))
	if s := elem.String(); s != "fp32(3)" {
		t.Fatalf("unexpected element: %s", s)
	}
}

func TestEncodeCollapseExpand(t *testing.T) {
	t23 := mlirtv.TensorType{Elem: tyF32, Shape: []int64{2, 3}}
	t6 := mlirtv.TensorType{Elem: tyF32, Shape: []int64{6}}
	fn := mlirtv.NewFunction("f", t23)
	col := fn.Body.AddOp("linalg.collapse_shape", []*mlirtv.Value{fn.Args[0]}, t6).
		WithAttr("reassociation", mlirtv.IntsListAttr{Groups: [][]int64{{0, 1}}})
	exp := fn.Body.AddOp("linalg.expand_shape", []*mlirtv.Value{col.Results[0]}, t23).
		WithAttr("reassociation", mlirtv.IntsListAttr{Groups: [][]int64{{0, 1}}})

	st := mustEncode(t, fn)
	if diff := cmp.Diff(idxs(6), st.Regs.GetTensor(col.Results[0]).Dims()); diff != "" {
		t.Fatal(diff)
	}
	if diff := cmp.Diff(idxs(2, 3), st.Regs.GetTensor(exp.Results[0]).Dims()); diff != "" {
		t.Fatal(diff)
	}
	if !st.WellDefinedness().(*mlirtv.BoolConstExpr).Value {
		t.Fatalf("unexpected well-definedness: %s", st.WellDefinedness())
	}
}

func TestEncodeMatmulOp(t *testing.T) {
	t23 := mlirtv.TensorType{Elem: tyF32, Shape: []int64{2, 3}}
	t34 := mlirtv.TensorType{Elem: tyF32, Shape: []int64{3, 4}}
	t24 := mlirtv.TensorType{Elem: tyF32, Shape: []int64{2, 4}}
	fn := mlirtv.NewFunction("f", t23, t34)
	init := fn.Body.AddOp("linalg.init_tensor", nil, t24)
	mm := fn.Body.AddOp("linalg.matmul",
		[]*mlirtv.Value{fn.Args[0], fn.Args[1], init.Results[0]}, t24)

	st := mustEncode(t, fn)
	if diff := cmp.Diff(idxs(2, 4), st.Regs.GetTensor(mm.Results[0]).Dims()); diff != "" {
		t.Fatal(diff)
	}
}

func TestEncodeDotOp(t *testing.T) {
	t4 := mlirtv.TensorType{Elem: tyF32, Shape: []int64{4}}
	t1 := mlirtv.TensorType{Elem: tyF32, Shape: []int64{1}}
	fn := mlirtv.NewFunction("f", t4, t4)
	init := fn.Body.AddOp("linalg.init_tensor", nil, t1)
	dot := fn.Body.AddOp("linalg.dot",
		[]*mlirtv.Value{fn.Args[0], fn.Args[1], init.Results[0]}, t1)

	st := mustEncode(t, fn)
	res := st.Regs.GetTensor(dot.Results[0])
	if diff := cmp.Diff(idxs(1), res.Dims()); diff != "" {
		t.Fatal(diff)
	}
	elem, _ := res.Get(idxs(0))
	if s := elem.String(); !strings.Contains(s, "fp32.sum") {
		t.Fatalf("unexpected element: %s", s)
	}
}

func TestEncodeAllocLoadStore(t *testing.T) {
	mr22 := mlirtv.MemRefType{Elem: tyF32, Shape: []int64{2, 2}}
	fn := mlirtv.NewFunction("f", tyF32)
	b := fn.Body
	alloc := b.AddOp("memref.alloc", nil, mr22)
	i0 := constIndex(b, 0)
	i1 := constIndex(b, 1)
	b.AddOp("memref.store", []*mlirtv.Value{fn.Args[0], alloc.Results[0], i0, i1})
	load := b.AddOp("memref.load", []*mlirtv.Value{alloc.Results[0], i0, i1}, tyF32)
	b.AddOp("func.return", []*mlirtv.Value{load.Results[0]})

	st := mustEncode(t, fn)
	loaded := st.Regs.GetFloat(load.Results[0])
	if s := loaded.E.String(); s != "f.arg0" {
		t.Fatalf("unexpected value: %s", s)
	}
	if !st.WellDefinedness().(*mlirtv.BoolConstExpr).Value {
		t.Fatalf("unexpected well-definedness: %s", st.WellDefinedness())
	}
	if len(st.RetValues) != 1 {
		t.Fatalf("unexpected return count: %d", len(st.RetValues))
	}
}

func TestEncodeSubViewOp(t *testing.T) {
	mr44 := mlirtv.MemRefType{Elem: tyF32, Shape: []int64{4, 4}}
	mr22 := mlirtv.MemRefType{Elem: tyF32, Shape: []int64{2, 2}}
	fn := mlirtv.NewFunction("f", mr44)
	sub := fn.Body.AddOp("memref.subview", []*mlirtv.Value{fn.Args[0]}, mr22).
		WithAttr("static_offsets", mlirtv.IntsAttr{Values: []int64{1, 1}}).
		WithAttr("static_sizes", mlirtv.IntsAttr{Values: []int64{2, 2}}).
		WithAttr("static_strides", mlirtv.IntsAttr{Values: []int64{1, 1}})

	st := mustEncode(t, fn)
	res := st.Regs.GetMemRef(sub.Results[0])
	if diff := cmp.Diff(idxs(2, 2), res.Dims()); diff != "" {
		t.Fatal(diff)
	}
	subElem, _ := res.Get(idxs(0, 0))
	srcElem, _ := st.Regs.GetMemRef(fn.Args[0]).Get(idxs(1, 1))
	if subElem.String() != srcElem.String() {
		t.Fatalf("unexpected element: %s vs %s", subElem, srcElem)
	}
}

func TestEncodeExtFTruncF(t *testing.T) {
	t.Run("ExtF", func(t *testing.T) {
		fn := mlirtv.NewFunction("f", tyF32)
		ext := fn.Body.AddOp("arith.extf", []*mlirtv.Value{fn.Args[0]}, mlirtv.FloatType{Prec: mlirtv.F64})
		st := mustEncode(t, fn)
		res := st.Regs.GetFloat(ext.Results[0])
		if res.Prec != mlirtv.F64 {
			t.Fatalf("unexpected precision: %v", res.Prec)
		}
		if s := res.E.String(); s != "(fp32.extend f.arg0)" {
			t.Fatalf("unexpected expr: %s", s)
		}
	})
	t.Run("TruncFBadDirection", func(t *testing.T) {
		fn := mlirtv.NewFunction("f", tyF32)
		fn.Body.AddOp("arith.truncf", []*mlirtv.Value{fn.Args[0]}, mlirtv.FloatType{Prec: mlirtv.F64})
		st, err := mlirtv.NewState(fn)
		if err != nil {
			t.Fatal(err)
		}
		err = mlirtv.Encode(st, fn, false)
		if _, ok := mlirtv.AsUnsupported(err); !ok {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestEncodeIndexCastOp(t *testing.T) {
	t.Run("Narrow", func(t *testing.T) {
		fn := mlirtv.NewFunction("f", mlirtv.IntType{Width: 64})
		cast := fn.Body.AddOp("arith.index_cast", []*mlirtv.Value{fn.Args[0]}, tyI32)
		st := mustEncode(t, fn)
		if s := st.Regs.GetInteger(cast.Results[0]).E.String(); s != "(extract f.arg0 0 32)" {
			t.Fatalf("unexpected expr: %s", s)
		}
	})
	t.Run("Widen", func(t *testing.T) {
		fn := mlirtv.NewFunction("f", mlirtv.IntType{Width: 8})
		cast := fn.Body.AddOp("arith.index_cast", []*mlirtv.Value{fn.Args[0]}, mlirtv.IndexType{})
		st := mustEncode(t, fn)
		if s := st.Regs.GetIndex(cast.Results[0]).E.String(); s != "(sext f.arg0 32)" {
			t.Fatalf("unexpected expr: %s", s)
		}
	})
}

func TestEncodeCmpF(t *testing.T) {
	i1 := mlirtv.IntType{Width: 1}
	fn := mlirtv.NewFunction("f", tyF32, tyF32)
	cmpOp := fn.Body.AddOp("arith.cmpf", []*mlirtv.Value{fn.Args[0], fn.Args[1]}, i1).
		WithAttr("predicate", mlirtv.StringAttr{Value: "olt"})

	st := mustEncode(t, fn)
	e := st.Regs.GetInteger(cmpOp.Results[0]).E
	if s := e.String(); s != "(fp32.fult f.arg0 f.arg1)" {
		t.Fatalf("unexpected expr: %s", s)
	}
}

func TestEncodeAffineApplyOp(t *testing.T) {
	fn := mlirtv.NewFunction("f")
	b := fn.Body
	c5 := constIndex(b, 5)
	c7 := constIndex(b, 7)
	app := b.AddOp("affine.apply", []*mlirtv.Value{c5, c7}, mlirtv.IndexType{}).
		WithAttr("map", mlirtv.AffineMapsAttr{Maps: []mlirtv.AffineMap{{
			NumDims: 2,
			Results: []mlirtv.AffineExpr{mlirtv.AffineBinaryExpr{
				Kind: mlirtv.AffineAdd,
				LHS:  mlirtv.AffineDimExpr{Pos: 0},
				RHS:  mlirtv.AffineDimExpr{Pos: 1},
			}},
		}}})

	st := mustEncode(t, fn)
	if e := st.Regs.GetIndex(app.Results[0]).E; e != idx(12) {
		t.Fatalf("unexpected expr: %s", e)
	}
}

func TestEncodeShapeOfOp(t *testing.T) {
	t23 := mlirtv.TensorType{Elem: tyF32, Shape: []int64{2, 3}}
	shapeTy := mlirtv.TensorType{Elem: mlirtv.IndexType{}, Shape: []int64{2}}
	fn := mlirtv.NewFunction("f", t23)
	op := fn.Body.AddOp("shape.shape_of", []*mlirtv.Value{fn.Args[0]}, shapeTy)

	st := mustEncode(t, fn)
	res := st.Regs.GetTensor(op.Results[0])
	if elem, _ := res.Get(idxs(0)); elem != idx(2) {
		t.Fatalf("unexpected element: %s", elem)
	}
	if elem, _ := res.Get(idxs(1)); elem != idx(3) {
		t.Fatalf("unexpected element: %s", elem)
	}
}

func TestEncodeTosaOps(t *testing.T) {
	t.Run("ConcatDims", func(t *testing.T) {
		t22 := mlirtv.TensorType{Elem: tyI32, Shape: []int64{2, 2}}
		t32 := mlirtv.TensorType{Elem: tyI32, Shape: []int64{3, 2}}
		t52 := mlirtv.TensorType{Elem: tyI32, Shape: []int64{5, 2}}
		fn := mlirtv.NewFunction("f", t22, t32)
		cat := fn.Body.AddOp("tosa.concat", []*mlirtv.Value{fn.Args[0], fn.Args[1]}, t52).
			WithAttr("axis", mlirtv.IntAttr{Value: 0, Type: tyI32})
		st := mustEncode(t, fn)
		if diff := cmp.Diff(idxs(5, 2), st.Regs.GetTensor(cat.Results[0]).Dims()); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("ConstReverse", func(t *testing.T) {
		t3 := mlirtv.TensorType{Elem: tyI32, Shape: []int64{3}}
		fn := mlirtv.NewFunction("f")
		c := fn.Body.AddOp("tosa.const", nil, t3).WithAttr("value", denseI32(1, 2, 3))
		rev := fn.Body.AddOp("tosa.reverse", []*mlirtv.Value{c.Results[0]}, t3).
			WithAttr("axis", mlirtv.IntAttr{Value: 0, Type: tyI32})
		st := mustEncode(t, fn)
		res := st.Regs.GetTensor(rev.Results[0])
		if elem, _ := res.Get(idxs(0)); elem != i32Const(3) {
			t.Fatalf("unexpected element: %s", elem)
		}
	})
	t.Run("BitwiseAnd", func(t *testing.T) {
		t2 := mlirtv.TensorType{Elem: tyI32, Shape: []int64{2}}
		fn := mlirtv.NewFunction("f")
		a := fn.Body.AddOp("tosa.const", nil, t2).WithAttr("value", denseI32(0b1100, 0b1010))
		bb := fn.Body.AddOp("tosa.const", nil, t2).WithAttr("value", denseI32(0b1010, 0b1010))
		and := fn.Body.AddOp("tosa.bitwise_and", []*mlirtv.Value{a.Results[0], bb.Results[0]}, t2)
		st := mustEncode(t, fn)
		res := st.Regs.GetTensor(and.Results[0])
		if elem, _ := res.Get(idxs(0)); elem != i32Const(0b1000) {
			t.Fatalf("unexpected element: %s", elem)
		}
	})
	t.Run("Tile", func(t *testing.T) {
		t2 := mlirtv.TensorType{Elem: tyI32, Shape: []int64{2}}
		t4 := mlirtv.TensorType{Elem: tyI32, Shape: []int64{4}}
		fn := mlirtv.NewFunction("f", t2)
		tile := fn.Body.AddOp("tosa.tile", []*mlirtv.Value{fn.Args[0]}, t4).
			WithAttr("multiples", mlirtv.IntsAttr{Values: []int64{2}})
		st := mustEncode(t, fn)
		if diff := cmp.Diff(idxs(4), st.Regs.GetTensor(tile.Results[0]).Dims()); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("Reshape", func(t *testing.T) {
		t23 := mlirtv.TensorType{Elem: tyI32, Shape: []int64{2, 3}}
		t6 := mlirtv.TensorType{Elem: tyI32, Shape: []int64{6}}
		fn := mlirtv.NewFunction("f", t23)
		rs := fn.Body.AddOp("tosa.reshape", []*mlirtv.Value{fn.Args[0]}, t6).
			WithAttr("new_shape", mlirtv.IntsAttr{Values: []int64{6}})
		st := mustEncode(t, fn)
		if diff := cmp.Diff(idxs(6), st.Regs.GetTensor(rs.Results[0]).Dims()); diff != "" {
			t.Fatal(diff)
		}
	})
}

func TestEncodeTensorDimOp(t *testing.T) {
	t23 := mlirtv.TensorType{Elem: tyF32, Shape: []int64{2, 3}}
	fn := mlirtv.NewFunction("f", t23)
	b := fn.Body
	i1 := constIndex(b, 1)
	dim := b.AddOp("tensor.dim", []*mlirtv.Value{fn.Args[0], i1}, mlirtv.IndexType{})

	st := mustEncode(t, fn)
	if e := st.Regs.GetIndex(dim.Results[0]).E; e != idx(3) {
		t.Fatalf("unexpected expr: %s", e)
	}
	if !st.WellDefinedness().(*mlirtv.BoolConstExpr).Value {
		t.Fatalf("unexpected well-definedness: %s", st.WellDefinedness())
	}
}

func TestEncodeFillOp(t *testing.T) {
	t23 := mlirtv.TensorType{Elem: tyF32, Shape: []int64{2, 3}}
	fn := mlirtv.NewFunction("f", tyF32)
	init := fn.Body.AddOp("linalg.init_tensor", nil, t23)
	fill := fn.Body.AddOp("linalg.fill", []*mlirtv.Value{fn.Args[0], init.Results[0]}, t23).
		WithNumInputs(1)

	st := mustEncode(t, fn)
	res := st.Regs.GetTensor(fill.Results[0])
	elem, _ := res.Get(idxs(1, 2))
	if s := elem.String(); s != "f.arg0" {
		t.Fatalf("unexpected element: %s", s)
	}
}

func TestEncodeConvOp(t *testing.T) {
	tIn := mlirtv.TensorType{Elem: tyF32, Shape: []int64{1, 2, 5, 5}}
	tFlt := mlirtv.TensorType{Elem: tyF32, Shape: []int64{4, 2, 3, 3}}
	tOut := mlirtv.TensorType{Elem: tyF32, Shape: []int64{1, 4, 3, 3}}
	fn := mlirtv.NewFunction("f", tIn, tFlt)
	init := fn.Body.AddOp("linalg.init_tensor", nil, tOut)
	conv := fn.Body.AddOp("linalg.conv_2d_nchw_fchw",
		[]*mlirtv.Value{fn.Args[0], fn.Args[1], init.Results[0]}, tOut).
		WithNumInputs(2).
		WithAttr("strides", mlirtv.IntsAttr{Values: []int64{1, 1}}).
		WithAttr("dilations", mlirtv.IntsAttr{Values: []int64{1, 1}})

	st := mustEncode(t, fn)
	if diff := cmp.Diff(idxs(1, 4, 3, 3), st.Regs.GetTensor(conv.Results[0]).Dims()); diff != "" {
		t.Fatal(diff)
	}
}

func TestEncodeUnknownOp(t *testing.T) {
	fn := mlirtv.NewFunction("f")
	fn.Body.AddOp("foo.bar", nil)

	st, err := mlirtv.NewState(fn)
	if err != nil {
		t.Fatal(err)
	}
	err = mlirtv.Encode(st, fn, false)
	ue, ok := mlirtv.AsUnsupported(err)
	if !ok {
		t.Fatalf("unexpected error: %v", err)
	}
	if ue.Op == nil || ue.Op.Name != "foo.bar" {
		t.Fatalf("unexpected op: %v", ue.Op)
	}
}

func TestEncodeTensorCastOp(t *testing.T) {
	tDyn := mlirtv.TensorType{Elem: tyF32, Shape: []int64{mlirtv.DynamicSize}}
	t4 := mlirtv.TensorType{Elem: tyF32, Shape: []int64{4}}
	fn := mlirtv.NewFunction("f", tDyn)
	cast := fn.Body.AddOp("tensor.cast", []*mlirtv.Value{fn.Args[0]}, t4)

	st := mustEncode(t, fn)
	res := st.Regs.GetTensor(cast.Results[0])
	if res.Rank() != 1 {
		t.Fatalf("unexpected rank: %d", res.Rank())
	}
	// The dynamic dim must equal the cast target size.
	if s := st.WellDefinedness().String(); !strings.Contains(s, "(eq f.arg0.dim0 (const 4 32))") {
		t.Fatalf("unexpected well-definedness: %s", s)
	}
}
