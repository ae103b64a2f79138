package mlirtv_test

import (
	"testing"

	mlirtv "github.com/MerHS/mlir-tv"
)

func TestRegFile(t *testing.T) {
	t.Run("AddFind", func(t *testing.T) {
		regs := mlirtv.NewRegFile()
		v := mlirtv.NewIRValue("x", mlirtv.IndexType{})
		regs.Add(v, mlirtv.NewIndex(3))
		if sv, ok := regs.Find(v); !ok {
			t.Fatal("expected a binding")
		} else if sv.(mlirtv.Index).E != idx(3) {
			t.Fatalf("unexpected value: %v", sv)
		}
	})
	t.Run("WriteOnce", func(t *testing.T) {
		regs := mlirtv.NewRegFile()
		v := mlirtv.NewIRValue("x", mlirtv.IndexType{})
		regs.Add(v, mlirtv.NewIndex(3))
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic")
			}
		}()
		regs.Add(v, mlirtv.NewIndex(4))
	})
	t.Run("MissingLookup", func(t *testing.T) {
		regs := mlirtv.NewRegFile()
		v := mlirtv.NewIRValue("x", mlirtv.IndexType{})
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic")
			}
		}()
		regs.FindOrCrash(v)
	})
}

func TestNewState(t *testing.T) {
	fn := mlirtv.NewFunction("f",
		mlirtv.TensorType{Elem: tyF32, Shape: []int64{2, mlirtv.DynamicSize}},
		mlirtv.MemRefType{Elem: tyF32, Shape: []int64{4}},
		mlirtv.IndexType{},
		mlirtv.IntType{Width: 8},
		tyF32,
	)
	st, err := mlirtv.NewState(fn)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("Tensor", func(t *testing.T) {
		tt := st.Regs.GetTensor(fn.Args[0])
		if tt.Rank() != 2 {
			t.Fatalf("unexpected rank: %d", tt.Rank())
		}
		if d := tt.Dim(0); d != idx(2) {
			t.Fatalf("unexpected dim: %s", d)
		}
		if _, ok := tt.Dim(1).(*mlirtv.VarExpr); !ok {
			t.Fatalf("unexpected dynamic dim: %s", tt.Dim(1))
		}
	})
	t.Run("MemRef", func(t *testing.T) {
		mr := st.Regs.GetMemRef(fn.Args[1])
		if mr.Rank() != 1 {
			t.Fatalf("unexpected rank: %d", mr.Rank())
		}
		if st.M.NumBlocks() != 1 {
			t.Fatalf("unexpected block count: %d", st.M.NumBlocks())
		}
	})
	t.Run("Scalars", func(t *testing.T) {
		if e := st.Regs.GetIndex(fn.Args[2]).E; !e.Sort().Equal(mlirtv.IndexSort()) {
			t.Fatalf("unexpected sort: %s", e.Sort())
		}
		if e := st.Regs.GetInteger(fn.Args[3]).E; !e.Sort().Equal(mlirtv.BitVecSort(8)) {
			t.Fatalf("unexpected sort: %s", e.Sort())
		}
		if f := st.Regs.GetFloat(fn.Args[4]); f.Prec != mlirtv.F32 {
			t.Fatalf("unexpected precision: %v", f.Prec)
		}
	})
}

func TestStateWellDefined(t *testing.T) {
	st, err := mlirtv.NewState(nil)
	if err != nil {
		t.Fatal(err)
	}
	op1 := &mlirtv.Operation{Name: "op1"}
	op2 := &mlirtv.Operation{Name: "op2"}
	p := mlirtv.NewVarExpr("p", mlirtv.BoolSort())
	q := mlirtv.NewVarExpr("q", mlirtv.BoolSort())

	st.WellDefined(op1, p)
	st.WellDefined(op2, q)

	if e := st.IsOpWellDefined(op1); e != mlirtv.Expr(p) {
		t.Fatalf("unexpected predicate: %s", e)
	}
	if s := st.WellDefinedness().String(); s != "(and p q)" {
		t.Fatalf("unexpected predicate: %s", s)
	}
}

func TestStateLoopScopes(t *testing.T) {
	st, err := mlirtv.NewState(nil)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("PushPop", func(t *testing.T) {
		scope := st.PushLoopScope(idxs(2, 3))
		if len(scope.IndVars) != 2 {
			t.Fatalf("unexpected ind var count: %d", len(scope.IndVars))
		}
		if st.CurLoopScope() != scope {
			t.Fatal("expected the pushed scope")
		}
		inner := st.PushLoopScope(idxs(5))
		if st.CurLoopScope() != inner {
			t.Fatal("expected the inner scope")
		}
		st.PopLoopScope()
		if st.CurLoopScope() != scope {
			t.Fatal("expected the outer scope")
		}
		st.PopLoopScope()
	})
	t.Run("Underflow", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic")
			}
		}()
		st.PopLoopScope()
	})
}

func TestStateForkIsolation(t *testing.T) {
	fn := mlirtv.NewFunction("f", mlirtv.IndexType{})
	st, err := mlirtv.NewState(fn)
	if err != nil {
		t.Fatal(err)
	}

	forked := st.Fork()
	v := mlirtv.NewIRValue("local", mlirtv.IndexType{})
	forked.Regs.Add(v, mlirtv.NewIndex(1))

	if _, ok := st.Regs.Find(v); ok {
		t.Fatal("fork must not leak bindings into the parent")
	}
	if _, ok := forked.Regs.Find(fn.Args[0]); !ok {
		t.Fatal("fork must inherit existing bindings")
	}
}
