package isa

import (
	"errors"
	"testing"

	"github.com/tangzhangming/novac/internal/ir"
)

// ============================================================================
// 目标描述测试
// ============================================================================

func TestX64_Constraints(t *testing.T) {
	target := NewX64()

	rc := target.Constraints(ir.OpIadd)
	if rc == nil {
		t.Fatal("iadd should have a recipe")
	}
	if len(rc.Args) != 2 || rc.Args[0].Kind != ConstraintReg || rc.Args[0].Class != ir.GPR {
		t.Errorf("iadd args should be GPR registers, got %+v", rc.Args)
	}
	if len(rc.Results) != 1 || rc.Results[0].Kind != ConstraintReg {
		t.Errorf("iadd result should be a register, got %+v", rc.Results)
	}

	// fill 从栈读入寄存器，spill 反之
	fill := target.Constraints(ir.OpFill)
	if fill.Args[0].Kind != ConstraintStack || fill.Results[0].Kind != ConstraintReg {
		t.Errorf("fill should read stack and write register, got %+v", fill)
	}
	spill := target.Constraints(ir.OpSpill)
	if spill.Results[0].Kind != ConstraintStack {
		t.Errorf("spill should write stack, got %+v", spill)
	}

	if target.Constraints(ir.OpNop) != nil {
		t.Error("nop should have no recipe")
	}
}

func TestX64_RegClasses(t *testing.T) {
	classes := NewX64().RegClasses()
	if len(classes) != 2 {
		t.Fatalf("expected 2 register classes, got %d", len(classes))
	}
	for _, rc := range classes {
		switch rc.Class {
		case ir.GPR:
			if rc.Count != X64NumGPR {
				t.Errorf("GPR count = %d, want %d", rc.Count, X64NumGPR)
			}
		case ir.FPR:
			if rc.Count != X64NumFPR {
				t.Errorf("FPR count = %d, want %d", rc.Count, X64NumFPR)
			}
		default:
			t.Errorf("unexpected register class %v", rc.Class)
		}
	}
}

func TestX64_EncodeError(t *testing.T) {
	fn := ir.NewFunction("enc")
	b := ir.NewBuilder(fn)
	b.Block()
	nop := b.Nop()

	if _, err := NewX64().Encode(fn, nop); !errors.Is(err, ErrNoEncoding) {
		t.Fatalf("expected ErrNoEncoding, got %v", err)
	}
}

func TestAssignEncodings(t *testing.T) {
	fn := ir.NewFunction("assign")
	b := ir.NewBuilder(fn)
	b.Block()
	v := b.Iconst()
	nop := b.Nop()
	b.Iadd(v, v)
	b.Return()

	AssignEncodings(fn, NewX64())

	for _, inst := range fn.Layout.BlockInsts(fn.Entry()) {
		op := fn.Dfg.InstData(inst).Op
		if inst == nop {
			if fn.IsEncoded(inst) {
				t.Error("nop should stay unencoded")
			}
			continue
		}
		if !fn.IsEncoded(inst) {
			t.Errorf("%s (%s) should be encoded", inst, op)
		}
	}
}
