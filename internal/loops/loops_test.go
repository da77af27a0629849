package loops

import (
	"testing"

	"github.com/tangzhangming/novac/internal/domtree"
	"github.com/tangzhangming/novac/internal/flowgraph"
	"github.com/tangzhangming/novac/internal/ir"
)

// ============================================================================
// 循环分析测试
// ============================================================================

func analyze(fn *ir.Function) *LoopAnalysis {
	cfg := flowgraph.New()
	cfg.Compute(fn)
	dt := domtree.New()
	dt.Compute(fn, cfg)
	la := New()
	la.Compute(fn, cfg, dt)
	return la
}

func TestLoops_Acyclic(t *testing.T) {
	// 菱形图：没有回边，没有循环
	fn := ir.NewFunction("acyclic")
	b := ir.NewBuilder(fn)

	b0 := b.Block()
	b1 := fn.AddBlock()
	b2 := fn.AddBlock()
	b3 := fn.AddBlock()

	cond := b.BlockParam(b0)
	b.Brnz(cond, b2)
	b.Jump(b1)
	b.SwitchTo(b1)
	b.Jump(b3)
	b.SwitchTo(b2)
	b.Jump(b3)
	b.SwitchTo(b3)
	b.Return()

	la := analyze(fn)
	if la.NumLoops() != 0 {
		t.Fatalf("expected 0 loops, got %d", la.NumLoops())
	}
	for _, blk := range []ir.Block{b0, b1, b2, b3} {
		if _, ok := la.InnermostLoop(blk); ok {
			t.Errorf("%s should not belong to any loop", blk)
		}
	}
}

func TestLoops_Single(t *testing.T) {
	// b0 -> b1 <-> b2, b1 -> b3
	fn := ir.NewFunction("single")
	b := ir.NewBuilder(fn)

	b0 := b.Block()
	b1 := fn.AddBlock()
	b2 := fn.AddBlock()
	b3 := fn.AddBlock()

	b.Jump(b1)
	b.SwitchTo(b1)
	cond := b.BlockParam(b1)
	b.Brnz(cond, b3)
	b.Jump(b2)
	b.SwitchTo(b2)
	b.Jump(b1) // 回边
	b.SwitchTo(b3)
	b.Return()

	la := analyze(fn)
	if la.NumLoops() != 1 {
		t.Fatalf("expected 1 loop, got %d", la.NumLoops())
	}
	lp := la.Loops()[0]
	if la.Header(lp) != b1 {
		t.Errorf("loop header = %s, want %s", la.Header(lp), b1)
	}
	if _, ok := la.Parent(lp); ok {
		t.Error("top-level loop should have no parent")
	}

	if !la.IsInLoop(b1, lp) || !la.IsInLoop(b2, lp) {
		t.Error("header and latch should be in the loop")
	}
	if la.IsInLoop(b0, lp) || la.IsInLoop(b3, lp) {
		t.Error("preheader and exit should not be in the loop")
	}
}

func TestLoops_Nested(t *testing.T) {
	// b0 -> b1(外层头) -> b2(内层头) -> b2 回边, b2 -> b1 回边, b2 -> b3
	fn := ir.NewFunction("nested")
	b := ir.NewBuilder(fn)

	b0 := b.Block()
	b1 := fn.AddBlock()
	b2 := fn.AddBlock()
	b3 := fn.AddBlock()

	b.Jump(b1)
	b.SwitchTo(b1)
	b.Jump(b2)
	b.SwitchTo(b2)
	cond := b.BlockParam(b2)
	b.Brnz(cond, b2) // 内层回边
	b.Brnz(cond, b1) // 外层回边
	b.Jump(b3)
	b.SwitchTo(b3)
	b.Return()

	la := analyze(fn)
	if la.NumLoops() != 2 {
		t.Fatalf("expected 2 loops, got %d", la.NumLoops())
	}

	var outer, inner Loop
	for _, lp := range la.Loops() {
		switch la.Header(lp) {
		case b1:
			outer = lp
		case b2:
			inner = lp
		default:
			t.Fatalf("unexpected loop header %s", la.Header(lp))
		}
	}

	if p, ok := la.Parent(inner); !ok || p != outer {
		t.Errorf("inner loop parent = %v, want %s", p, outer)
	}
	if _, ok := la.Parent(outer); ok {
		t.Error("outer loop should have no parent")
	}
	if !la.IsChildLoop(inner, outer) {
		t.Error("inner should be a child of outer")
	}
	if la.IsChildLoop(outer, inner) {
		t.Error("child relation must be antisymmetric")
	}
	// 自反性
	if !la.IsChildLoop(outer, outer) || !la.IsChildLoop(inner, inner) {
		t.Error("child relation should be reflexive")
	}

	// 内层头的最内层循环是内层；外层头只属于外层
	if lp, ok := la.InnermostLoop(b2); !ok || lp != inner {
		t.Errorf("innermost loop of %s should be the inner loop", b2)
	}
	if lp, ok := la.InnermostLoop(b1); !ok || lp != outer {
		t.Errorf("innermost loop of %s should be the outer loop", b1)
	}

	// 内层块同时属于两层
	if !la.IsInLoop(b2, inner) || !la.IsInLoop(b2, outer) {
		t.Error("inner header should be in both loops")
	}
	if la.IsInLoop(b1, inner) {
		t.Error("outer header should not be in the inner loop")
	}
	if la.IsInLoop(b0, outer) || la.IsInLoop(b3, outer) {
		t.Error("blocks outside should not be in any loop")
	}
}

func TestLoops_SharedLatch(t *testing.T) {
	// 同一个块既是内层 latch 又产生到外层的回边（双回边，首条生效）
	fn := ir.NewFunction("latch")
	b := ir.NewBuilder(fn)

	b.Block()
	b1 := fn.AddBlock()
	b2 := fn.AddBlock()

	b.Jump(b1)
	b.SwitchTo(b1)
	cond := b.BlockParam(b1)
	b.Brnz(cond, b1) // 自环回边
	b.Jump(b2)
	b.SwitchTo(b2)
	b.Return()

	la := analyze(fn)
	if la.NumLoops() != 1 {
		t.Fatalf("expected 1 loop, got %d", la.NumLoops())
	}
	lp := la.Loops()[0]
	if la.Header(lp) != b1 {
		t.Errorf("header = %s, want %s", la.Header(lp), b1)
	}
	if !la.IsInLoop(b1, lp) {
		t.Error("self-loop header should be its own loop body")
	}
}
