package flowgraph

import (
	"testing"

	"github.com/tangzhangming/novac/internal/ir"
)

// ============================================================================
// 控制流图构建测试
// ============================================================================

// checkMirror 校验图的双向一致性：每条后继边都有对应的前驱边，反之亦然
func checkMirror(t *testing.T, fn *ir.Function, cfg *ControlFlowGraph) {
	t.Helper()
	for _, b := range fn.Layout.Blocks() {
		for _, succ := range cfg.Successors(b) {
			found := false
			for _, pred := range cfg.Predecessors(succ) {
				if pred.Block == b {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("edge %s -> %s has no mirror predecessor", b, succ)
			}
		}
		for _, pred := range cfg.Predecessors(b) {
			found := false
			for _, succ := range cfg.Successors(pred.Block) {
				if succ == b {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("predecessor %s of %s has no mirror successor", pred.Block, b)
			}
		}
	}
}

func TestCFG_EmptyBlocks(t *testing.T) {
	fn := ir.NewFunction("empty")
	b0 := fn.AddBlock()
	b1 := fn.AddBlock()
	b2 := fn.AddBlock()

	cfg := New()
	cfg.Compute(fn)

	if !cfg.IsValid() {
		t.Fatal("cfg should be valid after Compute")
	}
	for _, b := range []ir.Block{b0, b1, b2} {
		if n := len(cfg.Successors(b)); n != 0 {
			t.Errorf("%s: expected 0 successors, got %d", b, n)
		}
		if n := len(cfg.Predecessors(b)); n != 0 {
			t.Errorf("%s: expected 0 predecessors, got %d", b, n)
		}
	}
}

func TestCFG_Diamond(t *testing.T) {
	// block0: brnz v0, block2; jump block1
	// block1: jump block2
	// block2: return
	fn := ir.NewFunction("diamond")
	b := ir.NewBuilder(fn)

	b0 := b.Block()
	b1 := fn.AddBlock()
	b2 := fn.AddBlock()

	cond := b.BlockParam(b0)
	brnz := b.Brnz(cond, b2)
	jump0 := b.Jump(b1)

	b.SwitchTo(b1)
	jump1 := b.Jump(b2)

	b.SwitchTo(b2)
	b.Return()

	cfg := New()
	cfg.Compute(fn)

	succ0 := cfg.Successors(b0)
	if len(succ0) != 2 || succ0[0] != b1 || succ0[1] != b2 {
		t.Fatalf("block0 successors: expected [%s %s], got %v", b1, b2, succ0)
	}

	preds2 := cfg.Predecessors(b2)
	if len(preds2) != 2 {
		t.Fatalf("block2: expected 2 predecessors, got %d", len(preds2))
	}
	// 前驱边按分支指令区分：同一来源块的两条不同分支各占一条边
	want := map[ir.Inst]ir.Block{brnz: b0, jump1: b1}
	for _, p := range preds2 {
		if blk, ok := want[p.Inst]; !ok || blk != p.Block {
			t.Errorf("unexpected predecessor edge (%s, %s)", p.Block, p.Inst)
		}
		delete(want, p.Inst)
	}
	if len(want) != 0 {
		t.Errorf("missing predecessor edges: %v", want)
	}

	if preds1 := cfg.Predecessors(b1); len(preds1) != 1 || preds1[0].Inst != jump0 {
		t.Errorf("block1: expected single predecessor via %s, got %v", jump0, preds1)
	}

	checkMirror(t, fn, cfg)
}

func TestCFG_SelfLoopAndFallthrough(t *testing.T) {
	// block0: brnz v0, block2; jump block1
	// block1: brnz v0, block1; jump block2
	// block2: return
	fn := ir.NewFunction("selfloop")
	b := ir.NewBuilder(fn)

	b0 := b.Block()
	b1 := fn.AddBlock()
	b2 := fn.AddBlock()

	cond := b.BlockParam(b0)
	brnz0 := b.Brnz(cond, b2)
	jump0 := b.Jump(b1)

	b.SwitchTo(b1)
	brnz1 := b.Brnz(cond, b1) // 自环
	jump1 := b.Jump(b2)

	b.SwitchTo(b2)
	b.Return()

	cfg := New()
	cfg.Compute(fn)

	// 后继按块索引升序，自环不去重掉
	succ0 := cfg.Successors(b0)
	if len(succ0) != 2 || succ0[0] != b1 || succ0[1] != b2 {
		t.Fatalf("block0 successors: expected [%s %s], got %v", b1, b2, succ0)
	}
	succ1 := cfg.Successors(b1)
	if len(succ1) != 2 || succ1[0] != b1 || succ1[1] != b2 {
		t.Fatalf("block1 successors: expected [%s %s], got %v", b1, b2, succ1)
	}
	if n := len(cfg.Successors(b2)); n != 0 {
		t.Fatalf("block2: expected 0 successors, got %d", n)
	}

	// block1 的两条前驱边：block0 的 jump 与自己的 brnz
	want1 := map[ir.Inst]ir.Block{jump0: b0, brnz1: b1}
	preds1 := cfg.Predecessors(b1)
	if len(preds1) != 2 {
		t.Fatalf("block1: expected 2 predecessors, got %d", len(preds1))
	}
	for _, p := range preds1 {
		if blk, ok := want1[p.Inst]; !ok || blk != p.Block {
			t.Errorf("unexpected predecessor edge (%s, %s) of %s", p.Block, p.Inst, b1)
		}
		delete(want1, p.Inst)
	}
	if len(want1) != 0 {
		t.Errorf("missing predecessor edges of %s: %v", b1, want1)
	}

	// block2 的两条前驱边：block0 的 brnz 与 block1 的 jump
	want2 := map[ir.Inst]ir.Block{brnz0: b0, jump1: b1}
	preds2 := cfg.Predecessors(b2)
	if len(preds2) != 2 {
		t.Fatalf("block2: expected 2 predecessors, got %d", len(preds2))
	}
	for _, p := range preds2 {
		if blk, ok := want2[p.Inst]; !ok || blk != p.Block {
			t.Errorf("unexpected predecessor edge (%s, %s) of %s", p.Block, p.Inst, b2)
		}
		delete(want2, p.Inst)
	}
	if len(want2) != 0 {
		t.Errorf("missing predecessor edges of %s: %v", b2, want2)
	}

	checkMirror(t, fn, cfg)
}

func TestCFG_BrTable(t *testing.T) {
	fn := ir.NewFunction("table")
	b := ir.NewBuilder(fn)

	b0 := b.Block()
	b1 := fn.AddBlock()
	b2 := fn.AddBlock()

	idx := b.BlockParam(b0)
	// 表项含重复目标，边应去重
	jt := fn.MakeJumpTable([]ir.Block{b2, b1, b2})
	br := b.BrTable(idx, jt, b1)

	b.SwitchTo(b1)
	b.Return()
	b.SwitchTo(b2)
	b.Return()

	cfg := New()
	cfg.Compute(fn)

	succ := cfg.Successors(b0)
	if len(succ) != 2 || succ[0] != b1 || succ[1] != b2 {
		t.Fatalf("expected successors [%s %s], got %v", b1, b2, succ)
	}
	// 同一条 br_table 到同一目标只算一条前驱边
	if preds := cfg.Predecessors(b2); len(preds) != 1 || preds[0].Inst != br {
		t.Errorf("block2: expected single predecessor via %s, got %v", br, preds)
	}
	checkMirror(t, fn, cfg)
}

func TestCFG_Recompute(t *testing.T) {
	// block0 原本跳转 block1，改写为跳转 block2 后做局部重算
	fn := ir.NewFunction("edit")
	b := ir.NewBuilder(fn)

	b0 := b.Block()
	b1 := fn.AddBlock()
	b2 := fn.AddBlock()

	jump := b.Jump(b1)
	b.SwitchTo(b1)
	b.Return()
	b.SwitchTo(b2)
	b.Return()

	cfg := New()
	cfg.Compute(fn)

	fn.Dfg.InstData(jump).Dest = b2
	cfg.Recompute(fn, b0)

	if succ := cfg.Successors(b0); len(succ) != 1 || succ[0] != b2 {
		t.Fatalf("after recompute: expected successors [%s], got %v", b2, succ)
	}
	if preds := cfg.Predecessors(b1); len(preds) != 0 {
		t.Errorf("block1: expected stale edge removed, got %v", preds)
	}
	if preds := cfg.Predecessors(b2); len(preds) != 1 || preds[0].Block != b0 {
		t.Errorf("block2: expected new edge from %s, got %v", b0, preds)
	}
	checkMirror(t, fn, cfg)
}

func TestCFG_RecomputeNewBlock(t *testing.T) {
	// Compute 之后新增块并指向它，Recompute 需要扩容节点表
	fn := ir.NewFunction("grow")
	b := ir.NewBuilder(fn)

	b0 := b.Block()
	jump := b.Jump(b0) // 占位，稍后改写
	cfg := New()
	cfg.Compute(fn)

	b1 := fn.AddBlock()
	b.SwitchTo(b1)
	b.Return()
	fn.Dfg.InstData(jump).Dest = b1
	cfg.Recompute(fn, b0)

	if preds := cfg.Predecessors(b1); len(preds) != 1 || preds[0].Block != b0 {
		t.Fatalf("new block: expected edge from %s, got %v", b0, preds)
	}
}

func TestCFG_InvalidAccessPanics(t *testing.T) {
	fn := ir.NewFunction("panic")
	b0 := fn.AddBlock()

	cfg := New()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on querying an uncomputed graph")
		}
	}()
	cfg.Successors(b0)
}

func BenchmarkCompute(b *testing.B) {
	// 长链 + 回边，中等规模的图
	fn := ir.NewFunction("bench")
	bd := ir.NewBuilder(fn)

	const n = 200
	blocks := make([]ir.Block, n)
	for i := range blocks {
		blocks[i] = fn.AddBlock()
	}
	for i := 0; i < n-1; i++ {
		bd.SwitchTo(blocks[i])
		if i > 0 && i%10 == 0 {
			cond := bd.BlockParam(blocks[i])
			bd.Brnz(cond, blocks[i-10])
		}
		bd.Jump(blocks[i+1])
	}
	bd.SwitchTo(blocks[n-1])
	bd.Return()

	cfg := New()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cfg.Compute(fn)
	}
}
