package liveness

import (
	"testing"

	"github.com/tangzhangming/novac/internal/domtree"
	"github.com/tangzhangming/novac/internal/flowgraph"
	"github.com/tangzhangming/novac/internal/ir"
	"github.com/tangzhangming/novac/internal/isa"
)

// ============================================================================
// 活跃区间测试
// ============================================================================

// twoBlocks 构造跨块活跃场景：
//
//	block0(v0, v1): v2 = iadd v0, v1; jump block1
//	block1: v3 = iadd v2, v2; return v3
func twoBlocks() (*ir.Function, *flowgraph.ControlFlowGraph, []ir.Value, ir.Block, ir.Block) {
	fn := ir.NewFunction("two")
	fn.Sig = ir.Signature{
		Params: []ir.AbiParam{
			{Loc: ir.RegLoc(ir.GPR)},
			{Loc: ir.RegLoc(ir.GPR)},
		},
	}
	b := ir.NewBuilder(fn)

	b0 := b.Block()
	b1 := fn.AddBlock()

	v0 := b.BlockParam(b0)
	v1 := b.BlockParam(b0)
	v2 := b.Iadd(v0, v1)
	b.Jump(b1)

	b.SwitchTo(b1)
	v3 := b.Iadd(v2, v2)
	b.Return(v3)

	cfg := flowgraph.New()
	cfg.Compute(fn)
	return fn, cfg, []ir.Value{v0, v1, v2, v3}, b0, b1
}

func TestLiveness_Ranges(t *testing.T) {
	fn, cfg, vals, b0, b1 := twoBlocks()
	v0, v2, v3 := vals[0], vals[2], vals[3]

	lv := New()
	lv.Compute(fn, cfg, isa.NewX64())

	// v0 在 block0 内死于加法，不跨块
	lr0 := lv.Range(v0)
	if !lr0.IsLocal() {
		t.Error("v0 should be local to the entry block")
	}
	if lr0.LivesInto(b1) {
		t.Error("v0 should not live into block1")
	}

	// v2 跨过边进入 block1，在那里死于使用
	lr2 := lv.Range(v2)
	if lr2.IsLocal() {
		t.Error("v2 should be global")
	}
	if !lr2.LivesInto(b1) {
		t.Error("v2 should live into block1")
	}
	if end, live := lr2.EndIn(b0); !live || end != ir.InvalidInst {
		t.Errorf("v2 should be live-through out of block0, got end=%s live=%v", end, live)
	}
	if end, live := lr2.EndIn(b1); !live || end != fn.Layout.FirstInst(b1) {
		t.Errorf("v2 should end at its use in block1, got end=%s live=%v", end, live)
	}

	// v3 定义即最后一次使用前：终点是 return
	lr3 := lv.Range(v3)
	if !lr3.IsLocal() {
		t.Error("v3 should be local")
	}
	if end, live := lr3.EndIn(b1); !live || end != fn.Layout.LastInst(b1) {
		t.Errorf("v3 should end at the return, got end=%s live=%v", end, live)
	}
}

func TestLiveness_DeadValue(t *testing.T) {
	fn := ir.NewFunction("dead")
	b := ir.NewBuilder(fn)
	b.Block()
	v := b.Iconst() // 无人使用
	b.Return()

	cfg := flowgraph.New()
	cfg.Compute(fn)
	lv := New()
	lv.Compute(fn, cfg, isa.NewX64())

	if !lv.Range(v).IsDead() {
		t.Error("unused constant should have a dead range")
	}
}

func TestLiveness_EntryParamAffinity(t *testing.T) {
	// 入口参数的亲和性来自签名 ABI
	fn := ir.NewFunction("abi")
	fn.Sig = ir.Signature{
		Params: []ir.AbiParam{
			{Loc: ir.RegLoc(ir.FPR)},
			{Loc: ir.StackLoc()},
		},
	}
	b := ir.NewBuilder(fn)
	b0 := b.Block()
	p0 := b.BlockParam(b0)
	p1 := b.BlockParam(b0)
	b.Return(p0, p1)

	cfg := flowgraph.New()
	cfg.Compute(fn)
	lv := New()
	lv.Compute(fn, cfg, isa.NewX64())

	if aff := lv.Range(p0).Affinity; aff.Kind != AffinityReg || aff.Class != ir.FPR {
		t.Errorf("p0 affinity = %s, want FPR register", aff)
	}
	if !lv.Range(p1).Affinity.IsStack() {
		t.Errorf("p1 affinity = %s, want stack", lv.Range(p1).Affinity)
	}
}

// ============================================================================
// 活跃值跟踪器测试
// ============================================================================

func TestTracker_BlockWalk(t *testing.T) {
	fn, cfg, vals, b0, b1 := twoBlocks()
	v0, v1, v2, v3 := vals[0], vals[1], vals[2], vals[3]

	dt := domtree.New()
	dt.Compute(fn, cfg)
	lv := New()
	lv.Compute(fn, cfg, isa.NewX64())

	tr := NewTracker()

	// block0：无入口活跃值，两个参数
	liveins, params := tr.EnterBlock(fn, b0, dt, lv)
	if len(liveins) != 0 {
		t.Fatalf("entry block: expected 0 liveins, got %d", len(liveins))
	}
	if len(params) != 2 || params[0].Value != v0 || params[1].Value != v1 {
		t.Fatalf("entry block: expected params [v0 v1], got %v", params)
	}
	tr.DropDeadParams()

	insts := fn.Layout.BlockInsts(b0)
	add := insts[0]
	jump := insts[1]

	// iadd 杀死两个参数，定义 v2
	throughs, kills, defs := tr.ProcessInst(fn, add, lv)
	if len(throughs) != 0 {
		t.Errorf("iadd: expected 0 throughs, got %d", len(throughs))
	}
	if len(kills) != 2 {
		t.Errorf("iadd: expected 2 kills, got %d", len(kills))
	}
	if len(defs) != 1 || defs[0].Value != v2 {
		t.Errorf("iadd: expected def v2, got %v", defs)
	}
	tr.DropDead(add)

	// jump 处 v2 穿越；分支快照在此保存
	throughs, kills, defs = tr.ProcessInst(fn, jump, lv)
	if len(throughs) != 1 || throughs[0].Value != v2 {
		t.Errorf("jump: expected through v2, got %v", throughs)
	}
	if len(kills) != 0 || len(defs) != 0 {
		t.Errorf("jump: expected no kills/defs, got %d/%d", len(kills), len(defs))
	}
	tr.DropDead(jump)

	// block1：入口活跃集经由支配分支快照取回
	liveins, params = tr.EnterBlock(fn, b1, dt, lv)
	if len(liveins) != 1 || liveins[0].Value != v2 {
		t.Fatalf("block1: expected livein v2, got %v", liveins)
	}
	if len(params) != 0 {
		t.Fatalf("block1: expected 0 params, got %d", len(params))
	}
	tr.DropDeadParams()

	insts = fn.Layout.BlockInsts(b1)
	_, kills, defs = tr.ProcessInst(fn, insts[0], lv)
	if len(kills) != 1 || kills[0].Value != v2 {
		t.Errorf("use: expected kill v2, got %v", kills)
	}
	if len(defs) != 1 || defs[0].Value != v3 {
		t.Errorf("use: expected def v3, got %v", defs)
	}
	tr.DropDead(insts[0])
}

func TestTracker_DeadParamDropped(t *testing.T) {
	// 汇合块的参数无人使用：EnterBlock 标记死参数，DropDeadParams 移除
	fn := ir.NewFunction("deadparam")
	b := ir.NewBuilder(fn)

	b0 := b.Block()
	b1 := fn.AddBlock()
	p := b.BlockParam(b1)

	b.Jump(b1)
	b.SwitchTo(b1)
	b.Return()

	cfg := flowgraph.New()
	cfg.Compute(fn)
	dt := domtree.New()
	dt.Compute(fn, cfg)
	lv := New()
	lv.Compute(fn, cfg, isa.NewX64())

	tr := NewTracker()
	tr.EnterBlock(fn, b0, dt, lv)
	tr.DropDeadParams()
	jump := fn.Layout.LastInst(b0)
	tr.ProcessInst(fn, jump, lv)
	tr.DropDead(jump)

	_, params := tr.EnterBlock(fn, b1, dt, lv)
	if len(params) != 1 || params[0].Value != p || !params[0].IsDead {
		t.Fatalf("expected single dead param %s, got %v", p, params)
	}
	tr.DropDeadParams()
	if n := len(tr.LiveSlice()); n != 0 {
		t.Errorf("after dropping dead params expected empty live set, got %d", n)
	}
}

func TestTracker_ProcessSpills(t *testing.T) {
	// spill 决策同步进跟踪器视图：命中谓词的活跃值偏好改为栈驻留
	fn, cfg, vals, b0, _ := twoBlocks()
	v0 := vals[0]

	dt := domtree.New()
	dt.Compute(fn, cfg)
	lv := New()
	lv.Compute(fn, cfg, isa.NewX64())

	tr := NewTracker()
	tr.EnterBlock(fn, b0, dt, lv)
	tr.DropDeadParams()

	tr.ProcessSpills(func(v ir.Value) bool { return v == v0 })
	for _, lvv := range tr.LiveSlice() {
		if lvv.Value == v0 && !lvv.Affinity.IsStack() {
			t.Errorf("v0 should be stack-affine in the tracker view, got %s", lvv.Affinity)
		}
		if lvv.Value != v0 && lvv.Affinity.IsStack() {
			t.Errorf("%s should keep its register affinity", lvv.Value)
		}
	}
	// 全局区间不受影响
	if lv.Range(v0).Affinity.IsStack() {
		t.Error("ProcessSpills must not touch the global live range")
	}
}

func TestTracker_PendingDropDeadPanics(t *testing.T) {
	fn, cfg, _, b0, _ := twoBlocks()
	dt := domtree.New()
	dt.Compute(fn, cfg)
	lv := New()
	lv.Compute(fn, cfg, isa.NewX64())

	tr := NewTracker()
	tr.EnterBlock(fn, b0, dt, lv)
	tr.DropDeadParams()
	tr.ProcessInst(fn, fn.Layout.FirstInst(b0), lv)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when EnterBlock is called with a pending DropDead")
		}
	}()
	tr.EnterBlock(fn, b0, dt, lv)
}
