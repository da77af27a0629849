// tracker.go - 活跃值跟踪器
//
// LiveValueTracker 在按支配序逐块、逐指令走一个函数时，
// 随时维护"当前程序点上活跃的值"的精确集合，并按角色切分：
// 穿越值（live-through）、在本指令被杀死的值、本指令定义的值。
//
// 核心技巧：三类值共用一个内部缓冲区，按 [穿越][杀死][定义] 的布局
// 就地划分，三个返回切片只是下标边界，不发生拷贝。
// 杀死/穿越切片内部的顺序不作保证；定义切片保持指令结果顺序。
//
// 跨块衔接：处理到分支/跳转指令时，以该指令为键把当前活跃集
// 快照保存一次（同一条分支只保存一次，保证无论多少个后继查询，
// 看到的集合都一致）；EnterBlock 通过块的直接支配分支取回快照，
// 过滤出真正活入该块的值。
//
// 调用顺序契约（违反即 panic，不是可恢复错误）：
// EnterBlock -> [DropDeadParams] -> { ProcessInst -> DropDead }* ，
// 且块必须在其直接支配者之后进入。

package liveness

import (
	"fmt"

	"github.com/tangzhangming/novac/internal/domtree"
	"github.com/tangzhangming/novac/internal/ir"
)

// ============================================================================
// LiveValue
// ============================================================================

// LiveValue 跟踪期间一个活跃值的瞬时状态
type LiveValue struct {
	// Value 对应的 SSA 值
	Value ir.Value

	// Endpoint 当前块内最后活跃的指令；
	// InvalidInst 表示值活出本块（不在任何指令处被杀死）。
	Endpoint ir.Inst

	// Affinity 存储偏好，自全局区间拷入，可被本地改写
	Affinity Affinity

	// IsLocal 区间是否从不越出定义块
	IsLocal bool

	// IsDead 区间是否零长度（定义后立即无用）
	IsDead bool
}

// ============================================================================
// LiveValueTracker
// ============================================================================

// LiveValueTracker 活跃值跟踪器
//
// 可作为跨函数复用的临时对象：Clear 会清空全部旧状态。
type LiveValueTracker struct {
	// live 内部缓冲区；ProcessInst 之后布局为 [穿越][杀死][定义]
	live []LiveValue

	// 最近一次划分的边界
	throughEnd int
	killEnd    int

	// savedSets 分支指令 -> 该分支点的活跃值快照
	savedSets map[ir.Inst][]ir.Value

	curBlock ir.Block
	lastInst ir.Inst // 待 DropDead 的指令
}

// NewTracker 创建活跃值跟踪器
func NewTracker() *LiveValueTracker {
	return &LiveValueTracker{
		savedSets: make(map[ir.Inst][]ir.Value),
		curBlock:  ir.InvalidBlock,
		lastInst:  ir.InvalidInst,
	}
}

// Clear 清空全部状态（换函数时调用）
func (t *LiveValueTracker) Clear() {
	t.live = t.live[:0]
	for k := range t.savedSets {
		delete(t.savedSets, k)
	}
	t.curBlock = ir.InvalidBlock
	t.lastInst = ir.InvalidInst
}

// ============================================================================
// 进入块
// ============================================================================

// EnterBlock 进入一个块，计算它的入口活跃集。
// 返回两个切片：入口活跃值，以及本块参数（含零长度的死参数，
// 由调用方用 DropDeadParams 显式剪除）。
func (t *LiveValueTracker) EnterBlock(fn *ir.Function, b ir.Block, dt *domtree.DominatorTree, lv *Liveness) (liveins, params []LiveValue) {
	if t.lastInst != ir.InvalidInst {
		panic(fmt.Sprintf("tracker: EnterBlock(%s) with pending DropDead(%s)", b, t.lastInst))
	}
	t.live = t.live[:0]
	t.curBlock = b

	// 入口活跃值：经由直接支配分支的快照取回
	if idom, ok := dt.Idom(b); ok {
		saved, ok := t.savedSets[idom.Inst]
		if !ok {
			panic(fmt.Sprintf("tracker: EnterBlock(%s) before its immediate dominator %s was processed", b, idom.Inst))
		}
		for _, v := range saved {
			lr := lv.Range(v)
			if !lr.LivesInto(b) {
				continue
			}
			end, _ := lr.EndIn(b)
			t.live = append(t.live, LiveValue{
				Value:    v,
				Endpoint: end,
				Affinity: lr.Affinity,
				IsLocal:  lr.IsLocal(),
			})
		}
	}
	liveinEnd := len(t.live)

	// 块参数：死参数拿到"块首指令"的合成终点并打上死标记
	for _, p := range fn.Dfg.BlockParams(b) {
		lr := lv.Range(p)
		if lr.IsDead() {
			t.live = append(t.live, LiveValue{
				Value:    p,
				Endpoint: fn.Layout.FirstInst(b),
				Affinity: lr.Affinity,
				IsLocal:  true,
				IsDead:   true,
			})
			continue
		}
		end, _ := lr.EndIn(b)
		t.live = append(t.live, LiveValue{
			Value:    p,
			Endpoint: end,
			Affinity: lr.Affinity,
			IsLocal:  lr.IsLocal(),
		})
	}

	return t.live[:liveinEnd], t.live[liveinEnd:]
}

// DropDeadParams 剪除 EnterBlock 标记的死参数
func (t *LiveValueTracker) DropDeadParams() {
	kept := t.live[:0]
	for _, v := range t.live {
		if !v.IsDead {
			kept = append(kept, v)
		}
	}
	t.live = kept
}

// ============================================================================
// 处理指令
// ============================================================================

// ProcessInst 把跟踪状态推进到指令 inst：
// 1. 若 inst 是分支/跳转，先以 inst 为键保存当前活跃集快照（同键只保存一次）
// 2. 就地划分：穿越值在前，被 inst 杀死的值挪到尾部（暂不移除）
// 3. 追加 inst 的结果值作为新定义
// 返回 [穿越][杀死][定义] 三个切片，底层共享内部缓冲区；
// 读完后必须恰好调用一次 DropDead(inst)。
func (t *LiveValueTracker) ProcessInst(fn *ir.Function, inst ir.Inst, lv *Liveness) (throughs, kills, defs []LiveValue) {
	t.partition(fn, inst)

	// 新定义
	for _, r := range fn.Dfg.InstResults(inst) {
		lr := lv.Range(r)
		val := LiveValue{
			Value:    r,
			Affinity: lr.Affinity,
			IsLocal:  lr.IsLocal(),
		}
		if lr.IsDead() {
			val.Endpoint = inst
			val.IsDead = true
		} else {
			end, _ := lr.EndIn(t.curBlock)
			val.Endpoint = end
		}
		t.live = append(t.live, val)
	}

	return t.live[:t.throughEnd], t.live[t.throughEnd:t.killEnd], t.live[t.killEnd:]
}

// ProcessGhost 与 ProcessInst 相同的划分，但不追加定义。
// 用于不产生被跟踪值的指令。
func (t *LiveValueTracker) ProcessGhost(fn *ir.Function, inst ir.Inst) (throughs, kills []LiveValue) {
	t.partition(fn, inst)
	return t.live[:t.throughEnd], t.live[t.throughEnd:t.killEnd]
}

// partition 快照 + 就地划分，公共部分
func (t *LiveValueTracker) partition(fn *ir.Function, inst ir.Inst) {
	if t.lastInst != ir.InvalidInst {
		panic(fmt.Sprintf("tracker: ProcessInst(%s) with pending DropDead(%s)", inst, t.lastInst))
	}

	// 分支点快照：同一条分支只保存一次
	if fn.BranchInfo(inst).Kind != ir.NotABranch {
		if _, ok := t.savedSets[inst]; !ok {
			saved := make([]ir.Value, len(t.live))
			for i, v := range t.live {
				saved[i] = v.Value
			}
			t.savedSets[inst] = saved
		}
	}

	// 就地划分：前缀保留终点不是 inst 的值，被杀死的值交换到尾部
	n := len(t.live)
	k := n
	for i := 0; i < k; {
		if t.live[i].Endpoint == inst {
			k--
			t.live[i], t.live[k] = t.live[k], t.live[i]
		} else {
			i++
		}
	}
	t.throughEnd = k
	t.killEnd = n
	t.lastInst = inst
}

// DropDead 物理移除最近一次 ProcessInst(inst) 划分出的
// 被杀死值与零长度定义。每条指令处理后必须恰好调用一次。
func (t *LiveValueTracker) DropDead(inst ir.Inst) {
	if t.lastInst != inst {
		panic(fmt.Sprintf("tracker: DropDead(%s) does not match pending %s", inst, t.lastInst))
	}

	kept := t.live[:t.throughEnd]
	for _, v := range t.live[t.killEnd:] {
		if !v.IsDead {
			kept = append(kept, v)
		}
	}
	t.live = kept
	t.lastInst = ir.InvalidInst
}

// ============================================================================
// spill 决策传播
// ============================================================================

// ProcessSpills 把谓词命中的当前活跃值的偏好改为栈驻留，
// 用于把别处做出的 spill 决策同步进跟踪器视图（不改变活跃性本身）。
func (t *LiveValueTracker) ProcessSpills(spilled func(ir.Value) bool) {
	for i := range t.live {
		if spilled(t.live[i].Value) {
			t.live[i].Affinity = StackAffinity()
		}
	}
}

// LiveSlice 返回当前完整活跃集（调试/校验用）
func (t *LiveValueTracker) LiveSlice() []LiveValue {
	return t.live
}
