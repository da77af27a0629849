// liveness.go - 活跃性分析
//
// 本文件实现了经典的逐块后向数据流活跃性分析：
// 1. 迭代求每个块的入口活跃集，直到不动点
// 2. 对每个块做一次后向扫描，为每个值记录块内终点
//    （最后一次使用，或"活出本块"）
//
// 同时为每个值建立定义位置与初始存储偏好：
// - 入口块参数：来自函数签名的 ABI 位置
// - 其他块参数：任意寄存器
// - 指令结果：来自目标 ISA 的结果约束；调用结果来自被调签名
//
// reload 阶段通过 CreateLocalRange / MoveDef 维护它插入的
// fill/spill 临时值的区间。

package liveness

import (
	"fmt"

	"github.com/tangzhangming/novac/internal/flowgraph"
	"github.com/tangzhangming/novac/internal/ir"
	"github.com/tangzhangming/novac/internal/isa"
)

// Liveness 函数内全部值的活跃区间
//
// 可作为跨函数复用的临时对象：Compute 会先清空全部旧状态。
type Liveness struct {
	ranges map[ir.Value]*LiveRange
	valid  bool
}

// New 创建空的活跃性分析
func New() *Liveness {
	return &Liveness{ranges: make(map[ir.Value]*LiveRange)}
}

// Clear 清空全部状态
func (lv *Liveness) Clear() {
	for v := range lv.ranges {
		delete(lv.ranges, v)
	}
	lv.valid = false
}

// Range 返回值的活跃区间。
// 对一个必须有区间的值查不到区间是上游的 bug，直接 panic。
func (lv *Liveness) Range(v ir.Value) *LiveRange {
	lr, ok := lv.ranges[v]
	if !ok {
		panic(fmt.Sprintf("liveness: no live range for %s", v))
	}
	return lr
}

// HasRange 查询值是否有区间（reload 插入的值在 CreateLocalRange 之前没有）
func (lv *Liveness) HasRange(v ir.Value) bool {
	_, ok := lv.ranges[v]
	return ok
}

// SetAffinity 改写值的存储偏好（spill 阶段的决策入口）
func (lv *Liveness) SetAffinity(v ir.Value, aff Affinity) {
	lv.Range(v).Affinity = aff
}

// ============================================================================
// 计算
// ============================================================================

// Compute 计算函数内全部值的活跃区间
func (lv *Liveness) Compute(fn *ir.Function, cfg *flowgraph.ControlFlowGraph, target isa.TargetIsa) {
	lv.Clear()

	lv.initRanges(fn, target)

	// 第一步：不动点求每个块的入口活跃集
	liveIns := lv.computeLiveIns(fn, cfg)

	// 第二步：逐块记录终点
	for _, b := range fn.Layout.Blocks() {
		lv.recordEndpoints(fn, cfg, b, liveIns)
	}

	lv.valid = true
}

// initRanges 为每个值创建区间骨架（定义位置 + 初始偏好）
func (lv *Liveness) initRanges(fn *ir.Function, target isa.TargetIsa) {
	entry := fn.Entry()
	for _, b := range fn.Layout.Blocks() {
		// 块参数
		for i, p := range fn.Dfg.BlockParams(b) {
			var aff Affinity
			if b == entry && i < len(fn.Sig.Params) {
				aff = AffinityFromAbi(fn.Sig.Params[i].Loc)
			} else {
				aff = Affinity{Kind: AffinityAny}
			}
			lv.ranges[p] = newLiveRange(p, b, ir.InvalidInst, aff)
		}

		// 指令结果
		for _, inst := range fn.Layout.BlockInsts(b) {
			data := fn.Dfg.InstData(inst)
			constraints := target.Constraints(data.Op)
			for i, r := range fn.Dfg.InstResults(inst) {
				var aff Affinity
				switch {
				case data.Op.IsCall() && data.Sig != nil && i < len(data.Sig.Returns):
					aff = AffinityFromAbi(data.Sig.Returns[i].Loc)
				case constraints != nil && i < len(constraints.Results):
					aff = AffinityFromConstraint(constraints.Results[i])
				default:
					aff = Affinity{Kind: AffinityAny}
				}
				lv.ranges[r] = newLiveRange(r, b, inst, aff)
			}
		}
	}
}

// computeLiveIns 后向数据流迭代
func (lv *Liveness) computeLiveIns(fn *ir.Function, cfg *flowgraph.ControlFlowGraph) map[ir.Block]map[ir.Value]struct{} {
	liveIns := make(map[ir.Block]map[ir.Value]struct{}, fn.NumBlocks())
	for _, b := range fn.Layout.Blocks() {
		liveIns[b] = make(map[ir.Value]struct{})
	}

	blocks := fn.Layout.Blocks()
	changed := true
	for changed {
		changed = false
		// 后向分析：按布局逆序扫描收敛更快
		for i := len(blocks) - 1; i >= 0; i-- {
			b := blocks[i]
			live := lv.liveOut(fn, cfg, b, liveIns)

			insts := fn.Layout.BlockInsts(b)
			for j := len(insts) - 1; j >= 0; j-- {
				inst := insts[j]
				for _, r := range fn.Dfg.InstResults(inst) {
					delete(live, r)
				}
				data := fn.Dfg.InstData(inst)
				for _, a := range data.Args {
					live[a] = struct{}{}
				}
				for _, a := range data.Varargs {
					live[a] = struct{}{}
				}
			}
			for _, p := range fn.Dfg.BlockParams(b) {
				delete(live, p)
			}

			if len(live) != len(liveIns[b]) {
				liveIns[b] = live
				changed = true
				continue
			}
			for v := range live {
				if _, ok := liveIns[b][v]; !ok {
					liveIns[b] = live
					changed = true
					break
				}
			}
		}
	}
	return liveIns
}

// liveOut 汇聚后继的入口活跃集
func (lv *Liveness) liveOut(fn *ir.Function, cfg *flowgraph.ControlFlowGraph, b ir.Block, liveIns map[ir.Block]map[ir.Value]struct{}) map[ir.Value]struct{} {
	out := make(map[ir.Value]struct{})
	for _, succ := range cfg.Successors(b) {
		for v := range liveIns[succ] {
			out[v] = struct{}{}
		}
	}
	return out
}

// recordEndpoints 一次后向扫描，记录每个值在块 b 内的终点
func (lv *Liveness) recordEndpoints(fn *ir.Function, cfg *flowgraph.ControlFlowGraph, b ir.Block, liveIns map[ir.Block]map[ir.Value]struct{}) {
	live := lv.liveOut(fn, cfg, b, liveIns)

	// 活出本块的值
	for v := range live {
		lv.Range(v).setEnd(b, ir.InvalidInst)
	}

	insts := fn.Layout.BlockInsts(b)
	for j := len(insts) - 1; j >= 0; j-- {
		inst := insts[j]
		for _, r := range fn.Dfg.InstResults(inst) {
			delete(live, r)
		}
		data := fn.Dfg.InstData(inst)
		for _, a := range data.Args {
			if _, ok := live[a]; !ok {
				// 后向扫描首次遇到即块内最后一次使用
				lv.Range(a).setEnd(b, inst)
				live[a] = struct{}{}
			}
		}
		for _, a := range data.Varargs {
			if _, ok := live[a]; !ok {
				lv.Range(a).setEnd(b, inst)
				live[a] = struct{}{}
			}
		}
	}
}

// ============================================================================
// reload 阶段的区间维护
// ============================================================================

// CreateLocalRange 为 reload 插入的临时值建立块内短区间：
// 定义于 defInst，在 endInst 处被杀死，从不越块。
func (lv *Liveness) CreateLocalRange(v ir.Value, block ir.Block, defInst, endInst ir.Inst, aff Affinity) {
	lr := newLiveRange(v, block, defInst, aff)
	lr.setEnd(block, endInst)
	lv.ranges[v] = lr
}

// MoveDef 把值的定义点移到同块内的另一条指令
// （spill-after-def 改写后，原值改由 spill 指令定义）。
func (lv *Liveness) MoveDef(v ir.Value, defInst ir.Inst) {
	lv.Range(v).defInst = defInst
}
