// verifier.go - IR 一致性校验
//
// 本文件实现了对分析结果与改写后 IR 的一致性校验，
// 主要面向测试与调试：正式流水线里这些性质由构造保证。
//
// 校验项：
// - CFG 双向对称：每条后继边都有镜像前驱项，反之亦然
// - 后继序列按块索引严格升序
// - 布局/数据流一致：布局内每条指令的参数都有定义，
//   指令归属的块与布局一致
// - 值使用点被其定义支配（块粒度）
// - 循环嵌套无环：沿 parent 链不会回到自身
//
// 所有发现的问题一次性收集返回，不在第一个错误处停下。

package verifier

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/tangzhangming/novac/internal/domtree"
	"github.com/tangzhangming/novac/internal/flowgraph"
	"github.com/tangzhangming/novac/internal/ir"
	"github.com/tangzhangming/novac/internal/loops"
)

// VerifyCFG 校验控制流图与函数 IR 的一致性
func VerifyCFG(fn *ir.Function, cfg *flowgraph.ControlFlowGraph) error {
	var err error

	if !cfg.IsValid() {
		return fmt.Errorf("verifier: CFG is not valid")
	}

	for _, b := range fn.Layout.Blocks() {
		succs := cfg.Successors(b)

		// 后继升序且去重
		for i := 1; i < len(succs); i++ {
			if succs[i-1] >= succs[i] {
				err = multierr.Append(err, fmt.Errorf("verifier: successors of %s not strictly ascending: %s >= %s", b, succs[i-1], succs[i]))
			}
		}

		// 每个后继都有来自 b 的镜像前驱项
		for _, succ := range succs {
			found := false
			for _, pred := range cfg.Predecessors(succ) {
				if pred.Block == b {
					found = true
					break
				}
			}
			if !found {
				err = multierr.Append(err, fmt.Errorf("verifier: edge %s -> %s has no mirrored predecessor entry", b, succ))
			}
		}

		// 每个前驱项都有镜像后继，且分支指令确实指向 b
		for _, pred := range cfg.Predecessors(b) {
			found := false
			for _, succ := range cfg.Successors(pred.Block) {
				if succ == b {
					found = true
					break
				}
			}
			if !found {
				err = multierr.Append(err, fmt.Errorf("verifier: predecessor (%s, %s) of %s has no mirrored successor entry", pred.Block, pred.Inst, b))
			}
			if !branchTargets(fn, pred.Inst, b) {
				err = multierr.Append(err, fmt.Errorf("verifier: predecessor inst %s of %s does not branch to it", pred.Inst, b))
			}
		}
	}

	return err
}

// branchTargets 查询分支指令是否以 b 为目标
func branchTargets(fn *ir.Function, inst ir.Inst, b ir.Block) bool {
	info := fn.BranchInfo(inst)
	switch info.Kind {
	case ir.SingleDest:
		return info.Dest == b
	case ir.TableDest:
		if info.HasDest && info.Dest == b {
			return true
		}
		for _, dest := range fn.JumpTable(info.Table).Entries() {
			if dest == b {
				return true
			}
		}
	}
	return false
}

// VerifyFunction 校验布局与数据流图的一致性
func VerifyFunction(fn *ir.Function) error {
	var err error

	for _, b := range fn.Layout.Blocks() {
		for _, inst := range fn.Layout.BlockInsts(b) {
			if got := fn.Layout.InstBlock(inst); got != b {
				err = multierr.Append(err, fmt.Errorf("verifier: %s listed in %s but owned by %s", inst, b, got))
			}
			data := fn.Dfg.InstData(inst)
			for _, a := range data.Args {
				if int(a) >= fn.Dfg.NumValues() {
					err = multierr.Append(err, fmt.Errorf("verifier: %s uses undefined value %s", inst, a))
				}
			}
			for _, a := range data.Varargs {
				if int(a) >= fn.Dfg.NumValues() {
					err = multierr.Append(err, fmt.Errorf("verifier: %s uses undefined value %s", inst, a))
				}
			}
			for _, res := range fn.Dfg.InstResults(inst) {
				def := fn.Dfg.ValueDef(res)
				if def.Kind != ir.DefResult || def.Inst != inst {
					err = multierr.Append(err, fmt.Errorf("verifier: result %s of %s has mismatched definition", res, inst))
				}
			}
		}
		for _, p := range fn.Dfg.BlockParams(b) {
			def := fn.Dfg.ValueDef(p)
			if def.Kind != ir.DefParam || def.Block != b {
				err = multierr.Append(err, fmt.Errorf("verifier: param %s of %s has mismatched definition", p, b))
			}
		}
	}

	return err
}

// VerifyValueDominance 校验每个值的使用点都被其定义支配（块粒度）。
// 不可达块不参与校验：支配树对它们没有定义。
func VerifyValueDominance(fn *ir.Function, dt *domtree.DominatorTree) error {
	var err error

	checkUse := func(inst ir.Inst, useBlock ir.Block, v ir.Value) {
		defBlock := ir.InvalidBlock
		def := fn.Dfg.ValueDef(v)
		switch def.Kind {
		case ir.DefParam:
			defBlock = def.Block
		case ir.DefResult:
			defBlock = fn.Layout.InstBlock(def.Inst)
		}
		if defBlock == ir.InvalidBlock {
			err = multierr.Append(err, fmt.Errorf("verifier: %s uses %s whose defining instruction is not in the layout", inst, v))
			return
		}
		if !dt.IsReachable(defBlock) || !dt.Dominates(defBlock, useBlock) {
			err = multierr.Append(err, fmt.Errorf("verifier: use of %s in %s is not dominated by its definition in %s", v, inst, defBlock))
		}
	}

	for _, b := range fn.Layout.Blocks() {
		if !dt.IsReachable(b) {
			continue
		}
		for _, inst := range fn.Layout.BlockInsts(b) {
			data := fn.Dfg.InstData(inst)
			for _, a := range data.Args {
				checkUse(inst, b, a)
			}
			for _, a := range data.Varargs {
				checkUse(inst, b, a)
			}
		}
	}

	return err
}

// VerifyLoops 校验循环嵌套森林无环
func VerifyLoops(la *loops.LoopAnalysis) error {
	var err error

	for _, lp := range la.Loops() {
		seen := map[loops.Loop]bool{lp: true}
		cur := lp
		for {
			parent, ok := la.Parent(cur)
			if !ok {
				break
			}
			if seen[parent] {
				err = multierr.Append(err, fmt.Errorf("verifier: loop parent chain of %s is cyclic at %s", lp, parent))
				break
			}
			seen[parent] = true
			cur = parent
		}
	}

	return err
}

// Verify 全量校验
func Verify(fn *ir.Function, cfg *flowgraph.ControlFlowGraph, dt *domtree.DominatorTree, la *loops.LoopAnalysis) error {
	return multierr.Combine(
		VerifyFunction(fn),
		VerifyCFG(fn, cfg),
		VerifyValueDominance(fn, dt),
		VerifyLoops(la),
	)
}
