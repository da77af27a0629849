// domtree.go - 支配树
//
// 本文件实现了基于控制流图的支配树计算。
//
// 算法概述：
// 1. 从入口块沿 CFG 后继做 DFS，得到后序（postorder）
// 2. 按逆后序给可达块编号（0 表示不可达）
// 3. 按 Cooper-Harvey-Kennedy 迭代算法求每个块的直接支配者，直到不动点
//
// 与普通支配树不同的是，直接支配者是一个程序点（前驱块 + 分支指令），
// 而不只是一个块：EBB 模型下一个块可以有多条出口分支，
// 活跃值跟踪需要精确到"经由哪条分支支配"。
//
// 参考文献：
// - "A Simple, Fast Dominance Algorithm" - Keith D. Cooper, Timothy J. Harvey, Ken Kennedy

package domtree

import (
	"fmt"

	"github.com/tangzhangming/novac/internal/flowgraph"
	"github.com/tangzhangming/novac/internal/ir"
)

// ============================================================================
// DominatorTree
// ============================================================================

// nodeData 每个块的支配信息
type nodeData struct {
	// idom 直接支配该块的程序点；入口块与不可达块无效
	idom flowgraph.BlockPredecessor
	// rpoNumber 逆后序编号，0 表示不可达
	rpoNumber uint32
}

// DominatorTree 函数的支配树
//
// 可作为跨函数复用的临时对象：Compute 会先清空全部旧状态。
type DominatorTree struct {
	nodes     []nodeData
	postorder []ir.Block
	valid     bool
}

// New 创建空支配树
func New() *DominatorTree {
	return &DominatorTree{}
}

// Clear 清空全部状态
func (d *DominatorTree) Clear() {
	d.nodes = d.nodes[:0]
	d.postorder = d.postorder[:0]
	d.valid = false
}

// IsValid 查询支配树是否已计算
func (d *DominatorTree) IsValid() bool {
	return d.valid
}

// ============================================================================
// 计算
// ============================================================================

// Compute 基于控制流图计算支配树
func (d *DominatorTree) Compute(fn *ir.Function, cfg *flowgraph.ControlFlowGraph) {
	d.Clear()

	n := fn.NumBlocks()
	if cap(d.nodes) < n {
		d.nodes = make([]nodeData, n)
	} else {
		d.nodes = d.nodes[:n]
		for i := range d.nodes {
			d.nodes[i] = nodeData{}
		}
	}

	if n == 0 {
		d.valid = true
		return
	}

	// 第一步：后序遍历
	d.computePostorder(fn, cfg)

	// 第二步：逆后序编号
	for i, j := len(d.postorder)-1, uint32(1); i >= 0; i, j = i-1, j+1 {
		d.nodes[d.postorder[i]].rpoNumber = j
	}

	// 第三步：迭代求直接支配者
	d.computeDomtree(fn, cfg)

	d.valid = true
}

// computePostorder 从入口块沿后继 DFS，填充 postorder
func (d *DominatorTree) computePostorder(fn *ir.Function, cfg *flowgraph.ControlFlowGraph) {
	entry := fn.Entry()
	if entry == ir.InvalidBlock {
		return
	}

	type frame struct {
		b    ir.Block
		next int // 下一个待访问的后继下标
	}
	visited := make([]bool, fn.NumBlocks())
	stack := []frame{{b: entry}}
	visited[entry] = true

	for len(stack) > 0 {
		f := &stack[len(stack)-1]
		succs := cfg.Successors(f.b)
		if f.next < len(succs) {
			s := succs[f.next]
			f.next++
			if !visited[s] {
				visited[s] = true
				stack = append(stack, frame{b: s})
			}
			continue
		}
		d.postorder = append(d.postorder, f.b)
		stack = stack[:len(stack)-1]
	}
}

// computeDomtree 迭代到不动点
func (d *DominatorTree) computeDomtree(fn *ir.Function, cfg *flowgraph.ControlFlowGraph) {
	entry := fn.Entry()

	changed := true
	for changed {
		changed = false

		// 按逆后序处理（跳过入口块）
		for i := len(d.postorder) - 1; i >= 0; i-- {
			b := d.postorder[i]
			if b == entry {
				continue
			}

			var newIdom flowgraph.BlockPredecessor
			have := false
			for _, pred := range cfg.Predecessors(b) {
				if d.rpo(pred.Block) == 0 {
					continue
				}
				// 只考虑已求出 idom 的前驱（入口块天然已处理）
				if pred.Block != entry && !d.hasIdom(pred.Block) {
					continue
				}
				if !have {
					newIdom = pred
					have = true
				} else {
					newIdom = d.commonAncestor(fn, newIdom, pred)
				}
			}
			if !have {
				continue
			}

			if d.nodes[b].idom != newIdom || !d.hasIdom(b) {
				d.nodes[b].idom = newIdom
				d.idomSet(b)
				changed = true
			}
		}
	}
}

// idomSet / hasIdom 记录某块的 idom 是否已赋值
// （入口块与不可达块永远没有 idom）
func (d *DominatorTree) idomSet(b ir.Block) {
	// rpoNumber 最高位复用作"已赋值"标记
	d.nodes[b].rpoNumber |= 1 << 31
}

func (d *DominatorTree) hasIdom(b ir.Block) bool {
	return d.nodes[b].rpoNumber&(1<<31) != 0
}

// rpo 返回块的逆后序编号（去掉标记位）
func (d *DominatorTree) rpo(b ir.Block) uint32 {
	return d.nodes[b].rpoNumber &^ (1 << 31)
}

// commonAncestor 求两个程序点在支配树上的最近公共祖先
func (d *DominatorTree) commonAncestor(fn *ir.Function, a, b flowgraph.BlockPredecessor) flowgraph.BlockPredecessor {
	for {
		ra, rb := d.rpo(a.Block), d.rpo(b.Block)
		switch {
		case ra < rb:
			// b 更深，向上走
			b = d.nodes[b.Block].idom
		case rb < ra:
			a = d.nodes[a.Block].idom
		default:
			// 同一个块：取块内更靠前的分支点
			if a.Inst == b.Inst || fn.Layout.Cmp(a.Inst, b.Inst) <= 0 {
				return a
			}
			return b
		}
	}
}

// ============================================================================
// 查询
// ============================================================================

// Idom 返回直接支配 b 的程序点（前驱块 + 分支指令）。
// 入口块和不可达块返回 false。
func (d *DominatorTree) Idom(b ir.Block) (flowgraph.BlockPredecessor, bool) {
	d.assertValid(b)
	if !d.hasIdom(b) {
		return flowgraph.BlockPredecessor{Block: ir.InvalidBlock, Inst: ir.InvalidInst}, false
	}
	return d.nodes[b].idom, true
}

// IdomBlock 返回直接支配者所在的块，入口块/不可达块返回 InvalidBlock
func (d *DominatorTree) IdomBlock(b ir.Block) ir.Block {
	idom, ok := d.Idom(b)
	if !ok {
		return ir.InvalidBlock
	}
	return idom.Block
}

// IsReachable 查询块是否从入口可达
func (d *DominatorTree) IsReachable(b ir.Block) bool {
	d.assertValid(b)
	return d.rpo(b) != 0
}

// Dominates 查询块 a 是否支配块 b（自反：a 支配 a 自身）
func (d *DominatorTree) Dominates(a, b ir.Block) bool {
	d.assertValid(a)
	d.assertValid(b)
	if !d.IsReachable(a) || !d.IsReachable(b) {
		return false
	}
	ra := d.rpo(a)
	for d.rpo(b) > ra {
		if !d.hasIdom(b) {
			return false
		}
		b = d.nodes[b].idom.Block
	}
	return a == b
}

// DominatesInst 查询块 a 是否支配指令 inst 所在的程序点。
// 块支配自身内部的所有程序点，因此归结为对所属块的支配查询。
func (d *DominatorTree) DominatesInst(a ir.Block, inst ir.Inst, layout *ir.Layout) bool {
	b := layout.InstBlock(inst)
	if b == ir.InvalidBlock {
		panic(fmt.Sprintf("domtree: inst %s not in layout", inst))
	}
	return d.Dominates(a, b)
}

// CFGPostorder 返回 CFG 后序的可达块序列
func (d *DominatorTree) CFGPostorder() []ir.Block {
	if !d.valid {
		panic("domtree: query on invalid tree")
	}
	return d.postorder
}

// assertValid 契约检查
func (d *DominatorTree) assertValid(b ir.Block) {
	if !d.valid {
		panic("domtree: query on invalid tree")
	}
	if int(b) >= len(d.nodes) {
		panic(fmt.Sprintf("domtree: %s out of range", b))
	}
}
