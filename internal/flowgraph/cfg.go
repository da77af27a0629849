// cfg.go - 控制流图
//
// 本文件实现了函数级控制流图（CFG）的构建与维护。
// CFG 是由每个块的分支/跳转指令推导出的派生缓存：
// - 前驱：以分支指令为键的有序映射（同一个前驱块被细分后可能有多条出口指令，
//   因此键必须是指令；前驱块作为冗余字段缓存在表项里，省去从布局反查）
// - 后继：按块索引升序排列的有序集合，重复目标自然去重
//
// 支持两种更新方式：
// - Compute 全量重建，重建完成后图进入有效状态
// - Recompute 只重算单个块的出边，用于局部编辑后的廉价增量维护；
//   指向该块的入边保持原样，由调用方负责重算分支目标发生变化的块
//
// CFG 没有可恢复的错误：在无效图上查询、或违反 Recompute 的前置条件，
// 都是编程错误，直接 panic。

package flowgraph

import (
	"fmt"
	"sort"

	"github.com/tangzhangming/novac/internal/ir"
)

// ============================================================================
// 边与节点
// ============================================================================

// BlockPredecessor 一条前驱边：控制流经由 Inst（位于 Block 末段的分支指令）
// 流入后继块。
type BlockPredecessor struct {
	Block ir.Block
	Inst  ir.Inst
}

// cfgNode 单个块的邻接信息
type cfgNode struct {
	// predecessors 以分支指令为键的有序前驱表。
	// 保持按指令句柄升序，同键插入覆盖旧值。
	predecessors []BlockPredecessor

	// successors 按块索引升序的后继集合，重复目标去重。
	successors []ir.Block
}

// ============================================================================
// ControlFlowGraph
// ============================================================================

// ControlFlowGraph 函数的控制流图
//
// 可作为跨函数复用的临时对象：Compute 会先清空全部旧状态。
type ControlFlowGraph struct {
	nodes []cfgNode
	valid bool
}

// New 创建空的控制流图（无效状态）
func New() *ControlFlowGraph {
	return &ControlFlowGraph{}
}

// Clear 清空全部状态，图回到无效状态
func (c *ControlFlowGraph) Clear() {
	c.nodes = c.nodes[:0]
	c.valid = false
}

// IsValid 查询有效标志
func (c *ControlFlowGraph) IsValid() bool {
	return c.valid
}

// Compute 全量构建控制流图
func (c *ControlFlowGraph) Compute(fn *ir.Function) {
	c.Clear()

	n := fn.NumBlocks()
	if cap(c.nodes) < n {
		c.nodes = make([]cfgNode, n)
	} else {
		c.nodes = c.nodes[:n]
		for i := range c.nodes {
			c.nodes[i].predecessors = c.nodes[i].predecessors[:0]
			c.nodes[i].successors = c.nodes[i].successors[:0]
		}
	}

	for _, b := range fn.Layout.Blocks() {
		c.computeBlock(fn, b)
	}

	c.valid = true
}

// Recompute 只重算单个块的出边。
// 前置条件：图必须处于有效状态（违反即 panic）。
// 指向 block 的入边不会被触碰——若其他块的分支目标改动涉及 block，
// 调用方必须对那些块另行 Recompute。
func (c *ControlFlowGraph) Recompute(fn *ir.Function, block ir.Block) {
	if !c.valid {
		panic("flowgraph: Recompute on invalid CFG, call Compute first")
	}
	// 局部编辑可能刚刚拆分出新块，按需扩容
	for fn.NumBlocks() > len(c.nodes) {
		c.nodes = append(c.nodes, cfgNode{})
	}
	c.invalidateBlockSuccessors(block)
	c.computeBlock(fn, block)
}

// computeBlock 扫描块内指令，建立该块的全部出边
func (c *ControlFlowGraph) computeBlock(fn *ir.Function, b ir.Block) {
	for _, inst := range fn.Layout.BlockInsts(b) {
		info := fn.BranchInfo(inst)
		switch info.Kind {
		case ir.NotABranch:
			// 跳过

		case ir.SingleDest:
			c.addEdge(b, inst, info.Dest)

		case ir.TableDest:
			if info.HasDest {
				c.addEdge(b, inst, info.Dest)
			}
			for _, dest := range fn.JumpTable(info.Table).Entries() {
				c.addEdge(b, inst, dest)
			}
		}
	}
}

// invalidateBlockSuccessors 删除块的全部出边及其在目标块中的镜像前驱项
func (c *ControlFlowGraph) invalidateBlockSuccessors(b ir.Block) {
	node := &c.nodes[b]
	for _, succ := range node.successors {
		preds := c.nodes[succ].predecessors
		kept := preds[:0]
		for _, p := range preds {
			if p.Block != b {
				kept = append(kept, p)
			}
		}
		c.nodes[succ].predecessors = kept
	}
	node.successors = node.successors[:0]
}

// addEdge 记录一条边 (from, branch) -> to，双向维护
func (c *ControlFlowGraph) addEdge(from ir.Block, branch ir.Inst, to ir.Block) {
	// 前驱：按指令键有序插入，同键覆盖
	preds := c.nodes[to].predecessors
	i := sort.Search(len(preds), func(i int) bool { return preds[i].Inst >= branch })
	if i < len(preds) && preds[i].Inst == branch {
		preds[i].Block = from
	} else {
		preds = append(preds, BlockPredecessor{})
		copy(preds[i+1:], preds[i:])
		preds[i] = BlockPredecessor{Block: from, Inst: branch}
		c.nodes[to].predecessors = preds
	}

	// 后继：按块索引升序集合，去重
	succs := c.nodes[from].successors
	j := sort.Search(len(succs), func(j int) bool { return succs[j] >= to })
	if j < len(succs) && succs[j] == to {
		return
	}
	succs = append(succs, ir.InvalidBlock)
	copy(succs[j+1:], succs[j:])
	succs[j] = to
	c.nodes[from].successors = succs
}

// ============================================================================
// 查询
// ============================================================================

// Predecessors 返回块的前驱边序列，按指令键序排列。
// 顺序对调用方没有语义，仅保证稳定可枚举。
func (c *ControlFlowGraph) Predecessors(b ir.Block) []BlockPredecessor {
	c.assertValid(b)
	return c.nodes[b].predecessors
}

// Successors 返回块的后继序列，按块索引升序。
func (c *ControlFlowGraph) Successors(b ir.Block) []ir.Block {
	c.assertValid(b)
	return c.nodes[b].successors
}

// assertValid 契约检查：图必须有效且块在范围内
func (c *ControlFlowGraph) assertValid(b ir.Block) {
	if !c.valid {
		panic("flowgraph: query on invalid CFG")
	}
	if int(b) >= len(c.nodes) {
		panic(fmt.Sprintf("flowgraph: %s out of range", b))
	}
}
