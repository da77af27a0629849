// loops.go - 自然循环分析
//
// 本文件实现了自然循环的识别与循环嵌套森林的构建。
//
// 算法分两个阶段，均沿 CFG 的逆后序展开：
//
// 阶段一（循环头识别）：对每个块 B 检查其 CFG 前驱 (P, inst)。
// 若 B 支配 P，则存在回边，B 是循环头；找到第一条回边即停止扫描
// ——证明头身份只需要一条回边，即使存在多条回边也只建一个循环。
//
// 阶段二（块归属与嵌套）：按创建顺序的逆序处理循环（后发现的内层循环
// 先确定归属），用 DFS 沿前驱回溯回边可达的块。遇到已归属别的循环的块，
// 沿其 parent 链向上找：lp 已是祖先则停止；否则把最外层尚无父循环的
// 那个循环挂为 lp 的直接子循环，并从该循环的头继续 DFS
// ——整个内层循环作为一个单元跳过，不逐块重走。
//
// 这是一个纯计算：畸形 CFG 只是识别不出循环，不会出错；
// 无环 CFG 得到零个循环。

package loops

import (
	"fmt"

	"github.com/tangzhangming/novac/internal/domtree"
	"github.com/tangzhangming/novac/internal/flowgraph"
	"github.com/tangzhangming/novac/internal/ir"
)

// ============================================================================
// 循环句柄
// ============================================================================

// Loop 循环句柄，稠密整数索引，按发现顺序（逆后序）分配
type Loop uint32

// InvalidLoop 无效循环哨兵
const InvalidLoop Loop = ^Loop(0)

// String 返回循环的字符串表示，如 loop1
func (lp Loop) String() string {
	if lp == InvalidLoop {
		return "loop-invalid"
	}
	return fmt.Sprintf("loop%d", uint32(lp))
}

// loopData 单个循环的属性：创建后只有 parent 会被设置一次
type loopData struct {
	header ir.Block
	parent Loop
}

// ============================================================================
// LoopAnalysis
// ============================================================================

// LoopAnalysis 函数的循环嵌套森林
//
// 可作为跨函数复用的临时对象：Compute 会先清空全部旧状态。
type LoopAnalysis struct {
	loops     []loopData
	blockLoop []Loop // 每个块归属的最内层循环，InvalidLoop 表示不在任何循环里
	stack     []ir.Block
	valid     bool
}

// New 创建空的循环分析
func New() *LoopAnalysis {
	return &LoopAnalysis{}
}

// Clear 清空全部状态
func (l *LoopAnalysis) Clear() {
	l.loops = l.loops[:0]
	l.blockLoop = l.blockLoop[:0]
	l.valid = false
}

// IsValid 查询分析结果是否有效
func (l *LoopAnalysis) IsValid() bool {
	return l.valid
}

// Compute 基于控制流图与支配树识别全部自然循环
func (l *LoopAnalysis) Compute(fn *ir.Function, cfg *flowgraph.ControlFlowGraph, dt *domtree.DominatorTree) {
	l.Clear()

	n := fn.NumBlocks()
	if cap(l.blockLoop) < n {
		l.blockLoop = make([]Loop, n)
	} else {
		l.blockLoop = l.blockLoop[:n]
	}
	for i := range l.blockLoop {
		l.blockLoop[i] = InvalidLoop
	}

	l.findLoopHeaders(fn, cfg, dt)
	l.discoverLoopBlocks(fn, cfg, dt)

	l.valid = true
}

// findLoopHeaders 阶段一：沿逆后序识别循环头
func (l *LoopAnalysis) findLoopHeaders(fn *ir.Function, cfg *flowgraph.ControlFlowGraph, dt *domtree.DominatorTree) {
	post := dt.CFGPostorder()
	for i := len(post) - 1; i >= 0; i-- {
		b := post[i]
		for _, pred := range cfg.Predecessors(b) {
			// b 支配回边分支所在的程序点 => 回边
			if dt.DominatesInst(b, pred.Inst, fn.Layout) {
				lp := Loop(len(l.loops))
				l.loops = append(l.loops, loopData{header: b, parent: InvalidLoop})
				l.blockLoop[b] = lp
				// 一条回边足以证明头身份
				break
			}
		}
	}
}

// discoverLoopBlocks 阶段二：确定块归属与嵌套关系
func (l *LoopAnalysis) discoverLoopBlocks(fn *ir.Function, cfg *flowgraph.ControlFlowGraph, dt *domtree.DominatorTree) {
	// 逆创建顺序：内层循环先于外层循环确定归属
	for lpi := len(l.loops) - 1; lpi >= 0; lpi-- {
		lp := Loop(lpi)
		header := l.loops[lp].header

		// 用全部回边前驱作为 DFS 种子
		l.stack = l.stack[:0]
		for _, pred := range cfg.Predecessors(header) {
			if dt.DominatesInst(header, pred.Inst, fn.Layout) {
				l.stack = append(l.stack, pred.Block)
			}
		}

		for len(l.stack) > 0 {
			node := l.stack[len(l.stack)-1]
			l.stack = l.stack[:len(l.stack)-1]

			continueDFS := ir.InvalidBlock

			if mapped := l.blockLoop[node]; mapped == InvalidLoop {
				// 未访问过的块，归属 lp，DFS 继续沿它的前驱走
				l.blockLoop[node] = lp
				continueDFS = node
			} else {
				// 块已属于某个循环，沿 parent 链找 lp
				nodeLoop := mapped
				found := false
				for parent := l.loops[nodeLoop].parent; parent != InvalidLoop; parent = l.loops[nodeLoop].parent {
					if parent == lp {
						found = true
						break
					}
					nodeLoop = parent
				}

				switch {
				case found:
					// lp 已是祖先：这整片子树处理过了
				case nodeLoop != lp:
					// nodeLoop 是最外层尚无父循环的循环，成为 lp 的直接子循环
					l.loops[nodeLoop].parent = lp
					// 从子循环的头继续，整个内层循环作为一个单元跳过
					continueDFS = l.loops[nodeLoop].header
				default:
					// node 就在 lp 里（单块循环的头），到此为止
				}
			}

			if continueDFS != ir.InvalidBlock {
				for _, pred := range cfg.Predecessors(continueDFS) {
					l.stack = append(l.stack, pred.Block)
				}
			}
		}
	}
}

// ============================================================================
// 查询
// ============================================================================

// Loops 返回全部循环句柄，按发现顺序
func (l *LoopAnalysis) Loops() []Loop {
	l.assertValid()
	out := make([]Loop, len(l.loops))
	for i := range out {
		out[i] = Loop(i)
	}
	return out
}

// NumLoops 返回循环数量
func (l *LoopAnalysis) NumLoops() int {
	l.assertValid()
	return len(l.loops)
}

// Header 返回循环的头块
func (l *LoopAnalysis) Header(lp Loop) ir.Block {
	l.assertValid()
	return l.loops[lp].header
}

// Parent 返回循环的父循环，最外层循环返回 false
func (l *LoopAnalysis) Parent(lp Loop) (Loop, bool) {
	l.assertValid()
	p := l.loops[lp].parent
	return p, p != InvalidLoop
}

// InnermostLoop 返回块归属的最内层循环，不在循环里返回 false
func (l *LoopAnalysis) InnermostLoop(b ir.Block) (Loop, bool) {
	l.assertValid()
	lp := l.blockLoop[b]
	return lp, lp != InvalidLoop
}

// IsChildLoop 查询 child 沿 parent 链能否到达 ancestor（自反：循环是自己的子循环）
func (l *LoopAnalysis) IsChildLoop(child, ancestor Loop) bool {
	l.assertValid()
	for lp := child; lp != InvalidLoop; lp = l.loops[lp].parent {
		if lp == ancestor {
			return true
		}
	}
	return false
}

// IsInLoop 查询块是否属于循环 lp 或其某个子孙循环
func (l *LoopAnalysis) IsInLoop(b ir.Block, lp Loop) bool {
	l.assertValid()
	mapped := l.blockLoop[b]
	if mapped == InvalidLoop {
		return false
	}
	return l.IsChildLoop(mapped, lp)
}

func (l *LoopAnalysis) assertValid() {
	if !l.valid {
		panic("loops: query on invalid analysis")
	}
}
