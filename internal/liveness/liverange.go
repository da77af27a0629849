// liverange.go - 活跃区间
//
// LiveRange 记录一个 SSA 值从定义到最后使用之间覆盖的程序点，
// 按块切分存储：对值活跃的每个块记录它在该块内的终点——
// 杀死它的那条指令，或者"活出本块"（live-through，终点哨兵为 InvalidInst）。

package liveness

import (
	"github.com/tangzhangming/novac/internal/ir"
)

// LiveRange 一个值的活跃区间
type LiveRange struct {
	// Affinity 存储偏好，spill 决策时就地改写
	Affinity Affinity

	value    ir.Value
	defBlock ir.Block
	defInst  ir.Inst // InvalidInst 表示值是块参数

	// endIn 值活跃的每个块 -> 块内终点。
	// 终点为杀死该值的指令；InvalidInst 表示值活出该块。
	// 零长度区间（定义后立即无用）没有任何表项。
	endIn map[ir.Block]ir.Inst
}

// newLiveRange 创建空区间
func newLiveRange(v ir.Value, defBlock ir.Block, defInst ir.Inst, aff Affinity) *LiveRange {
	return &LiveRange{
		Affinity: aff,
		value:    v,
		defBlock: defBlock,
		defInst:  defInst,
		endIn:    make(map[ir.Block]ir.Inst),
	}
}

// Value 返回区间对应的值
func (lr *LiveRange) Value() ir.Value {
	return lr.value
}

// DefBlock 返回定义所在的块
func (lr *LiveRange) DefBlock() ir.Block {
	return lr.defBlock
}

// DefInst 返回定义指令；块参数返回 InvalidInst
func (lr *LiveRange) DefInst() ir.Inst {
	return lr.defInst
}

// IsDead 查询区间是否零长度（定义后立即无用）
func (lr *LiveRange) IsDead() bool {
	return len(lr.endIn) == 0
}

// IsLocal 查询区间是否从不越出定义块
func (lr *LiveRange) IsLocal() bool {
	for b, end := range lr.endIn {
		if b != lr.defBlock || end == ir.InvalidInst {
			return false
		}
	}
	return true
}

// LivesInto 查询值是否作为入口活跃值进入块 b
func (lr *LiveRange) LivesInto(b ir.Block) bool {
	if b == lr.defBlock {
		return false
	}
	_, ok := lr.endIn[b]
	return ok
}

// EndIn 返回值在块 b 内的终点：
// 杀死它的指令，或 (InvalidInst, true) 表示活出该块；
// 值在 b 内不活跃时返回 (InvalidInst, false)。
func (lr *LiveRange) EndIn(b ir.Block) (end ir.Inst, live bool) {
	end, live = lr.endIn[b]
	return end, live
}

// setEnd 记录块内终点
func (lr *LiveRange) setEnd(b ir.Block, end ir.Inst) {
	lr.endIn[b] = end
}
