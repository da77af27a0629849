// layout.go - 程序布局
//
// Layout 决定块在函数内的排列顺序，以及指令在块内的排列顺序。
// DataFlowGraph 回答"指令是什么"，Layout 回答"指令在哪里"。
//
// 支持 reload 阶段所需的两种就地插入：在某条指令之前插入（fill），
// 在某条指令之后插入（spill）。

package ir

import "fmt"

// Layout 程序布局
type Layout struct {
	blocks []Block          // 块的布局顺序
	insts  map[Block][]Inst // 每个块内指令的顺序
	owner  map[Inst]Block   // 指令 -> 所在块
}

// NewLayout 创建空布局
func NewLayout() *Layout {
	return &Layout{
		insts: make(map[Block][]Inst),
		owner: make(map[Inst]Block),
	}
}

// ============================================================================
// 块
// ============================================================================

// AppendBlock 把块追加到布局末尾
func (l *Layout) AppendBlock(b Block) {
	l.blocks = append(l.blocks, b)
	if _, ok := l.insts[b]; !ok {
		l.insts[b] = nil
	}
}

// Blocks 返回布局顺序的块序列
func (l *Layout) Blocks() []Block {
	return l.blocks
}

// NumBlocks 返回布局中的块数量
func (l *Layout) NumBlocks() int {
	return len(l.blocks)
}

// Entry 返回入口块（布局中的第一个块）
func (l *Layout) Entry() Block {
	if len(l.blocks) == 0 {
		return InvalidBlock
	}
	return l.blocks[0]
}

// ============================================================================
// 指令
// ============================================================================

// AppendInst 把指令追加到块末尾
func (l *Layout) AppendInst(inst Inst, b Block) {
	l.insts[b] = append(l.insts[b], inst)
	l.owner[inst] = b
}

// BlockInsts 返回块内指令的顺序序列
func (l *Layout) BlockInsts(b Block) []Inst {
	return l.insts[b]
}

// InstBlock 返回指令所在的块
func (l *Layout) InstBlock(inst Inst) Block {
	b, ok := l.owner[inst]
	if !ok {
		return InvalidBlock
	}
	return b
}

// FirstInst 返回块内第一条指令，空块返回 InvalidInst
func (l *Layout) FirstInst(b Block) Inst {
	insts := l.insts[b]
	if len(insts) == 0 {
		return InvalidInst
	}
	return insts[0]
}

// LastInst 返回块内最后一条指令，空块返回 InvalidInst
func (l *Layout) LastInst(b Block) Inst {
	insts := l.insts[b]
	if len(insts) == 0 {
		return InvalidInst
	}
	return insts[len(insts)-1]
}

// instIndex 返回指令在所在块内的下标
func (l *Layout) instIndex(inst Inst) (Block, int) {
	b, ok := l.owner[inst]
	if !ok {
		panic(fmt.Sprintf("layout: %s is not inserted", inst))
	}
	for i, in := range l.insts[b] {
		if in == inst {
			return b, i
		}
	}
	panic(fmt.Sprintf("layout: %s missing from block list of %s", inst, b))
}

// InsertInstBefore 在 before 之前插入指令
func (l *Layout) InsertInstBefore(inst Inst, before Inst) {
	b, i := l.instIndex(before)
	list := l.insts[b]
	list = append(list, InvalidInst)
	copy(list[i+1:], list[i:])
	list[i] = inst
	l.insts[b] = list
	l.owner[inst] = b
}

// InsertInstAfter 在 after 之后插入指令
func (l *Layout) InsertInstAfter(inst Inst, after Inst) {
	b, i := l.instIndex(after)
	list := l.insts[b]
	list = append(list, InvalidInst)
	copy(list[i+2:], list[i+1:])
	list[i+1] = inst
	l.insts[b] = list
	l.owner[inst] = b
}

// Cmp 比较同一个块内两条指令的先后：
// a 在 b 之前返回 -1，相同返回 0，之后返回 1。
// 两条指令必须属于同一个块。
func (l *Layout) Cmp(a, b Inst) int {
	if a == b {
		return 0
	}
	ba, ia := l.instIndex(a)
	bb, ib := l.instIndex(b)
	if ba != bb {
		panic(fmt.Sprintf("layout: Cmp across blocks %s/%s", ba, bb))
	}
	if ia < ib {
		return -1
	}
	return 1
}
