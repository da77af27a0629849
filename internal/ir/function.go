// function.go - 函数容器与分支分类
//
// Function 把一个函数编译单元所需的全部 IR 状态聚合在一起：
// 数据流图、布局、签名与跳转表。
// 后端各分析 Pass 均以 *Function 为输入，且一次只处理一个函数。

package ir

import "fmt"

// ============================================================================
// ABI 位置与签名
// ============================================================================

// AbiLocKind ABI 位置的种类
type AbiLocKind int

const (
	// AbiReg 参数位于某类寄存器中
	AbiReg AbiLocKind = iota
	// AbiStack 参数位于栈上
	AbiStack
)

// AbiLoc 一个参数/返回值的 ABI 指定位置
type AbiLoc struct {
	Kind  AbiLocKind
	Class RegClass // Kind == AbiReg 时有效
}

// RegLoc 构造寄存器 ABI 位置
func RegLoc(class RegClass) AbiLoc {
	return AbiLoc{Kind: AbiReg, Class: class}
}

// StackLoc 构造栈 ABI 位置
func StackLoc() AbiLoc {
	return AbiLoc{Kind: AbiStack}
}

// String 返回 ABI 位置的字符串表示
func (a AbiLoc) String() string {
	if a.Kind == AbiStack {
		return "stack"
	}
	return fmt.Sprintf("reg(%s)", a.Class)
}

// AbiParam 签名中的一个参数或返回值
type AbiParam struct {
	Loc AbiLoc
}

// Signature 函数签名：逐参数、逐返回值的 ABI 位置
type Signature struct {
	Params  []AbiParam
	Returns []AbiParam
}

// ============================================================================
// 跳转表
// ============================================================================

// JumpTable 跳转表：目标块的有序列表，允许同一目标出现多次
type JumpTable struct {
	entries []Block
}

// Entries 返回跳转表的目标块序列
func (t *JumpTable) Entries() []Block {
	return t.entries
}

// ============================================================================
// 分支分类
// ============================================================================

// BranchKind 分支分类结果的种类
type BranchKind int

const (
	// NotABranch 指令不携带控制流目标
	NotABranch BranchKind = iota
	// SingleDest 单目标分支/跳转
	SingleDest
	// TableDest 跳转表分派，可带默认目标
	TableDest
)

// BranchInfo 一条指令的分支分类结果
type BranchInfo struct {
	Kind    BranchKind
	Dest    Block        // SingleDest 的目标；TableDest 的默认目标（可为 InvalidBlock）
	Table   JumpTableRef // TableDest 的跳转表
	HasDest bool         // TableDest 是否携带默认目标
}

// ============================================================================
// Function
// ============================================================================

// Function 一个函数的完整 IR
type Function struct {
	Name string
	Sig  Signature

	Dfg    *DataFlowGraph
	Layout *Layout

	jumpTables []JumpTable

	// encodings 已选定编码的指令集合（由下沉阶段填写）。
	// 不在其中的指令视为尚未下沉，reload 阶段原样跳过。
	encodings map[Inst]bool
}

// NewFunction 创建空函数
func NewFunction(name string) *Function {
	return &Function{
		Name:      name,
		Dfg:       NewDataFlowGraph(),
		Layout:    NewLayout(),
		encodings: make(map[Inst]bool),
	}
}

// AddBlock 创建一个新块并追加到布局末尾
func (f *Function) AddBlock() Block {
	b := Block(f.Layout.NumBlocks())
	f.Dfg.declareBlock(b)
	f.Layout.AppendBlock(b)
	return b
}

// NumBlocks 返回函数内块数量
func (f *Function) NumBlocks() int {
	return f.Layout.NumBlocks()
}

// Entry 返回入口块
func (f *Function) Entry() Block {
	return f.Layout.Entry()
}

// MakeJumpTable 创建跳转表
func (f *Function) MakeJumpTable(targets []Block) JumpTableRef {
	ref := JumpTableRef(len(f.jumpTables))
	f.jumpTables = append(f.jumpTables, JumpTable{entries: targets})
	return ref
}

// JumpTable 获取跳转表
func (f *Function) JumpTable(ref JumpTableRef) *JumpTable {
	return &f.jumpTables[ref]
}

// BranchInfo 对指令做分支分类
func (f *Function) BranchInfo(inst Inst) BranchInfo {
	data := f.Dfg.InstData(inst)
	switch data.Op {
	case OpJump, OpBrnz, OpBrz:
		return BranchInfo{Kind: SingleDest, Dest: data.Dest}
	case OpBrTable:
		return BranchInfo{
			Kind:    TableDest,
			Dest:    data.Dest,
			Table:   data.Table,
			HasDest: data.Dest != InvalidBlock,
		}
	default:
		return BranchInfo{Kind: NotABranch}
	}
}

// MarkEncoded 记录指令已选定目标编码
func (f *Function) MarkEncoded(inst Inst) {
	f.encodings[inst] = true
}

// IsEncoded 查询指令是否已选定目标编码
func (f *Function) IsEncoded(inst Inst) bool {
	return f.encodings[inst]
}
