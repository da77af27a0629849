// dfg.go - 数据流图
//
// DataFlowGraph 存储函数内全部指令与 SSA 值：
// - 每条指令的操作码、定长参数、变长参数（调用/返回的 ABI 参数）与控制流目标
// - 每条指令的结果值列表
// - 每个块的参数值列表
// - 每个值的定义位置（某条指令的第 n 个结果，或某个块的第 n 个参数）
//
// DataFlowGraph 只负责"是什么"，指令与块的排列顺序由 Layout 负责。

package ir

import "fmt"

// ============================================================================
// 指令数据
// ============================================================================

// InstData 一条指令的完整数据
type InstData struct {
	Op Opcode

	// Args 定长参数（由目标 ISA 的操作数约束逐槽位约束）
	Args []Value

	// Varargs 变长 ABI 参数（调用实参 / 返回值），
	// 逐参数约束来自被调函数或本函数签名的 ABI 位置。
	Varargs []Value

	// Dest 单目标分支的目标块；对 br_table 是可选的默认目标
	// （InvalidBlock 表示无默认目标）。
	Dest Block

	// Table 跳转表（仅 br_table 使用）
	Table JumpTableRef

	// Sig 调用指令的被调签名（仅 call 使用）
	Sig *Signature
}

// ============================================================================
// 值定义
// ============================================================================

// ValueDefKind 值定义的种类
type ValueDefKind int

const (
	// DefResult 值是某条指令的结果
	DefResult ValueDefKind = iota
	// DefParam 值是某个块的参数
	DefParam
)

// ValueDef 值的定义位置
type ValueDef struct {
	Kind  ValueDefKind
	Inst  Inst  // Kind == DefResult 时有效
	Block Block // Kind == DefParam 时有效
	Num   int   // 结果/参数序号
}

// ============================================================================
// DataFlowGraph
// ============================================================================

// DataFlowGraph 函数的指令与值存储
type DataFlowGraph struct {
	insts   []InstData // 按指令句柄索引
	results [][]Value  // 每条指令的结果值
	params  [][]Value  // 每个块的参数值
	defs    []ValueDef // 按值句柄索引
}

// NewDataFlowGraph 创建空的数据流图
func NewDataFlowGraph() *DataFlowGraph {
	return &DataFlowGraph{}
}

// NumInsts 返回已创建的指令数量
func (d *DataFlowGraph) NumInsts() int {
	return len(d.insts)
}

// NumValues 返回已创建的值数量
func (d *DataFlowGraph) NumValues() int {
	return len(d.defs)
}

// declareBlock 为块句柄分配参数存储（由 Function.AddBlock 调用）
func (d *DataFlowGraph) declareBlock(b Block) {
	for int(b) >= len(d.params) {
		d.params = append(d.params, nil)
	}
}

// MakeInst 创建一条指令，返回其句柄
// 此时指令尚未进入 Layout，结果值也尚未附加。
func (d *DataFlowGraph) MakeInst(data InstData) Inst {
	inst := Inst(len(d.insts))
	d.insts = append(d.insts, data)
	d.results = append(d.results, nil)
	return inst
}

// InstData 获取指令数据（只读视角，修改参数请用 ReplaceArgs 等方法）
func (d *DataFlowGraph) InstData(inst Inst) *InstData {
	return &d.insts[inst]
}

// AppendResult 为指令追加一个新结果值
func (d *DataFlowGraph) AppendResult(inst Inst) Value {
	v := Value(len(d.defs))
	num := len(d.results[inst])
	d.defs = append(d.defs, ValueDef{Kind: DefResult, Inst: inst, Block: InvalidBlock, Num: num})
	d.results[inst] = append(d.results[inst], v)
	return v
}

// InstResults 返回指令的结果值列表
func (d *DataFlowGraph) InstResults(inst Inst) []Value {
	return d.results[inst]
}

// AppendBlockParam 为块追加一个参数值
func (d *DataFlowGraph) AppendBlockParam(b Block) Value {
	v := Value(len(d.defs))
	num := len(d.params[b])
	d.defs = append(d.defs, ValueDef{Kind: DefParam, Inst: InvalidInst, Block: b, Num: num})
	d.params[b] = append(d.params[b], v)
	return v
}

// BlockParams 返回块的参数值列表
func (d *DataFlowGraph) BlockParams(b Block) []Value {
	if int(b) >= len(d.params) {
		return nil
	}
	return d.params[b]
}

// ValueDef 返回值的定义位置
func (d *DataFlowGraph) ValueDef(v Value) ValueDef {
	return d.defs[v]
}

// ============================================================================
// 重载阶段需要的改写操作
// ============================================================================

// ReplaceArg 将指令第 i 个定长参数替换为新值
func (d *DataFlowGraph) ReplaceArg(inst Inst, i int, v Value) {
	d.insts[inst].Args[i] = v
}

// ReplaceVararg 将指令第 i 个变长参数替换为新值
func (d *DataFlowGraph) ReplaceVararg(inst Inst, i int, v Value) {
	d.insts[inst].Varargs[i] = v
}

// RewriteArgs 对指令的全部参数（定长+变长）应用映射表，
// 有映射项的参数被替换为映射后的值。
func (d *DataFlowGraph) RewriteArgs(inst Inst, mapping map[Value]Value) {
	data := &d.insts[inst]
	for i, a := range data.Args {
		if nv, ok := mapping[a]; ok {
			data.Args[i] = nv
		}
	}
	for i, a := range data.Varargs {
		if nv, ok := mapping[a]; ok {
			data.Varargs[i] = nv
		}
	}
}

// ReplaceResult 把指令的某个结果值 old 换成一个新创建的值。
// old 的定义被解除（交由调用者重新附加到别的指令上），
// 返回新值。用于 reload 阶段"先产生寄存器临时值、再 spill 回原值"的改写。
func (d *DataFlowGraph) ReplaceResult(old Value) Value {
	def := d.defs[old]
	if def.Kind != DefResult {
		panic(fmt.Sprintf("ReplaceResult: %s is not an instruction result", old))
	}
	nv := Value(len(d.defs))
	d.defs = append(d.defs, ValueDef{Kind: DefResult, Inst: def.Inst, Block: InvalidBlock, Num: def.Num})
	d.results[def.Inst][def.Num] = nv
	return nv
}

// AttachResult 把一个已存在的值 v 重新附加为指令 inst 的结果。
// v 原有的定义被覆盖。指令 inst 必须尚无结果。
func (d *DataFlowGraph) AttachResult(inst Inst, v Value) {
	if len(d.results[inst]) != 0 {
		panic(fmt.Sprintf("AttachResult: %s already has results", inst))
	}
	d.defs[v] = ValueDef{Kind: DefResult, Inst: inst, Block: InvalidBlock, Num: 0}
	d.results[inst] = append(d.results[inst], v)
}

// SwapBlockParam 把块参数 old 替换为一个新创建的值，返回新值。
// old 的定义被解除，交由调用者重新附加（典型用法：入口块 ABI 对齐时
// 用寄存器临时值顶替栈参数，再立即 spill 回 old）。
func (d *DataFlowGraph) SwapBlockParam(old Value) Value {
	def := d.defs[old]
	if def.Kind != DefParam {
		panic(fmt.Sprintf("SwapBlockParam: %s is not a block parameter", old))
	}
	nv := Value(len(d.defs))
	d.defs = append(d.defs, ValueDef{Kind: DefParam, Inst: InvalidInst, Block: def.Block, Num: def.Num})
	d.params[def.Block][def.Num] = nv
	return nv
}
