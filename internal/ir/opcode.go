// opcode.go - IR 操作码定义
//
// 操作码集合覆盖后端分析与重载（reload）阶段所需的最小指令面：
// 算术运算、常量、控制流、调用，以及寄存器分配阶段插入的
// fill / spill / copy 三条搬运指令。

package ir

import "fmt"

// Opcode IR 操作码
type Opcode int

const (
	OpNop Opcode = iota

	// 常量
	OpIconst
	OpFconst

	// 算术运算
	OpIadd
	OpIsub
	OpImul
	OpFadd
	OpFmul

	// 比较
	OpIcmp

	// 控制流
	OpJump
	OpBrnz
	OpBrz
	OpBrTable
	OpReturn

	// 函数调用
	OpCall

	// 寄存器分配搬运指令
	OpFill
	OpSpill
	OpCopy
)

// String 返回操作码的字符串表示
func (op Opcode) String() string {
	switch op {
	case OpNop:
		return "nop"
	case OpIconst:
		return "iconst"
	case OpFconst:
		return "fconst"
	case OpIadd:
		return "iadd"
	case OpIsub:
		return "isub"
	case OpImul:
		return "imul"
	case OpFadd:
		return "fadd"
	case OpFmul:
		return "fmul"
	case OpIcmp:
		return "icmp"
	case OpJump:
		return "jump"
	case OpBrnz:
		return "brnz"
	case OpBrz:
		return "brz"
	case OpBrTable:
		return "br_table"
	case OpReturn:
		return "return"
	case OpCall:
		return "call"
	case OpFill:
		return "fill"
	case OpSpill:
		return "spill"
	case OpCopy:
		return "copy"
	default:
		return fmt.Sprintf("unknown(%d)", int(op))
	}
}

// IsBranch 检查操作码是否是分支/跳转（携带控制流目标）
func (op Opcode) IsBranch() bool {
	switch op {
	case OpJump, OpBrnz, OpBrz, OpBrTable:
		return true
	default:
		return false
	}
}

// IsTerminator 检查操作码是否必然结束一个块
func (op Opcode) IsTerminator() bool {
	switch op {
	case OpJump, OpBrTable, OpReturn:
		return true
	default:
		return false
	}
}

// IsCall 检查操作码是否是调用
func (op Opcode) IsCall() bool {
	return op == OpCall
}
