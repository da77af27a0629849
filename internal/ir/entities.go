// entities.go - IR 实体句柄
//
// 本文件定义了 IR 中各类实体的句柄类型。
// 所有句柄都是稠密整数索引：在同一个函数内唯一，
// 由对应的容器（DataFlowGraph / Layout / Function）按创建顺序分配。
//
// 句柄本身不携带任何数据，必须通过容器解引用。

package ir

import "fmt"

// ============================================================================
// 句柄类型
// ============================================================================

// Block 基本块句柄
//
// 这里的"基本块"采用扩展基本块（EBB）模型：
// 单入口，但块内可以出现多条条件分支指令，块由最后的终结指令收尾。
type Block uint32

// Inst 指令句柄
type Inst uint32

// Value SSA 值句柄
// 每个值由恰好一条指令的结果或一个块参数定义。
type Value uint32

// JumpTableRef 跳转表句柄
type JumpTableRef uint32

// 无效句柄哨兵
const (
	InvalidBlock     Block        = ^Block(0)
	InvalidInst      Inst         = ^Inst(0)
	InvalidValue     Value        = ^Value(0)
	InvalidJumpTable JumpTableRef = ^JumpTableRef(0)
)

// ============================================================================
// 字符串表示
// ============================================================================

// String 返回块的字符串表示，如 block3
func (b Block) String() string {
	if b == InvalidBlock {
		return "block-invalid"
	}
	return fmt.Sprintf("block%d", uint32(b))
}

// String 返回指令的字符串表示，如 inst7
func (i Inst) String() string {
	if i == InvalidInst {
		return "inst-invalid"
	}
	return fmt.Sprintf("inst%d", uint32(i))
}

// String 返回值的字符串表示，如 v12
func (v Value) String() string {
	if v == InvalidValue {
		return "v-invalid"
	}
	return fmt.Sprintf("v%d", uint32(v))
}

// String 返回跳转表的字符串表示，如 jt0
func (t JumpTableRef) String() string {
	if t == InvalidJumpTable {
		return "jt-invalid"
	}
	return fmt.Sprintf("jt%d", uint32(t))
}

// ============================================================================
// 寄存器类
// ============================================================================

// RegClass 寄存器类
// 在 IR 层只作为标注使用，具体寄存器集合由目标 ISA 定义。
type RegClass uint8

const (
	// GPR 通用整数寄存器
	GPR RegClass = iota
	// FPR 浮点寄存器
	FPR
)

// String 返回寄存器类名称
func (rc RegClass) String() string {
	switch rc {
	case GPR:
		return "gpr"
	case FPR:
		return "fpr"
	default:
		return fmt.Sprintf("regclass(%d)", uint8(rc))
	}
}
