// isa.go - 目标 ISA 能力接口
//
// 后端分析层通过本接口消费目标架构信息：
// - 每条指令配方（recipe）的逐操作数约束（寄存器类 / 栈 / 任意）
// - 指令编码查询（尚不可编码的指令视为未下沉，reload 阶段原样跳过）
//
// 这是一个合法的多态点：每个架构后端实现一份 TargetIsa，
// 以接口引用传入各 Pass。

package isa

import (
	"errors"
	"fmt"

	"github.com/tangzhangming/novac/internal/ir"
)

// ============================================================================
// 操作数约束
// ============================================================================

// ConstraintKind 操作数约束的种类
type ConstraintKind int

const (
	// ConstraintReg 操作数必须在指定类的寄存器中
	ConstraintReg ConstraintKind = iota
	// ConstraintStack 操作数必须在栈上
	ConstraintStack
	// ConstraintAny 操作数位置不限
	ConstraintAny
)

// OperandConstraint 单个操作数槽位的约束
type OperandConstraint struct {
	Kind  ConstraintKind
	Class ir.RegClass // Kind == ConstraintReg 时有效
}

// String 返回约束的字符串表示
func (c OperandConstraint) String() string {
	switch c.Kind {
	case ConstraintReg:
		return fmt.Sprintf("reg(%s)", c.Class)
	case ConstraintStack:
		return "stack"
	default:
		return "any"
	}
}

// RecipeConstraints 一条指令配方的完整约束：逐定长参数、逐结果
type RecipeConstraints struct {
	Args    []OperandConstraint
	Results []OperandConstraint
}

// ============================================================================
// 编码
// ============================================================================

// Encoding 指令编码（配方编号）
type Encoding struct {
	Recipe int
}

// ErrNoEncoding 指令在目标上没有可用编码
var ErrNoEncoding = errors.New("isa: no encoding")

// ============================================================================
// TargetIsa
// ============================================================================

// TargetIsa 目标架构能力
type TargetIsa interface {
	// Name 返回目标名称
	Name() string

	// Constraints 返回操作码对应配方的操作数约束。
	// 目标不认识的操作码返回 nil。
	Constraints(op ir.Opcode) *RecipeConstraints

	// Encode 查询指令的编码。
	// 无可用编码时返回包装了 ErrNoEncoding 的错误。
	Encode(fn *ir.Function, inst ir.Inst) (Encoding, error)

	// RegClasses 返回目标的寄存器类及各类的可分配数量
	RegClasses() []RegClassInfo
}

// RegClassInfo 一个寄存器类的可分配容量
type RegClassInfo struct {
	Class ir.RegClass
	Count int
}

// AssignEncodings 对函数内全部指令尝试选定编码，
// 成功的记入 Function（IsEncoded 为真）。下沉阶段的最简形式。
func AssignEncodings(fn *ir.Function, target TargetIsa) {
	for _, b := range fn.Layout.Blocks() {
		for _, inst := range fn.Layout.BlockInsts(b) {
			if _, err := target.Encode(fn, inst); err == nil {
				fn.MarkEncoded(inst)
			}
		}
	}
}
