// x64.go - x64 目标的约束表
//
// 本文件实现了 x64 目标的 TargetIsa。只覆盖后端分析层消费的部分：
// 配方约束与编码存在性查询；真正的机器码发射不在这一层。
//
// 寄存器模型与调用约定沿用 JIT 后端的划分：
// 14 个可分配 GPR（去掉 RSP/RBP），16 个 XMM。

package isa

import (
	"fmt"

	"github.com/tangzhangming/novac/internal/ir"
)

// x64 可分配寄存器数量
const (
	X64NumGPR = 14
	X64NumFPR = 16
)

// 常用约束
var (
	regGPR   = OperandConstraint{Kind: ConstraintReg, Class: ir.GPR}
	regFPR   = OperandConstraint{Kind: ConstraintReg, Class: ir.FPR}
	anyLoc   = OperandConstraint{Kind: ConstraintAny}
	stackLoc = OperandConstraint{Kind: ConstraintStack}
)

// x64Recipes 操作码 -> 配方约束
// 不在表中的操作码没有编码（视为未下沉）。
var x64Recipes = map[ir.Opcode]*RecipeConstraints{
	ir.OpIconst: {Results: []OperandConstraint{regGPR}},
	ir.OpFconst: {Results: []OperandConstraint{regFPR}},

	ir.OpIadd: {Args: []OperandConstraint{regGPR, regGPR}, Results: []OperandConstraint{regGPR}},
	ir.OpIsub: {Args: []OperandConstraint{regGPR, regGPR}, Results: []OperandConstraint{regGPR}},
	ir.OpImul: {Args: []OperandConstraint{regGPR, regGPR}, Results: []OperandConstraint{regGPR}},
	ir.OpFadd: {Args: []OperandConstraint{regFPR, regFPR}, Results: []OperandConstraint{regFPR}},
	ir.OpFmul: {Args: []OperandConstraint{regFPR, regFPR}, Results: []OperandConstraint{regFPR}},
	ir.OpIcmp: {Args: []OperandConstraint{regGPR, regGPR}, Results: []OperandConstraint{regGPR}},

	ir.OpJump:    {},
	ir.OpBrnz:    {Args: []OperandConstraint{regGPR}},
	ir.OpBrz:     {Args: []OperandConstraint{regGPR}},
	ir.OpBrTable: {Args: []OperandConstraint{regGPR}},

	// call/return 的定长参数为空，变长 ABI 参数的约束来自签名
	ir.OpCall:   {},
	ir.OpReturn: {},

	ir.OpFill:  {Args: []OperandConstraint{stackLoc}, Results: []OperandConstraint{regGPR}},
	ir.OpSpill: {Args: []OperandConstraint{anyLoc}, Results: []OperandConstraint{stackLoc}},
	ir.OpCopy:  {Args: []OperandConstraint{anyLoc}, Results: []OperandConstraint{regGPR}},
}

// x64Isa x64 目标
type x64Isa struct{}

// NewX64 创建 x64 目标
func NewX64() TargetIsa {
	return x64Isa{}
}

// Name 返回目标名称
func (x64Isa) Name() string {
	return "x64"
}

// Constraints 返回操作码的配方约束
func (x64Isa) Constraints(op ir.Opcode) *RecipeConstraints {
	return x64Recipes[op]
}

// RegClasses 返回 x64 的寄存器类容量
func (x64Isa) RegClasses() []RegClassInfo {
	return []RegClassInfo{
		{Class: ir.GPR, Count: X64NumGPR},
		{Class: ir.FPR, Count: X64NumFPR},
	}
}

// Encode 查询指令编码：表内操作码有唯一配方，表外无编码
func (x64Isa) Encode(fn *ir.Function, inst ir.Inst) (Encoding, error) {
	op := fn.Dfg.InstData(inst).Op
	if _, ok := x64Recipes[op]; !ok {
		return Encoding{}, fmt.Errorf("%w for %s", ErrNoEncoding, op)
	}
	return Encoding{Recipe: int(op)}, nil
}
