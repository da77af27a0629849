// affinity.go - 活跃区间的存储偏好
//
// Affinity 表示一个值的活跃区间倾向于落在哪类存储里：
// 某个具体寄存器类、任意寄存器（不受约束），或栈。
// 初值由定义点的操作数约束 / ABI 位置推导，
// spill 决策会把它改写为栈驻留。

package liveness

import (
	"github.com/tangzhangming/novac/internal/ir"
	"github.com/tangzhangming/novac/internal/isa"
)

// AffinityKind 偏好的种类
type AffinityKind int

const (
	// AffinityAny 任意寄存器，不受具体类约束
	AffinityAny AffinityKind = iota
	// AffinityReg 指定寄存器类
	AffinityReg
	// AffinityStack 栈驻留
	AffinityStack
)

// Affinity 一个活跃区间的存储偏好
type Affinity struct {
	Kind  AffinityKind
	Class ir.RegClass // Kind == AffinityReg 时有效
}

// RegAffinity 构造指定寄存器类的偏好
func RegAffinity(class ir.RegClass) Affinity {
	return Affinity{Kind: AffinityReg, Class: class}
}

// StackAffinity 构造栈驻留偏好
func StackAffinity() Affinity {
	return Affinity{Kind: AffinityStack}
}

// IsStack 查询是否栈驻留
func (a Affinity) IsStack() bool {
	return a.Kind == AffinityStack
}

// String 返回偏好的字符串表示
func (a Affinity) String() string {
	switch a.Kind {
	case AffinityReg:
		return "reg(" + a.Class.String() + ")"
	case AffinityStack:
		return "stack"
	default:
		return "any"
	}
}

// AffinityFromConstraint 由操作数约束推导偏好
func AffinityFromConstraint(c isa.OperandConstraint) Affinity {
	switch c.Kind {
	case isa.ConstraintReg:
		return RegAffinity(c.Class)
	case isa.ConstraintStack:
		return StackAffinity()
	default:
		return Affinity{Kind: AffinityAny}
	}
}

// AffinityFromAbi 由 ABI 位置推导偏好
func AffinityFromAbi(loc ir.AbiLoc) Affinity {
	if loc.Kind == ir.AbiStack {
		return StackAffinity()
	}
	return RegAffinity(loc.Class)
}
