// builder.go - 指令构建器
//
// 追加式的便捷层：每个 Emit 方法创建一条指令、附上结果值、
// 追加到当前块末尾。测试与示例驱动用它搭建函数，
// 分析 Pass 本身不依赖本文件。

package ir

// Builder 指令构建器
type Builder struct {
	fn  *Function
	cur Block
}

// NewBuilder 创建构建器
func NewBuilder(fn *Function) *Builder {
	return &Builder{fn: fn, cur: InvalidBlock}
}

// Func 返回正在构建的函数
func (b *Builder) Func() *Function {
	return b.fn
}

// Block 创建一个新块并切换为当前块
func (b *Builder) Block() Block {
	blk := b.fn.AddBlock()
	b.cur = blk
	return blk
}

// SwitchTo 切换当前块
func (b *Builder) SwitchTo(blk Block) {
	b.cur = blk
}

// BlockParam 给块追加一个参数
func (b *Builder) BlockParam(blk Block) Value {
	return b.fn.Dfg.AppendBlockParam(blk)
}

// emit 创建指令并追加到当前块，返回句柄
func (b *Builder) emit(data InstData) Inst {
	inst := b.fn.Dfg.MakeInst(data)
	b.fn.Layout.AppendInst(inst, b.cur)
	return inst
}

// emitOne 创建带单结果的指令
func (b *Builder) emitOne(data InstData) (Inst, Value) {
	inst := b.emit(data)
	return inst, b.fn.Dfg.AppendResult(inst)
}

// Iconst 发射整型常量
func (b *Builder) Iconst() Value {
	_, v := b.emitOne(InstData{Op: OpIconst, Dest: InvalidBlock})
	return v
}

// Fconst 发射浮点常量
func (b *Builder) Fconst() Value {
	_, v := b.emitOne(InstData{Op: OpFconst, Dest: InvalidBlock})
	return v
}

// Binary 发射二元运算
func (b *Builder) Binary(op Opcode, x, y Value) Value {
	_, v := b.emitOne(InstData{Op: op, Args: []Value{x, y}, Dest: InvalidBlock})
	return v
}

// Iadd 发射整型加法
func (b *Builder) Iadd(x, y Value) Value {
	return b.Binary(OpIadd, x, y)
}

// Jump 发射无条件跳转
func (b *Builder) Jump(dest Block) Inst {
	return b.emit(InstData{Op: OpJump, Dest: dest})
}

// Brnz 发射非零条件分支
func (b *Builder) Brnz(cond Value, dest Block) Inst {
	return b.emit(InstData{Op: OpBrnz, Args: []Value{cond}, Dest: dest})
}

// Brz 发射为零条件分支
func (b *Builder) Brz(cond Value, dest Block) Inst {
	return b.emit(InstData{Op: OpBrz, Args: []Value{cond}, Dest: dest})
}

// BrTable 发射跳转表分派；def 为 InvalidBlock 表示无默认目标
func (b *Builder) BrTable(index Value, table JumpTableRef, def Block) Inst {
	return b.emit(InstData{Op: OpBrTable, Args: []Value{index}, Table: table, Dest: def})
}

// Return 发射返回
func (b *Builder) Return(vals ...Value) Inst {
	return b.emit(InstData{Op: OpReturn, Varargs: vals, Dest: InvalidBlock})
}

// Call 发射调用，按被调签名的返回值个数附加结果
func (b *Builder) Call(sig *Signature, args ...Value) (Inst, []Value) {
	inst := b.emit(InstData{Op: OpCall, Varargs: args, Sig: sig, Dest: InvalidBlock})
	results := make([]Value, len(sig.Returns))
	for i := range results {
		results[i] = b.fn.Dfg.AppendResult(inst)
	}
	return inst, results
}

// Nop 发射空指令（没有目标编码，各 Pass 视为未下沉）
func (b *Builder) Nop() Inst {
	return b.emit(InstData{Op: OpNop, Dest: InvalidBlock})
}
