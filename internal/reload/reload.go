// reload.go - 重载 Pass
//
// 本文件实现了寄存器分配前的重载（reload）阶段：
// 按支配序走一遍函数，保证每条指令的寄存器约束操作数
// 处理时都持有寄存器驻留的值，必要时插入 fill/spill 并改写操作数。
//
// 每函数算法：
// 1. 按 CFG 逆后序访问块（逆后序保证块总在其直接支配者之后被访问，
//    这是活跃值跟踪器跨块衔接的硬性前置条件）
// 2. 入口块参数做 ABI 对齐：ABI 说在寄存器、偏好却是栈的参数，
//    改由寄存器临时值顶替，随即 spill 回原值
// 3. 对每条已选定编码的指令：
//    a. 按配方约束/被调签名收集重载候选（需要寄存器、值却栈驻留）
//    b. 后进先出地处理候选（同指令内候选相互独立，顺序无关紧要）；
//       同一个栈值在本指令内只 fill 一次（按原栈值去重）
//    c. 把有映射的操作数改写为 fill 结果
//    d. 清空映射（刻意不跨指令复用——那是尺寸优化机会，不是正确性要求）
//    e. 推进跟踪器取得本指令的定义值
//    f. 栈偏好、寄存器约束的定义值：改产出寄存器临时值，
//       随即 spill 回原值身份，保留后续使用的值同一性
//    未选定编码的指令视为尚未下沉，原样跳过（跟踪器按 ghost 推进）
//
// 本阶段没有用户可见错误：缺活跃区间、ABI 位置缺失等都是上游 bug，
// 直接 panic。输出是一个约束完全满足的程序，着色阶段可直接分配物理寄存器。

package reload

import (
	"fmt"

	"github.com/tangzhangming/novac/internal/domtree"
	"github.com/tangzhangming/novac/internal/ir"
	"github.com/tangzhangming/novac/internal/isa"
	"github.com/tangzhangming/novac/internal/liveness"
)

// ============================================================================
// 工作数据
// ============================================================================

// candidate 一个重载候选：操作数约束要求寄存器、值却栈驻留
type candidate struct {
	value ir.Value
	class ir.RegClass
}

// Stats 单次运行插入的搬运指令统计
type Stats struct {
	Fills  int
	Spills int
}

// ============================================================================
// Reload
// ============================================================================

// Reload 重载 Pass
//
// 可作为跨函数复用的临时对象：工作缓冲区在多次 Run 之间复用。
type Reload struct {
	candidates []candidate
	reloads    map[ir.Value]ir.Value // 原栈值 -> fill 结果，逐指令清空
	stats      Stats
}

// New 创建重载 Pass
func New() *Reload {
	return &Reload{
		reloads: make(map[ir.Value]ir.Value),
	}
}

// Clear 清空工作状态
func (r *Reload) Clear() {
	r.candidates = r.candidates[:0]
	for k := range r.reloads {
		delete(r.reloads, k)
	}
	r.stats = Stats{}
}

// Run 对函数执行重载，返回插入的 fill/spill 统计。
// 前置条件：cfg/domtree/liveness 均已就最新 IR 计算完毕。
func (r *Reload) Run(
	target isa.TargetIsa,
	fn *ir.Function,
	dt *domtree.DominatorTree,
	lv *liveness.Liveness,
	tracker *liveness.LiveValueTracker,
) Stats {
	r.Clear()
	tracker.Clear()

	// 逆后序 = 支配序的一个拓扑排序
	post := dt.CFGPostorder()
	for i := len(post) - 1; i >= 0; i-- {
		r.visitBlock(target, fn, post[i], dt, lv, tracker)
	}
	return r.stats
}

// ============================================================================
// 逐块处理
// ============================================================================

func (r *Reload) visitBlock(
	target isa.TargetIsa,
	fn *ir.Function,
	b ir.Block,
	dt *domtree.DominatorTree,
	lv *liveness.Liveness,
	tracker *liveness.LiveValueTracker,
) {
	tracker.EnterBlock(fn, b, dt, lv)

	nEntry := 0
	if b == fn.Entry() {
		nEntry = r.visitEntryParams(fn, b, lv)
	}
	tracker.DropDeadParams()

	// 布局会在遍历中被插入指令改动，用下标显式推进，
	// 新插入的 fill/spill 不再经过本循环。
	// 入口 ABI 对齐插入的 spill 同理跳过：其结果（原参数）
	// 已由跟踪器按块参数登记，再走一遍会重复登记。
	idx := nEntry
	for idx < len(fn.Layout.BlockInsts(b)) {
		inst := fn.Layout.BlockInsts(b)[idx]

		if !fn.IsEncoded(inst) {
			// 尚未下沉的指令原样跳过
			tracker.ProcessGhost(fn, inst)
			tracker.DropDead(inst)
			idx++
			continue
		}

		nBefore, nAfter := r.visitInst(target, fn, b, inst, lv, tracker)
		tracker.DropDead(inst)
		idx += nBefore + 1 + nAfter
	}
}

// visitEntryParams 入口块参数的 ABI 对齐。
// ABI 要求寄存器、偏好却是栈的参数：引入寄存器临时值作为真正的入参，
// 在块首立即 spill 产出原（栈偏好）值，保留原值身份。
// 返回插入到块首的 spill 条数。
func (r *Reload) visitEntryParams(fn *ir.Function, b ir.Block, lv *liveness.Liveness) (inserted int) {
	params := fn.Dfg.BlockParams(b)
	if len(params) != len(fn.Sig.Params) {
		panic(fmt.Sprintf("reload: entry %s has %d params, signature has %d", b, len(params), len(fn.Sig.Params)))
	}

	first := fn.Layout.FirstInst(b)
	for i := 0; i < len(params); i++ {
		p := fn.Dfg.BlockParams(b)[i]
		loc := fn.Sig.Params[i].Loc
		if loc.Kind != ir.AbiReg || !lv.Range(p).Affinity.IsStack() {
			continue
		}

		// 寄存器临时值顶替栈参数
		temp := fn.Dfg.SwapBlockParam(p)
		spillInst := fn.Dfg.MakeInst(ir.InstData{Op: ir.OpSpill, Args: []ir.Value{temp}})
		fn.Dfg.AttachResult(spillInst, p)
		if first != ir.InvalidInst {
			fn.Layout.InsertInstBefore(spillInst, first)
		} else {
			fn.Layout.AppendInst(spillInst, b)
		}
		fn.MarkEncoded(spillInst)

		// 临时值：块内短区间，到 spill 即亡
		lv.CreateLocalRange(temp, b, ir.InvalidInst, spillInst, liveness.RegAffinity(loc.Class))
		lv.MoveDef(p, spillInst)
		r.stats.Spills++
		inserted++
	}
	return inserted
}

// ============================================================================
// 逐指令处理
// ============================================================================

// visitInst 处理一条已选定编码的指令，
// 返回在它之前/之后插入的指令数，调用方据此推进布局下标。
func (r *Reload) visitInst(
	target isa.TargetIsa,
	fn *ir.Function,
	b ir.Block,
	inst ir.Inst,
	lv *liveness.Liveness,
	tracker *liveness.LiveValueTracker,
) (nBefore, nAfter int) {
	data := fn.Dfg.InstData(inst)
	constraints := target.Constraints(data.Op)

	// a. 收集重载候选
	r.candidates = r.candidates[:0]
	if constraints != nil {
		for i, c := range constraints.Args {
			if c.Kind != isa.ConstraintReg {
				continue
			}
			v := data.Args[i]
			if lv.Range(v).Affinity.IsStack() {
				r.candidates = append(r.candidates, candidate{value: v, class: c.Class})
			}
		}
	}
	// 变长 ABI 参数：所需寄存器类来自签名的逐参数 ABI 位置
	switch {
	case data.Op.IsCall():
		if data.Sig == nil {
			panic(fmt.Sprintf("reload: call %s without signature", inst))
		}
		for i, a := range data.Varargs {
			loc := data.Sig.Params[i].Loc
			if loc.Kind == ir.AbiReg && lv.Range(a).Affinity.IsStack() {
				r.candidates = append(r.candidates, candidate{value: a, class: loc.Class})
			}
		}
	case data.Op == ir.OpReturn:
		for i, a := range data.Varargs {
			loc := fn.Sig.Returns[i].Loc
			if loc.Kind == ir.AbiReg && lv.Range(a).Affinity.IsStack() {
				r.candidates = append(r.candidates, candidate{value: a, class: loc.Class})
			}
		}
	}

	// b. 后进先出处理候选，同栈值去重
	for len(r.candidates) > 0 {
		cand := r.candidates[len(r.candidates)-1]
		r.candidates = r.candidates[:len(r.candidates)-1]

		if _, done := r.reloads[cand.value]; done {
			// 本指令内已 fill 过，两个槽位共用同一个寄存器副本
			continue
		}

		fillInst := fn.Dfg.MakeInst(ir.InstData{Op: ir.OpFill, Args: []ir.Value{cand.value}})
		fillv := fn.Dfg.AppendResult(fillInst)
		fn.Layout.InsertInstBefore(fillInst, inst)
		fn.MarkEncoded(fillInst)

		// fill 结果：指令级局部区间，到当前指令即亡
		lv.CreateLocalRange(fillv, b, fillInst, inst, liveness.RegAffinity(cand.class))
		r.reloads[cand.value] = fillv
		nBefore++
		r.stats.Fills++
	}

	// c. 改写操作数指向寄存器副本
	if len(r.reloads) > 0 {
		fn.Dfg.RewriteArgs(inst, r.reloads)
	}

	// d. 清空逐指令映射
	for k := range r.reloads {
		delete(r.reloads, k)
	}

	// e. 推进跟踪器，取得定义值
	_, _, defs := tracker.ProcessInst(fn, inst, lv)

	// f. 栈偏好、寄存器约束的定义值：改产出寄存器临时值并立即 spill 回原值
	lastIns := inst
	for i := range defs {
		v := defs[i].Value
		if !lv.Range(v).Affinity.IsStack() {
			continue
		}
		class, isReg := resultRegClass(data, constraints, i)
		if !isReg {
			continue
		}

		temp := fn.Dfg.ReplaceResult(v)
		spillInst := fn.Dfg.MakeInst(ir.InstData{Op: ir.OpSpill, Args: []ir.Value{temp}})
		fn.Dfg.AttachResult(spillInst, v)
		fn.Layout.InsertInstAfter(spillInst, lastIns)
		fn.MarkEncoded(spillInst)
		lastIns = spillInst

		// 临时值：块内短区间，到 spill 即亡
		lv.CreateLocalRange(temp, b, inst, spillInst, liveness.RegAffinity(class))
		lv.MoveDef(v, spillInst)
		nAfter++
		r.stats.Spills++
	}

	return nBefore, nAfter
}

// resultRegClass 第 i 个结果的寄存器约束：
// 调用结果查被调签名，其余查配方约束。
func resultRegClass(data *ir.InstData, constraints *isa.RecipeConstraints, i int) (ir.RegClass, bool) {
	if data.Op.IsCall() && data.Sig != nil {
		if i < len(data.Sig.Returns) {
			loc := data.Sig.Returns[i].Loc
			if loc.Kind == ir.AbiReg {
				return loc.Class, true
			}
		}
		return 0, false
	}
	if constraints != nil && i < len(constraints.Results) {
		if constraints.Results[i].Kind == isa.ConstraintReg {
			return constraints.Results[i].Class, true
		}
	}
	return 0, false
}
