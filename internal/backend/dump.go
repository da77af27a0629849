// dump.go - IR 调试输出
//
// 把函数 IR 与控制流图导出为 JSON，方便外部工具查看
// 重载前后的变化。只在调试路径上使用，不影响编译流水线。

package backend

import (
	"github.com/segmentio/encoding/json"

	"github.com/tangzhangming/novac/internal/flowgraph"
	"github.com/tangzhangming/novac/internal/ir"
	"github.com/tangzhangming/novac/internal/liveness"
)

// instDump 单条指令的导出形式
type instDump struct {
	Inst    string   `json:"inst"`
	Op      string   `json:"op"`
	Args    []string `json:"args,omitempty"`
	Varargs []string `json:"varargs,omitempty"`
	Results []string `json:"results,omitempty"`
	Dest    string   `json:"dest,omitempty"`
	Encoded bool     `json:"encoded"`
}

// blockDump 单个块的导出形式
type blockDump struct {
	Block  string     `json:"block"`
	Params []string   `json:"params,omitempty"`
	Succs  []string   `json:"succs,omitempty"`
	Insts  []instDump `json:"insts"`
}

// funcDump 整个函数的导出形式
type funcDump struct {
	Name   string      `json:"name"`
	Blocks []blockDump `json:"blocks"`
}

// DumpFunction 把函数 IR（可选带 CFG 后继）导出为 JSON
func DumpFunction(fn *ir.Function, cfg *flowgraph.ControlFlowGraph) ([]byte, error) {
	out := funcDump{Name: fn.Name}

	for _, b := range fn.Layout.Blocks() {
		bd := blockDump{Block: b.String()}
		for _, p := range fn.Dfg.BlockParams(b) {
			bd.Params = append(bd.Params, p.String())
		}
		if cfg != nil && cfg.IsValid() {
			for _, s := range cfg.Successors(b) {
				bd.Succs = append(bd.Succs, s.String())
			}
		}
		for _, inst := range fn.Layout.BlockInsts(b) {
			data := fn.Dfg.InstData(inst)
			id := instDump{
				Inst:    inst.String(),
				Op:      data.Op.String(),
				Encoded: fn.IsEncoded(inst),
			}
			for _, a := range data.Args {
				id.Args = append(id.Args, a.String())
			}
			for _, a := range data.Varargs {
				id.Varargs = append(id.Varargs, a.String())
			}
			for _, r := range fn.Dfg.InstResults(inst) {
				id.Results = append(id.Results, r.String())
			}
			if data.Op.IsBranch() && data.Dest != ir.InvalidBlock {
				id.Dest = data.Dest.String()
			}
			bd.Insts = append(bd.Insts, id)
		}
		out.Blocks = append(out.Blocks, bd)
	}

	return json.MarshalIndent(out, "", "  ")
}

// rangeDump 单个值活跃区间的导出形式
type rangeDump struct {
	Value    string `json:"value"`
	Affinity string `json:"affinity"`
	DefBlock string `json:"def_block"`
	Local    bool   `json:"local"`
	Dead     bool   `json:"dead"`
}

// livenessDump 整个函数活跃性分析的导出形式
type livenessDump struct {
	Name   string      `json:"name"`
	Ranges []rangeDump `json:"ranges"`
}

// DumpLiveness 把活跃区间与存储偏好导出为 JSON
func DumpLiveness(fn *ir.Function, lv *liveness.Liveness) ([]byte, error) {
	out := livenessDump{Name: fn.Name}

	for i := 0; i < fn.Dfg.NumValues(); i++ {
		v := ir.Value(i)
		if !lv.HasRange(v) {
			continue
		}
		lr := lv.Range(v)
		out.Ranges = append(out.Ranges, rangeDump{
			Value:    v.String(),
			Affinity: lr.Affinity.String(),
			DefBlock: lr.DefBlock().String(),
			Local:    lr.IsLocal(),
			Dead:     lr.IsDead(),
		})
	}

	return json.MarshalIndent(out, "", "  ")
}
