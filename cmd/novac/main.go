package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tangzhangming/novac/internal/backend"
	"github.com/tangzhangming/novac/internal/config"
	"github.com/tangzhangming/novac/internal/ir"
	"github.com/tangzhangming/novac/internal/isa"
	"github.com/tangzhangming/novac/internal/liveness"
)

var (
	configPath = flag.String("config", "", "Path to novac.toml")
	dumpIR     = flag.Bool("dump", false, "Dump IR after compilation")
	noVerify   = flag.Bool("noverify", false, "Skip post-pass verification")
)

func main() {
	flag.Parse()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	logger, err := backend.BuildLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.Target.Name != "x64" {
		fmt.Fprintf(os.Stderr, "Unknown target: %s\n", cfg.Target.Name)
		os.Exit(1)
	}
	target := isa.NewX64()

	stats := &backend.Stats{}
	ctx := backend.NewContext(target, logger, stats, backend.Options{Verify: !*noVerify})

	type sample struct {
		fn   *ir.Function
		hook func(*liveness.Liveness)
	}
	samples := []sample{
		{fn: buildStraightLine()},
		{fn: buildDiamond()},
		{fn: buildNestedLoops()},
	}

	// 高压样例：同时活跃的 GPR 值超过目标容量，
	// 用亲和性回调模拟分配器的溢出决策，驱动重载插入 fill/spill
	pressure, spilled := buildSpillPressure(gprCount(target))
	samples = append(samples, sample{
		fn: pressure,
		hook: func(lv *liveness.Liveness) {
			for _, v := range spilled {
				lv.SetAffinity(v, liveness.StackAffinity())
			}
		},
	})

	for _, s := range samples {
		ctx.SetAffinityHook(s.hook)
		if err := ctx.Compile(s.fn); err != nil {
			fmt.Fprintf(os.Stderr, "Error compiling %s: %v\n", s.fn.Name, err)
			os.Exit(1)
		}
		if *dumpIR || cfg.Dump.IR {
			out, err := backend.DumpFunction(s.fn, ctx.CFG())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error dumping %s: %v\n", s.fn.Name, err)
				os.Exit(1)
			}
			fmt.Printf("=== %s ===\n%s\n", s.fn.Name, out)
		}
		if cfg.Dump.Liveness {
			out, err := backend.DumpLiveness(s.fn, ctx.Liveness())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error dumping liveness of %s: %v\n", s.fn.Name, err)
				os.Exit(1)
			}
			fmt.Printf("=== %s liveness ===\n%s\n", s.fn.Name, out)
		}
	}

	fmt.Printf("compiled %d functions, %d fills, %d spills\n",
		stats.Functions.Load(), stats.Fills.Load(), stats.Spills.Load())
}

// gprCount 返回目标的可分配 GPR 数量
func gprCount(target isa.TargetIsa) int {
	for _, rc := range target.RegClasses() {
		if rc.Class == ir.GPR {
			return rc.Count
		}
	}
	return 0
}

// buildStraightLine 单块函数：入口参数经寄存器传入，结果直接返回
func buildStraightLine() *ir.Function {
	fn := ir.NewFunction("straight")
	fn.Sig = ir.Signature{
		Params: []ir.AbiParam{
			{Loc: ir.RegLoc(ir.GPR)},
			{Loc: ir.RegLoc(ir.GPR)},
		},
		Returns: []ir.AbiParam{{Loc: ir.RegLoc(ir.GPR)}},
	}

	b := ir.NewBuilder(fn)
	entry := b.Block()
	x := b.BlockParam(entry)
	y := b.BlockParam(entry)
	sum := b.Iadd(x, y)
	b.Return(sum)
	return fn
}

// buildDiamond 菱形控制流：入口分叉到两个分支，汇合块经块参数接收结果
func buildDiamond() *ir.Function {
	fn := ir.NewFunction("diamond")
	fn.Sig = ir.Signature{
		Params:  []ir.AbiParam{{Loc: ir.RegLoc(ir.GPR)}},
		Returns: []ir.AbiParam{{Loc: ir.RegLoc(ir.GPR)}},
	}

	b := ir.NewBuilder(fn)
	entry := b.Block()
	then := fn.AddBlock()
	merge := fn.AddBlock()
	mv := b.BlockParam(merge)

	cond := b.BlockParam(entry)
	b.Brnz(cond, then)
	b.Iconst()
	b.Jump(merge)

	b.SwitchTo(then)
	two := b.Iconst()
	b.Iadd(two, cond)
	b.Jump(merge)

	b.SwitchTo(merge)
	b.Return(mv)
	return fn
}

// buildNestedLoops 两层嵌套循环：外层头支配内层头，回边各一条
func buildNestedLoops() *ir.Function {
	fn := ir.NewFunction("nested")
	fn.Sig = ir.Signature{
		Params:  []ir.AbiParam{{Loc: ir.RegLoc(ir.GPR)}},
		Returns: nil,
	}

	b := ir.NewBuilder(fn)
	entry := b.Block()
	outer := fn.AddBlock()
	inner := fn.AddBlock()
	exit := fn.AddBlock()

	n := b.BlockParam(entry)
	b.Jump(outer)

	b.SwitchTo(outer)
	b.Jump(inner)

	b.SwitchTo(inner)
	b.Brnz(n, inner) // 内层回边
	b.Brnz(n, outer) // 外层回边
	b.Jump(exit)

	b.SwitchTo(exit)
	b.Return()
	return fn
}

// buildSpillPressure 单块高压函数：定义超过寄存器容量的常量再全部累加。
// 返回超出容量的值，调用方把它们降级成栈偏好。
func buildSpillPressure(numRegs int) (*ir.Function, []ir.Value) {
	fn := ir.NewFunction("pressure")
	fn.Sig = ir.Signature{
		Returns: []ir.AbiParam{{Loc: ir.RegLoc(ir.GPR)}},
	}

	b := ir.NewBuilder(fn)
	b.Block()

	vals := make([]ir.Value, numRegs+2)
	for i := range vals {
		vals[i] = b.Iconst()
	}
	sum := b.Iadd(vals[0], vals[1])
	for _, v := range vals[2:] {
		sum = b.Iadd(sum, v)
	}
	b.Return(sum)
	return fn, vals[numRegs:]
}
