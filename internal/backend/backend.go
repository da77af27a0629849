// backend.go - 每函数编译流水线
//
// Context 把后端分析层的全部可复用临时对象聚合在一起：
// 控制流图、支配树、循环分析、活跃性、活跃值跟踪器、重载缓冲区。
// 一个 Context 同一时刻只处理一个函数；批量编译想并行时，
// 每个工作线程各持有一个 Context，统计对象跨线程共享。

package backend

import (
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/tangzhangming/novac/internal/domtree"
	"github.com/tangzhangming/novac/internal/flowgraph"
	"github.com/tangzhangming/novac/internal/ir"
	"github.com/tangzhangming/novac/internal/isa"
	"github.com/tangzhangming/novac/internal/liveness"
	"github.com/tangzhangming/novac/internal/loops"
	"github.com/tangzhangming/novac/internal/reload"
	"github.com/tangzhangming/novac/internal/verifier"
)

// ============================================================================
// 统计
// ============================================================================

// Stats 跨 Context 共享的编译统计
type Stats struct {
	Functions    atomic.Int64 // 编译完成的函数数
	Fills        atomic.Int64 // 插入的 fill 指令数
	Spills       atomic.Int64 // 插入的 spill 指令数
	ReloadNanos  atomic.Int64 // 重载阶段累计耗时 (ns)
	VerifyErrors atomic.Int64 // 校验失败的函数数
}

// ============================================================================
// Context
// ============================================================================

// Options Context 的行为开关
type Options struct {
	// Verify 重载后执行一致性校验
	Verify bool
}

// Context 每函数编译流水线的可复用状态
type Context struct {
	target  isa.TargetIsa
	log     *zap.Logger
	opts    Options
	stats   *Stats
	cfg     *flowgraph.ControlFlowGraph
	dt      *domtree.DominatorTree
	loops   *loops.LoopAnalysis
	live    *liveness.Liveness
	tracker *liveness.LiveValueTracker
	reload  *reload.Reload

	// affinityHook 在活跃性分析之后、重载之前调用，
	// 寄存器分配器（或测试）在这里把溢出候选改成栈偏好
	affinityHook func(*liveness.Liveness)
}

// NewContext 创建编译流水线
func NewContext(target isa.TargetIsa, logger *zap.Logger, stats *Stats, opts Options) *Context {
	if logger == nil {
		logger = zap.NewNop()
	}
	if stats == nil {
		stats = &Stats{}
	}
	return &Context{
		target:  target,
		log:     logger.Named("backend"),
		opts:    opts,
		stats:   stats,
		cfg:     flowgraph.New(),
		dt:      domtree.New(),
		loops:   loops.New(),
		live:    liveness.New(),
		tracker: liveness.NewTracker(),
		reload:  reload.New(),
	}
}

// Reset 丢弃上一个函数遗留的全部分析状态。
// 复用 Context 编译互不相关的函数批次之间调用。
func (c *Context) Reset() {
	c.cfg.Clear()
	c.dt.Clear()
	c.loops.Clear()
	c.live.Clear()
	c.tracker.Clear()
	c.reload.Clear()
}

// CFG 返回最近一次 Compile 的控制流图（供下游着色阶段使用）
func (c *Context) CFG() *flowgraph.ControlFlowGraph {
	return c.cfg
}

// Loops 返回最近一次 Compile 的循环分析
func (c *Context) Loops() *loops.LoopAnalysis {
	return c.loops
}

// Liveness 返回最近一次 Compile 的活跃性分析
func (c *Context) Liveness() *liveness.Liveness {
	return c.live
}

// SetAffinityHook 注册亲和性调整回调
func (c *Context) SetAffinityHook(hook func(*liveness.Liveness)) {
	c.affinityHook = hook
}

// Compile 对一个函数执行分析与重载流水线：
// 编码选定 -> CFG -> 支配树 -> 循环 -> 活跃性 -> 重载 -> [校验]
func (c *Context) Compile(fn *ir.Function) error {
	log := c.log.With(zap.String("func", fn.Name))
	log.Debug("compile start", zap.Int("blocks", fn.NumBlocks()))

	isa.AssignEncodings(fn, c.target)

	c.cfg.Compute(fn)
	c.dt.Compute(fn, c.cfg)
	c.loops.Compute(fn, c.cfg, c.dt)
	log.Debug("analysis done", zap.Int("loops", c.loops.NumLoops()))

	c.live.Compute(fn, c.cfg, c.target)
	if c.affinityHook != nil {
		c.affinityHook(c.live)
	}

	start := time.Now()
	st := c.reload.Run(c.target, fn, c.dt, c.live, c.tracker)
	c.stats.ReloadNanos.Add(time.Since(start).Nanoseconds())
	c.stats.Fills.Add(int64(st.Fills))
	c.stats.Spills.Add(int64(st.Spills))

	if c.opts.Verify {
		// 重载插入了指令，先把 CFG 和支配树刷新到最新 IR
		c.cfg.Compute(fn)
		c.dt.Compute(fn, c.cfg)
		if err := verifier.Verify(fn, c.cfg, c.dt, c.loops); err != nil {
			c.stats.VerifyErrors.Inc()
			log.Error("verify failed", zap.Error(err))
			return err
		}
	}

	c.stats.Functions.Inc()
	log.Info("compile done",
		zap.Int("fills", st.Fills),
		zap.Int("spills", st.Spills),
	)
	return nil
}
