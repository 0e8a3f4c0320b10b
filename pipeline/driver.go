package pipeline

import (
	"runtime"
	"sort"
	"sync"

	"github.com/Urethramancer/ncdec/arch"
	"github.com/Urethramancer/ncdec/internal/logging"
	"github.com/Urethramancer/ncdec/ir"
	"github.com/Urethramancer/ncdec/ir/calling"
	"github.com/Urethramancer/ncdec/ir/cflow"
	"github.com/Urethramancer/ncdec/ir/dflow"
	"github.com/Urethramancer/ncdec/ir/liveness"
	"github.com/Urethramancer/ncdec/ir/vars"
)

// Result is one function's derived analysis tables, the pipeline's
// per-function output.
type Result struct {
	Function  *ir.Function
	Dataflow  *dflow.Dataflow
	Hooks     *calling.Hooks
	Structure *cflow.Node
	Liveness  *liveness.Liveness
	Variables *vars.Variables
	Err       error
}

// Driver orchestrates dataflow → calling-convention hooks → a second
// dataflow pass → structural analysis → liveness → variable
// reconstruction for every function of a Program, one goroutine per
// function bounded by a worker pool sized to GOMAXPROCS.
type Driver struct {
	Program      *ir.Program
	Arch         arch.Architecture
	Signatures   *calling.SignatureRepository
	SwitchResolver cflow.SwitchResolver
	Cancel       *CancelToken
	Log          *logging.Logger

	// Workers overrides the pool size; zero means runtime.GOMAXPROCS(0).
	Workers int

	// MaxDataflowIterations overrides the dataflow engine's per-block
	// fixpoint cap; zero keeps dflow.NewAnalyzer's default of 100.
	MaxDataflowIterations int

	// MaxStructuralPasses overrides the region-reduction pass cap; zero
	// keeps cflow.BuildGraph's default.
	MaxStructuralPasses int
}

// Run analyses every function and returns results ordered by entry
// address, independent of completion order, for deterministic emission.
func (d *Driver) Run() []*Result {
	fns := append([]*ir.Function{}, d.Program.Functions...)

	workers := d.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(fns) {
		workers = len(fns)
	}
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan *ir.Function)
	results := make([]*Result, len(fns))
	resultByFn := make(map[*ir.Function]int, len(fns))
	for i, fn := range fns {
		resultByFn[fn] = i
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for fn := range jobs {
				r := d.analyzeFunction(fn)
				mu.Lock()
				results[resultByFn[fn]] = r
				mu.Unlock()
			}
		}()
	}
	for _, fn := range fns {
		jobs <- fn
	}
	close(jobs)
	wg.Wait()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Function.Addr < results[j].Function.Addr
	})
	return results
}

func (d *Driver) analyzeFunction(fn *ir.Function) *Result {
	log := d.Log
	if log != nil {
		log = log.WithFunction(fn.Name)
	}

	if err := fn.CheckReachability(); err != nil {
		return &Result{Function: fn, Err: NewFunctionFatal(fn.Name, err)}
	}

	stackDomain := d.Arch.StackPointer()

	checker := d.Cancel
	if tok := checker.ThrowIfCancelled(fn.Name); tok != nil {
		return &Result{Function: fn, Err: tok}
	}

	first := dflow.NewAnalyzer(fn, stackDomain)
	first.Cancel = d.Cancel
	first.Log = log
	if d.MaxDataflowIterations > 0 {
		first.MaxIterations = d.MaxDataflowIterations
	}
	dataflow, err := first.Analyze()
	if err != nil {
		return &Result{Function: fn, Err: &Cancelled{Function: fn.Name}}
	}

	hooks := calling.NewHooks()
	conv := d.Arch.DefaultConvention()
	sig := d.Signatures.GetFunctionSignature(fn)
	hooks.Entry = calling.InstallEntryHook(fn, sig, conv, dataflow)
	d.installSiteHooks(fn, hooks, dataflow, conv, stackDomain)

	second := dflow.NewAnalyzer(fn, stackDomain)
	second.Cancel = d.Cancel
	second.Log = log
	if d.MaxDataflowIterations > 0 {
		second.MaxIterations = d.MaxDataflowIterations
	}
	dataflow, err = second.Analyze()
	if err != nil {
		return &Result{Function: fn, Err: &Cancelled{Function: fn.Name}}
	}

	graph := cflow.BuildGraph(fn)
	if d.MaxStructuralPasses > 0 {
		graph.PassCap = d.MaxStructuralPasses
	}
	structure := graph.Reduce(dataflow, d.SwitchResolver, func(addr uint64) *cflow.Node {
		b := fn.Program.BlockAt(addr)
		if b == nil {
			return nil
		}
		return graph.NodeForBlock(b)
	})

	la := &liveness.Analyzer{
		Function:   fn,
		Dataflow:   dataflow,
		Arch:       d.Arch,
		Hooks:      hooks,
		Signatures: d.Signatures,
		Structure:  structure,
	}
	live := la.Analyze()

	va := &vars.Analyzer{Function: fn, Dataflow: dataflow, Liveness: live}
	variables := va.Analyze()

	return &Result{
		Function:  fn,
		Dataflow:  dataflow,
		Hooks:     hooks,
		Structure: structure,
		Liveness:  live,
		Variables: variables,
	}
}

// installSiteHooks installs a CallHook at every call statement and a
// ReturnHook at every jump dflow.IsReturn recognises.
func (d *Driver) installSiteHooks(fn *ir.Function, hooks *calling.Hooks, dataflow *dflow.Dataflow, conv arch.Convention, stackDomain int32) {
	for _, b := range fn.Blocks {
		for _, s := range b.Statements {
			switch s.Kind {
			case ir.Call:
				sig := d.Signatures.GetCallSignature(s)
				hooks.Calls[s] = calling.InstallCallHook(s, sig, conv)
			case ir.Jump:
				if dflow.IsReturn(s, dataflow, stackDomain) {
					sig := d.Signatures.GetFunctionSignature(fn)
					hooks.Returns[s] = calling.InstallReturnHook(s, sig)
				}
			}
		}
	}
}
