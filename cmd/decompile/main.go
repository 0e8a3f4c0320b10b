// Command decompile is the reference CLI wrapper around the core
// pipeline. It loads a flat binary image, runs the per-function analysis
// pipeline, and prints whichever views were asked for.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Urethramancer/ncdec/arch"
	archarm "github.com/Urethramancer/ncdec/arch/arm"
	archmips "github.com/Urethramancer/ncdec/arch/mips"
	archx86 "github.com/Urethramancer/ncdec/arch/x86"
	"github.com/Urethramancer/ncdec/cgen"
	"github.com/Urethramancer/ncdec/config"
	"github.com/Urethramancer/ncdec/fixtures"
	"github.com/Urethramancer/ncdec/image"
	"github.com/Urethramancer/ncdec/internal/logging"
	"github.com/Urethramancer/ncdec/ir"
	"github.com/Urethramancer/ncdec/ir/calling"
	"github.com/Urethramancer/ncdec/ir/cflow"
	"github.com/Urethramancer/ncdec/ir/dflow"
	"github.com/Urethramancer/ncdec/mangling"
	"github.com/Urethramancer/ncdec/pipeline"
)

// printFlag is an optionally-valued flag: "--print-ir" prints to stdout,
// "--print-ir=file.txt" prints to that file.
type printFlag struct {
	set  bool
	path string
}

func (f *printFlag) String() string {
	if !f.set {
		return ""
	}
	return f.path
}

func (f *printFlag) Set(s string) error {
	f.set = true
	f.path = s
	return nil
}

func (f *printFlag) Type() string { return "file" }

// NoOptDefVal must be non-empty for pflag to allow a bare "--flag" with no
// "=value" to still call Set; main() registers this on every printFlag.
const bareFlagMarker = "-"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var (
		configFile  string
		archName    string
		workers     int
		baseAddr    uint64
		colorOutput bool

		printSections     printFlag
		printInstructions printFlag
		printCFG          printFlag
		printIR           printFlag
		printRegions      printFlag
		printCxx          printFlag
		inlineFunction    uint64
		inlineCall        uint64
		listParsers       bool
	)

	root := &cobra.Command{
		Use:   "decompile [binary]",
		Short: "Reconstruct a C-like program from a machine-code executable",
		Args:  cobra.MaximumNArgs(1),
	}

	root.SetArgs(args)

	fs := root.Flags()
	fs.StringVar(&configFile, "config", "", "path to an ncdec.yaml config file")
	fs.StringVar(&archName, "arch", "", "target architecture: x86-64, arm, mips")
	fs.IntVar(&workers, "workers", 0, "analysis worker pool size (0 = GOMAXPROCS)")
	fs.Uint64Var(&baseAddr, "base", 0x1000, "load address for the flat binary's single section")
	fs.BoolVar(&colorOutput, "color", false, "colorize --print-cxx keywords")

	registerPrintFlag(fs, &printSections, "print-sections", "print the image's sections")
	registerPrintFlag(fs, &printInstructions, "print-instructions", "print the disassembled instruction stream")
	registerPrintFlag(fs, &printCFG, "print-cfg", "print each function's basic-block successor graph")
	registerPrintFlag(fs, &printIR, "print-ir", "print each function's lowered IR")
	registerPrintFlag(fs, &printRegions, "print-regions", "print each function's reduced region tree")
	registerPrintFlag(fs, &printCxx, "print-cxx", "print each function's C-like rendering")
	fs.Uint64Var(&inlineFunction, "inline-function", 0, "inline every call within this function")
	fs.Uint64Var(&inlineCall, "inline-call", 0, "inline the call at this address")
	fs.BoolVar(&listParsers, "list-parsers", false, "list the supported file-format loaders and exit")

	var exitCode int
	root.RunE = func(cmd *cobra.Command, cmdArgs []string) error {
		if listParsers {
			fmt.Fprintln(cmd.OutOrStdout(), "flat (raw bytes loaded at --base, no format parsing)")
			return nil
		}

		cfg, err := config.Load(configFile, fs)
		if err != nil {
			return err
		}
		if archName != "" {
			cfg.Architecture = archName
		}
		if workers != 0 {
			cfg.Workers = workers
		}
		if colorOutput {
			cfg.Color = true
		}

		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			return errors.Wrapf(err, "invalid log level %q", cfg.LogLevel)
		}
		base := logrus.New()
		base.SetLevel(level)
		base.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
		log := logging.New(base)

		selectedArch, err := resolveArchitecture(cfg.Architecture)
		if err != nil {
			return err
		}

		var img *image.Image
		var prog *ir.Program
		if len(cmdArgs) == 1 {
			data, err := os.ReadFile(cmdArgs[0])
			if err != nil {
				return errors.Wrapf(err, "reading %s", cmdArgs[0])
			}
			img = loadFlatImage(data, baseAddr)
		} else {
			// No binary given: fall back to the built-in demonstration
			// program so every --print-* flag still has something to show.
			// A real file-format loader and instruction lifter are out of
			// scope here; see the fixtures package doc.
			prog = fixtures.GCD()
		}

		if printSections.set {
			w, closeFn, err := openSink(printSections.path)
			if err != nil {
				return err
			}
			printImageSections(w, img)
			closeFn()
		}

		if printInstructions.set {
			w, closeFn, err := openSink(printInstructions.path)
			if err != nil {
				return err
			}
			printDisassembly(w, img, selectedArch)
			closeFn()
		}

		if prog == nil && (printCFG.set || printIR.set || printRegions.set || printCxx.set) {
			prog = fixtures.GCD()
		}

		if prog != nil {
			if inlineCall != 0 {
				if err := inlineAtAddress(prog, selectedArch, inlineCall); err != nil {
					log.Warningf("inline-call 0x%x: %v", inlineCall, err)
				}
			}
			if inlineFunction != 0 {
				if err := inlineAllCallsIn(prog, selectedArch, inlineFunction); err != nil {
					log.Warningf("inline-function 0x%x: %v", inlineFunction, err)
				}
			}

			driver := &pipeline.Driver{
				Program:               prog,
				Arch:                  selectedArch,
				Signatures:            calling.NewSignatureRepository(),
				SwitchResolver:        &pipeline.ImageJumpTableResolver{Image: img, EntryWidth: 4},
				Cancel:                pipeline.NewCancelToken(nil),
				Log:                   log,
				Workers:               cfg.Workers,
				MaxDataflowIterations: cfg.MaxDataflowIterations,
				MaxStructuralPasses:   cfg.MaxStructuralPasses,
			}
			results := driver.Run()

			if printCFG.set {
				w, closeFn, err := openSink(printCFG.path)
				if err != nil {
					return err
				}
				printCFGs(w, results)
				closeFn()
			}
			if printIR.set {
				w, closeFn, err := openSink(printIR.path)
				if err != nil {
					return err
				}
				printIRs(w, results)
				closeFn()
			}
			if printRegions.set {
				w, closeFn, err := openSink(printRegions.path)
				if err != nil {
					return err
				}
				printRegionTrees(w, results)
				closeFn()
			}
			if printCxx.set {
				w, closeFn, err := openSink(printCxx.path)
				if err != nil {
					return err
				}
				printCxxRendering(w, results, cfg.Color)
				closeFn()
			}

			for _, r := range results {
				if r.Err != nil {
					log.Errorf("%s: %v", r.Function.Name, r.Err)
					exitCode = 1
				}
			}
		}

		return nil
	}
	root.SilenceUsage = true

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		return 1
	}
	return exitCode
}

func registerPrintFlag(fs *pflag.FlagSet, f *printFlag, name, usage string) {
	fs.Var(f, name, usage)
	lf := fs.Lookup(name)
	lf.NoOptDefVal = bareFlagMarker
}

func resolveArchitecture(name string) (arch.Architecture, error) {
	switch name {
	case "", "x86-64", "x86":
		return archx86.New(), nil
	case "arm":
		return archarm.New(), nil
	case "mips":
		return archmips.New(), nil
	default:
		return nil, errors.Errorf("unknown architecture %q", name)
	}
}

func loadFlatImage(data []byte, base uint64) *image.Image {
	return image.New([]*image.Section{{
		Name:      ".text",
		Addr:      image.Address(base),
		Size:      uint64(len(data)),
		Flags:     image.FlagAllocated | image.FlagReadable | image.FlagExecutable | image.FlagCode,
		ByteOrder: image.LittleEndian,
		Data:      data,
	}})
}

func openSink(path string) (w *os.File, closeFn func(), err error) {
	if path == "" || path == bareFlagMarker {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "creating %s", path)
	}
	return f, func() { f.Close() }, nil
}

func printImageSections(w *os.File, img *image.Image) {
	if img == nil {
		fmt.Fprintln(w, "(no image loaded; pass a binary argument)")
		return
	}
	for _, s := range img.Sections() {
		fmt.Fprintf(w, "%-10s addr=0x%08x size=%-8d flags=0x%x\n", s.Name, uint64(s.Addr), s.Size, s.Flags)
	}
}

func printDisassembly(w *os.File, img *image.Image, a arch.Architecture) {
	if img == nil {
		fmt.Fprintln(w, "(no image loaded; pass a binary argument)")
		return
	}
	dec := a.Disassembler()
	for _, s := range img.Sections() {
		if !s.Flags.Has(image.FlagExecutable) {
			continue
		}
		addr := uint64(s.Addr)
		end := addr + s.Size
		lookahead := make([]byte, a.MaxInstructionSize())
		for addr < end {
			n, err := img.ReadBytes(image.Address(addr), lookahead)
			if err != nil || n == 0 {
				break
			}
			inst, ok := dec.Disassemble(addr, lookahead[:n])
			if !ok {
				fmt.Fprintf(w, "0x%08x: (undecodable)\n", addr)
				addr++
				continue
			}
			fmt.Fprintf(w, "0x%08x: %s\n", addr, inst.Mnemonic)
			addr += uint64(inst.Size())
		}
	}
}

func printCFGs(w *os.File, results []*pipeline.Result) {
	for _, r := range results {
		fmt.Fprintf(w, "function %s @0x%x\n", r.Function.Name, r.Function.Addr)
		for _, b := range r.Function.Blocks {
			fmt.Fprintf(w, "  block 0x%08x ->", b.Addr)
			for _, succ := range b.Successors() {
				fmt.Fprintf(w, " 0x%08x", succ.Addr)
			}
			fmt.Fprintln(w)
		}
	}
}

func printIRs(w *os.File, results []*pipeline.Result) {
	for _, r := range results {
		fmt.Fprintf(w, "function %s @0x%x\n", r.Function.Name, r.Function.Addr)
		for _, b := range r.Function.Blocks {
			fmt.Fprintf(w, "  block 0x%08x:\n", b.Addr)
			for _, s := range b.Statements {
				fmt.Fprintf(w, "    %s\n", s.Kind)
			}
		}
	}
}

func printRegionTrees(w *os.File, results []*pipeline.Result) {
	for _, r := range results {
		fmt.Fprintf(w, "function %s @0x%x\n", r.Function.Name, r.Function.Addr)
		printRegionNode(w, r.Structure, 1)
	}
}

func printRegionNode(w *os.File, n *cflow.Node, depth int) {
	if n == nil {
		return
	}
	indent := ""
	for i := 0; i < depth; i++ {
		indent += "  "
	}
	switch n.Kind {
	case cflow.Leaf:
		fmt.Fprintf(w, "%sLeaf 0x%08x\n", indent, n.BasicBlock.Addr)
	case cflow.Switch:
		fmt.Fprintf(w, "%sSwitch (max=%d, cases=%d)\n", indent, n.MaxValue, len(n.Cases))
		for _, c := range n.Cases {
			fmt.Fprintf(w, "%s  case %d:\n", indent, c.Value)
			printRegionNode(w, c.Target, depth+2)
		}
		printRegionNode(w, n.Default, depth+1)
	case cflow.NaturalLoop:
		fmt.Fprintf(w, "%sNaturalLoop\n", indent)
		for _, m := range n.Members {
			printRegionNode(w, m, depth+1)
		}
	default:
		fmt.Fprintf(w, "%s%s\n", indent, n.Kind)
		for _, c := range n.Children {
			printRegionNode(w, c, depth+1)
		}
	}
}

func printCxxRendering(w *os.File, results []*pipeline.Result, useColor bool) {
	var demangler mangling.Demangler = mangling.Gnu{}
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		p := &cgen.Printer{W: w, Live: r.Liveness, Variables: r.Variables, Demangler: demangler, Color: useColor}
		p.PrintFunction(r.Function, r.Structure)
	}
}

func inlineAtAddress(prog *ir.Program, a arch.Architecture, callAddr uint64) error {
	for _, fn := range prog.Functions {
		for _, b := range fn.Blocks {
			for _, s := range b.Statements {
				if s.Kind == ir.Call && s.HasInstrAddr && s.InstrAddr == callAddr {
					return inlineCallStatement(prog, a, fn, s)
				}
			}
		}
	}
	return errors.Errorf("no call statement at 0x%x", callAddr)
}

func inlineAllCallsIn(prog *ir.Program, a arch.Architecture, fnAddr uint64) error {
	fn := prog.FunctionAt(fnAddr)
	if fn == nil {
		return errors.Errorf("no function at 0x%x", fnAddr)
	}
	for _, b := range append([]*ir.BasicBlock{}, fn.Blocks...) {
		for _, s := range append([]*ir.Statement{}, b.Statements...) {
			if s.Kind == ir.Call {
				if err := inlineCallStatement(prog, a, fn, s); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func inlineCallStatement(prog *ir.Program, a arch.Architecture, caller *ir.Function, call *ir.Statement) error {
	target, ok := resolveCallTarget(call)
	if !ok {
		return errors.New("call target is not a statically known address")
	}
	callee := prog.FunctionAt(target)
	if callee == nil {
		return errors.Errorf("no function at call target 0x%x", target)
	}
	stackDomain := a.StackPointer()
	calleeFlow, err := dflow.NewAnalyzer(callee, stackDomain).Analyze()
	if err != nil {
		return errors.Wrap(err, "analyzing callee for inlining")
	}
	return pipeline.InlineCall(caller, call, callee, calleeFlow, stackDomain)
}

func resolveCallTarget(call *ir.Statement) (uint64, bool) {
	if call.Target != nil && call.Target.Kind == ir.IntConst {
		return call.Target.Value, true
	}
	return 0, false
}
