package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/wippyai/jvm-instrument/analyzer"
	"github.com/wippyai/jvm-instrument/classfile"
	"github.com/wippyai/jvm-instrument/instrument"
	"github.com/wippyai/jvm-instrument/typemodel"
)

func main() {
	var (
		classFile   = flag.String("class", "", "Path to a .class file")
		dir         = flag.String("dir", "", "Directory searched recursively for .class files")
		configFile  = flag.String("config", "", "Instrumentation config (TOML)")
		outPath     = flag.String("out", "", "Output file (with -class) or directory (with -dir)")
		analyze     = flag.Bool("analyze", false, "Print the type model and exit")
		disasm      = flag.Bool("disasm", false, "Print method bodies, after instrumentation if -config is set")
		dispatcher  = flag.String("dispatcher", "", "Internal name of the hook dispatcher class")
		enhanced    = flag.Bool("enhanced", false, "Enable the enhanced exception sensor")
		jobs        = flag.Int("j", runtime.NumCPU(), "Classes processed concurrently with -dir")
		verbose     = flag.Bool("v", false, "Debug logging")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if (*classFile == "") == (*dir == "") {
		fmt.Fprintln(os.Stderr, "Usage: instrument -class <file.class> [-config cfg.toml] [-out file] [-disasm]")
		fmt.Fprintln(os.Stderr, "       instrument -dir <classes> [-config cfg.toml] [-out dir] [-j n]")
		fmt.Fprintln(os.Stderr, "       instrument -class <file.class> -analyze")
		fmt.Fprintln(os.Stderr, "       instrument -dir <classes> -i  (interactive mode)")
		os.Exit(1)
	}

	logger := newLogger(*verbose)
	defer func() { _ = logger.Sync() }()
	instrument.SetLogger(logger)
	analyzer.SetLogger(logger)

	files, err := classFiles(*classFile, *dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *interactive {
		if err := runInteractive(files, *dispatcher); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *analyze {
		if err := runAnalyze(os.Stdout, files); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	var fc *fileConfig
	if *configFile != "" {
		if fc, err = loadConfig(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	if fc == nil && !*disasm {
		fmt.Fprintln(os.Stderr, "Error: nothing to do, pass -config, -disasm or -analyze")
		os.Exit(1)
	}

	b := &batch{
		root:   *dir,
		out:    *outPath,
		disasm: *disasm,
		jobs:   *jobs,
		logger: logger,
	}
	if fc != nil {
		if b.configs, err = fc.configs(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		b.opts = fc.options()
	}
	if *dispatcher != "" {
		b.opts.Dispatcher = *dispatcher
	}
	if *enhanced {
		b.opts.EnhancedExceptionSensor = true
	}
	b.opts.Logger = logger

	if err := b.run(context.Background(), os.Stdout, files); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(verbose bool) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// classFiles returns the single file or every .class file under dir, sorted.
func classFiles(file, dir string) ([]string, error) {
	if file != "" {
		return []string{file}, nil
	}
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".class") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

func runAnalyze(w io.Writer, files []string) error {
	reg := typemodel.NewRegistry()
	a := analyzer.New("")
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read file: %w", err)
		}
		if _, err := a.AnalyzeInto(reg, data); err != nil {
			return fmt.Errorf("%s: %w", f, err)
		}
	}
	for _, t := range reg.Types() {
		if t.Initialized() {
			printType(w, reg, t)
		}
	}
	return nil
}

func printType(w io.Writer, reg *typemodel.Registry, t *typemodel.Type) {
	fmt.Fprintf(w, "%s %s\n", t.Kind, t.FQN)
	for _, s := range t.SuperClasses {
		fmt.Fprintf(w, "  extends %s\n", s)
	}
	for _, s := range t.SuperInterfaces {
		fmt.Fprintf(w, "  extends %s\n", s)
	}
	for _, s := range t.RealizedInterfaces {
		fmt.Fprintf(w, "  implements %s\n", s)
	}
	for _, s := range t.Annotations {
		fmt.Fprintf(w, "  @%s\n", s)
	}
	for _, m := range t.Methods {
		fmt.Fprintf(w, "  %s %s %s", m.Character, m.ReturnType, m.Signature())
		if len(m.Exceptions) > 0 {
			fmt.Fprintf(w, " throws %s", strings.Join(m.Exceptions, ", "))
		}
		fmt.Fprintln(w)
	}
	if chain := reg.SuperClassChain(t.FQN); len(chain) > 1 {
		fmt.Fprintf(w, "  superclass chain: %s\n", strings.Join(chain, ", "))
	}
	if subs := reg.SubClasses(t.FQN); len(subs) > 0 {
		fmt.Fprintf(w, "  subclasses: %s\n", strings.Join(subs, ", "))
	}
	if impls := reg.RealizingClasses(t.FQN); len(impls) > 0 {
		fmt.Fprintf(w, "  realized by: %s\n", strings.Join(impls, ", "))
	}
}

// batch instruments or disassembles a set of class files. With a root
// directory the files are processed concurrently and written below out with
// their relative paths preserved.
type batch struct {
	logger  *zap.Logger
	opts    instrument.Options
	root    string
	out     string
	configs []instrument.Config
	jobs    int
	disasm  bool
}

type batchResult struct {
	file    string
	listing string
	methods []string
}

func (b *batch) run(ctx context.Context, w io.Writer, files []string) error {
	results := make([]batchResult, len(files))
	pool := sync.Pool{New: func() any { return instrument.New(b.opts) }}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(b.jobs, 1))
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ci := pool.Get().(*instrument.ClassInstrumenter)
			defer pool.Put(ci)
			r, err := b.process(ci, f)
			if err != nil {
				return fmt.Errorf("%s: %w", f, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var modified int
	for _, r := range results {
		if len(r.methods) > 0 {
			modified++
			fmt.Fprintf(w, "%s: %s\n", r.file, strings.Join(r.methods, ", "))
		}
		if r.listing != "" {
			fmt.Fprint(w, r.listing)
		}
	}
	if b.configs != nil {
		fmt.Fprintf(w, "%d of %d classes instrumented\n", modified, len(files))
	}
	return nil
}

func (b *batch) process(ci *instrument.ClassInstrumenter, file string) (batchResult, error) {
	r := batchResult{file: file}
	data, err := os.ReadFile(file)
	if err != nil {
		return r, fmt.Errorf("read file: %w", err)
	}

	if b.configs != nil {
		res, err := ci.Instrument(data, b.configs)
		if err != nil {
			return r, err
		}
		r.methods = res.Methods
		if res.Modified {
			if err := b.write(file, res.Bytes); err != nil {
				return r, err
			}
			data = res.Bytes
		}
	}

	if b.disasm {
		listing, err := disassemble(data, r.methods)
		if err != nil {
			return r, err
		}
		r.listing = listing
	}
	return r, nil
}

func (b *batch) write(file string, data []byte) error {
	if b.out == "" {
		return nil
	}
	dest := b.out
	if b.root != "" {
		rel, err := filepath.Rel(b.root, file)
		if err != nil {
			return err
		}
		dest = filepath.Join(b.out, rel)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", dest, err)
	}
	b.logger.Debug("wrote class", zap.String("path", dest), zap.Int("bytes", len(data)))
	return nil
}

// disassemble lists the bodies of the named methods (name+descriptor), or
// of every method when only is empty.
func disassemble(data []byte, only []string) (string, error) {
	cf, err := classfile.Parse(data)
	if err != nil {
		return "", err
	}
	want := make(map[string]bool, len(only))
	for _, m := range only {
		want[m] = true
	}

	var sb strings.Builder
	for i := range cf.Methods {
		m := &cf.Methods[i]
		sig := cf.MemberName(m) + cf.MemberDescriptor(m)
		if len(want) > 0 && !want[sig] {
			continue
		}
		fmt.Fprintf(&sb, "%s.%s [%s]\n", classfile.JavaClassName(cf.Name()), sig, classfile.MethodFlagNames(m.AccessFlags))
		if cf.FindAttribute(m.Attributes, classfile.AttrCode) < 0 {
			sb.WriteString("    no code\n\n")
			continue
		}
		code, err := cf.DecodeCode(m)
		if err != nil {
			return "", err
		}
		sb.WriteString(classfile.Disassemble(cf.ConstantPool, code))
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}
