// Lox CLI - the main entry point for running Lox programs
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/lox/lib/cache"
	"github.com/chazu/lox/manifest"
	"github.com/chazu/lox/pkg/bytecode"
)

// Exit codes follow the sysexits convention: 64 usage, 65 data (compile)
// error, 70 software (runtime) error, 74 I/O error.
const (
	exitUsage        = 64
	exitCompileError = 65
	exitRuntimeError = 70
	exitIOError      = 74
)

var log = commonlog.GetLogger("lox.cli")

func main() {
	verbose := flag.Int("v", 0, "Log verbosity (0 = quiet)")
	trace := flag.Bool("trace", false, "Trace each instruction as it executes")
	disasm := flag.Bool("disasm", false, "Dump each chunk as it finishes compiling")
	gcStress := flag.Bool("gc-stress", false, "Collect on every allocation")
	logGC := flag.Bool("log-gc", false, "Log collection cycles")
	noCache := flag.Bool("no-cache", false, "Skip the compiled-chunk cache")
	compileOnly := flag.Bool("c", false, "Compile to a .loxc container instead of running")
	output := flag.String("o", "", "Output path for -c (default: input with .loxc extension)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: lox [options] [path]\n\n")
		fmt.Fprintf(os.Stderr, "With no path, starts an interactive REPL.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  lox                    # Start REPL\n")
		fmt.Fprintf(os.Stderr, "  lox program.lox        # Run a program\n")
		fmt.Fprintf(os.Stderr, "  lox -c program.lox     # Compile to program.loxc\n")
		fmt.Fprintf(os.Stderr, "  lox program.loxc       # Run precompiled bytecode\n")
		fmt.Fprintf(os.Stderr, "  lox -trace program.lox # Run with an instruction trace\n")
	}
	flag.Parse()

	commonlog.Configure(*verbose, nil)

	cfg, err := manifest.FindAndLoad(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading lox.toml: %v\n", err)
		os.Exit(1)
	}

	vm := bytecode.NewVM()
	vm.TraceExecution = *trace || cfg.Debug.Trace
	vm.PrintDisasm = *disasm || cfg.Debug.Disasm
	vm.StressGC = *gcStress || cfg.GC.Stress
	vm.LogGC = *logGC || cfg.GC.Log
	vm.HeapGrowFactor = cfg.GC.GrowFactor
	vm.SetInitialThreshold(cfg.GC.InitialThreshold)

	var store *cache.Store
	if cfg.Cache.Enabled && !*noCache && !*compileOnly {
		store, err = cache.Open(cfg.CachePath())
		if err != nil {
			// The cache is an accelerator; a broken one must not stop
			// the program from running.
			log.Warningf("disabling chunk cache: %v", err)
			store = nil
		} else {
			defer store.Close()
		}
	}

	switch flag.NArg() {
	case 0:
		if *compileOnly {
			fmt.Fprintln(os.Stderr, "Error: -c requires a source path")
			os.Exit(exitUsage)
		}
		repl(vm)
	case 1:
		path := flag.Arg(0)
		if *compileOnly {
			compileFile(vm, path, *output)
			return
		}
		runFile(vm, store, path)
	default:
		flag.Usage()
		os.Exit(exitUsage)
	}
}

// repl reads and interprets one line at a time. Errors do not exit; globals
// and interned strings persist across lines. EOF ends the session.
func repl(vm *bytecode.VM) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		vm.Interpret(scanner.Text())
	}
}

// runFile loads a program (source or precompiled) and exits with the
// appropriate status code.
func runFile(vm *bytecode.VM, store *cache.Store, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not open file %q: %v\n", path, err)
		os.Exit(exitIOError)
	}

	var result bytecode.InterpretResult
	if strings.HasSuffix(path, ".loxc") {
		fn, err := vm.DecodeFunction(data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading bytecode %q: %v\n", path, err)
			os.Exit(exitCompileError)
		}
		result = vm.InterpretFunction(fn)
	} else {
		result = interpretSource(vm, store, string(data))
	}

	switch result {
	case bytecode.ResultCompileError:
		os.Exit(exitCompileError)
	case bytecode.ResultRuntimeError:
		os.Exit(exitRuntimeError)
	}
}

// interpretSource runs source text, consulting the chunk cache when one is
// open.
func interpretSource(vm *bytecode.VM, store *cache.Store, source string) bytecode.InterpretResult {
	if store != nil {
		if data, err := store.Get(source); err == nil {
			if fn, err := vm.DecodeFunction(data); err == nil {
				log.Debugf("cache hit for %s", cache.Key(source))
				return vm.InterpretFunction(fn)
			}
			// A corrupt entry falls through to a fresh compile.
			log.Warningf("ignoring corrupt cache entry %s", cache.Key(source))
		} else if !errors.Is(err, cache.ErrNotFound) {
			log.Warningf("cache read failed: %v", err)
		}
	}

	fn, err := vm.Compile(source)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return bytecode.ResultCompileError
	}

	if store != nil {
		if data, err := bytecode.EncodeFunction(fn); err == nil {
			if err := store.Put(source, data); err != nil {
				log.Warningf("cache write failed: %v", err)
			}
		}
	}

	return vm.InterpretFunction(fn)
}

// compileFile compiles source to a .loxc container without running it.
func compileFile(vm *bytecode.VM, path, output string) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not open file %q: %v\n", path, err)
		os.Exit(exitIOError)
	}

	fn, err := vm.Compile(string(data))
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(exitCompileError)
	}

	encoded, err := bytecode.EncodeFunction(fn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding bytecode: %v\n", err)
		os.Exit(1)
	}

	if output == "" {
		output = strings.TrimSuffix(path, ".lox") + ".loxc"
	}
	if err := os.WriteFile(output, encoded, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %q: %v\n", output, err)
		os.Exit(1)
	}
	log.Infof("compiled %s -> %s (%d bytes)", path, output, len(encoded))
}
