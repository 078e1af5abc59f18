// Varprobe - probe, record, and verify variant coercion behavior
package main

import (
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"math"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/comvar/config"
	"github.com/chazu/comvar/conformance"
	"github.com/chazu/comvar/oleauto"
	"github.com/chazu/comvar/variant"
)

func main() {
	configDir := flag.String("config", ".", "Directory containing comvar.toml")
	sweep := flag.Bool("sweep", false, "Run a coercion sweep and print the matrix")
	record := flag.String("record", "", "Record the sweep into the given fixture database")
	verify := flag.String("verify", "", "Replay the given fixture database against the portable runtime")
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: varprobe [options]\n\n")
		fmt.Fprintf(os.Stderr, "Probes the portable variant coercion runtime.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  varprobe -sweep                  # Print the coercion matrix\n")
		fmt.Fprintf(os.Stderr, "  varprobe -record coercions.db    # Record fixtures\n")
		fmt.Fprintf(os.Stderr, "  varprobe -verify coercions.db    # Replay fixtures\n")
	}
	flag.Parse()

	verbosity := 0
	if *verbose {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)

	cfg := loadConfig(*configDir)
	variant.EnableLeakCheck(cfg.Debug.LeakCheck)

	rt := oleauto.New(oleauto.Options{Locale: oleauto.Locale{
		DecimalSep:   cfg.Locale.DecimalSep,
		ThousandsSep: cfg.Locale.ThousandsSep,
		TrueLabel:    cfg.Locale.TrueLabel,
		FalseLabel:   cfg.Locale.FalseLabel,
	}})

	switch {
	case *verify != "":
		runVerify(rt, *verify)
	case *record != "":
		runRecord(rt, *record)
	case *sweep:
		runSweep(rt, rt)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func loadConfig(dir string) *config.Config {
	cfg, err := config.Load(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return config.Default()
		}
		// Unreadable config is worth dying over; silent defaults hide typos.
		fmt.Fprintf(os.Stderr, "varprobe: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// seed is one source value for the sweep.
type seed struct {
	name  string
	setup func(b *variant.Block)
}

// sweepSeeds covers the scalar discriminants with representative values,
// including the rounding edge cases (0.5, 2.5, 3.9).
func sweepSeeds(rt *oleauto.Runtime) []seed {
	scalarSeed := func(name string, t variant.Type, write func(p []byte)) seed {
		return seed{name: name, setup: func(b *variant.Block) {
			b.Reset()
			b.SetDiscriminant(t)
			if write != nil {
				write(b.Payload())
			}
		}}
	}
	i32 := func(n int32) seed {
		return scalarSeed(fmt.Sprintf("Int32(%d)", n), variant.TypeInt32, func(p []byte) {
			binary.LittleEndian.PutUint32(p, uint32(n))
		})
	}
	r8 := func(f float64) seed {
		return scalarSeed(fmt.Sprintf("Float64(%g)", f), variant.TypeFloat64, func(p []byte) {
			binary.LittleEndian.PutUint64(p, math.Float64bits(f))
		})
	}
	str := func(s string) seed {
		return seed{name: fmt.Sprintf("String(%q)", s), setup: func(b *variant.Block) {
			b.Reset()
			b.SetDiscriminant(variant.TypeString)
			binary.LittleEndian.PutUint64(b.Payload(), uint64(rt.NewString(s)))
		}}
	}

	return []seed{
		scalarSeed("Empty", variant.TypeEmpty, nil),
		scalarSeed("Null", variant.TypeNull, nil),
		i32(0), i32(1), i32(-1), i32(42), i32(-100000),
		r8(0.5), r8(2.5), r8(3.9), r8(-3.9), r8(1e300),
		scalarSeed("Bool(true)", variant.TypeBool, func(p []byte) {
			binary.LittleEndian.PutUint16(p, 0xFFFF)
		}),
		str("42"), str("3.9"), str("not a number"),
	}
}

var sweepTargets = []variant.Type{
	variant.TypeInt16, variant.TypeInt32, variant.TypeUInt8,
	variant.TypeFloat32, variant.TypeFloat64, variant.TypeBool,
	variant.TypeString,
}

// runSweep coerces every seed to every target through coercer, printing
// outcomes. coercer may be the runtime itself or a conformance recorder
// wrapped around it.
func runSweep(rt *oleauto.Runtime, coercer variant.Runtime) {
	for _, s := range sweepSeeds(rt) {
		for _, target := range sweepTargets {
			var block variant.Block
			s.setup(&block)

			if err := coercer.CoerceTo(target, &block); err != nil {
				fmt.Printf("%-22s -> %-8s !! %v\n", s.name, target, err)
			} else {
				fmt.Printf("%-22s -> %-8s = %s\n", s.name, target, render(rt, target, &block))
			}

			if err := coercer.Release(&block); err != nil {
				fmt.Fprintf(os.Stderr, "varprobe: release: %v\n", err)
			}
		}
	}
}

func runRecord(rt *oleauto.Runtime, path string) {
	store, err := conformance.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "varprobe: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	runSweep(rt, conformance.NewRecorder(rt, store))

	n, err := store.Count()
	if err != nil {
		fmt.Fprintf(os.Stderr, "varprobe: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("recorded %d coercions to %s\n", n, path)
}

func runVerify(rt *oleauto.Runtime, path string) {
	store, err := conformance.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "varprobe: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	mismatches, err := store.Verify(rt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "varprobe: %v\n", err)
		os.Exit(1)
	}
	if len(mismatches) == 0 {
		fmt.Println("all recorded coercions match")
		return
	}
	for _, m := range mismatches {
		fmt.Printf("MISMATCH %s\n", m)
	}
	os.Exit(1)
}

// render decodes a coerced payload for display.
func render(rt *oleauto.Runtime, t variant.Type, block *variant.Block) string {
	p := block.Payload()
	switch t {
	case variant.TypeInt16:
		return fmt.Sprintf("%d", int16(binary.LittleEndian.Uint16(p)))
	case variant.TypeInt32:
		return fmt.Sprintf("%d", int32(binary.LittleEndian.Uint32(p)))
	case variant.TypeUInt8:
		return fmt.Sprintf("%d", p[0])
	case variant.TypeFloat32:
		return fmt.Sprintf("%g", math.Float32frombits(binary.LittleEndian.Uint32(p)))
	case variant.TypeFloat64:
		return fmt.Sprintf("%g", math.Float64frombits(binary.LittleEndian.Uint64(p)))
	case variant.TypeBool:
		return fmt.Sprintf("%v", binary.LittleEndian.Uint16(p) != 0)
	case variant.TypeString:
		if s, ok := rt.StringValue(variant.Handle(binary.LittleEndian.Uint64(p))); ok {
			return fmt.Sprintf("%q", s)
		}
		return "<dangling string>"
	default:
		return fmt.Sprintf("% x", p)
	}
}
