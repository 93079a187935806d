// This is a tool to extract and render AndroidManifest.xml and other
// compiled XML resources from APKs or AndroidManifest.xml files. A
// resources.arsc input is only parsed; nothing from it is printed.
package main

import (
	"bufio"
	"bytes"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/qpax/arscdump"
)

type optsType struct {
	isApk       bool
	isManifest  bool
	isResources bool

	dumpManifest bool
	fileListPath string
	xmlFileName  string
	exportDir    string
	useFramework bool
}

func main() {
	var opts optsType

	flag.BoolVar(&opts.isApk, "a", false, "The input file is an apk (default if INPUT is *.apk)")
	flag.BoolVar(&opts.isManifest, "m", false, "The input file is an AndroidManifest.xml (default)")
	flag.BoolVar(&opts.isResources, "r", false, "The input is resources.arsc file (default if INPUT is *.arsc)")
	flag.BoolVar(&opts.dumpManifest, "d", true, "Print the AndroidManifest.xml (only makes sense for APKs)")
	flag.StringVar(&opts.fileListPath, "l", "", "Process file list")
	flag.StringVar(&opts.xmlFileName, "f", "AndroidManifest.xml", "Name of the XML file from inside apk to parse")
	flag.StringVar(&opts.exportDir, "export", "", "Export every compiled XML and resource in the APK under this directory")
	flag.BoolVar(&opts.useFramework, "framework", false, "Resolve a standalone XML file against the bundled stand-in android: framework resource table")

	flag.Parse()

	if opts.fileListPath == "" && len(flag.Args()) < 1 {
		fmt.Printf("%s INPUT\n", os.Args[0])
		os.Exit(1)
	}

	exitcode := 0

	if opts.fileListPath == "" {
		for i, input := range flag.Args() {
			if i != 0 {
				fmt.Println()
			}
			if len(flag.Args()) != 1 {
				fmt.Println("File:", input)
			}
			if !processInput(input, &opts) {
				exitcode = 1
			}
		}
	} else {
		f, err := os.Open(opts.fileListPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer f.Close()

		s := bufio.NewScanner(f)
		for s.Scan() {
			if !processInput(s.Text(), &opts) {
				exitcode = 1
			}
		}
	}

	os.Exit(exitcode)
}

func processInput(input string, opts *optsType) bool {
	if !opts.isApk && !opts.isManifest && !opts.isResources {
		switch {
		case strings.HasSuffix(input, ".apk"):
			opts.isApk = true
		case strings.HasSuffix(input, ".arsc"):
			opts.isResources = true
		default:
			opts.isManifest = true
		}
	}

	if opts.isApk {
		return processApk(input, opts)
	}

	var r io.Reader
	if input == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(input)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return false
		}
		defer f.Close()
		r = f
	}

	if opts.isManifest {
		var table *apkparser.ResourceTable
		if opts.useFramework {
			fwTable, err := apkparser.ParseResourceTable(bytes.NewReader(apkparser.FrameworkResources()))
			if err != nil {
				fmt.Fprintln(os.Stderr, "failed to parse embedded framework table:", err)
				return false
			}
			table = fwTable
		}

		text, err := apkparser.RenderXML(r, table)
		fmt.Println()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return false
		}
		fmt.Println(text)
		return true
	}

	_, err := apkparser.ParseResourceTable(r)
	fmt.Println()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return false
	}
	return true
}

func processApk(input string, opts *optsType) bool {
	a, err := apkparser.OpenApk(input)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return false
	}
	defer a.Close()

	a.Decoder().Logf = func(format string, args ...interface{}) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}

	if opts.exportDir != "" {
		if err := a.Export(opts.exportDir, true); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return false
		}
		return true
	}

	if opts.dumpManifest {
		f, ok := a.File(opts.xmlFileName)
		if !ok {
			fmt.Fprintf(os.Stderr, "Failed to find %s in APK!\n", opts.xmlFileName)
			return false
		}
		raw, err := f.ReadAll(math.MaxInt64)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return false
		}

		out, err := a.Decoder().AsXML(raw)
		fmt.Println()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return false
		}
		fmt.Println(out)
	}

	return true
}
