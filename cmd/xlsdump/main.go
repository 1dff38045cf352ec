package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
	"github.com/zeebo/blake3"

	"github.com/yamitzky/xlwt-go/internal/logging"
	"github.com/yamitzky/xlwt-go/xlwt"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("xlsdump", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	showVersion := fs.BoolP("version", "v", false, "show version")
	summary := fs.BoolP("summary", "s", false, "print record counts instead of a dump")
	unnumbered := fs.BoolP("unnumbered", "u", false, "omit offsets so dumps diff cleanly")
	digest := fs.Bool("digest", false, "print the BLAKE3 digest of the workbook stream")
	streamName := fs.String("stream", "", "stream to read (default: Workbook, then Book)")
	raw := fs.Bool("raw", false, "the file is a bare BIFF stream, not a compound document")
	debug := fs.Bool("debug", false, "enable debug logging")
	human := fs.Bool("human", false, "human-friendly log output")

	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: xlsdump [flags] file.xls")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *showVersion {
		fmt.Fprintln(stdout, version)
		return 0
	}
	logging.Init(*debug, *human)

	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}
	path := fs.Arg(0)

	stream, err := loadStream(path, *streamName, *raw)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", path, err)
		return 1
	}

	switch {
	case *digest:
		sum := blake3.Sum256(stream)
		fmt.Fprintf(stdout, "%s  %s\n", hex.EncodeToString(sum[:]), path)
	case *summary:
		_, err = xlwt.CountRecords(stream, stdout)
	default:
		err = xlwt.Dump(stream, stdout, *unnumbered)
	}
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", path, err)
		return 1
	}
	return 0
}

func loadStream(path, name string, raw bool) ([]byte, error) {
	mem, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if raw {
		return mem, nil
	}
	if format := xlwt.InspectFormat(mem); format != "xls" {
		return nil, fmt.Errorf("not an xls file (%s)", xlwt.FileFormatDescriptions[format])
	}
	if name == "" {
		return xlwt.LocateWorkbookStream(mem)
	}
	cd, err := xlwt.NewCompDoc(mem)
	if err != nil {
		return nil, err
	}
	return cd.LocateNamedStream(name)
}
