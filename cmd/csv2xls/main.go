package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/spf13/pflag"

	"github.com/yamitzky/xlwt-go/internal/logging"
	"github.com/yamitzky/xlwt-go/xlwt"
)

var version = "dev"

type options struct {
	delimiter  rune
	sheetNames []string
	noNumbers  bool
	writer     *xlwt.WriterOptions
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("csv2xls", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	showVersion := fs.BoolP("version", "v", false, "show version")
	delimiterFlag := fs.StringP("delimiter", "d", ",", "column delimiter, 'tab' or 'x09' for a tab")
	sheetNames := fs.StringArrayP("sheet-name", "n", nil, "sheet name for the matching input, repeatable")
	configPath := fs.StringP("config", "c", "", "YAML writer options file")
	noNumbers := fs.Bool("text", false, "store every field as text")
	strict := fs.Bool("strict", false, "fail on record length accounting differences")
	debug := fs.Bool("debug", false, "enable debug logging")
	human := fs.Bool("human", false, "human-friendly log output")

	fs.Usage = func() {
		fmt.Fprint(stderr, usageText())
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

	rest := fs.Args()
	if len(rest) < 2 {
		fs.Usage()
		return 2
	}
	inputs, outputPath := rest[:len(rest)-1], rest[len(rest)-1]
	if len(*sheetNames) > len(inputs) {
		fmt.Fprintf(stderr, "%d sheet names for %d inputs\n", len(*sheetNames), len(inputs))
		return 2
	}

	delimiter, err := parseDelimiter(*delimiterFlag)
	if err != nil {
		fmt.Fprintf(stderr, "invalid delimiter: %v\n", err)
		return 2
	}

	writerOpts := xlwt.DefaultOptions()
	if *configPath != "" {
		writerOpts, err = xlwt.LoadOptions(*configPath)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 2
		}
	}
	if *strict {
		writerOpts.StrictAccounting = true
	}

	opts := options{
		delimiter:  delimiter,
		sheetNames: *sheetNames,
		noNumbers:  *noNumbers,
		writer:     writerOpts,
	}

	wb, err := buildWorkbook(inputs, stdin, opts)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if err := wb.Save(outputPath); err != nil {
		fmt.Fprintf(stderr, "writing %s: %v\n", outputPath, err)
		return 1
	}
	logging.L().Info().
		Str("output", outputPath).
		Int("sheets", len(wb.Sheets())).
		Msg("workbook written")
	return 0
}

func usageText() string {
	return `Usage:

 csv2xls [-h] [-v] [-d DELIMITER] [-n SHEETNAME ...] [-c CONFIG]
         [--text] [--strict] [--debug] [--human]
         csvfile [csvfile ...] outfile

positional arguments:

  csvfile               CSV file path, use '-' to read from STDIN; each
                        file becomes one worksheet
  outfile               output xls file path

optional arguments:

`
}

func buildWorkbook(inputs []string, stdin io.Reader, opts options) (*xlwt.Workbook, error) {
	wb := xlwt.NewWorkbook(opts.writer)
	for i, input := range inputs {
		name := ""
		if i < len(opts.sheetNames) {
			name = opts.sheetNames[i]
		}
		if name == "" {
			name = defaultSheetName(input, i)
		}
		sheet, err := wb.AddSheet(name)
		if err != nil {
			if name, err = uniqueSheetName(wb, name, i); err == nil {
				sheet, err = wb.AddSheet(name)
			}
		}
		if err != nil {
			return nil, err
		}

		var r io.Reader = stdin
		if input != "-" {
			f, err := os.Open(input)
			if err != nil {
				return nil, err
			}
			defer f.Close()
			r = f
		}
		if err := fillSheet(sheet, r, opts); err != nil {
			return nil, fmt.Errorf("%s: %w", input, err)
		}
	}
	return wb, nil
}

func fillSheet(sheet *xlwt.Sheet, r io.Reader, opts options) error {
	cr := csv.NewReader(r)
	cr.Comma = opts.delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	for row := 0; ; row++ {
		record, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if row >= xlwt.MaxRows {
			return fmt.Errorf("more than %d rows", xlwt.MaxRows)
		}
		if len(record) > xlwt.MaxCols {
			return fmt.Errorf("line %d: %d fields, at most %d fit a sheet", row+1, len(record), xlwt.MaxCols)
		}
		for col, field := range record {
			if field == "" {
				continue
			}
			if err := setField(sheet, row, col, field, opts); err != nil {
				return err
			}
		}
	}
}

func setField(sheet *xlwt.Sheet, row, col int, field string, opts options) error {
	if !opts.noNumbers {
		if v, ok := parseNumber(field); ok {
			return sheet.SetNumber(row, col, v)
		}
	}
	return sheet.SetString(row, col, field)
}

func parseNumber(field string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func parseDelimiter(value string) (rune, error) {
	switch strings.ToLower(value) {
	case "tab", "x09":
		return '\t', nil
	}
	if value == "" {
		return 0, fmt.Errorf("delimiter cannot be empty")
	}
	if strings.HasPrefix(value, "x") && len(value) == 3 {
		decoded, err := strconv.ParseUint(value[1:], 16, 8)
		if err != nil {
			return 0, err
		}
		return rune(decoded), nil
	}
	r, _ := utf8.DecodeRuneInString(value)
	if r == '"' || r == '\r' || r == '\n' || r == utf8.RuneError {
		return 0, fmt.Errorf("%q cannot separate fields", value)
	}
	return r, nil
}

func defaultSheetName(input string, i int) string {
	if input == "-" {
		return fmt.Sprintf("Sheet%d", i+1)
	}
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return sanitizeSheetName(base, i)
}

func sanitizeSheetName(name string, i int) string {
	invalid := strings.NewReplacer("[", "_", "]", "_", ":", "_", "*", "_", "?", "_", "/", "_", "\\", "_")
	clean := strings.Trim(strings.TrimSpace(invalid.Replace(name)), "'")
	if clean == "" {
		return fmt.Sprintf("Sheet%d", i+1)
	}
	if utf8.RuneCountInString(clean) > 31 {
		clean = string([]rune(clean)[:31])
	}
	return clean
}

func uniqueSheetName(wb *xlwt.Workbook, name string, i int) (string, error) {
	taken := make(map[string]bool)
	for _, s := range wb.Sheets() {
		taken[strings.ToLower(s.Name)] = true
	}
	for n := 2; n < 1000; n++ {
		suffix := fmt.Sprintf(" (%d)", n)
		base := sanitizeSheetName(name, i)
		if r := []rune(base); len(r)+len(suffix) > 31 {
			base = string(r[:31-len(suffix)])
		}
		if candidate := base + suffix; !taken[strings.ToLower(candidate)] {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free sheet name for %q", name)
}
