package xlwt

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// SectorSize is the sector size of the compound document container.
const SectorSize = 512

// WriterOptions control how a record stream is assembled and stored.
type WriterOptions struct {
	// MaxRecordLen is the largest payload one record header may declare.
	// Default: 8228. Excel itself refuses records longer than 8224.
	MaxRecordLen int `yaml:"max_record_len"`

	// MinSectors is the minimum number of sectors the main stream is padded
	// to. The default of 8 keeps the stream at 4096 bytes or more, so it is
	// never moved into the container's mini stream.
	MinSectors int `yaml:"min_sectors"`

	// StrictAccounting turns a difference between computed and emitted
	// record lengths into a fatal error instead of a logged warning.
	StrictAccounting bool `yaml:"strict_accounting"`

	// SSTBucketSize is the number of shared strings per EXTSST bucket.
	// Default: 8. Raised automatically so no more than 128 buckets are used.
	SSTBucketSize int `yaml:"sst_bucket_size"`

	// Codepage written to the CODEPAGE record. Default: 1200 (UTF-16).
	Codepage int `yaml:"codepage"`

	// StreamName is the directory name of the main stream.
	// Default: "Workbook".
	StreamName string `yaml:"stream_name"`
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() *WriterOptions {
	return (*WriterOptions)(nil).norm()
}

func (o *WriterOptions) norm() *WriterOptions {
	var oo WriterOptions
	if o != nil {
		oo = *o
	}

	if oo.MaxRecordLen < 1 || oo.MaxRecordLen > MaxRecordLen {
		oo.MaxRecordLen = MaxRecordLen
	}
	if oo.MinSectors < 1 {
		oo.MinSectors = 8
	}
	if oo.SSTBucketSize < 1 {
		oo.SSTBucketSize = 8
	}
	if oo.Codepage == 0 {
		oo.Codepage = 1200
	}
	if oo.StreamName == "" {
		oo.StreamName = "Workbook"
	}

	return &oo
}

// Validate reports option values that norm would silently replace.
func (o *WriterOptions) Validate() error {
	if o.MaxRecordLen < 0 || o.MaxRecordLen > MaxRecordLen {
		return fmt.Errorf("max_record_len %d out of range 1..%d", o.MaxRecordLen, MaxRecordLen)
	}
	if o.MinSectors < 0 {
		return fmt.Errorf("min_sectors %d is negative", o.MinSectors)
	}
	if o.SSTBucketSize < 0 {
		return fmt.Errorf("sst_bucket_size %d is negative", o.SSTBucketSize)
	}
	if o.Codepage < 0 || o.Codepage > 0xFFFF {
		return fmt.Errorf("codepage %d out of range", o.Codepage)
	}
	if len([]rune(o.StreamName)) > 31 {
		return fmt.Errorf("stream_name %q longer than 31 characters", o.StreamName)
	}
	return nil
}

// LoadOptions reads writer options from a YAML file. Unknown keys are an
// error.
func LoadOptions(path string) (*WriterOptions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading options: %w", err)
	}
	return ParseOptions(data)
}

// ParseOptions decodes YAML writer options.
func ParseOptions(data []byte) (*WriterOptions, error) {
	var o WriterOptions
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&o); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing options: %w", err)
	}
	if err := o.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	return o.norm(), nil
}
