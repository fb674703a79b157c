package weights

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ramonehamilton/gammatrain/internal/features"
)

// FormatTag is the first line of every weights file.
const FormatTag = "GAMMA-WEIGHTS/1"

// ErrBadFormat is returned when a file does not start with FormatTag or is malformed.
var ErrBadFormat = errors.New("not a weights file")

// Write serializes the model: the format tag, metadata lines, then one
// "<name>\t<logGamma>" line per feature in registry order.
func (m *Model) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, FormatTag)
	fmt.Fprintf(bw, "features %d\n", m.registry.Size())
	fmt.Fprintf(bw, "iterations %d\n", m.iterations)
	for f := range m.registry.All() {
		fmt.Fprintf(bw, "%s\t%s\n", m.registry.Name(f), strconv.FormatFloat(m.logGamma[f], 'g', -1, 64))
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write weights: %w", err)
	}
	return nil
}

// Read parses a weights file against reg. Blank lines are ignored and '#'
// starts a comment. Names the registry does not know are reported and skipped.
func Read(r io.Reader, reg *features.Registry) (*Model, error) {
	m := New(reg)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	tagSeen := false
	declared := -1
	skipped := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if !tagSeen {
			if line != FormatTag {
				return nil, fmt.Errorf("%w: line %d: expected %q, got %q", ErrBadFormat, lineNo, FormatTag, line)
			}
			tagSeen = true
			continue
		}

		name, value, ok := strings.Cut(line, "\t")
		if !ok {
			key, arg, _ := strings.Cut(line, " ")
			switch key {
			case "features", "iterations":
				n, err := strconv.Atoi(strings.TrimSpace(arg))
				if err != nil {
					return nil, fmt.Errorf("%w: line %d: bad metadata %q", ErrBadFormat, lineNo, line)
				}
				if key == "features" {
					declared = n
				} else {
					m.iterations = n
				}
			default:
				log.Printf("Ignoring unknown weights metadata %q on line %d", key, lineNo)
			}
			continue
		}

		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: bad weight for %s: %v", ErrBadFormat, lineNo, name, err)
		}
		f, ok := reg.Lookup(strings.TrimSpace(name))
		if !ok {
			log.Printf("Skipping unknown feature %q on line %d", name, lineNo)
			skipped++
			continue
		}
		m.logGamma[f] = v
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read weights: %w", err)
	}
	if !tagSeen {
		return nil, fmt.Errorf("%w: missing %q header", ErrBadFormat, FormatTag)
	}

	if declared >= 0 && declared != reg.Size() {
		log.Printf("Weights file declares %d features, registry has %d", declared, reg.Size())
	}
	if skipped > 0 {
		log.Printf("Skipped %d unknown features while loading weights", skipped)
	}
	return m, nil
}

// LoadFile reads a weights file. A missing or unreadable file yields a
// neutral model and a log line rather than an error; a file with the wrong
// header is an error.
func LoadFile(path string, reg *features.Registry) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		log.Printf("Cannot open weights file %s, using neutral weights: %v", path, err)
		return New(reg), nil
	}
	defer f.Close()

	m, err := Read(f, reg)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return m, nil
}

// SaveFile writes the model to path, replacing any existing file atomically.
func (m *Model) SaveFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create weights directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".weights-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := m.Write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
