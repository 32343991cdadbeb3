// Package flatfile is the pipe-delimited checkpoint between flattening and
// loading.
//
// One record is one line. Fields are joined with '|'. A field that itself
// contains '|', '\', CR or LF is backslash-escaped ("\|", "\\", "\r", "\n"), so
// clean values are written verbatim and every value survives a round trip.
package flatfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"
)

// Delimiter separates fields on a line.
const Delimiter = '|'

// maxLine bounds a single record; registrant addresses are the longest fields seen.
const maxLine = 1 << 20

var escaper = strings.NewReplacer(
	`\`, `\\`,
	"|", `\|`,
	"\n", `\n`,
	"\r", `\r`,
)

// Encode renders fields as one line without the trailing newline.
func Encode(fields []string) string {
	var b strings.Builder
	for i, field := range fields {
		if i > 0 {
			b.WriteByte(Delimiter)
		}
		b.WriteString(escaper.Replace(field))
	}
	return b.String()
}

// Decode splits one line into fields, undoing Encode's escapes.
func Decode(line string) ([]string, error) {
	var (
		fields  []string
		current strings.Builder
	)
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch c {
		case '\\':
			if i+1 >= len(line) {
				return nil, errors.New("dangling escape at end of line")
			}
			i++
			switch line[i] {
			case '\\':
				current.WriteByte('\\')
			case '|':
				current.WriteByte('|')
			case 'n':
				current.WriteByte('\n')
			case 'r':
				current.WriteByte('\r')
			default:
				return nil, fmt.Errorf("unknown escape \\%c at offset %d", line[i], i-1)
			}
		case Delimiter:
			fields = append(fields, current.String())
			current.Reset()
		default:
			current.WriteByte(c)
		}
	}
	return append(fields, current.String()), nil
}

// Writer writes records to one stream file.
type Writer struct {
	path  string
	file  *os.File
	buf   *bufio.Writer
	count int
}

// Create starts a fresh stream at path, truncating any earlier content.
func Create(path string) (*Writer, error) {
	return openWriter(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
}

// OpenAppend opens path for appending, creating it if needed.
func OpenAppend(path string) (*Writer, error) {
	return openWriter(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND)
}

func openWriter(path string, flag int) (*Writer, error) {
	file, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open flat file %s: %w", path, err)
	}
	return &Writer{path: path, file: file, buf: bufio.NewWriter(file)}, nil
}

// Append writes one record as a single line. Values must be valid UTF-8.
func (w *Writer) Append(fields []string) error {
	for i, field := range fields {
		if !utf8.ValidString(field) {
			return fmt.Errorf("%s: field %d is not valid UTF-8", w.path, i)
		}
	}
	if _, err := w.buf.WriteString(Encode(fields)); err != nil {
		return fmt.Errorf("failed to write %s: %w", w.path, err)
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write %s: %w", w.path, err)
	}
	w.count++
	return nil
}

// Count returns the number of records appended through this writer.
func (w *Writer) Count() int {
	return w.count
}

// Close flushes and closes the file. Closing twice is a no-op.
func (w *Writer) Close() error {
	if w.file == nil {
		return nil
	}
	flushErr := w.buf.Flush()
	closeErr := w.file.Close()
	w.file = nil
	if flushErr != nil {
		return fmt.Errorf("failed to flush %s: %w", w.path, flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close %s: %w", w.path, closeErr)
	}
	return nil
}

// Record is one line read back from a stream.
type Record struct {
	Line   int
	Raw    string
	Fields []string
	// Err is set when the line could not be decoded; Fields is then nil.
	Err error
}

// Reader scans a stream file sequentially.
type Reader struct {
	path    string
	file    *os.File
	scanner *bufio.Scanner
	line    int
}

// Open opens path for a full sequential scan.
func Open(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open flat file %s: %w", path, err)
	}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	return &Reader{path: path, file: file, scanner: scanner}, nil
}

// Next returns the next record. It returns io.EOF after the last line.
// Decode failures are reported on the Record, not as the error, so a caller
// can skip one bad line and keep reading.
func (r *Reader) Next() (Record, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return Record{}, fmt.Errorf("failed to read %s after line %d: %w", r.path, r.line, err)
		}
		return Record{}, io.EOF
	}
	r.line++
	raw := strings.TrimSuffix(r.scanner.Text(), "\r")
	fields, err := Decode(raw)
	if err != nil {
		return Record{Line: r.line, Raw: raw, Err: err}, nil
	}
	return Record{Line: r.line, Raw: raw, Fields: fields}, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// ReadAll decodes every line of path. Any undecodable line fails the call.
func ReadAll(path string) ([][]string, error) {
	reader, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	var records [][]string
	for {
		record, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		if record.Err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, record.Line, record.Err)
		}
		records = append(records, record.Fields)
	}
}
