package pluginupdate

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"regexp"
	"strings"
)

// Header is the version metadata recorded in a plugin's main file.
type Header struct {
	Version string
	Commit  string
}

// headerScanLimit matches how much of a plugin file WordPress itself reads
// when parsing headers.
const headerScanLimit = 8 * 1024

var (
	versionLine = regexp.MustCompile(`(?m)^([ \t/*#@]*Version:[ \t]*)(\S*)[ \t\r]*$`)
	commitLine  = regexp.MustCompile(`(?m)^([ \t/*#@]*Commit:[ \t]*)(\S*)[ \t\r]*$`)
)

// ReadHeader reads the Version and Commit header lines of the file at path.
func ReadHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(bufio.NewReader(f), headerScanLimit))
	if err != nil {
		return Header{}, err
	}
	return ParseHeader(data), nil
}

func ParseHeader(data []byte) Header {
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	var header Header
	if m := versionLine.FindSubmatch(data); m != nil {
		header.Version = string(m[2])
	}
	if m := commitLine.FindSubmatch(data); m != nil {
		header.Commit = string(m[2])
	}
	return header
}

// RewriteHeader sets the Version and Commit lines. A missing Commit line is
// inserted right after the Version line using the same prefix.
func RewriteHeader(data []byte, header Header) []byte {
	v := versionLine.FindSubmatchIndex(data)
	if v == nil {
		return data
	}

	c := commitLine.FindSubmatchIndex(data)
	if c == nil {
		prefix := strings.Replace(string(data[v[2]:v[3]]), "Version:", "Commit:", 1)
		data = splice(data, v[1], v[1], "\n"+prefix+header.Commit)
		return splice(data, v[4], v[5], header.Version)
	}

	// Splice the later span first so the earlier offsets stay valid.
	if c[4] > v[4] {
		return splice(splice(data, c[4], c[5], header.Commit), v[4], v[5], header.Version)
	}
	return splice(splice(data, v[4], v[5], header.Version), c[4], c[5], header.Commit)
}

func splice(data []byte, start, end int, replacement string) []byte {
	out := make([]byte, 0, len(data)-(end-start)+len(replacement))
	out = append(out, data[:start]...)
	out = append(out, replacement...)
	return append(out, data[end:]...)
}
