// Package parser extracts question/answer notes from markdown files.
//
// A note starts at a line beginning with "Q:" and may carry an "A:" answer
// and a "C:" context block. Lines after a marker continue its block until the
// next marker, a "---" separator, or the end of the file.
package parser

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// Note is one question/answer block found in a markdown file.
type Note struct {
	Question string
	Answer   string
	Context  string
	File     string // set by ParseFile
	Line     int    // 1-based line of the Q: marker
}

// Back renders the card back: the answer, followed by the context when
// there is one.
func (n Note) Back() string {
	if n.Context == "" {
		return n.Answer
	}
	if n.Answer == "" {
		return n.Context
	}
	return n.Answer + "\n\n" + n.Context
}

type field int

const (
	seeking field = iota
	inQuestion
	inAnswer
	inContext
)

var markers = []struct {
	prefix string
	field  field
}{
	{"Q:", inQuestion},
	{"A:", inAnswer},
	{"C:", inContext},
}

const separator = "---"

// maxLine bounds a single line; long answers with embedded data URIs exceed
// bufio's default.
const maxLine = 1 << 20

// ParseFile reads a file from the given path and extracts all notes.
func ParseFile(path string) ([]Note, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	notes, err := Parse(file)
	if err != nil {
		return nil, err
	}
	for i := range notes {
		notes[i].File = path
	}
	return notes, nil
}

// Parse reads from an io.Reader and extracts all notes.
func Parse(r io.Reader) ([]Note, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)

	var p noteParser
	for scanner.Scan() {
		p.lineNo++
		p.feed(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	p.finish()
	return p.notes, nil
}

type noteParser struct {
	notes   []Note
	current Note
	field   field
	block   []string
	lineNo  int
}

func (p *noteParser) feed(line string) {
	if line == separator {
		p.finish()
		return
	}

	for _, m := range markers {
		rest, ok := strings.CutPrefix(line, m.prefix)
		if !ok {
			continue
		}
		p.flush()
		// A new question always starts a new note.
		if m.field == inQuestion && p.field != seeking {
			p.finish()
		}
		if m.field == inQuestion {
			p.current.Line = p.lineNo
		}
		p.field = m.field
		p.block = append(p.block, strings.TrimPrefix(rest, " "))
		return
	}

	if p.field != seeking {
		p.block = append(p.block, line)
	}
}

// flush stores the pending block in the field it belongs to.
func (p *noteParser) flush() {
	if len(p.block) == 0 {
		return
	}
	content := strings.TrimRight(strings.Join(p.block, "\n"), " \t\r\n")
	switch p.field {
	case inQuestion:
		p.current.Question = content
	case inAnswer:
		p.current.Answer = content
	case inContext:
		p.current.Context = content
	}
	p.block = nil
}

// finish closes the current note, keeping it only if it has a question.
func (p *noteParser) finish() {
	p.flush()
	if p.current.Question != "" {
		p.notes = append(p.notes, p.current)
	}
	p.current = Note{}
	p.field = seeking
}
