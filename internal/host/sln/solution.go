// Package sln hosts the project tree of a Visual Studio solution: the .sln
// file for layout and solution folders, the .csproj files for references.
package sln

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	// FolderTypeGUID marks a solution folder
	FolderTypeGUID = "{2150E333-8FDC-42A3-9474-1A3956D46DE8}"
	// CSharpTypeGUID marks a classic C# project
	CSharpTypeGUID = "{FAE04EC0-301F-11D3-BF4B-00C04F79EFBC}"
	// SDKCSharpTypeGUID marks an SDK-style C# project
	SDKCSharpTypeGUID = "{9A19103F-16F7-4668-BE54-9A1E7A4F7556}"

	nestedSection = "NestedProjects"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var (
	projectLine = regexp.MustCompile(`^Project\("(\{[^}]+\})"\)\s*=\s*"([^"]*)"\s*,\s*"([^"]*)"\s*,\s*"(\{[^}]+\})"`)
	sectionLine = regexp.MustCompile(`^GlobalSection\(([^)]+)\)\s*=\s*(\w+)`)
	nestedLine  = regexp.MustCompile(`^(\{[^}]+\})\s*=\s*(\{[^}]+\})$`)
)

// Item is a Project(...) block: a project or a solution folder.
type Item struct {
	TypeGUID string
	Name     string
	// Path is relative to the solution, with backslashes as written
	Path string
	GUID string

	body  []string
	after []string
}

// IsFolder reports whether the item is a solution folder.
func (it *Item) IsFolder() bool {
	return strings.EqualFold(it.TypeGUID, FolderTypeGUID)
}

type section struct {
	name  string
	when  string
	lines []string
}

// Solution is a parsed .sln file. Everything it does not model is kept
// verbatim and written back unchanged.
type Solution struct {
	bom     bool
	newline string

	header   []string
	Items    []*Item
	global   bool
	sections []*section
	trailer  []string

	// parents maps an upper-cased child GUID to its parent GUID.
	parents map[string]string
}

func guidKey(guid string) string {
	return strings.ToUpper(guid)
}

// LoadSolution reads and parses path.
func LoadSolution(path string) (*Solution, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read solution: %w", err)
	}
	s, err := ParseSolution(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseSolution parses the content of a .sln file.
func ParseSolution(data []byte) (*Solution, error) {
	s := &Solution{newline: "\n", parents: make(map[string]string)}
	if bytes.HasPrefix(data, utf8BOM) {
		s.bom = true
		data = data[len(utf8BOM):]
	}
	if bytes.Contains(data, []byte("\r\n")) {
		s.newline = "\r\n"
	}

	const (
		inHeader = iota
		inProject
		betweenProjects
		inGlobal
		inSection
		inTrailer
	)
	state := inHeader
	var cur *Item
	var sec *section

	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	// Drop the empty string produced by a final newline.
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}

	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		switch state {
		case inHeader, betweenProjects:
			switch {
			case strings.HasPrefix(line, "Project("):
				m := projectLine.FindStringSubmatch(line)
				if m == nil {
					return nil, fmt.Errorf("line %d: malformed project line", i+1)
				}
				cur = &Item{TypeGUID: m[1], Name: m[2], Path: m[3], GUID: m[4]}
				s.Items = append(s.Items, cur)
				state = inProject
			case line == "Global":
				s.global = true
				state = inGlobal
			case state == inHeader:
				s.header = append(s.header, raw)
			default:
				last := s.Items[len(s.Items)-1]
				last.after = append(last.after, raw)
			}
		case inProject:
			if line == "EndProject" {
				state = betweenProjects
				continue
			}
			cur.body = append(cur.body, raw)
		case inGlobal:
			switch {
			case line == "EndGlobal":
				state = inTrailer
			case strings.HasPrefix(line, "GlobalSection("):
				m := sectionLine.FindStringSubmatch(line)
				if m == nil {
					return nil, fmt.Errorf("line %d: malformed global section", i+1)
				}
				sec = &section{name: m[1], when: m[2]}
				s.sections = append(s.sections, sec)
				state = inSection
			case line == "":
			default:
				return nil, fmt.Errorf("line %d: unexpected %q in Global", i+1, line)
			}
		case inSection:
			if line == "EndGlobalSection" {
				state = inGlobal
				continue
			}
			if line == "" {
				continue
			}
			if sec.name == nestedSection {
				m := nestedLine.FindStringSubmatch(line)
				if m == nil {
					return nil, fmt.Errorf("line %d: malformed nesting entry", i+1)
				}
				s.parents[guidKey(m[1])] = m[2]
				continue
			}
			sec.lines = append(sec.lines, line)
		case inTrailer:
			s.trailer = append(s.trailer, raw)
		}
	}

	switch state {
	case inProject:
		return nil, fmt.Errorf("missing EndProject for %q", cur.Name)
	case inGlobal, inSection:
		return nil, fmt.Errorf("missing EndGlobal")
	}
	return s, nil
}

// Bytes renders the solution. Nesting entries are written in item order.
func (s *Solution) Bytes() []byte {
	var b strings.Builder
	nl := s.newline
	if s.bom {
		b.Write(utf8BOM)
	}
	for _, line := range s.header {
		b.WriteString(line + nl)
	}
	for _, it := range s.Items {
		fmt.Fprintf(&b, "Project(\"%s\") = \"%s\", \"%s\", \"%s\"%s", it.TypeGUID, it.Name, it.Path, it.GUID, nl)
		for _, line := range it.body {
			b.WriteString(line + nl)
		}
		b.WriteString("EndProject" + nl)
		for _, line := range it.after {
			b.WriteString(line + nl)
		}
	}

	if s.global {
		b.WriteString("Global" + nl)
		for _, sec := range s.sections {
			fmt.Fprintf(&b, "\tGlobalSection(%s) = %s%s", sec.name, sec.when, nl)
			lines := sec.lines
			if sec.name == nestedSection {
				lines = s.nestingLines()
			}
			for _, line := range lines {
				b.WriteString("\t\t" + line + nl)
			}
			b.WriteString("\tEndGlobalSection" + nl)
		}
		b.WriteString("EndGlobal" + nl)
	}
	for _, line := range s.trailer {
		b.WriteString(line + nl)
	}
	return []byte(b.String())
}

func (s *Solution) section(name string) *section {
	for _, sec := range s.sections {
		if sec.name == name {
			return sec
		}
	}
	return nil
}

func (s *Solution) nestingLines() []string {
	var lines []string
	for _, it := range s.Items {
		if parent, ok := s.parents[guidKey(it.GUID)]; ok {
			lines = append(lines, it.GUID+" = "+parent)
		}
	}
	return lines
}

// Item returns the item with the given GUID.
func (s *Solution) Item(guid string) *Item {
	for _, it := range s.Items {
		if strings.EqualFold(it.GUID, guid) {
			return it
		}
	}
	return nil
}

// Parent returns the folder containing it, or nil at top level.
func (s *Solution) Parent(it *Item) *Item {
	guid, ok := s.parents[guidKey(it.GUID)]
	if !ok {
		return nil
	}
	return s.Item(guid)
}

// SetParent nests child under folder.
func (s *Solution) SetParent(child, folder *Item) {
	if s.section(nestedSection) == nil {
		s.sections = append(s.sections, &section{name: nestedSection, when: "preSolution"})
		s.global = true
	}
	s.parents[guidKey(child.GUID)] = folder.GUID
}

// TopLevel returns the items not nested in any folder.
func (s *Solution) TopLevel() []*Item {
	var out []*Item
	for _, it := range s.Items {
		if _, nested := s.parents[guidKey(it.GUID)]; !nested {
			out = append(out, it)
		}
	}
	return out
}

// AddFolder appends a new top-level solution folder.
func (s *Solution) AddFolder(name string) *Item {
	it := &Item{
		TypeGUID: FolderTypeGUID,
		Name:     name,
		Path:     name,
		GUID:     "{" + strings.ToUpper(uuid.New().String()) + "}",
	}
	s.Items = append(s.Items, it)
	return it
}
