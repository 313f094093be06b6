package sln

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"solmove/internal/paths"
)

// projectFile is the part of an MSBuild project that carries references.
// Element names match with or without the 2003 MSBuild namespace.
type projectFile struct {
	ItemGroups []itemGroup `xml:"ItemGroup"`
}

type itemGroup struct {
	ProjectReferences []projectReference  `xml:"ProjectReference"`
	References        []assemblyReference `xml:"Reference"`
}

type projectReference struct {
	Include string `xml:"Include,attr"`
	Name    string `xml:"Name"`
}

type assemblyReference struct {
	Include  string `xml:"Include,attr"`
	HintPath string `xml:"HintPath"`
}

func parseProjectFile(data []byte) (*projectFile, error) {
	var pf projectFile
	if err := xml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse project file: %w", err)
	}
	return &pf, nil
}

func (pf *projectFile) projectReferences() []projectReference {
	var out []projectReference
	for _, g := range pf.ItemGroups {
		out = append(out, g.ProjectReferences...)
	}
	return out
}

func (pf *projectFile) assemblyReferences() []assemblyReference {
	var out []assemblyReference
	for _, g := range pf.ItemGroups {
		out = append(out, g.References...)
	}
	return out
}

// projectReferenceElem matches one ProjectReference element, self-closing or
// not, with its leading indentation and trailing newline.
var projectReferenceElem = regexp.MustCompile(`(?s)[ \t]*<ProjectReference\s+Include="([^"]*)"[^>]*?(?:/>|>.*?</ProjectReference>)[ \t]*(?:\r?\n)?`)

// removeProjectReferences deletes every ProjectReference whose Include
// satisfies drop. It returns the new content and the number removed.
func removeProjectReferences(data []byte, drop func(include string) bool) ([]byte, int) {
	removed := 0
	out := projectReferenceElem.ReplaceAllFunc(data, func(elem []byte) []byte {
		m := projectReferenceElem.FindSubmatch(elem)
		if drop(string(m[1])) {
			removed++
			return nil
		}
		return elem
	})
	return out, removed
}

// addProjectReference inserts a ProjectReference for include next to the
// last existing one, or in a new ItemGroup before </Project>.
func addProjectReference(data []byte, include string) ([]byte, error) {
	nl := "\n"
	if bytes.Contains(data, []byte("\r\n")) {
		nl = "\r\n"
	}
	elem := fmt.Sprintf(`<ProjectReference Include="%s" />`, xmlEscape(include))

	if locs := projectReferenceElem.FindAllIndex(data, -1); len(locs) > 0 {
		last := locs[len(locs)-1]
		matched := data[last[0]:last[1]]
		indent := matched[:len(matched)-len(bytes.TrimLeft(matched, " \t"))]

		insert := string(indent) + elem + nl
		end := last[1]
		if !bytes.HasSuffix(matched, []byte("\n")) {
			insert = nl + insert
		}
		return splice(data, end, insert), nil
	}

	closing := bytes.LastIndex(data, []byte("</Project>"))
	if closing < 0 {
		return nil, fmt.Errorf("no </Project> element")
	}
	group := "  <ItemGroup>" + nl + "    " + elem + nl + "  </ItemGroup>" + nl
	return splice(data, closing, group), nil
}

func splice(data []byte, at int, insert string) []byte {
	out := make([]byte, 0, len(data)+len(insert))
	out = append(out, data[:at]...)
	out = append(out, insert...)
	return append(out, data[at:]...)
}

func xmlEscape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

// resolveInclude turns an Include relative to the project file at
// projectPath (solution-relative) into a clean solution-relative path with
// forward slashes.
func resolveInclude(projectPath, include string) string {
	dir := path.Dir(paths.NormalizePath(projectPath))
	return path.Clean(path.Join(dir, paths.NormalizePath(include)))
}

// relativeInclude is the inverse of resolveInclude, rendered with
// backslashes as MSBuild writes them.
func relativeInclude(projectPath, target string) (string, error) {
	from := filepath.FromSlash(path.Dir(paths.NormalizePath(projectPath)))
	to := filepath.FromSlash(paths.NormalizePath(target))
	rel, err := filepath.Rel(from, to)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(filepath.ToSlash(rel), "/", "\\"), nil
}

// samePath compares solution-relative paths the way Windows does.
func samePath(a, b string) bool {
	return strings.EqualFold(path.Clean(paths.NormalizePath(a)), path.Clean(paths.NormalizePath(b)))
}
