// Package extractor returns the first schema URI an XML file declares,
// without parsing the document as XML.
//
// Two regexes, compiled once at package init, scan the file line-by-line.
// The scan stops at the first line whose trimmed prefix is "</", since
// schema-location attributes only ever appear on the root element.
package extractor

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/theoremus-urban-solutions/xsd-pipeline/xerrors"
)

var (
	schemaLocationRegex = regexp.MustCompile(`xsi:schemaLocation="\S+\s+(.+?)"`)
	noNamespaceRegex    = regexp.MustCompile(`xsi:noNamespaceSchemaLocation="(.+?)"`)
)

// Origin distinguishes a remote (HTTP/HTTPS) schema reference from a local
// filesystem one.
type Origin int

const (
	// OriginLocal is a schema reference resolved as a filesystem path,
	// relative to the referencing XML file's directory unless absolute.
	OriginLocal Origin = iota
	// OriginRemote is a schema reference fetched over HTTP(S).
	OriginRemote
)

// SchemaRef is the first schema location declared by an XML file's root
// element.
type SchemaRef struct {
	// URI is the literal text captured from the schema-location attribute.
	URI string
	// Origin reports whether URI names a remote resource or a local path.
	Origin Origin
	// ResolvedPath is the filesystem path to read when Origin is
	// OriginLocal: URI itself if absolute, otherwise URI resolved relative
	// to the referencing XML file's directory.
	ResolvedPath string
}

// Key returns the cache key this reference should be stored and looked up
// under in the byte cache and compiled-schema cache. Remote references key
// by their URL directly; local references are prefixed with "local:" so a
// relative path can never collide with a same-named remote URL in the
// shared URI-keyed caches.
func (r SchemaRef) Key() string {
	if r.Origin == OriginRemote {
		return r.URI
	}
	return "local:" + r.ResolvedPath
}

// Extract scans xmlPath line-by-line from the start, looking for
// xsi:schemaLocation or xsi:noNamespaceSchemaLocation on the root element,
// and returns the first one found. It stops scanning as soon as it sees a
// line whose first non-whitespace characters are "</", since schema
// locations are always attributes of the root element. Returns
// *xerrors.SchemaNotDeclared if no declaration is found before end of file.
func Extract(xmlPath string) (SchemaRef, error) {
	f, err := os.Open(xmlPath) //nolint:gosec // caller-supplied discovery path
	if err != nil {
		return SchemaRef{}, &xerrors.Io{Path: xmlPath, Err: err}
	}
	defer f.Close()

	return extract(f, xmlPath)
}

// ExtractFromReader is the reader-based variant of Extract, used by tests
// and by callers that already have file contents in memory.
func ExtractFromReader(r io.Reader, xmlPath string) (SchemaRef, error) {
	return extract(r, xmlPath)
}

func extract(r io.Reader, xmlPath string) (SchemaRef, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if !utf8.Valid(line) {
			return SchemaRef{}, &xerrors.SchemaParsing{URL: xmlPath, Details: "schema location line is not valid UTF-8"}
		}
		text := string(line)

		if m := schemaLocationRegex.FindStringSubmatch(text); m != nil {
			return resolveRef(m[1], xmlPath), nil
		}
		if m := noNamespaceRegex.FindStringSubmatch(text); m != nil {
			return resolveRef(m[1], xmlPath), nil
		}

		if strings.HasPrefix(strings.TrimSpace(text), "</") {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return SchemaRef{}, &xerrors.Io{Path: xmlPath, Err: err}
	}

	return SchemaRef{}, &xerrors.SchemaNotDeclared{File: xmlPath}
}

func resolveRef(uri, xmlPath string) SchemaRef {
	if strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://") {
		return SchemaRef{URI: uri, Origin: OriginRemote}
	}

	resolved := uri
	if !filepath.IsAbs(uri) {
		resolved = filepath.Join(filepath.Dir(xmlPath), uri)
	}
	return SchemaRef{URI: uri, Origin: OriginLocal, ResolvedPath: resolved}
}
