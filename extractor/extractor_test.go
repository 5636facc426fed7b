package extractor

import (
	"strings"
	"testing"

	"github.com/theoremus-urban-solutions/xsd-pipeline/xerrors"
)

func TestExtractSchemaLocation(t *testing.T) {
	xml := `<?xml version="1.0" encoding="UTF-8"?>
<root xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"
      xsi:schemaLocation="http://example.com/ns http://example.com/schema.xsd">
  <element>content</element>
</root>`

	ref, err := ExtractFromReader(strings.NewReader(xml), "/data/file.xml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref.URI != "http://example.com/schema.xsd" {
		t.Errorf("unexpected URI: %s", ref.URI)
	}
	if ref.Origin != OriginRemote {
		t.Errorf("expected remote origin, got %v", ref.Origin)
	}
}

func TestExtractNoNamespaceSchemaLocation(t *testing.T) {
	xml := `<?xml version="1.0" encoding="UTF-8"?>
<root xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"
      xsi:noNamespaceSchemaLocation="schema.xsd">
  <element>content</element>
</root>`

	ref, err := ExtractFromReader(strings.NewReader(xml), "/data/file.xml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref.URI != "schema.xsd" {
		t.Errorf("unexpected URI: %s", ref.URI)
	}
	if ref.Origin != OriginLocal {
		t.Errorf("expected local origin, got %v", ref.Origin)
	}
	if ref.ResolvedPath != "/data/schema.xsd" {
		t.Errorf("expected resolved path relative to xml dir, got %s", ref.ResolvedPath)
	}
}

func TestExtractAbsoluteLocalPath(t *testing.T) {
	xml := `<root xsi:schemaLocation="http://example.com/ns /absolute/path/schema.xsd"></root>`

	ref, err := ExtractFromReader(strings.NewReader(xml), "/data/file.xml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref.Origin != OriginLocal || ref.ResolvedPath != "/absolute/path/schema.xsd" {
		t.Errorf("unexpected ref: %+v", ref)
	}
}

func TestExtractNoSchemaDeclared(t *testing.T) {
	xml := `<?xml version="1.0" encoding="UTF-8"?>
<root>
  <element>content</element>
</root>`

	_, err := ExtractFromReader(strings.NewReader(xml), "/data/file.xml")
	if err == nil {
		t.Fatal("expected error")
	}
	var notDeclared *xerrors.SchemaNotDeclared
	if !asSchemaNotDeclared(err, &notDeclared) {
		t.Fatalf("expected SchemaNotDeclared, got %T: %v", err, err)
	}
}

func TestExtractStopsAtRootClose(t *testing.T) {
	// The schema location appears after the root element closes; the
	// line-oriented scan must not find it because it stops at "</root>".
	xml := "<root>\n  <element>x</element>\n</root>\n<!-- xsi:noNamespaceSchemaLocation=\"late.xsd\" -->"

	_, err := ExtractFromReader(strings.NewReader(xml), "/data/file.xml")
	if err == nil {
		t.Fatal("expected SchemaNotDeclared since declaration comes after root close")
	}
}

func TestKeyNamespacing(t *testing.T) {
	remote := SchemaRef{URI: "http://example.com/s.xsd", Origin: OriginRemote}
	local := SchemaRef{URI: "s.xsd", Origin: OriginLocal, ResolvedPath: "/data/s.xsd"}

	if remote.Key() != "http://example.com/s.xsd" {
		t.Errorf("unexpected remote key: %s", remote.Key())
	}
	if local.Key() != "local:/data/s.xsd" {
		t.Errorf("unexpected local key: %s", local.Key())
	}
}

func asSchemaNotDeclared(err error, target **xerrors.SchemaNotDeclared) bool {
	if e, ok := err.(*xerrors.SchemaNotDeclared); ok {
		*target = e
		return true
	}
	return false
}
