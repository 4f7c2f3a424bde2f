package epub

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

type archiveEntry struct {
	name string
	data string
}

// writeArchive builds a zip in a temp dir with a leading stored mimetype
// entry, the way packaging tools lay EPUBs out.
func writeArchive(t *testing.T, entries []archiveEntry) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.epub")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	mime, err := w.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		t.Fatal(err)
	}
	mime.Write([]byte("application/epub+zip"))

	for _, e := range entries {
		fw, err := w.Create(e.name)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte(e.data))
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

const containerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

const navPackageOPF = `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Test Book</dc:title>
  </metadata>
  <manifest>
    <item id="nav" href="nav.xhtml" properties="scripted nav" media-type="application/xhtml+xml"/>
    <item id="c1" href="c1.xhtml" media-type="application/xhtml+xml"/>
    <item id="c2" href="c2.xhtml" media-type="application/xhtml+xml"/>
    <item id="c3" href="c3.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine>
    <itemref idref="c1"/>
    <itemref idref="c2"/>
    <itemref idref="c3"/>
  </spine>
</package>`

const navDoc = `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>Contents</title></head>
<body>
<nav epub:type="toc" xmlns:epub="http://www.idpf.org/2007/ops">
<ol>
<li><a href="c1.xhtml">Intro</a></li>
</ol>
</nav>
</body>
</html>`

const ncxPackageOPF = `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0">
  <manifest>
    <item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>
    <item id="c1" href="c1.xhtml" media-type="application/xhtml+xml"/>
    <item id="c2" href="c2.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine toc="ncx">
    <itemref idref="c1"/>
    <itemref idref="c2"/>
  </spine>
</package>`

const ncxDoc = `<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <navMap>
    <navPoint id="n1">
      <navLabel><text>Part One</text></navLabel>
      <content src="c1.xhtml"/>
      <navPoint id="n2">
        <navLabel><text>Getting Started</text></navLabel>
        <content src="c2.xhtml"/>
      </navPoint>
    </navPoint>
  </navMap>
</ncx>`

const tinyChapter = `<html xmlns="http://www.w3.org/1999/xhtml"><body><p>text</p></body></html>`

func navBook(t *testing.T) string {
	t.Helper()
	return writeArchive(t, []archiveEntry{
		{"META-INF/container.xml", containerXML},
		{"OEBPS/content.opf", navPackageOPF},
		{"OEBPS/nav.xhtml", navDoc},
		{"OEBPS/c1.xhtml", tinyChapter},
		{"OEBPS/c2.xhtml", tinyChapter},
		{"OEBPS/c3.xhtml", tinyChapter},
	})
}

func ncxBook(t *testing.T) string {
	t.Helper()
	return writeArchive(t, []archiveEntry{
		{"META-INF/container.xml", containerXML},
		{"OEBPS/content.opf", ncxPackageOPF},
		{"OEBPS/toc.ncx", ncxDoc},
		{"OEBPS/c1.xhtml", tinyChapter},
		{"OEBPS/c2.xhtml", tinyChapter},
	})
}

func TestOpen(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Open(filepath.Join(t.TempDir(), "nope.epub"))
		if !errors.Is(err, ErrNotAnArchive) {
			t.Errorf("Open() error = %v, want ErrNotAnArchive", err)
		}
	})

	t.Run("not a zip", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "plain.epub")
		os.WriteFile(path, []byte("not a zip file"), 0644)

		_, err := Open(path)
		if !errors.Is(err, ErrNotAnArchive) {
			t.Errorf("Open() error = %v, want ErrNotAnArchive", err)
		}
	})

	t.Run("valid archive", func(t *testing.T) {
		c, err := Open(navBook(t))
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		if err := c.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
}

func TestReadEntry(t *testing.T) {
	c, err := Open(writeArchive(t, []archiveEntry{
		{"META-INF/container.xml", containerXML},
		{"OEBPS/c1.xhtml", "chapter one"},
	}))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer c.Close()

	got, err := c.ReadEntry("OEBPS/c1.xhtml")
	if err != nil {
		t.Fatalf("ReadEntry() error = %v", err)
	}
	if got != "chapter one" {
		t.Errorf("ReadEntry() = %q, want %q", got, "chapter one")
	}

	// Names match exactly, including the directory part.
	if _, err := c.ReadEntry("c1.xhtml"); !errors.Is(err, ErrEntryMissing) {
		t.Errorf("ReadEntry(short name) error = %v, want ErrEntryMissing", err)
	}
	if _, err := c.ReadEntry("OEBPS/missing.xhtml"); !errors.Is(err, ErrEntryMissing) {
		t.Errorf("ReadEntry(missing) error = %v, want ErrEntryMissing", err)
	}
}

func TestChaptersNavDialect(t *testing.T) {
	c, err := Open(navBook(t))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer c.Close()

	got, err := c.Chapters(zap.NewNop())
	if err != nil {
		t.Fatalf("Chapters() error = %v", err)
	}

	// Spine order with the single TOC title applied and ordinals filling in
	// for the chapters the nav document does not mention.
	want := []Chapter{
		{Title: "Intro", Path: "OEBPS/c1.xhtml"},
		{Title: "1", Path: "OEBPS/c2.xhtml"},
		{Title: "2", Path: "OEBPS/c3.xhtml"},
	}
	if len(got) != len(want) {
		t.Fatalf("Chapters() len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chapter %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestChaptersNCXDialect(t *testing.T) {
	c, err := Open(ncxBook(t))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer c.Close()

	got, err := c.Chapters(zap.NewNop())
	if err != nil {
		t.Fatalf("Chapters() error = %v", err)
	}

	// The nested navPoint contributes a title the same as a top level one.
	want := []Chapter{
		{Title: "Part One", Path: "OEBPS/c1.xhtml"},
		{Title: "Getting Started", Path: "OEBPS/c2.xhtml"},
	}
	if len(got) != len(want) {
		t.Fatalf("Chapters() len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chapter %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestChaptersRootLevelPackage(t *testing.T) {
	container := `<?xml version="1.0"?>
<container xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles><rootfile full-path="content.opf"/></rootfiles>
</container>`
	opf := `<package xmlns="http://www.idpf.org/2007/opf" version="2.0">
  <manifest>
    <item id="ncx" href="toc.ncx"/>
    <item id="c1" href="c1.xhtml"/>
  </manifest>
  <spine><itemref idref="c1"/></spine>
</package>`
	ncx := `<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/">
  <navMap>
    <navPoint id="n1"><navLabel><text>Only</text></navLabel><content src="c1.xhtml"/></navPoint>
  </navMap>
</ncx>`

	c, err := Open(writeArchive(t, []archiveEntry{
		{"META-INF/container.xml", container},
		{"content.opf", opf},
		{"toc.ncx", ncx},
		{"c1.xhtml", tinyChapter},
	}))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer c.Close()

	got, err := c.Chapters(zap.NewNop())
	if err != nil {
		t.Fatalf("Chapters() error = %v", err)
	}
	if len(got) != 1 || got[0].Title != "Only" || got[0].Path != "c1.xhtml" {
		t.Errorf("Chapters() = %+v, want [{Only c1.xhtml}]", got)
	}
}

func TestChaptersAnchoredHrefFallsBack(t *testing.T) {
	// A TOC link pointing inside a chapter does not match the spine href,
	// so the ordinal fallback applies.
	nav := `<html><body><nav><a href="c1.xhtml#part2">Deep Link</a></nav></body></html>`
	opf := `<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <manifest>
    <item id="nav" href="nav.xhtml" properties="nav"/>
    <item id="c1" href="c1.xhtml"/>
  </manifest>
  <spine><itemref idref="c1"/></spine>
</package>`

	c, err := Open(writeArchive(t, []archiveEntry{
		{"META-INF/container.xml", containerXML},
		{"OEBPS/content.opf", opf},
		{"OEBPS/nav.xhtml", nav},
		{"OEBPS/c1.xhtml", tinyChapter},
	}))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer c.Close()

	got, err := c.Chapters(zap.NewNop())
	if err != nil {
		t.Fatalf("Chapters() error = %v", err)
	}
	if len(got) != 1 || got[0].Title != "0" {
		t.Errorf("Chapters() = %+v, want ordinal title %q", got, "0")
	}
}

func TestChaptersErrors(t *testing.T) {
	tests := []struct {
		name    string
		entries []archiveEntry
		want    error
	}{
		{
			name:    "container entry missing",
			entries: []archiveEntry{{"OEBPS/content.opf", navPackageOPF}},
			want:    ErrEntryMissing,
		},
		{
			name: "container without rootfile",
			entries: []archiveEntry{
				{"META-INF/container.xml", `<container><rootfiles/></container>`},
			},
			want: ErrMalformedContainer,
		},
		{
			name: "rootfile without full-path",
			entries: []archiveEntry{
				{"META-INF/container.xml", `<container><rootfiles><rootfile/></rootfiles></container>`},
			},
			want: ErrMalformedContainer,
		},
		{
			name: "container not xml",
			entries: []archiveEntry{
				{"META-INF/container.xml", `<container><rootfiles>`},
			},
			want: ErrMalformedContainer,
		},
		{
			name: "package without manifest",
			entries: []archiveEntry{
				{"META-INF/container.xml", containerXML},
				{"OEBPS/content.opf", `<package><spine/></package>`},
			},
			want: ErrMalformedPackage,
		},
		{
			name: "package without spine",
			entries: []archiveEntry{
				{"META-INF/container.xml", containerXML},
				{"OEBPS/content.opf", `<package><manifest/></package>`},
			},
			want: ErrMalformedPackage,
		},
		{
			name: "manifest item without href",
			entries: []archiveEntry{
				{"META-INF/container.xml", containerXML},
				{"OEBPS/content.opf", `<package><manifest><item id="c1"/></manifest><spine><itemref idref="c1"/></spine></package>`},
			},
			want: ErrMalformedPackage,
		},
		{
			name: "spine references unknown id",
			entries: []archiveEntry{
				{"META-INF/container.xml", containerXML},
				{"OEBPS/content.opf", `<package><manifest><item id="c1" href="c1.xhtml"/></manifest><spine><itemref idref="ghost"/></spine></package>`},
			},
			want: ErrDanglingSpineRef,
		},
		{
			name: "version 3 without nav item",
			entries: []archiveEntry{
				{"META-INF/container.xml", containerXML},
				{"OEBPS/content.opf", `<package version="3.0"><manifest><item id="c1" href="c1.xhtml"/></manifest><spine><itemref idref="c1"/></spine></package>`},
			},
			want: ErrMalformedToc,
		},
		{
			name: "legacy without ncx item",
			entries: []archiveEntry{
				{"META-INF/container.xml", containerXML},
				{"OEBPS/content.opf", `<package><manifest><item id="c1" href="c1.xhtml"/></manifest><spine><itemref idref="c1"/></spine></package>`},
			},
			want: ErrMalformedToc,
		},
		{
			name: "navPoint without label",
			entries: []archiveEntry{
				{"META-INF/container.xml", containerXML},
				{"OEBPS/content.opf", ncxPackageOPF},
				{"OEBPS/toc.ncx", `<ncx><navMap><navPoint id="n1"><content src="c1.xhtml"/></navPoint></navMap></ncx>`},
			},
			want: ErrMalformedToc,
		},
		{
			name: "navPoint without content",
			entries: []archiveEntry{
				{"META-INF/container.xml", containerXML},
				{"OEBPS/content.opf", ncxPackageOPF},
				{"OEBPS/toc.ncx", `<ncx><navMap><navPoint id="n1"><navLabel><text>One</text></navLabel></navPoint></navMap></ncx>`},
			},
			want: ErrMalformedToc,
		},
		{
			name: "ncx without navMap",
			entries: []archiveEntry{
				{"META-INF/container.xml", containerXML},
				{"OEBPS/content.opf", ncxPackageOPF},
				{"OEBPS/toc.ncx", `<ncx><head/></ncx>`},
			},
			want: ErrMalformedToc,
		},
		{
			name: "nav document without nav element",
			entries: []archiveEntry{
				{"META-INF/container.xml", containerXML},
				{"OEBPS/content.opf", navPackageOPF},
				{"OEBPS/nav.xhtml", `<html><body><p>no nav here</p></body></html>`},
			},
			want: ErrMalformedToc,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Open(writeArchive(t, tt.entries))
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer c.Close()

			_, err = c.Chapters(zap.NewNop())
			if !errors.Is(err, tt.want) {
				t.Errorf("Chapters() error = %v, want %v", err, tt.want)
			}
		})
	}
}
