package extract

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestPagesHTML(t *testing.T) {
	path := writeFile(t, "page.html", `<html><head><style>body{}</style><script>var x = 1;</script></head>
<body><h1>Refund policy</h1><p>Refunds take five days.</p><noscript>enable js</noscript></body></html>`)

	pages, err := NewRegistry().Pages(path)
	if err != nil {
		t.Fatalf("Pages: %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(pages))
	}
	if want := "Refund policy\nRefunds take five days."; pages[0] != want {
		t.Fatalf("got %q, want %q", pages[0], want)
	}
}

func TestPagesTextSplitsOnFormFeed(t *testing.T) {
	path := writeFile(t, "notes.TXT", "first page\fsecond page\fthird page")

	pages, err := NewRegistry().Pages(path)
	if err != nil {
		t.Fatalf("Pages: %v", err)
	}
	if len(pages) != 3 || pages[1] != "second page" {
		t.Fatalf("unexpected pages: %q", pages)
	}
}

func TestPagesXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.xlsx")

	f := excelize.NewFile()
	if err := f.SetCellValue("Sheet1", "A1", "product"); err != nil {
		t.Fatal(err)
	}
	if err := f.SetCellValue("Sheet1", "B1", "price"); err != nil {
		t.Fatal(err)
	}
	if err := f.SetCellValue("Sheet1", "A2", "widget"); err != nil {
		t.Fatal(err)
	}
	if err := f.SetCellValue("Sheet1", "B2", 42); err != nil {
		t.Fatal(err)
	}
	if _, err := f.NewSheet("Empty"); err != nil {
		t.Fatal(err)
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save xlsx: %v", err)
	}
	_ = f.Close()

	pages, err := NewRegistry().Pages(path)
	if err != nil {
		t.Fatalf("Pages: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d: %q", len(pages), pages)
	}
	if !strings.Contains(pages[0], "product\tprice") || !strings.Contains(pages[0], "widget\t42") {
		t.Fatalf("sheet text missing rows: %q", pages[0])
	}
	if pages[1] != "" {
		t.Fatalf("empty sheet should give an empty page, got %q", pages[1])
	}
}

func TestPagesUnsupported(t *testing.T) {
	path := writeFile(t, "image.png", "not really")

	r := NewRegistry()
	if r.Supports(path) {
		t.Fatal("png should not be supported")
	}
	if _, err := r.Pages(path); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestPagesPDF(t *testing.T) {
	pages, err := NewRegistry().Pages(filepath.Join("testdata", "three_pages.pdf"))
	if err != nil {
		t.Fatalf("Pages: %v", err)
	}
	if len(pages) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(pages))
	}

	words := []string{"orchard", "submarine", "violin"}
	for i, w := range words {
		if !strings.Contains(pages[i], w) {
			t.Errorf("page %d missing %q: %.80q", i+1, w, pages[i])
		}
		for j, other := range words {
			if j != i && strings.Contains(pages[i], other) {
				t.Errorf("page %d leaks text of page %d", i+1, j+1)
			}
		}
		if n := len(pages[i]); n < 1000 || n > 1300 {
			t.Errorf("page %d has %d characters", i+1, n)
		}
	}
}

func TestPagesRejectsBrokenPDF(t *testing.T) {
	path := writeFile(t, "broken.pdf", "this is not a pdf")

	if _, err := NewRegistry().Pages(path); err == nil {
		t.Fatal("expected an error for a broken pdf")
	}
}

func TestSanitizeUTF8(t *testing.T) {
	in := "ok\xff text\x00 é"
	if got := SanitizeUTF8(in); got != "ok text é" {
		t.Fatalf("got %q", got)
	}
}
