// Package album assembles rendered pages into a printable coloring book PDF.
package album

import (
	"bytes"
	"fmt"
	"io"

	"github.com/go-pdf/fpdf"
)

// Page is one sheet of the book.
type Page struct {
	Title    string
	ImagePNG []byte
}

// Options controls the book layout. Ratio is the render size the pages were
// generated at, e.g. "1024x1536"; it decides page orientation.
type Options struct {
	Title string
	Ratio string
}

const pageMargin = 12.0 // mm

// orientationFor maps a render ratio onto a PDF page orientation.
func orientationFor(ratio string) string {
	switch ratio {
	case "1536x1024":
		return "L"
	default:
		// square and portrait renders both sit best on portrait paper
		return "P"
	}
}

// Build writes a PDF with one image per page to w. Pages without image data
// are rejected rather than silently dropped.
func Build(w io.Writer, pages []Page, opts Options) error {
	if len(pages) == 0 {
		return fmt.Errorf("coloring book needs at least one page")
	}

	pdf := fpdf.New(orientationFor(opts.Ratio), "mm", "A4", "")
	pdf.SetTitle(opts.Title, true)
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetFont("Helvetica", "", 11)

	pageW, pageH := pdf.GetPageSize()
	maxW := pageW - 2*pageMargin
	maxH := pageH - 2*pageMargin - 8 // leave room for the caption

	for i, page := range pages {
		if len(page.ImagePNG) == 0 {
			return fmt.Errorf("page %d has no image data", i+1)
		}

		name := fmt.Sprintf("page-%d", i+1)
		opt := fpdf.ImageOptions{ImageType: "PNG"}
		info := pdf.RegisterImageOptionsReader(name, opt, bytes.NewReader(page.ImagePNG))
		if pdf.Err() {
			return fmt.Errorf("page %d: %w", i+1, pdf.Error())
		}

		pdf.AddPage()

		// scale to fit while keeping the render's aspect ratio
		w, h := info.Extent()
		scale := maxW / w
		if h*scale > maxH {
			scale = maxH / h
		}
		imgW, imgH := w*scale, h*scale
		x := (pageW - imgW) / 2

		pdf.ImageOptions(name, x, pageMargin, imgW, imgH, false, opt, 0, "")

		if page.Title != "" {
			pdf.SetY(pageMargin + imgH + 2)
			pdf.CellFormat(maxW, 6, page.Title, "", 0, "C", false, 0, "")
		}
	}

	return pdf.Output(w)
}
