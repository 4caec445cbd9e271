package labels

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/font"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

const overlayFont = "Helvetica-Bold"

// Overlay draws text on the first page of a label document at the position
// configured for the given carrier and destination country, and returns the
// mutated document. The input document is not modified.
func Overlay(label []byte, text string, carrier Carrier, country string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return label, nil
	}

	placement := PlacementFor(carrier, country)

	dims, err := pageDims(label)
	if err != nil {
		return nil, fmt.Errorf("reading label document: %w", err)
	}
	if len(dims) == 0 {
		return nil, fmt.Errorf("label document has no pages")
	}
	page := dims[0]

	measure := func(s string) float64 {
		return font.TextWidth(s, overlayFont, placement.FontSize)
	}
	lines := FitText(text, placement.MaxWidth*page.Width, placement.MaxLines, measure)
	if len(lines) == 0 {
		return label, nil
	}

	// pdfcpu positions stamps from the bottom-left corner; placement Y is a
	// fraction from the top.
	x := page.Width * placement.X
	y := page.Height * (1 - placement.Y)

	desc := fmt.Sprintf(
		"fontname:%s, points:%d, scale:1 abs, rot:0, pos:bl, off:%.2f %.2f, fillcolor:#000000, opacity:1, aligntext:l",
		overlayFont, placement.FontSize, x, y,
	)
	wm, err := api.TextWatermark(strings.Join(lines, "\n"), desc, true, false, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("building text stamp: %w", err)
	}

	var out bytes.Buffer
	if err := api.AddWatermarks(bytes.NewReader(label), &out, []string{"1"}, wm, nil); err != nil {
		return nil, fmt.Errorf("stamping label: %w", err)
	}
	return out.Bytes(), nil
}

// pageDims returns the media box dimensions of every page in the document.
func pageDims(doc []byte) ([]types.Dim, error) {
	return api.PageDims(bytes.NewReader(doc), nil)
}

// PageCount returns the number of pages in a document, or an error when the
// document cannot be parsed.
func PageCount(doc []byte) (int, error) {
	return api.PageCount(bytes.NewReader(doc), nil)
}
