package labels

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPDF assembles a minimal but structurally valid PDF with the given
// number of A6-ish label pages, computing xref offsets as it goes.
func testPDF(t *testing.T, pages int) []byte {
	t.Helper()

	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
	}
	kids := ""
	for i := 0; i < pages; i++ {
		kids += fmt.Sprintf("%d 0 R ", 3+i)
	}
	objs = append(objs, fmt.Sprintf("<< /Type /Pages /Count %d /Kids [%s] >>", pages, kids))
	for i := 0; i < pages; i++ {
		objs = append(objs, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 283 425] >>")
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, obj := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objs)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

func TestOverlay_AddsTextToLabel(t *testing.T) {
	label := testPDF(t, 1)

	out, err := Overlay(label, "Strelitzia Nicolai", CarrierPostNL, "NL")
	require.NoError(t, err)
	assert.NotEqual(t, label, out, "document should be mutated")

	count, err := PageCount(out)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "page count unchanged")
}

func TestOverlay_EmptyTextReturnsOriginal(t *testing.T) {
	label := testPDF(t, 1)

	out, err := Overlay(label, "  ", CarrierDPD, "NL")
	require.NoError(t, err)
	assert.Equal(t, label, out)
}

func TestOverlay_CorruptDocument(t *testing.T) {
	_, err := Overlay([]byte("not a pdf"), "Monstera", CarrierPostNL, "NL")
	assert.Error(t, err)
}

func TestOverlay_MultiPageStampsFirstPageOnly(t *testing.T) {
	label := testPDF(t, 2)

	out, err := Overlay(label, "Ficus Lyrata", CarrierDPD, "BE")
	require.NoError(t, err)

	count, err := PageCount(out)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCombine_MergesPages(t *testing.T) {
	docs := [][]byte{testPDF(t, 1), testPDF(t, 1), testPDF(t, 1)}

	combined, err := Combine(docs)
	require.NoError(t, err)

	count, err := PageCount(combined)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestCombine_SkipsCorruptInput(t *testing.T) {
	docs := [][]byte{testPDF(t, 1), []byte("garbage")}

	combined, err := Combine(docs)
	require.NoError(t, err, "one valid input is enough")

	count, err := PageCount(combined)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCombine_AllCorrupt(t *testing.T) {
	_, err := Combine([][]byte{[]byte("junk"), nil})
	assert.True(t, errors.Is(err, ErrNothingToCombine))
}

func TestCombine_Empty(t *testing.T) {
	_, err := Combine(nil)
	assert.True(t, errors.Is(err, ErrNothingToCombine))
}

func TestCombine_SingleDocPassthrough(t *testing.T) {
	doc := testPDF(t, 2)
	combined, err := Combine([][]byte{doc})
	require.NoError(t, err)
	assert.Equal(t, doc, combined)
}
