// Package pdf renders wrong-note reports.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/go-pdf/fpdf"
)

// Note is one wrong answer printed in a report.
type Note struct {
	ExamTitle      string
	SessionOrder   int
	QuestionNumber *int
	QuestionID     uint
	AnswerType     string
	StudentAnswer  string
	CorrectAnswer  string
	Score          float64
	MaxScore       float64
}

// Report is the content of a wrong-note document.
type Report struct {
	StudentName string
	Filters     string
	GeneratedAt time.Time
	Notes       []Note
}

const (
	coreFamily = "Helvetica"
	utf8Family = "report"
)

// Renderer turns wrong-note reports into PDF documents. Without a UTF-8 font only text that
// fits cp1252 prints; other characters come out as "?".
type Renderer struct {
	title    string
	fontPath string

	fontOnce sync.Once
	font     []byte
	fontErr  error
}

// Option customises a Renderer.
type Option func(*Renderer)

// WithUTF8Font prints reports with the TrueType font at path so that Hangul and other
// non-Latin names and answers render. An empty path keeps the core font.
func WithUTF8Font(path string) Option {
	return func(r *Renderer) {
		r.fontPath = path
	}
}

// NewRenderer constructs a renderer that prints title on every report.
func NewRenderer(title string, opts ...Option) *Renderer {
	if title == "" {
		title = "Wrong Note Report"
	}
	r := &Renderer{title: title}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Renderer) loadFont() ([]byte, error) {
	r.fontOnce.Do(func() {
		if r.fontPath == "" {
			return
		}
		r.font, r.fontErr = os.ReadFile(r.fontPath)
		if r.fontErr != nil {
			r.fontErr = fmt.Errorf("load report font: %w", r.fontErr)
		}
	})
	return r.font, r.fontErr
}

var columns = []struct {
	header string
	width  float64
}{
	{"Session", 18},
	{"Exam", 52},
	{"No.", 12},
	{"Answer", 36},
	{"Correct", 36},
	{"Score", 26},
}

// Render produces the PDF bytes of report.
func (r *Renderer) Render(ctx context.Context, report Report) ([]byte, error) {
	font, err := r.loadFont()
	if err != nil {
		return nil, err
	}

	doc := fpdf.New("P", "mm", "A4", "")
	family := coreFamily
	tr := doc.UnicodeTranslatorFromDescriptor("")
	if font != nil {
		for _, style := range []string{"", "B", "I"} {
			doc.AddUTF8FontFromBytes(utf8Family, style, font)
		}
		if err := doc.Error(); err != nil {
			return nil, fmt.Errorf("register report font: %w", err)
		}
		family = utf8Family
		tr = func(s string) string { return s }
	}
	doc.SetTitle(r.title, true)
	doc.SetCreator("gema-results-api", true)
	doc.SetCreationDate(report.GeneratedAt)
	doc.SetMargins(15, 15, 15)
	doc.SetAutoPageBreak(true, 15)
	doc.AliasNbPages("")
	doc.SetFooterFunc(func() {
		doc.SetY(-12)
		doc.SetFont(family, "I", 8)
		doc.CellFormat(0, 6, fmt.Sprintf("Page %d/{nb}", doc.PageNo()), "", 0, "C", false, 0, "")
	})

	doc.AddPage()
	doc.SetFont(family, "B", 16)
	doc.CellFormat(0, 10, tr(r.title), "", 1, "L", false, 0, "")
	doc.SetFont(family, "", 10)
	doc.CellFormat(0, 6, tr("Student: "+report.StudentName), "", 1, "L", false, 0, "")
	if report.Filters != "" {
		doc.CellFormat(0, 6, tr("Filters: "+report.Filters), "", 1, "L", false, 0, "")
	}
	doc.CellFormat(0, 6, "Generated: "+report.GeneratedAt.UTC().Format(time.RFC3339), "", 1, "L", false, 0, "")
	doc.Ln(4)

	if len(report.Notes) == 0 {
		doc.SetFont(family, "I", 11)
		doc.CellFormat(0, 8, "No wrong answers for the selected filters.", "", 1, "L", false, 0, "")
		return output(doc)
	}

	writeHeader := func() {
		doc.SetFont(family, "B", 9)
		doc.SetFillColor(230, 230, 230)
		for _, column := range columns {
			doc.CellFormat(column.width, 7, column.header, "1", 0, "C", true, 0, "")
		}
		doc.Ln(-1)
		doc.SetFont(family, "", 9)
	}
	writeHeader()

	_, pageHeight := doc.GetPageSize()
	_, _, _, bottom := doc.GetMargins()
	for i, note := range report.Notes {
		if i%25 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if doc.GetY()+7 > pageHeight-bottom {
			doc.AddPage()
			writeHeader()
		}

		cells := []string{
			strconv.Itoa(note.SessionOrder),
			truncate(note.ExamTitle, 30),
			questionLabel(note),
			truncate(note.StudentAnswer, 20),
			truncate(note.CorrectAnswer, 20),
			fmt.Sprintf("%s / %s", formatScore(note.Score), formatScore(note.MaxScore)),
		}
		for j, cell := range cells {
			doc.CellFormat(columns[j].width, 7, tr(cell), "1", 0, "L", false, 0, "")
		}
		doc.Ln(-1)
	}

	return output(doc)
}

func output(doc *fpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func questionLabel(note Note) string {
	if note.QuestionNumber != nil {
		return strconv.Itoa(*note.QuestionNumber)
	}
	return fmt.Sprintf("#%d", note.QuestionID)
}

func formatScore(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "~"
}
