// Package paperwork produces the I-130 petition PDF returned by the form
// filling endpoint.
package paperwork

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

// A4 height in points; line positions are measured from the bottom edge.
const pageHeight = 842.0

// I130 is the applicant data printed on the petition.
type I130 struct {
	Name         string
	DOB          string
	Country      string
	Relationship string
	// Photo is PNG data from ProcessPhoto, optional.
	Photo []byte
}

func (f I130) Validate() error {
	var missing []string
	for _, field := range []struct{ name, value string }{
		{"name", f.Name}, {"dob", f.DOB}, {"country", f.Country}, {"relationship", f.Relationship},
	} {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Lines are the printed rows with their baseline height from the bottom.
func (f I130) Lines() []Line {
	return []Line{
		{Y: 750, Text: "Form I-130 for " + f.Name},
		{Y: 730, Text: "DOB: " + f.DOB},
		{Y: 710, Text: "Country: " + f.Country},
		{Y: 690, Text: "Relationship: " + f.Relationship},
	}
}

type Line struct {
	Y    float64
	Text string
}

// RenderI130 draws the petition summary on a single A4 page.
func RenderI130(f I130, created time.Time) ([]byte, error) {
	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetCreationDate(created)
	pdf.SetModificationDate(created)
	pdf.SetTitle("Form I-130", true)
	pdf.SetCreator("navigator", true)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "", 12)

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	for _, line := range f.Lines() {
		pdf.Text(100, pageHeight-line.Y, tr(line.Text))
	}

	if len(f.Photo) > 0 {
		opts := fpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader("photo", opts, bytes.NewReader(f.Photo))
		pdf.ImageOptions("photo", 420, pageHeight-770, 100, 100, false, opts, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render i-130: %w", err)
	}
	return buf.Bytes(), nil
}

// Generator renders petitions, filling a fillable template when one is set.
type Generator struct {
	TemplatePath string
	// FieldNames maps applicant keys (name, dob, country, relationship) to
	// template field names.
	FieldNames map[string]string
	Now        func() time.Time
}

func DefaultFieldNames() map[string]string {
	return map[string]string{
		"name":         "Beneficiary Name",
		"dob":          "Beneficiary Date of Birth",
		"country":      "Beneficiary Country of Birth",
		"relationship": "Relationship to Petitioner",
	}
}

var ErrTemplatePhoto = errors.New("template petitions cannot carry a photo")

func (g Generator) Generate(ctx context.Context, f I130) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if g.TemplatePath == "" {
		now := time.Now
		if g.Now != nil {
			now = g.Now
		}
		return RenderI130(f, now())
	}
	if len(f.Photo) > 0 {
		return nil, ErrTemplatePhoto
	}
	names := g.FieldNames
	if names == nil {
		names = DefaultFieldNames()
	}
	values := map[string]string{}
	for key, value := range map[string]string{
		"name": f.Name, "dob": f.DOB, "country": f.Country, "relationship": f.Relationship,
	} {
		if field, ok := names[key]; ok {
			values[field] = value
		}
	}
	return FillTemplate(ctx, g.TemplatePath, values, nil)
}
