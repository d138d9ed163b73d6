package paperwork

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

type formExport struct {
	Forms []formFields `json:"forms"`
}

type formFields struct {
	Textfield []textField  `json:"textfield"`
	Checkbox  []checkField `json:"checkbox"`
	Combobox  []textField  `json:"combobox"`
}

type textField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type checkField struct {
	Name  string `json:"name"`
	Value bool   `json:"value"`
}

// pdfcpu is the binary used for template filling; tests swap it out.
var pdfcpu = "pdfcpu"

// FillTemplate exports the template's form fields with pdfcpu, sets the
// matching values and fills a copy.
func FillTemplate(ctx context.Context, templatePath string, textValues map[string]string, checkValues map[string]bool) ([]byte, error) {
	if _, err := os.Stat(templatePath); err != nil {
		return nil, errors.New("petition template is missing")
	}
	if _, err := exec.LookPath(pdfcpu); err != nil {
		return nil, errors.New("pdfcpu is required on the host to fill the petition template")
	}

	tmpDir, err := os.MkdirTemp("", "navigator-pdf-fill-*")
	if err != nil {
		return nil, errors.New("unable to prepare pdf generation")
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	exportPath := filepath.Join(tmpDir, "export.json")
	fillPath := filepath.Join(tmpDir, "fill.json")
	outPath := filepath.Join(tmpDir, "filled.pdf")

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if output, err := exec.CommandContext(ctx, pdfcpu, "form", "export", templatePath, exportPath).CombinedOutput(); err != nil {
		return nil, fmt.Errorf("unable to export template fields: %s", strings.TrimSpace(string(output)))
	}
	exportRaw, err := os.ReadFile(exportPath)
	if err != nil {
		return nil, errors.New("unable to read exported template fields")
	}
	var payload formExport
	if err := json.Unmarshal(exportRaw, &payload); err != nil {
		return nil, errors.New("unable to parse exported template fields")
	}
	if len(payload.Forms) == 0 {
		return nil, errors.New("template does not include fillable form fields")
	}
	applyValues(&payload, textValues, checkValues)

	filledRaw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.New("unable to serialize filled form fields")
	}
	if err := os.WriteFile(fillPath, filledRaw, 0o600); err != nil {
		return nil, errors.New("unable to stage filled form")
	}
	if output, err := exec.CommandContext(ctx, pdfcpu, "form", "fill", templatePath, fillPath, outPath).CombinedOutput(); err != nil {
		return nil, fmt.Errorf("unable to fill template: %s", strings.TrimSpace(string(output)))
	}

	pdfData, err := os.ReadFile(outPath)
	if err != nil {
		return nil, errors.New("unable to read generated pdf")
	}
	if len(pdfData) == 0 {
		return nil, errors.New("generated pdf is empty")
	}
	return pdfData, nil
}

func applyValues(payload *formExport, textValues map[string]string, checkValues map[string]bool) {
	for i := range payload.Forms {
		form := &payload.Forms[i]
		for j := range form.Textfield {
			if v, ok := textValues[form.Textfield[j].Name]; ok {
				form.Textfield[j].Value = v
			}
		}
		for j := range form.Combobox {
			if v, ok := textValues[form.Combobox[j].Name]; ok {
				form.Combobox[j].Value = v
			}
		}
		for j := range form.Checkbox {
			if v, ok := checkValues[form.Checkbox[j].Name]; ok {
				form.Checkbox[j].Value = v
			}
		}
	}
}
