// Package script generates the VapourSynth script consumed by the vs-psnr
// backend and removes the files that script leaves behind.
package script

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"

	rperrors "github.com/five82/rpcheck/internal/errors"
	"github.com/five82/rpcheck/internal/util"
)

// Extension is appended to the secondary clip path to name its script.
const Extension = ".vpy"

// IndexExtension is appended by the L-SMASH source filter to each clip it indexes.
const IndexExtension = ".lwi"

// DefaultTemplate compares the two clips plane by plane and prints one
// "<frame> <psnr>" line per frame on stdout.
const DefaultTemplate = `import sys
import vapoursynth as vs
import mvsfunc as mvf

core = vs.core

src = core.lsmas.LWLibavSource({{quote .Primary}})
opt = core.lsmas.LWLibavSource({{quote .Secondary}})

cmp = mvf.PlaneCompare(opt, src, mae=False, rmse=False, psnr=True, cov=False, corr=False)


def report(n, f):
    sys.stdout.write(f"{n} {f.props['PlanePSNR']}\n")
    sys.stdout.flush()
    return f


cmp = core.std.ModifyFrame(cmp, cmp, report)
cmp.set_output()
`

// Clips are the template inputs.
type Clips struct {
	Primary   string
	Secondary string
}

var legacyPlaceholders = [...]string{"%File1%", "%File2%"}

// Render fills tmpl with the clip paths. Templates use {{.Primary}} and
// {{.Secondary}}, or {{quote .Primary}} for a quoted string literal. The
// legacy %File1% and %File2% placeholders are substituted afterwards.
func Render(tmpl string, clips Clips) (string, error) {
	t, err := template.New("vpy").
		Funcs(template.FuncMap{"quote": strconv.Quote}).
		Option("missingkey=error").
		Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("failed to parse script template: %w", err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, clips); err != nil {
		return "", fmt.Errorf("failed to render script template: %w", err)
	}

	r := strings.NewReplacer(legacyPlaceholders[0], clips.Primary, legacyPlaceholders[1], clips.Secondary)
	return r.Replace(buf.String()), nil
}

// Path returns the script path generated for secondary.
func Path(secondary string) string {
	return secondary + Extension
}

// Generate renders the template at templatePath (or DefaultTemplate when
// empty) for the two clips and writes it next to the secondary clip.
// It returns the script path.
func Generate(templatePath string, clips Clips) (string, error) {
	tmpl := DefaultTemplate
	if templatePath != "" {
		data, err := os.ReadFile(templatePath)
		if err != nil {
			return "", rperrors.NewIOError("failed to read script template "+templatePath, err)
		}
		tmpl = string(data)
	}

	content, err := Render(tmpl, clips)
	if err != nil {
		return "", err
	}

	path := Path(clips.Secondary)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", rperrors.NewIOError("failed to write script "+path, err)
	}
	return path, nil
}

// IntermediateFiles lists the files a vs-psnr job leaves next to its clips.
func IntermediateFiles(clips Clips) []string {
	return []string{
		clips.Primary + IndexExtension,
		clips.Secondary + IndexExtension,
		Path(clips.Secondary),
	}
}

// Cleanup removes the intermediate files. Missing files are ignored; every
// other failure is returned.
func Cleanup(clips Clips) error {
	var errs []error
	for _, path := range IntermediateFiles(clips) {
		if err := util.RemoveIfExists(path); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
