// Package prompt builds the instruction text for the two fusion stages.
//
// The instruction texts are embedded templates under templates/. Both
// builders are pure. The garment is trusted to come from the closed garment
// set; nothing here validates it.
package prompt

import (
	"bytes"
	_ "embed"
	"strings"
	"text/template"

	"github.com/fpang/aop-fashion-mockup/internal/dataurl"
	"github.com/fpang/aop-fashion-mockup/internal/garment"
)

// DefaultPersona describes the synthesized model when the user gives no style.
const DefaultPersona = "a high-fashion model in a professional studio"

// DefaultStyleRule is the fourth replacement rule when the user gives no style.
const DefaultStyleRule = "Maintain high-end fashion photography quality."

// Subject selects how the worn shot is produced. It is either WithSubject
// (dress the person in the supplied photo) or WithoutSubject (synthesize a model).
type Subject interface {
	isSubject()
	// Mode is a stable identifier for logs and stored results.
	Mode() string
}

// WithSubject carries the reference photo of the person who will wear the garment.
type WithSubject struct {
	Person *dataurl.Image
}

// WithoutSubject asks the model to generate a new fashion model.
type WithoutSubject struct{}

func (WithSubject) isSubject()    {}
func (WithoutSubject) isSubject() {}

func (WithSubject) Mode() string    { return "with_subject" }
func (WithoutSubject) Mode() string { return "without_subject" }

// SubjectFor returns WithSubject when person is non-nil, WithoutSubject otherwise.
func SubjectFor(person *dataurl.Image) Subject {
	if person == nil {
		return WithoutSubject{}
	}
	return WithSubject{Person: person}
}

//go:embed templates/flat-shot.txt
var flatShotText string

//go:embed templates/clothing-replacement.txt
var replacementText string

//go:embed templates/editorial.txt
var editorialText string

var (
	flatShotTmpl    = template.Must(template.New("flat-shot").Parse(flatShotText))
	replacementTmpl = template.Must(template.New("clothing-replacement").Parse(replacementText))
	editorialTmpl   = template.Must(template.New("editorial").Parse(editorialText))
)

// templateData feeds the prompt templates.
type templateData struct {
	Garment garment.Type
	Rule    string
	Persona string
}

func render(tmpl *template.Template, data templateData) string {
	var buf bytes.Buffer
	// The templates only reference string fields; execution cannot fail.
	_ = tmpl.Execute(&buf, data)
	return strings.TrimSpace(buf.String())
}

// FlatShot returns the studio product-shot instruction. It does not depend on
// whether a person photo was supplied.
func FlatShot(g garment.Type) string {
	return render(flatShotTmpl, templateData{Garment: g})
}

// WornShot returns the instruction for the garment being worn. style is
// substituted verbatim when it is not blank.
func WornShot(g garment.Type, style string, subject Subject) string {
	hasStyle := strings.TrimSpace(style) != ""

	switch subject.(type) {
	case WithSubject:
		rule := DefaultStyleRule
		if hasStyle {
			rule = "ADDITIONAL STYLE: " + style
		}
		return render(replacementTmpl, templateData{Garment: g, Rule: rule})
	default:
		persona := DefaultPersona
		if hasStyle {
			persona = style
		}
		return render(editorialTmpl, templateData{Garment: g, Persona: persona})
	}
}
