package view

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"

	"github.com/eugenenazirov/metar-view/internal/metar"
)

// LoadingText is rendered, and nothing else, while the first observation is pending.
const LoadingText = "Loading METAR data..."

// UnavailableText is rendered in place of the summary when no observation could be fetched.
const UnavailableText = "Not information available."

//go:embed templates/*.html
var templatesFS embed.FS

// Renderer turns view state into HTML.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	return newRendererFromFS(templatesFS, "templates")
}

func newRendererFromFS(fsys fs.FS, dir string) (*Renderer, error) {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return nil, err
	}
	tmpl, err := template.ParseFS(sub, "*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// model is what the templates see.
type model struct {
	Status    string
	Selection string
	Airports  []string
	Summary   string
}

func newModel(state State) model {
	m := model{
		Status:    state.Status.String(),
		Selection: state.Selection,
		Airports:  state.Airports,
	}
	if state.Observation != nil {
		m.Summary = Summary(*state.Observation)
	}
	return m
}

// RenderPage writes the full HTML document for state.
func (r *Renderer) RenderPage(w io.Writer, state State) error {
	return r.tmpl.ExecuteTemplate(w, "page.html", newModel(state))
}

// RenderView writes only the view fragment for state, as pushed to live clients.
func (r *Renderer) RenderView(w io.Writer, state State) error {
	return r.tmpl.ExecuteTemplate(w, "view.html", newModel(state))
}

// Summary formats the observation sentence. Values are inserted as received.
func Summary(obs metar.Observation) string {
	return fmt.Sprintf("This is the weather information for %s. "+
		"At %s the temperature is reported with %s°C and the dew point is %s°C. "+
		"The humidity is %s%%. "+
		"The wind is coming from %s at %s knots. "+
		"The visibility is %sm. "+
		"The weather situation is %s. "+
		"The air pressure is %s hPa.",
		obs.ICAO, obs.Name, obs.Temperature, obs.DewPoint,
		obs.Humidity,
		obs.WindDirection, obs.WindSpeed,
		obs.Visibility,
		obs.Weather,
		obs.QNH,
	)
}
