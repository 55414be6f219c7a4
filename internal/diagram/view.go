package diagram

import (
	"fmt"
	"html/template"
	"io"
	"strings"
)

var views = template.Must(template.New("diagram").Parse(`
{{define "loading"}}<div class="my-8 p-4 bg-zinc-800 rounded-lg animate-pulse"><p class="text-zinc-400 text-sm">Loading diagram...</p></div>{{end}}
{{define "error"}}<div class="my-8 p-4 bg-red-900/20 border border-red-500 rounded-lg"><p class="text-red-400 text-sm">{{if .NoSource}}No chart data provided{{else}}Failed to render diagram: {{.Error}}{{end}}</p><pre class="mt-2 text-xs text-red-300 overflow-x-auto">{{.Source}}</pre></div>{{end}}
{{define "inline"}}<figure class="my-8 group relative" data-diagram-state="rendered" data-diagram-key="{{.Key}}"><div class="overflow-x-auto rounded-lg bg-zinc-900 p-4 cursor-zoom-in">{{.Markup}}</div><button type="button" class="absolute top-2 right-2 opacity-0 group-hover:opacity-100 transition-opacity rounded bg-zinc-800 px-2 py-1 text-xs text-zinc-300" aria-label="Expand diagram">Expand</button><figcaption class="mt-2 text-center text-xs text-zinc-500">Click diagram to expand</figcaption></figure>{{end}}
{{define "expanded"}}<div class="fixed inset-0 z-50 flex items-center justify-center bg-black/90" data-diagram-state="expanded" role="dialog" aria-modal="true"><div class="absolute top-4 right-4 flex gap-2"><button type="button" data-action="out" aria-label="Zoom out">-</button><button type="button" data-action="reset" aria-label="Reset zoom">{{.Percent}}%</button><button type="button" data-action="in" aria-label="Zoom in">+</button><button type="button" data-action="close" aria-label="Close">Close</button></div><div class="overflow-auto max-h-full max-w-full p-8"><div style="transform: scale({{.Scale}}); transform-origin: top left">{{.Markup}}</div></div></div>{{end}}
`))

type viewData struct {
	Key      string
	Source   string
	Error    string
	NoSource bool
	Markup   template.HTML
	Scale    string
	Percent  int
}

// WriteHTML writes the view for the diagram's current state. Engine output
// is trusted markup and is not escaped; the source is.
func (d *Diagram) WriteHTML(w io.Writer) error {
	return WriteState(w, d.State())
}

// WriteState writes the view for a state snapshot. Idle writes nothing.
func WriteState(w io.Writer, s State) error {
	data := viewData{
		Key:      Key(strings.TrimSpace(s.Source)),
		Source:   s.Source,
		Error:    s.Error,
		NoSource: strings.TrimSpace(s.Source) == "",
		Markup:   template.HTML(s.Markup),
		Scale:    fmt.Sprintf("%.2f", s.Zoom),
		Percent:  int(s.Zoom*100 + 0.5),
	}
	var name string
	switch s.Phase {
	case PhaseIdle:
		return nil
	case PhaseLoading:
		name = "loading"
	case PhaseError:
		name = "error"
	case PhaseRendered:
		name = "inline"
	case PhaseExpanded:
		name = "expanded"
	default:
		return fmt.Errorf("unknown diagram phase %d", s.Phase)
	}
	if err := views.ExecuteTemplate(w, name, data); err != nil {
		return fmt.Errorf("render diagram view %s: %w", name, err)
	}
	return nil
}
