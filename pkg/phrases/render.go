package phrases

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"
	"text/template"
)

const maxRenderOutput = 64 * 1024

// templateCache caches parsed phrases to avoid re-parsing on every call.
var templateCache sync.Map

var templateFuncs = template.FuncMap{
	"join":  strings.Join,
	"lower": strings.ToLower,
	"upper": strings.ToUpper,
}

// Render evaluates a phrase against data. Phrases without template
// actions are returned unchanged.
func Render(phrase string, data any) (string, error) {
	if !strings.Contains(phrase, "{{") {
		return phrase, nil
	}

	var tmpl *template.Template
	if cached, ok := templateCache.Load(phrase); ok {
		tmpl = cached.(*template.Template)
	} else {
		var err error
		tmpl, err = template.New("").Funcs(templateFuncs).Option("missingkey=zero").Parse(phrase)
		if err != nil {
			return "", err
		}
		templateCache.Store(phrase, tmpl)
	}

	var buf bytes.Buffer
	lw := &limitWriter{w: &buf, n: maxRenderOutput}
	if err := tmpl.Execute(lw, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// limitWriter caps output from template.Execute.
type limitWriter struct {
	w       io.Writer
	n       int64
	written int64
}

func (lw *limitWriter) Write(p []byte) (int, error) {
	if lw.written+int64(len(p)) > lw.n {
		allowed := lw.n - lw.written
		if allowed > 0 {
			n, err := lw.w.Write(p[:allowed])
			lw.written += int64(n)
			if err != nil {
				return n, err
			}
		}
		return 0, fmt.Errorf("phrase output exceeds %d bytes", lw.n)
	}
	n, err := lw.w.Write(p)
	lw.written += int64(n)
	return n, err
}
