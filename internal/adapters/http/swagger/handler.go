// Package swagger serves the lanes OpenAPI document and a ReDoc page for it.
package swagger

import (
	"context"
	"net/http"
)

const (
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeYAML = "application/yaml; charset=utf-8"
)

// Register mounts the docs on mux:
//
//	GET /api-docs      ReDoc page
//	GET /openapi.yaml  the embedded document
//
// It panics on a nil mux, like http.ServeMux does on a nil handler.
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("swagger: nil mux")
	}
	mux.HandleFunc("/api-docs", static(contentTypeHTML, []byte(indexHTML)))
	mux.HandleFunc("/openapi.yaml", static(contentTypeYAML, OpenAPI))
}

func static(contentType string, body []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "public, max-age=300")
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write(body)
	}
}

const indexHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8">
    <title>Lanes API Docs</title>
    <style>body{margin:0;padding:0}</style>
  </head>
  <body>
    <redoc id="redoc-container"></redoc>
    <script src="https://cdn.redoc.ly/redoc/latest/bundles/redoc.standalone.js"></script>
    <script>Redoc.init('/openapi.yaml', { suppressWarnings: true }, document.getElementById('redoc-container'));</script>
  </body>
</html>`
