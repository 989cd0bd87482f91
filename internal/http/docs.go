package httpapi

import (
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/invitely/invite-dispatch/api"
)

const redocPage = `<!doctype html>
<html>
  <head>
    <title>Invitation Dispatch API</title>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <script src="https://cdn.redoc.ly/redoc/latest/bundles/redoc.standalone.js"></script>
  </head>
  <body>
    <redoc spec-url="/openapi.yaml"></redoc>
  </body>
</html>`

// mountDocs serves the embedded OpenAPI document and a Redoc viewer for it.
func (s *Server) mountDocs(r chi.Router) {
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		doc, err := fs.ReadFile(api.FS, "openapi.yaml")
		if err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("read openapi document")
			writeError(w, http.StatusInternalServerError, "api document unavailable", CodeInternalError)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.Header().Set("Cache-Control", "public, max-age=300")
		_, _ = w.Write(doc)
	})
	r.Get("/docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(redocPage))
	})
}
