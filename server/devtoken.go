package server

import (
	"html/template"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
)

// Dev-mode helper for inspecting the tokens a flow produced: paste a
// JWT, see its header and claims. The token is decoded without any
// signature check, which is exactly why the route only exists in dev
// mode.

var devTokenPageTmpl = template.Must(template.New("devtoken").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Token Inspector</title></head>
<body style="font-family: monospace; padding: 20px;">
  <h2>Token Inspector</h2>
  <p style="color: #666;">Decodes a JWT without verifying its signature. Dev mode only.</p>
  <form method="get" action="/dev/token">
    <textarea name="token" rows="6" style="width: 100%;">{{.Token}}</textarea>
    <br><button type="submit">Decode</button>
  </form>
  {{if .Error}}<p style="color: red;">{{.Error}}</p>{{end}}
</body>
</html>
`))

type devTokenPageData struct {
	Token string
	Error string
}

func (a *App) handleDevToken(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = devTokenPageTmpl.Execute(w, devTokenPageData{})
		return
	}

	claims := jwt.MapClaims{}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, claims)
	if err != nil {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusBadRequest)
		_ = devTokenPageTmpl.Execute(w, devTokenPageData{Token: token, Error: "not a decodable JWT: " + err.Error()})
		return
	}

	writeJSON(w, map[string]any{
		"header": parsed.Header,
		"claims": claims,
	})
}
