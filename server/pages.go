package server

import (
	"fmt"
	"html/template"
	"net/http"
	"time"
)

// The relay's surfaces are opened inside mobile in-app browsers, so the
// pages stay deliberately plain: monospace text, no assets, no scripts.

var errorPageTmpl = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Authentication Error</title></head>
<body style="font-family: monospace; padding: 20px; text-align: center;">
  <h2>Authentication Error</h2>
  <p style="background: #fee; padding: 15px; border-radius: 8px; display: inline-block;">{{.Message}}</p>
  {{if .Hint}}<p style="color: #666; font-size: 14px;">{{.Hint}}</p>{{end}}
  <p style="color: #666; font-size: 14px;">Please close this window and try again</p>
</body>
</html>
`))

var waitingPageTmpl = template.Must(template.New("waiting").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Signing in</title></head>
<body style="font-family: monospace; padding: 20px; text-align: center;">
  <h2>Processing authentication...</h2>
  <p style="color: #666;">Waiting for authorization parameters.</p>
</body>
</html>
`))

var redirectPageTmpl = template.Must(template.New("redirect").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta http-equiv="refresh" content="{{.DelaySeconds}};url={{.Target}}">
  <title>Signing in</title>
</head>
<body style="font-family: monospace; padding: 20px; text-align: center;">
  <h2>Redirecting back to app...</h2>
  <p style="color: #666;">If nothing happens, <a href="{{.Target}}">tap here</a>.</p>
</body>
</html>
`))

type errorPageData struct {
	Message string
	Hint    string
}

type redirectPageData struct {
	Target       template.URL
	DelaySeconds string
}

func renderErrorPage(w http.ResponseWriter, status int, message, hint string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = errorPageTmpl.Execute(w, errorPageData{Message: message, Hint: hint})
}

func renderWaitingPage(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = waitingPageTmpl.Execute(w, nil)
}

// renderRedirectPage shows a short interstitial before navigating to the
// token-bearing target. The delay is cosmetic, letting the status text
// render before the in-app browser hands control back.
func renderRedirectPage(w http.ResponseWriter, target string, delay time.Duration) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := redirectPageData{
		Target:       template.URL(target),
		DelaySeconds: fmt.Sprintf("%g", delay.Seconds()),
	}
	_ = redirectPageTmpl.Execute(w, data)
}
