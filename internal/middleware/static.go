package middleware

import (
	"net/http"
	"os"
	"path/filepath"
)

const placeholderSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 200 200"><rect width="200" height="200" fill="#fff" stroke="#333" stroke-width="2"/><circle cx="100" cy="90" r="45" fill="none" stroke="#333" stroke-width="3"/><path d="M80 85a5 5 0 1 1 10 0M110 85a5 5 0 1 1 10 0M82 105q18 14 36 0" fill="none" stroke="#333" stroke-width="3" stroke-linecap="round"/><text x="100" y="175" text-anchor="middle" font-family="Arial" font-size="13" fill="#666">color me in!</text></svg>`

// StaticFileServer serves the web frontend, answering missing image paths
// with a printable placeholder page instead of a 404.
func StaticFileServer(dir string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(dir, filepath.Clean(r.URL.Path))

		if _, err := os.Stat(path); err == nil {
			w.Header().Set("Cache-Control", "public, max-age=2592000")
			http.ServeFile(w, r, path)
			return
		}

		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		w.Write([]byte(placeholderSVG))
	})
}
