package server

import (
	"errors"
	"io/fs"
	"net/http"
	"path"
	"strings"

	httpmiddleware "github.com/wolfeidau/devhttps/internal/http"
)

const indexPage = "/index.html"

// fileHandler serves a directory tree with http.FileServer. Requests naming
// index.html directly are answered with the file rather than the redirect to
// "./" that http.FileServer issues.
type fileHandler struct {
	dir   http.Dir
	files http.Handler
}

func newFileHandler(root string) *fileHandler {
	dir := http.Dir(root)
	return &fileHandler{
		dir:   dir,
		files: http.FileServer(dir),
	}
}

func (h *fileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasSuffix(r.URL.Path, indexPage) {
		h.serveIndex(w, r)
		return
	}

	// a directory served through its index page takes the index page's type
	if strings.HasSuffix(r.URL.Path, "/") && h.hasIndex(r.URL.Path) {
		if ct, ok := httpmiddleware.ContentTypeOverrides[path.Ext(indexPage)]; ok {
			w.Header().Set("Content-Type", ct)
		}
	}

	h.files.ServeHTTP(w, r)
}

func (h *fileHandler) hasIndex(dir string) bool {
	f, err := h.dir.Open(path.Join(path.Clean("/"+dir), indexPage))
	if err != nil {
		return false
	}
	defer f.Close()

	info, err := f.Stat()
	return err == nil && !info.IsDir()
}

func (h *fileHandler) serveIndex(w http.ResponseWriter, r *http.Request) {
	// http.Dir rejects paths escaping the root
	name := path.Clean("/" + r.URL.Path)

	f, err := h.dir.Open(name)
	if err != nil {
		msg, code := toHTTPError(err)
		http.Error(w, msg, code)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		msg, code := toHTTPError(err)
		http.Error(w, msg, code)
		return
	}

	// a directory named index.html gets the regular listing behaviour
	if info.IsDir() {
		h.files.ServeHTTP(w, r)
		return
	}

	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// toHTTPError mirrors the status mapping used by http.FileServer.
func toHTTPError(err error) (string, int) {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "404 page not found", http.StatusNotFound
	case errors.Is(err, fs.ErrPermission):
		return "403 Forbidden", http.StatusForbidden
	default:
		return "500 Internal Server Error", http.StatusInternalServerError
	}
}
