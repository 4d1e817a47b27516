package health

import (
	"net/http"
)

func SetupHttpMux(mux *http.ServeMux, path string, checker Checker, render RenderFunc) {
	handler := NewHealthCheckHttpHandler(checker, render)
	mux.Handle(path, handler)
}
