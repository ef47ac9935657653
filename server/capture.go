package server

import "net/http"

// capturingResponseWriter records status code and number of bytes written
// so that requests can be logged after the handler returns
type capturingResponseWriter struct {
	http.ResponseWriter
	StatusCode int
	Size       int64
}

func (w *capturingResponseWriter) WriteHeader(statusCode int) {
	w.StatusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *capturingResponseWriter) Write(d []byte) (int, error) {
	if w.StatusCode == 0 {
		w.StatusCode = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(d)
	w.Size += int64(n)
	return n, err
}
