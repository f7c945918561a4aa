package httpd

// Request is one parsed request as handed to application logic. Body is nil
// when no body was read off the wire; it is only valid for the duration of
// the handler call.
type Request struct {
	Method string
	Path   string
	Header *Headers
	Body   []byte
}

// Handler is the application logic invoked once per successfully framed
// request. Returning nil yields a 404.
type Handler interface {
	Serve(r *Request) *Response
}

// HandlerFunc adapts a plain function to a Handler.
type HandlerFunc func(r *Request) *Response

func (f HandlerFunc) Serve(r *Request) *Response {
	return f(r)
}

// permitsRequestBody reports whether a request body is meaningful for the
// method.
func permitsRequestBody(method string) bool {
	switch method {
	case "POST", "PUT", "PATCH", "PROPPATCH", "REPORT",
		"OPTIONS", "DELETE", "PROPFIND", "MKCOL", "LOCK":
		return true
	}
	return false
}
