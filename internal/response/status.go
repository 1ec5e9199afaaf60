package response

// StatusCode represents the HTTP status codes the server produces
type StatusCode int

const (
	StatusOK                      StatusCode = 200
	StatusBadRequest              StatusCode = 400
	StatusNotFound                StatusCode = 404
	StatusMethodNotAccepted       StatusCode = 406
	StatusUnsupportedMediaType    StatusCode = 415
	StatusServerError             StatusCode = 500
	StatusHTTPVersionNotSupported StatusCode = 505
)

// statusText maps status codes to reason phrases. 500 has no entry and
// renders with the generic phrase, like any unknown code.
var statusText = map[StatusCode]string{
	StatusOK:                      "OK",
	StatusBadRequest:              "Bad Request",
	StatusNotFound:                "Not Found",
	StatusMethodNotAccepted:       "Method Not Accepted",
	StatusUnsupportedMediaType:    "Unsupported Media Type",
	StatusHTTPVersionNotSupported: "HTTP Version Not Supported",
}

// StatusText returns the reason phrase for a status code
func StatusText(code StatusCode) string {
	if text, ok := statusText[code]; ok {
		return text
	}
	return "Server Error"
}

// IsClientError returns true for 4xx status codes
func (code StatusCode) IsClientError() bool {
	return code >= 400 && code < 500
}

// IsServerError returns true for 5xx status codes
func (code StatusCode) IsServerError() bool {
	return code >= 500 && code < 600
}
