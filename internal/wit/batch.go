package wit

// BatchRequest is one entry of a batch call.
type BatchRequest struct {
	Method  string            `json:"method"`
	URI     string            `json:"uri"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    PatchDocument     `json:"body"`
}

// BatchResponse is one entry of a batch reply, in request order.
type BatchResponse struct {
	Code    int               `json:"code"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body"`
}

// IsSuccess reports whether the entry status is in the 2xx class.
func (r BatchResponse) IsSuccess() bool {
	return r.Code >= 200 && r.Code <= 299
}
