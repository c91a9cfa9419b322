package fetcher

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/url"

	"github.com/example/provider-gateway/services/provider-fetch/internal/extension"
)

type encodedBody struct {
	reader      io.Reader
	contentType string
}

// encodeBody turns an Options body into wire bytes for a direct HTTP request.
func encodeBody(body any) (encodedBody, error) {
	switch b := body.(type) {
	case nil:
		return encodedBody{}, nil
	case string:
		return encodedBody{reader: bytes.NewBufferString(b)}, nil
	case []byte:
		return encodedBody{reader: bytes.NewReader(b)}, nil
	case url.Values:
		return encodedBody{
			reader:      bytes.NewBufferString(b.Encode()),
			contentType: "application/x-www-form-urlencoded",
		}, nil
	case FormData:
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		for _, f := range b {
			if err := mw.WriteField(f.Name, f.Value); err != nil {
				return encodedBody{}, fmt.Errorf("encode form field %q: %w", f.Name, err)
			}
		}
		if err := mw.Close(); err != nil {
			return encodedBody{}, err
		}
		return encodedBody{reader: &buf, contentType: mw.FormDataContentType()}, nil
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			return encodedBody{}, fmt.Errorf("encode json body: %w", err)
		}
		return encodedBody{reader: bytes.NewReader(raw), contentType: "application/json"}, nil
	}
}

// bodyType tags a body for the extension.
func bodyType(body any) string {
	switch body.(type) {
	case nil:
		return extension.BodyNone
	case string, []byte:
		return extension.BodyString
	case url.Values:
		return extension.BodyURLSearchParams
	case FormData:
		return extension.BodyFormData
	default:
		return extension.BodyObject
	}
}

// bodyObject converts a body into a value that survives JSON transport.
// Form bodies become flat objects; a repeated name keeps its last value.
func bodyObject(body any) any {
	switch b := body.(type) {
	case []byte:
		return string(b)
	case url.Values:
		out := make(map[string]string, len(b))
		for k, vs := range b {
			if len(vs) > 0 {
				out[k] = vs[len(vs)-1]
			}
		}
		return out
	case FormData:
		out := make(map[string]string, len(b))
		for _, f := range b {
			out[f.Name] = f.Value
		}
		return out
	default:
		return body
	}
}
