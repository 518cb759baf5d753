package mvc

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/marcus-qen/monfront/internal/shared/signing"
)

// FormDataDomain is the signing domain of form data carried across a redirect.
const FormDataDomain = "formdata"

// Response is what a controller produces. It is one of *DataResponse,
// *RedirectResponse or *FatalRedirectResponse.
type Response interface {
	isResponse()
}

// DataResponse carries a payload serialised to JSON.
type DataResponse struct {
	Data any
}

// RedirectResponse sends the browser to another action. Form data and
// messages attached to it are signed and travel with the redirect URL.
type RedirectResponse struct {
	Action   string
	Params   url.Values
	FormData map[string]any
	Title    string
	Messages []Message
}

// FatalRedirectResponse aborts the page and returns the user to a safe
// location with the given messages.
type FatalRedirectResponse struct {
	URL      string
	Messages []Message
}

func (*DataResponse) isResponse()          {}
func (*RedirectResponse) isResponse()      {}
func (*FatalRedirectResponse) isResponse() {}

// NewRedirect returns a redirect to action.
func NewRedirect(action string) *RedirectResponse {
	return &RedirectResponse{Action: action, Params: url.Values{}}
}

// redirectBlob is the signed payload of a redirect.
type redirectBlob struct {
	Form     map[string]any `json:"form"`
	Title    string         `json:"title,omitempty"`
	Messages []Message      `json:"messages,omitempty"`
}

// Location returns the redirect URL. Attached form data and messages are
// encoded as formdata=1&data=<base64 json>&sign=<hmac>.
func (r *RedirectResponse) Location(signer *signing.Signer) (string, error) {
	q := url.Values{}
	for k, vs := range r.Params {
		q[k] = append([]string(nil), vs...)
	}
	q.Set("action", r.Action)

	if r.FormData != nil || r.Title != "" || len(r.Messages) > 0 {
		if signer == nil {
			return "", fmt.Errorf("redirect to %s: form data requires a signer", r.Action)
		}
		blob, err := json.Marshal(redirectBlob{Form: r.FormData, Title: r.Title, Messages: r.Messages})
		if err != nil {
			return "", fmt.Errorf("encode redirect form data: %w", err)
		}
		q.Set("formdata", "1")
		q.Set("data", base64.StdEncoding.EncodeToString(blob))
		q.Set("sign", signer.Sign(FormDataDomain, blob))
	}
	return "/action?" + q.Encode(), nil
}

// Location returns the fatal redirect target, "/" unless set.
func (r *FatalRedirectResponse) Location() string {
	if r.URL == "" {
		return "/"
	}
	return r.URL
}
