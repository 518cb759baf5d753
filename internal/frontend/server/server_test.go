package server

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/marcus-qen/monfront/internal/frontend/auth"
	"github.com/marcus-qen/monfront/internal/frontend/config"
	"github.com/marcus-qen/monfront/internal/frontend/csrf"
)

const (
	adminUser     = "admin"
	adminPassword = "s3cret-admin-pass"
)

// fakeAPI answers the JSON-RPC methods the actions call.
type fakeAPI struct {
	mu      sync.Mutex
	calls   []string
	updates []gjson.Result
	down    bool
}

func (f *fakeAPI) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAPI) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		req := gjson.ParseBytes(body)
		method := req.Get("method").String()
		params := req.Get("params")

		f.mu.Lock()
		f.calls = append(f.calls, method)
		down := f.down
		f.mu.Unlock()

		if down {
			http.Error(w, "maintenance", http.StatusServiceUnavailable)
			return
		}

		resp := map[string]any{"jsonrpc": "2.0", "id": req.Get("id").Int()}
		switch method {
		case "service.get":
			refs := []map[string]string{}
			for _, id := range params.Get("serviceids").Array() {
				if id.String() == "5" {
					refs = append(refs, map[string]string{"serviceid": "5"})
				}
			}
			resp["result"] = refs
		case "service.update":
			if params.Get("name").String() == "Duplicate" {
				resp["error"] = map[string]any{"code": -32500, "message": "Application error.", "data": `Service "Duplicate" already exists.`}
				break
			}
			f.mu.Lock()
			f.updates = append(f.updates, params)
			f.mu.Unlock()
			resp["result"] = map[string]any{"serviceids": []string{params.Get("serviceid").String()}}
		case "correlation.create":
			resp["result"] = map[string]any{"correlationids": []string{"11"}}
		case "correlation.get":
			resp["result"] = []map[string]any{{
				"correlationid": "11",
				"name":          "Close flapping",
				"status":        "0",
				"filter":        map[string]any{"evaltype": "0", "conditions": []map[string]string{{"type": "0", "tag": "service"}}},
				"operations":    []map[string]string{{"type": "0"}},
			}}
		default:
			resp["error"] = map[string]any{"code": -32601, "message": "Method not found."}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func newTestServer(apiURL string, opts ...func(*config.Config)) *Server {
	dir, err := os.MkdirTemp("", "monfront-server-*")
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(os.RemoveAll, dir)

	cfg := config.Default()
	cfg.DataDir = dir
	cfg.API.URL = apiURL
	cfg.Session.SecureCookie = false
	cfg.Bootstrap = config.BootstrapConfig{AdminUsername: adminUser, AdminPassword: adminPassword}
	cfg.RateLimit.Enabled = false
	for _, opt := range opts {
		opt(&cfg)
	}

	srv, err := New(cfg, zap.NewNop())
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(srv.Close)
	return srv
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	return rr
}

func login(srv *Server, username, password string) *http.Cookie {
	body := strings.NewReader(`{"username":"` + username + `","password":"` + password + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/login", body)
	req.Header.Set("Content-Type", "application/json")
	rr := serve(srv, req)
	Expect(rr.Code).To(Equal(http.StatusOK), rr.Body.String())

	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.SessionCookieName {
			return c
		}
	}
	Fail("login did not set a session cookie")
	return nil
}

func authed(cookie *http.Cookie, method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	req.AddCookie(cookie)
	return req
}

func csrfToken(srv *Server, cookie *http.Cookie, action string) string {
	rr := serve(srv, authed(cookie, http.MethodGet, "/csrf?action="+action, nil))
	Expect(rr.Code).To(Equal(http.StatusOK), rr.Body.String())
	return gjson.Get(rr.Body.String(), csrf.TokenName).String()
}

func postAction(srv *Server, cookie *http.Cookie, form url.Values) *httptest.ResponseRecorder {
	req := authed(cookie, http.MethodPost, "/action", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return serve(srv, req)
}

func serviceUpdateForm(token string) url.Values {
	return url.Values{
		"action":         {"service.update"},
		csrf.TokenName:   {token},
		"serviceid":      {"5"},
		"name":           {"Web shop"},
		"sortorder":      {"0"},
		"algorithm":      {"1"},
		"tags[0][tag]":   {"env"},
		"tags[0][value]": {"prod"},
	}
}

var _ = Describe("Server", func() {
	var (
		api *fakeAPI
		srv *Server
	)

	BeforeEach(func() {
		api = &fakeAPI{}
		backend := httptest.NewServer(api.handler())
		DeferCleanup(backend.Close)
		srv = newTestServer(backend.URL)
	})

	Describe("public endpoints", func() {
		It("reports health without a session", func() {
			rr := serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(strings.TrimSpace(rr.Body.String())).To(Equal("ok"))
		})

		It("reports the build version", func() {
			rr := serve(srv, httptest.NewRequest(http.MethodGet, "/version", nil))
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(gjson.Get(rr.Body.String(), "version").String()).To(Equal(Version))
		})

		It("exposes metrics", func() {
			rr := serve(srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(rr.Body.String()).To(ContainSubstring("monfront_"))
		})

		It("requires a session everywhere else", func() {
			rr := serve(srv, httptest.NewRequest(http.MethodGet, "/action?action=service.update", nil))
			Expect(rr.Code).To(Equal(http.StatusUnauthorized))
		})

		It("rejects bad credentials", func() {
			req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"username":"admin","password":"nope"}`))
			req.Header.Set("Content-Type", "application/json")
			Expect(serve(srv, req).Code).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("anti-forgery tokens", func() {
		It("issues a token for the action's domain", func() {
			cookie := login(srv, adminUser, adminPassword)
			Expect(csrfToken(srv, cookie, "service.update")).NotTo(BeEmpty())
		})

		It("rejects actions without a domain", func() {
			cookie := login(srv, adminUser, adminPassword)
			rr := serve(srv, authed(cookie, http.MethodGet, "/csrf?action=popup", nil))
			Expect(rr.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("action dispatch", func() {
		var cookie *http.Cookie

		BeforeEach(func() {
			cookie = login(srv, adminUser, adminPassword)
		})

		It("updates a service through the remote API", func() {
			rr := postAction(srv, cookie, serviceUpdateForm(csrfToken(srv, cookie, "service.update")))
			Expect(rr.Code).To(Equal(http.StatusOK), rr.Body.String())
			Expect(gjson.Get(rr.Body.String(), "title").String()).To(Equal("Service updated"))

			Expect(api.methods()).To(Equal([]string{"service.get", "service.update"}))
			Expect(api.updates).To(HaveLen(1))
			Expect(api.updates[0].Get("tags.0.tag").String()).To(Equal("env"))
			Expect(api.updates[0].Get("weight").Int()).To(BeZero())
		})

		It("returns validation errors as data", func() {
			form := serviceUpdateForm(csrfToken(srv, cookie, "service.update"))
			form.Set("algorithm", "7")
			rr := postAction(srv, cookie, form)
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(gjson.Get(rr.Body.String(), "errors.0").String()).To(Equal(`Incorrect value "7" for "algorithm" field.`))
			Expect(api.methods()).To(BeEmpty())
		})

		It("shows remote errors in an error box", func() {
			form := serviceUpdateForm(csrfToken(srv, cookie, "service.update"))
			form.Set("name", "Duplicate")
			rr := postAction(srv, cookie, form)
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(gjson.Get(rr.Body.String(), "error.title").String()).To(Equal("Cannot update service"))
			Expect(gjson.Get(rr.Body.String(), "error.messages.0").String()).To(Equal(`Service "Duplicate" already exists.`))
		})

		It("maps an unreachable API to a bad gateway", func() {
			api.mu.Lock()
			api.down = true
			api.mu.Unlock()
			rr := postAction(srv, cookie, serviceUpdateForm(csrfToken(srv, cookie, "service.update")))
			Expect(rr.Code).To(Equal(http.StatusBadGateway))
			Expect(gjson.Get(rr.Body.String(), "code").String()).To(Equal("upstream_error"))
		})

		It("refuses a missing or foreign token", func() {
			form := serviceUpdateForm("")
			form.Del(csrf.TokenName)
			Expect(postAction(srv, cookie, form).Code).To(Equal(http.StatusForbidden))

			form = serviceUpdateForm(csrfToken(srv, cookie, "correlation.create"))
			Expect(postAction(srv, cookie, form).Code).To(Equal(http.StatusForbidden))
			Expect(api.methods()).To(BeEmpty())
		})

		It("answers 404 for unknown actions", func() {
			rr := postAction(srv, cookie, url.Values{"action": {"host.delete"}})
			Expect(rr.Code).To(Equal(http.StatusNotFound))
		})

		It("redirects with signed form data after creating a correlation", func() {
			form := url.Values{
				"action":              {"correlation.create"},
				csrf.TokenName:        {csrfToken(srv, cookie, "correlation.create")},
				"name":                {"Close flapping"},
				"evaltype":            {"0"},
				"conditions[0][type]": {"0"},
				"conditions[0][tag]":  {"service"},
				"op_close_old":        {"1"},
			}
			rr := postAction(srv, cookie, form)
			Expect(rr.Code).To(Equal(http.StatusFound))

			loc, err := url.Parse(rr.Header().Get("Location"))
			Expect(err).NotTo(HaveOccurred())
			Expect(loc.Query().Get("action")).To(Equal("correlation.list"))
			Expect(loc.Query().Get("formdata")).To(Equal("1"))
			Expect(loc.Query().Get("sign")).NotTo(BeEmpty())

			list := serve(srv, authed(cookie, http.MethodGet, loc.String(), nil))
			Expect(list.Code).To(Equal(http.StatusOK), list.Body.String())
			Expect(gjson.Get(list.Body.String(), "correlations.0.name").String()).To(Equal("Close flapping"))
			Expect(gjson.Get(list.Body.String(), "messages.0.message").String()).To(Equal("Correlation added"))
			Expect(api.methods()).To(ContainElement("correlation.get"))
		})

		It("returns a failed correlation to the edit form", func() {
			form := url.Values{
				"action":       {"correlation.create"},
				csrf.TokenName: {csrfToken(srv, cookie, "correlation.create")},
				"name":         {"Close flapping"},
				"evaltype":     {"0"},
				"op_close_old": {"1"},
			}
			rr := postAction(srv, cookie, form)
			Expect(rr.Code).To(Equal(http.StatusFound))
			Expect(rr.Header().Get("Location")).To(ContainSubstring("action=correlation.edit"))
			Expect(api.methods()).NotTo(ContainElement("correlation.create"))

			edit := serve(srv, authed(cookie, http.MethodGet, rr.Header().Get("Location"), nil))
			Expect(edit.Code).To(Equal(http.StatusOK), edit.Body.String())
			body := edit.Body.String()
			Expect(gjson.Get(body, "form.name").String()).To(Equal("Close flapping"))
			Expect(gjson.Get(body, "form.op_close_old").String()).To(Equal("1"))
			Expect(gjson.Get(body, "form.evaltype").Int()).To(Equal(int64(0)))
			Expect(gjson.Get(body, "title").String()).To(Equal("Cannot add correlation"))
			Expect(gjson.Get(body, "messages.#.message").String()).To(ContainSubstring(`Invalid parameter \"/1/filter/conditions\": cannot be empty.`))
		})

		It("refuses a tampered edit redirect", func() {
			form := url.Values{
				"action":       {"correlation.create"},
				csrf.TokenName: {csrfToken(srv, cookie, "correlation.create")},
				"name":         {"Close flapping"},
				"evaltype":     {"0"},
				"op_close_old": {"1"},
			}
			rr := postAction(srv, cookie, form)
			Expect(rr.Code).To(Equal(http.StatusFound))

			loc, err := url.Parse(rr.Header().Get("Location"))
			Expect(err).NotTo(HaveOccurred())
			q := loc.Query()
			q.Set("sign", strings.Repeat("0", len(q.Get("sign"))))
			loc.RawQuery = q.Encode()

			edit := serve(srv, authed(cookie, http.MethodGet, loc.String(), nil))
			Expect(edit.Code).To(Equal(http.StatusOK), edit.Body.String())
			Expect(gjson.Get(edit.Body.String(), "form.name").String()).To(BeEmpty())
			Expect(gjson.Get(edit.Body.String(), "messages.0.message").String()).
				To(Equal("Operation cannot be performed due to unauthorized request."))
		})

		It("answers fatal input with 400 for JSON callers", func() {
			form := url.Values{
				"action":       {"correlation.create"},
				csrf.TokenName: {csrfToken(srv, cookie, "correlation.create")},
			}
			req := authed(cookie, http.MethodPost, "/action", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			req.Header.Set("Accept", "application/json")
			rr := serve(srv, req)
			Expect(rr.Code).To(Equal(http.StatusBadRequest))
			var msgs []string
			for _, m := range gjson.Get(rr.Body.String(), "messages").Array() {
				msgs = append(msgs, m.String())
			}
			Expect(msgs).To(ContainElement(`Field "name" is mandatory.`))
		})

		It("validates event names from a JSON body without a token", func() {
			req := authed(cookie, http.MethodPost, "/action?action=trigger.eventname.validate",
				strings.NewReader(`{"event_name":"Load is {?last(//system.cpu.load)} on {HOST.NAME}"}`))
			req.Header.Set("Content-Type", "application/json")
			rr := serve(srv, req)
			Expect(rr.Code).To(Equal(http.StatusOK), rr.Body.String())
			Expect(gjson.Get(rr.Body.String(), "result").Bool()).To(BeTrue())
		})

		It("records dispatches in the audit log", func() {
			postAction(srv, cookie, serviceUpdateForm(csrfToken(srv, cookie, "service.update")))

			rr := serve(srv, authed(cookie, http.MethodGet, "/audit?type=action.executed", nil))
			Expect(rr.Code).To(Equal(http.StatusOK), rr.Body.String())
			events := gjson.Get(rr.Body.String(), "events").Array()
			Expect(events).To(HaveLen(1))
			Expect(events[0].Get("action").String()).To(Equal("service.update"))
			Expect(events[0].Get("actor").String()).To(Equal(adminUser))
			Expect(events[0].Get("detail.input.name").String()).To(Equal("Web shop"))
			Expect(events[0].Get("detail.input._csrf_token").String()).To(Equal("[REDACTED]"))
		})

		It("exports the audit log as JSON lines", func() {
			rr := serve(srv, authed(cookie, http.MethodGet, "/audit/export", nil))
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(rr.Header().Get("Content-Type")).To(Equal("application/x-ndjson"))
			Expect(rr.Header().Get("Content-Disposition")).To(HavePrefix("attachment;"))

			lines := 0
			sc := bufio.NewScanner(rr.Body)
			for sc.Scan() {
				Expect(gjson.Valid(sc.Text())).To(BeTrue())
				lines++
			}
			Expect(lines).To(BeNumerically(">=", 1))
		})

		It("throttles dispatches past the hourly limit", func() {
			backend := httptest.NewServer(api.handler())
			DeferCleanup(backend.Close)
			limited := newTestServer(backend.URL, func(cfg *config.Config) {
				cfg.RateLimit.MaxDispatchesPerHourPerUser = 1
			})
			c := login(limited, adminUser, adminPassword)

			Expect(postAction(limited, c, serviceUpdateForm(csrfToken(limited, c, "service.update"))).Code).To(Equal(http.StatusOK))
			rr := postAction(limited, c, serviceUpdateForm(csrfToken(limited, c, "service.update")))
			Expect(rr.Code).To(Equal(http.StatusTooManyRequests))
			Expect(rr.Header().Get("Retry-After")).NotTo(BeEmpty())
		})

		It("rejects a malformed audit filter", func() {
			rr := serve(srv, authed(cookie, http.MethodGet, "/audit?since=yesterday", nil))
			Expect(rr.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("user management", func() {
		var admin *http.Cookie

		createUser := func(username, role string) string {
			body := `{"username":"` + username + `","password":"pw-` + username + `","role":"` + role + `"}`
			req := authed(admin, http.MethodPost, "/users", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			rr := serve(srv, req)
			Expect(rr.Code).To(Equal(http.StatusCreated), rr.Body.String())
			return gjson.Get(rr.Body.String(), "id").String()
		}

		BeforeEach(func() {
			admin = login(srv, adminUser, adminPassword)
		})

		It("creates and lists users", func() {
			createUser("operator", "user")
			rr := serve(srv, authed(admin, http.MethodGet, "/users", nil))
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(gjson.Get(rr.Body.String(), "#.username").String()).To(ContainSubstring("operator"))
		})

		It("rejects duplicate usernames", func() {
			createUser("operator", "user")
			req := authed(admin, http.MethodPost, "/users", strings.NewReader(`{"username":"operator","password":"x"}`))
			Expect(serve(srv, req).Code).To(Equal(http.StatusConflict))
		})

		It("limits plain users", func() {
			createUser("operator", "user")
			cookie := login(srv, "operator", "pw-operator")

			Expect(serve(srv, authed(cookie, http.MethodGet, "/users", nil)).Code).To(Equal(http.StatusForbidden))
			Expect(serve(srv, authed(cookie, http.MethodGet, "/audit", nil)).Code).To(Equal(http.StatusForbidden))

			rr := postAction(srv, cookie, serviceUpdateForm(csrfToken(srv, cookie, "service.update")))
			Expect(rr.Code).To(Equal(http.StatusForbidden))
			Expect(gjson.Get(rr.Body.String(), "code").String()).To(Equal("access_denied"))
		})

		It("lets any user move the time selector", func() {
			createUser("operator", "user")
			cookie := login(srv, "operator", "pw-operator")
			form := url.Values{
				"action":       {"timeselector.update"},
				csrf.TokenName: {csrfToken(srv, cookie, "timeselector.update")},
				"from":         {"now-1h"},
				"to":           {"now"},
			}
			rr := postAction(srv, cookie, form)
			Expect(rr.Code).To(Equal(http.StatusOK), rr.Body.String())
			Expect(gjson.Get(rr.Body.String(), "to_ts").Int() - gjson.Get(rr.Body.String(), "from_ts").Int()).To(Equal(int64(3600)))
		})

		It("revokes sessions of disabled users", func() {
			id := createUser("operator", "user")
			cookie := login(srv, "operator", "pw-operator")

			req := authed(admin, http.MethodPatch, "/users/"+id, strings.NewReader(`{"enabled":false}`))
			rr := serve(srv, req)
			Expect(rr.Code).To(Equal(http.StatusOK), rr.Body.String())
			Expect(gjson.Get(rr.Body.String(), "enabled").Bool()).To(BeFalse())

			Expect(serve(srv, authed(cookie, http.MethodGet, "/me", nil)).Code).To(Equal(http.StatusUnauthorized))
		})

		It("deletes users but not the caller", func() {
			id := createUser("operator", "user")
			Expect(serve(srv, authed(admin, http.MethodDelete, "/users/"+id, nil)).Code).To(Equal(http.StatusNoContent))
			Expect(serve(srv, authed(admin, http.MethodDelete, "/users/"+id, nil)).Code).To(Equal(http.StatusNotFound))

			me := serve(srv, authed(admin, http.MethodGet, "/me", nil))
			selfID := gjson.Get(me.Body.String(), "id").String()
			Expect(serve(srv, authed(admin, http.MethodDelete, "/users/"+selfID, nil)).Code).To(Equal(http.StatusBadRequest))
		})
	})
})
