package actions

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/marcus-qen/monfront/internal/frontend/apiclient"
	"github.com/marcus-qen/monfront/internal/frontend/auth"
	"github.com/marcus-qen/monfront/internal/frontend/csrf"
	"github.com/marcus-qen/monfront/internal/frontend/mvc"
)

type fakeUser struct {
	typ   mvc.UserType
	rules []string
}

func (u fakeUser) ID() string         { return "u1" }
func (u fakeUser) Type() mvc.UserType { return u.typ }
func (u fakeUser) DebugMode() bool    { return false }
func (u fakeUser) CheckAccess(rule string) bool {
	for _, r := range u.rules {
		if r == rule {
			return true
		}
	}
	return false
}

var (
	superAdmin = fakeUser{typ: mvc.UserTypeSuperAdmin, rules: auth.RoleRules("super_admin")}
	plainUser  = fakeUser{typ: mvc.UserTypeUser, rules: auth.RoleRules("user")}
)

type fakeServices struct {
	existing  map[string]bool
	getErr    error
	updateErr error
	updated   []apiclient.Service
}

func (f *fakeServices) Get(_ context.Context, p apiclient.ServiceGetParams) ([]apiclient.ServiceRef, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	var out []apiclient.ServiceRef
	for _, id := range p.ServiceIDs {
		if f.existing[id] {
			out = append(out, apiclient.ServiceRef{ServiceID: id})
		}
	}
	return out, nil
}

func (f *fakeServices) Update(_ context.Context, svc apiclient.Service) ([]string, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.updated = append(f.updated, svc)
	return []string{svc.ServiceID}, nil
}

type fakeCorrelations struct {
	err     error
	getErr  error
	stored  []apiclient.Correlation
	created []apiclient.Correlation
	lastGet apiclient.CorrelationGetParams
}

func (f *fakeCorrelations) Get(_ context.Context, p apiclient.CorrelationGetParams) ([]apiclient.Correlation, error) {
	f.lastGet = p
	if f.getErr != nil {
		return nil, f.getErr
	}
	if len(p.CorrelationIDs) == 0 {
		return f.stored, nil
	}
	var out []apiclient.Correlation
	for _, c := range f.stored {
		for _, id := range p.CorrelationIDs {
			if c.CorrelationID == id {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (f *fakeCorrelations) Create(_ context.Context, corr ...apiclient.Correlation) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, corr...)
	return []string{"1"}, nil
}

type fixture struct {
	services     *fakeServices
	correlations *fakeCorrelations
	registry     *mvc.Registry
	tokens       *csrf.Helper
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		services:     &fakeServices{existing: map[string]bool{"5": true}},
		correlations: &fakeCorrelations{},
		registry:     mvc.NewRegistry(),
		tokens:       csrf.New([]byte("session-secret")),
	}
	err := Register(f.registry, Deps{
		Services:     f.services,
		Correlations: f.correlations,
		Now:          func() time.Time { return time.Date(2024, 5, 10, 12, 30, 0, 0, time.UTC) },
		MaxPeriod:    "2y",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return f
}

func (f *fixture) run(t *testing.T, action string, user mvc.User, raw map[string]any) (mvc.Response, *mvc.Request, error) {
	t.Helper()
	c, ok := f.registry.New(action)
	if !ok {
		t.Fatalf("action %s not registered", action)
	}
	raw[csrf.TokenName] = f.tokens.TokenForAction(action)
	req := mvc.NewRequest(action, raw, user)
	resp, err := mvc.Run(context.Background(), c, req, f.tokens)
	return resp, req, err
}

func dataOf(t *testing.T, resp mvc.Response) map[string]any {
	t.Helper()
	data, ok := resp.(*mvc.DataResponse)
	if !ok {
		t.Fatalf("expected data response, got %#v", resp)
	}
	m, ok := data.Data.(map[string]any)
	if !ok {
		t.Fatalf("expected map payload, got %#v", data.Data)
	}
	return m
}

func redirectOf(t *testing.T, resp mvc.Response) *mvc.RedirectResponse {
	t.Helper()
	r, ok := resp.(*mvc.RedirectResponse)
	if !ok {
		t.Fatalf("expected redirect, got %#v", resp)
	}
	return r
}

func hasText(texts []string, want string) bool {
	for _, s := range texts {
		if s == want {
			return true
		}
	}
	return false
}

func messageTexts(msgs []mvc.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Message)
	}
	return out
}

func TestRegisterRequiresFacades(t *testing.T) {
	if err := Register(mvc.NewRegistry(), Deps{}); err == nil {
		t.Fatal("expected error without API facades")
	}
}

func TestRegisterActions(t *testing.T) {
	f := newFixture(t)
	got := strings.Join(f.registry.Actions(), ",")
	want := "correlation.create,correlation.edit,correlation.list,service.update,timeselector.update,trigger.eventname.validate"
	if got != want {
		t.Fatalf("actions = %s, want %s", got, want)
	}
}

func TestRemoteError(t *testing.T) {
	msg, ok := remoteError(&apiclient.Error{Code: -32602, Message: "Invalid params.", Data: "No permissions."})
	if !ok || msg != "No permissions." {
		t.Fatalf("remoteError = %q, %v", msg, ok)
	}
	if _, ok := remoteError(errors.New("connection refused")); ok {
		t.Fatal("transport errors are not remote errors")
	}
}
