package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/discuzbot/discuzbot/internal/config"
	"github.com/discuzbot/discuzbot/internal/discuz"
	"github.com/discuzbot/discuzbot/internal/domain"
	"github.com/discuzbot/discuzbot/internal/orchestrator"
	"github.com/discuzbot/discuzbot/internal/store"
	"github.com/discuzbot/discuzbot/internal/transport"
)

type stubTransport struct{}

func (stubTransport) Get(ctx context.Context, path string) (*transport.Response, error) {
	return &transport.Response{StatusCode: 200}, nil
}
func (stubTransport) PostForm(ctx context.Context, path string, form url.Values) (*transport.Response, error) {
	return &transport.Response{StatusCode: 200}, nil
}
func (stubTransport) BaseURL() string                   { return "http://stub" }
func (stubTransport) Cookies() []*http.Cookie           { return nil }
func (stubTransport) SetCookies(cookies []*http.Cookie) {}
func (stubTransport) Close() error                      { return nil }

type stubSite struct{}

func (stubSite) Login(ctx context.Context, username, password string) (discuz.LoginResult, error) {
	return discuz.LoginResult{Ok: true}, nil
}
func (stubSite) ValidateCookie(ctx context.Context) (bool, error) { return true, nil }
func (stubSite) Checkin(ctx context.Context) (discuz.CheckinResult, error) {
	return discuz.CheckinResult{Outcome: domain.OutcomeSuccess, Detail: "签到成功"}, nil
}
func (stubSite) FetchProfile(ctx context.Context) (domain.Profile, error) {
	points := 7
	return domain.Profile{UserGroup: "新手上路", Points: &points}, nil
}
func (stubSite) Reply(ctx context.Context, tid int, message string, dryRun bool) (discuz.ReplyResult, error) {
	return discuz.ReplyResult{Ok: true, Detail: message}, nil
}
func (stubSite) ForumMaxPage(ctx context.Context, fid int) (int, error) { return 1, nil }
func (stubSite) ThreadsOnPage(ctx context.Context, fid, page int) ([]discuz.Thread, error) {
	return nil, nil
}
func (stubSite) ValidateThread(ctx context.Context, th discuz.Thread) (string, bool, error) {
	return "", false, nil
}
func (stubSite) Transport() transport.Client { return stubTransport{} }
func (stubSite) Close() error                { return nil }

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()

	probe := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	t.Cleanup(probe.Close)

	st, err := store.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := config.Default()
	cfg.Site.BaseURL = probe.URL
	cfg.Site.TimeoutSeconds = 2

	factory := func(acc *domain.Account, baseURL string, c *config.Config) (orchestrator.Site, error) {
		return stubSite{}, nil
	}
	orch := orchestrator.New(cfg, st, factory, nil, nil)
	return NewServer(orch, nil, "127.0.0.1:0", ""), st
}

func doJSON(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestStatusEmpty(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp StatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Accounts != 0 {
		t.Errorf("accounts = %d, want 0", resp.Accounts)
	}
	if !resp.DryRun {
		t.Error("default config should report dry_run = true")
	}
}

func TestAddAndListAccounts(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/accounts", AddAccountRequest{
		Label: "main", Username: "alice", Password: "pw", Cookie: "uid=1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body)
	}

	var created AccountResponse
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	if !created.HasCookie {
		t.Error("has_cookie = false")
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/accounts", nil)
	var list []AccountResponse
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Label != "main" {
		t.Errorf("list = %+v", list)
	}
}

func TestAddAccountRejectsEmpty(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/accounts", AddAccountRequest{Label: "x"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestAccountResponsesHideSecrets(t *testing.T) {
	srv, _ := newTestServer(t)

	doJSON(t, srv, http.MethodPost, "/api/accounts", AddAccountRequest{
		Username: "alice", Password: "topsecret", Cookie: "auth=verysecret",
	})

	rec := doJSON(t, srv, http.MethodGet, "/api/accounts", nil)
	body := rec.Body.String()
	if bytes.Contains([]byte(body), []byte("topsecret")) || bytes.Contains([]byte(body), []byte("verysecret")) {
		t.Errorf("secrets leaked into response: %s", body)
	}
}

func TestAccountDetailNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/accounts/99", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestDeleteIsSoftDisable(t *testing.T) {
	srv, st := newTestServer(t)
	id, err := st.AddAccount(&domain.Account{Label: "a", Username: "u", Password: "p", Enabled: true})
	if err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, srv, http.MethodDelete, "/api/accounts/1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	acc, err := st.GetAccount(id)
	if err != nil {
		t.Fatal(err)
	}
	if acc.Enabled {
		t.Error("account still enabled after delete")
	}
}

func TestRunAccountEndpoint(t *testing.T) {
	srv, st := newTestServer(t)
	if _, err := st.AddAccount(&domain.Account{Label: "a", Username: "u", Password: "p", Enabled: true}); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, srv, http.MethodPost, "/api/accounts/1/run", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var res orchestrator.RunResult
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if res.Outcome != domain.OutcomeSuccess {
		t.Errorf("outcome = %s, detail = %s", res.Outcome, res.Detail)
	}
}

func TestReplyRequiresThreadID(t *testing.T) {
	srv, st := newTestServer(t)
	if _, err := st.AddAccount(&domain.Account{Label: "a", Username: "u", Password: "p", Enabled: true}); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, srv, http.MethodPost, "/api/accounts/1/reply", ReplyRequest{Context: "x"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestProfileEndpointRefreshesAndDetailShowsIt(t *testing.T) {
	srv, st := newTestServer(t)
	if _, err := st.AddAccount(&domain.Account{Label: "a", Username: "u", Password: "p", Enabled: true}); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, srv, http.MethodPost, "/api/accounts/1/profile", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var p ProfileResponse
	if err := json.NewDecoder(rec.Body).Decode(&p); err != nil {
		t.Fatal(err)
	}
	if p.UserGroup != "新手上路" || p.Points == nil || *p.Points != 7 {
		t.Errorf("profile = %+v", p)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/accounts/1", nil)
	var detail AccountDetailResponse
	if err := json.NewDecoder(rec.Body).Decode(&detail); err != nil {
		t.Fatal(err)
	}
	if detail.Profile == nil || detail.Profile.UserGroup != "新手上路" {
		t.Errorf("detail profile = %+v", detail.Profile)
	}
}

func TestRunAllAccepted(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/run", nil)
	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", rec.Code)
	}
}
