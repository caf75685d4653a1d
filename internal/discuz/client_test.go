package discuz

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/discuzbot/discuzbot/internal/domain"
	"github.com/discuzbot/discuzbot/internal/transport"
)

func newSiteClient(t *testing.T, srvURL, signature string) *Client {
	t.Helper()
	tc, err := transport.Open(transport.Options{
		BaseURL:   srvURL,
		UserAgent: "test-agent",
		Timeout:   2 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { tc.Close() })
	return New(tc, signature)
}

// fakeForum is a minimal Discuz lookalike; the pluginBody map decides which
// check-in plugins exist and what they answer on submission.
type fakeForum struct {
	pluginBody map[string]string // plugin id -> POST response body
	pluginPage string            // extra text on plugin GET pages
	pluginHits []string
	loginOK    bool
	spacePage  string
}

func (f *fakeForum) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<input name="formhash" value="feedbeef" />欢迎游客`)
	})
	mux.HandleFunc("/plugin.php", func(w http.ResponseWriter, r *http.Request) {
		id := strings.SplitN(r.URL.Query().Get("id"), ":", 2)[0]
		body, ok := f.pluginBody[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if r.Method == http.MethodPost {
			f.pluginHits = append(f.pluginHits, id)
			fmt.Fprint(w, body)
			return
		}
		fmt.Fprint(w, `<input name="formhash" value="feedbeef" />签到页面`+f.pluginPage)
	})
	mux.HandleFunc("/member.php", func(w http.ResponseWriter, r *http.Request) {
		if f.loginOK {
			fmt.Fprint(w, "控制面板 退出")
			return
		}
		fmt.Fprint(w, "登录失败")
	})
	mux.HandleFunc("/home.php", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("mod") == "space" {
			fmt.Fprint(w, f.spacePage)
			return
		}
		if c, err := r.Cookie("auth"); err == nil && c.Value == "good" {
			fmt.Fprint(w, "控制面板")
			return
		}
		fmt.Fprint(w, "请先登录")
	})
	return mux
}

func TestCheckinSelectsFirstExistingPlugin(t *testing.T) {
	forum := &fakeForum{pluginBody: map[string]string{
		"dc_signin": "恭喜您，签到成功！",
	}}
	srv := httptest.NewServer(forum.handler())
	defer srv.Close()

	c := newSiteClient(t, srv.URL, "")
	res, err := c.Checkin(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != domain.OutcomeSuccess {
		t.Errorf("outcome = %s, want success", res.Outcome)
	}
	if res.Plugin != "dc_signin" {
		t.Errorf("plugin = %q, want dc_signin", res.Plugin)
	}
}

func TestCheckinProbingIsDeterministic(t *testing.T) {
	// Two plugins exist; the earlier candidate in the fixed order must win
	// on every run.
	forum := &fakeForum{pluginBody: map[string]string{
		"dsu_paulsign": "签到成功，获得积分",
		"fx_checkin":   "签到成功",
	}}
	srv := httptest.NewServer(forum.handler())
	defer srv.Close()

	for i := 0; i < 3; i++ {
		c := newSiteClient(t, srv.URL, "")
		res, err := c.Checkin(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if res.Plugin != "dsu_paulsign" {
			t.Fatalf("run %d selected %q, want dsu_paulsign", i, res.Plugin)
		}
	}
	for _, hit := range forum.pluginHits {
		if hit == "fx_checkin" {
			t.Error("later candidate was submitted despite earlier match")
		}
	}
}

func TestCheckinAlreadyDone(t *testing.T) {
	forum := &fakeForum{pluginBody: map[string]string{
		"k_misign": "您今天已经签到过了，签到成功的奖励明天再来",
	}}
	srv := httptest.NewServer(forum.handler())
	defer srv.Close()

	c := newSiteClient(t, srv.URL, "")
	res, err := c.Checkin(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != domain.OutcomeAlreadyDone {
		t.Errorf("outcome = %s, want already_done (already markers win over success)", res.Outcome)
	}
}

func TestCheckinSubmitsDespiteSignedMemberListOnPage(t *testing.T) {
	// Plugin pages list members who already signed today. That text must not
	// be mistaken for this session's own state; the form is still submitted
	// and only the submission response decides the outcome.
	forum := &fakeForum{
		pluginBody: map[string]string{"dsu_paulsign": "签到成功，获得积分"},
		pluginPage: "您今天还没有签到 今日已签到之会员：alice, bob",
	}
	srv := httptest.NewServer(forum.handler())
	defer srv.Close()

	c := newSiteClient(t, srv.URL, "")
	res, err := c.Checkin(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != domain.OutcomeSuccess {
		t.Errorf("outcome = %s, want success", res.Outcome)
	}
	if len(forum.pluginHits) != 1 {
		t.Errorf("submissions = %d, want 1", len(forum.pluginHits))
	}
}

func TestCheckinUnavailableWhenNoPluginExists(t *testing.T) {
	forum := &fakeForum{pluginBody: map[string]string{}}
	srv := httptest.NewServer(forum.handler())
	defer srv.Close()

	c := newSiteClient(t, srv.URL, "")
	res, err := c.Checkin(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != domain.OutcomeUnavailable {
		t.Errorf("outcome = %s, want unavailable", res.Outcome)
	}
}

func TestCheckinUnrecognizedAnswerIsFailed(t *testing.T) {
	forum := &fakeForum{pluginBody: map[string]string{
		"k_misign": "系统繁忙，请稍后再试",
	}}
	srv := httptest.NewServer(forum.handler())
	defer srv.Close()

	c := newSiteClient(t, srv.URL, "")
	res, err := c.Checkin(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != domain.OutcomeFailed {
		t.Errorf("outcome = %s, want failed", res.Outcome)
	}
}

func TestLoginSuccess(t *testing.T) {
	forum := &fakeForum{loginOK: true}
	srv := httptest.NewServer(forum.handler())
	defer srv.Close()

	c := newSiteClient(t, srv.URL, "")
	res, err := c.Login(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Ok {
		t.Errorf("login failed: %s", res.Reason)
	}
}

func TestLoginFailureIsAuthError(t *testing.T) {
	forum := &fakeForum{loginOK: false}
	srv := httptest.NewServer(forum.handler())
	defer srv.Close()

	c := newSiteClient(t, srv.URL, "")
	_, err := c.Login(context.Background(), "alice", "wrong")
	if !errors.Is(err, ErrAuth) {
		t.Errorf("err = %v, want ErrAuth", err)
	}
}

func TestValidateCookie(t *testing.T) {
	forum := &fakeForum{}
	srv := httptest.NewServer(forum.handler())
	defer srv.Close()

	c := newSiteClient(t, srv.URL, "")
	ok, err := c.ValidateCookie(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("cookie-less session validated, want invalid")
	}

	c.Transport().SetCookies([]*http.Cookie{{Name: "auth", Value: "good"}})
	ok, err = c.ValidateCookie(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("good cookie did not validate")
	}
}

func TestFetchProfile(t *testing.T) {
	forum := &fakeForum{spacePage: `
		<p>用户组: <a href="#">中级会员</a></p>
		<ul>
			<li><em>积分</em> 1024 </li>
			<li><em>金钱</em> 300 </li>
			<li><em>色币</em> 12 </li>
		</ul>`}
	srv := httptest.NewServer(forum.handler())
	defer srv.Close()

	c := newSiteClient(t, srv.URL, "")
	p, err := c.FetchProfile(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if p.UserGroup != "中级会员" {
		t.Errorf("user group = %q, want 中级会员", p.UserGroup)
	}
	if p.Points == nil || *p.Points != 1024 {
		t.Errorf("points = %v, want 1024", p.Points)
	}
	if p.Money == nil || *p.Money != 300 {
		t.Errorf("money = %v, want 300", p.Money)
	}
	if p.Secoin == nil || *p.Secoin != 12 {
		t.Errorf("secoin = %v, want 12", p.Secoin)
	}
	if p.Score != nil {
		t.Errorf("score = %v, want nil for a page without it", p.Score)
	}
}

func TestReplyDryRunNeverSubmits(t *testing.T) {
	var posts int32
	mux := http.NewServeMux()
	mux.HandleFunc("/thread-42-1-1.html", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<input name="formhash" value="cafe0042" />thread body`)
	})
	mux.HandleFunc("/forum.php", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			atomic.AddInt32(&posts, 1)
		}
		fmt.Fprint(w, "回帖成功")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newSiteClient(t, srv.URL, "-- sig")
	res, err := c.Reply(context.Background(), 42, "nice thread", true)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Ok {
		t.Fatalf("dry run failed: %s", res.Detail)
	}
	if want := "nice thread\n\n-- sig"; res.Detail != want {
		t.Errorf("detail = %q, want composed text %q", res.Detail, want)
	}
	if atomic.LoadInt32(&posts) != 0 {
		t.Error("dry run issued the submission call")
	}
}

func TestReplySubmits(t *testing.T) {
	var posted string
	mux := http.NewServeMux()
	mux.HandleFunc("/thread-42-1-1.html", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<input name="formhash" value="cafe0042" />thread body`)
	})
	mux.HandleFunc("/forum.php", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		posted = r.PostFormValue("message")
		if r.PostFormValue("formhash") != "cafe0042" {
			t.Errorf("formhash = %q", r.PostFormValue("formhash"))
		}
		fmt.Fprint(w, "回帖成功")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newSiteClient(t, srv.URL, "-- sig")
	res, err := c.Reply(context.Background(), 42, "hello", false)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Ok {
		t.Fatalf("reply failed: %s", res.Detail)
	}
	if posted != "hello\n\n-- sig" {
		t.Errorf("posted message = %q", posted)
	}
}

func TestReplyMissingFormhash(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/thread-42-1-1.html", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "thread body without token")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newSiteClient(t, srv.URL, "")
	res, err := c.Reply(context.Background(), 42, "hello", false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Ok {
		t.Error("reply succeeded without a formhash")
	}
}
