package discuz

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/discuzbot/discuzbot/internal/domain"
	"github.com/discuzbot/discuzbot/internal/transport"
)

// ErrAuth marks bad credentials or an expired cookie
var ErrAuth = errors.New("authentication failed")

// LoginResult is the outcome of a login attempt
type LoginResult struct {
	Ok     bool
	Reason string
}

// CheckinResult classifies one check-in attempt. Plugin names which plugin
// candidate answered, for diagnostics.
type CheckinResult struct {
	Outcome domain.CheckinOutcome
	Detail  string
	Plugin  string
}

// ReplyResult is the outcome of a reply attempt. In dry-run mode Detail is
// the composed message that would have been posted.
type ReplyResult struct {
	Ok     bool
	Detail string
}

// Client speaks the forum's protocols over one transport handle
type Client struct {
	http      transport.Client
	signature string
}

// New creates a site client bound to a transport handle
func New(t transport.Client, signature string) *Client {
	return &Client{http: t, signature: signature}
}

// Transport exposes the underlying handle, mainly for cookie refresh
func (c *Client) Transport() transport.Client { return c.http }

// Close releases the transport handle
func (c *Client) Close() error { return c.http.Close() }

// loginEndpoints are tried in order; paths differ between installations
var loginEndpoints = []string{
	"/member.php?mod=logging&action=login&loginsubmit=yes&loginhash=xx",
	"/member.php?mod=logging&action=login&loginsubmit=yes",
}

// Login submits credentials and confirms the session via logged-in markers
func (c *Client) Login(ctx context.Context, username, password string) (LoginResult, error) {
	home, err := c.http.Get(ctx, "/")
	if err != nil {
		return LoginResult{}, err
	}
	formhash := Formhash(home.Body)

	form := url.Values{
		"username":   {username},
		"password":   {password},
		"formhash":   {formhash},
		"referer":    {c.http.BaseURL() + "/"},
		"cookietime": {"2592000"},
	}

	for _, endpoint := range loginEndpoints {
		resp, err := c.http.PostForm(ctx, endpoint, form)
		if err != nil {
			return LoginResult{}, err
		}
		if LoggedIn(resp.Body) {
			return LoginResult{Ok: true}, nil
		}
		// Some installations 302 to the portal on success; confirm there.
		home, err := c.http.Get(ctx, "/")
		if err != nil {
			return LoginResult{}, err
		}
		if LoggedIn(home.Body) {
			return LoginResult{Ok: true}, nil
		}
	}
	return LoginResult{Ok: false, Reason: "no authenticated marker after login"}, fmt.Errorf("login %s: %w", username, ErrAuth)
}

// ValidateCookie checks whether the current cookies already carry an
// authenticated session, without submitting credentials.
func (c *Client) ValidateCookie(ctx context.Context) (bool, error) {
	resp, err := c.http.Get(ctx, "/home.php?mod=spacecp")
	if err != nil {
		var te *transport.Error
		if errors.As(err, &te) && !te.Retryable {
			// Auth-rejected page; the cookie is dead, not the site.
			return false, nil
		}
		return false, err
	}
	return LoggedIn(resp.Body), nil
}

// Checkin probes the known check-in plugin variants in fixed order and
// classifies the first one that exists. When every candidate is missing the
// outcome is unavailable: a compatibility problem, not a runtime fault.
func (c *Client) Checkin(ctx context.Context) (CheckinResult, error) {
	for _, plugin := range checkinPlugins {
		page, err := c.http.Get(ctx, plugin.Path)
		if err != nil {
			return CheckinResult{}, err
		}
		if page.StatusCode == 404 || containsAny(page.Body, pluginMissingMarkers) {
			continue
		}

		// Only the submission response is classified. Plugin pages list
		// other members who signed today, so their body matches the
		// already-done markers even for a session that has not signed yet.
		resp, err := c.http.PostForm(ctx, plugin.Path, plugin.Form(Formhash(page.Body)))
		if err != nil {
			return CheckinResult{}, err
		}

		switch {
		case containsAny(resp.Body, checkinAlreadyMarkers):
			return CheckinResult{
				Outcome: domain.OutcomeAlreadyDone,
				Detail:  "今日已签到",
				Plugin:  plugin.ID,
			}, nil
		case containsAny(resp.Body, checkinSuccessMarkers):
			return CheckinResult{
				Outcome: domain.OutcomeSuccess,
				Detail:  "签到成功",
				Plugin:  plugin.ID,
			}, nil
		default:
			return CheckinResult{
				Outcome: domain.OutcomeFailed,
				Detail:  fmt.Sprintf("plugin %s answered status %d without a recognized marker", plugin.ID, resp.StatusCode),
				Plugin:  plugin.ID,
			}, nil
		}
	}

	return CheckinResult{
		Outcome: domain.OutcomeUnavailable,
		Detail:  "no recognized check-in plugin on this site",
	}, nil
}

// FetchProfile scrapes the member space page for the account's user group
// and credit counters. Counters the page does not show stay nil.
func (c *Client) FetchProfile(ctx context.Context) (domain.Profile, error) {
	resp, err := c.http.Get(ctx, "/home.php?mod=space")
	if err != nil {
		return domain.Profile{}, err
	}
	if resp.StatusCode != 200 {
		return domain.Profile{}, fmt.Errorf("space page answered status %d", resp.StatusCode)
	}
	return domain.Profile{
		UserGroup: UserGroup(resp.Body),
		Points:    ProfileStat(resp.Body, "积分"),
		Money:     ProfileStat(resp.Body, "金钱"),
		Secoin:    ProfileStat(resp.Body, "色币"),
		Score:     ProfileStat(resp.Body, "评分"),
	}, nil
}

// Reply posts message (plus the configured signature) to thread tid. With
// dryRun set it performs the fetch and compose steps but stops short of the
// submission, returning the composed text.
func (c *Client) Reply(ctx context.Context, tid int, message string, dryRun bool) (ReplyResult, error) {
	page, err := c.http.Get(ctx, fmt.Sprintf("/thread-%d-1-1.html", tid))
	if err != nil {
		return ReplyResult{}, err
	}
	if page.StatusCode != 200 || BadThread(page.Body) {
		return ReplyResult{Ok: false, Detail: fmt.Sprintf("thread %d unavailable (status %d)", tid, page.StatusCode)}, nil
	}

	formhash := Formhash(page.Body)
	if formhash == "" {
		return ReplyResult{Ok: false, Detail: "no formhash on thread page"}, nil
	}

	composed := message
	if c.signature != "" {
		composed = message + "\n\n" + c.signature
	}

	if dryRun {
		return ReplyResult{Ok: true, Detail: composed}, nil
	}

	form := url.Values{
		"formhash":    {formhash},
		"message":     {composed},
		"posttime":    {""},
		"usesig":      {"1"},
		"subject":     {""},
		"replysubmit": {"yes"},
	}
	endpoint := fmt.Sprintf("/forum.php?mod=post&action=reply&fid=0&tid=%d&extra=&replysubmit=yes&infloat=yes&handlekey=fastpost&inajax=1", tid)
	resp, err := c.http.PostForm(ctx, endpoint, form)
	if err != nil {
		return ReplyResult{}, err
	}
	if containsAny(resp.Body, replySuccessMarkers) {
		return ReplyResult{Ok: true, Detail: "回帖成功"}, nil
	}
	return ReplyResult{Ok: false, Detail: "reply rejected or rate limited"}, nil
}

// ForumMaxPage fetches a forum list page and returns its highest page number
func (c *Client) ForumMaxPage(ctx context.Context, fid int) (int, error) {
	resp, err := c.http.Get(ctx, fmt.Sprintf("/forum.php?mod=forumdisplay&fid=%d", fid))
	if err != nil {
		return 0, err
	}
	return ForumMaxPage(resp.Body), nil
}

// ThreadsOnPage lists threads from one forum list page
func (c *Client) ThreadsOnPage(ctx context.Context, fid, page int) ([]Thread, error) {
	resp, err := c.http.Get(ctx, "/forum.php?mod=forumdisplay&fid="+strconv.Itoa(fid)+"&page="+strconv.Itoa(page))
	if err != nil {
		return nil, err
	}
	return Threads(resp.Body), nil
}

// ValidateThread fetches a thread and reports whether it is usable as reply
// material, returning its page body when it is.
func (c *Client) ValidateThread(ctx context.Context, th Thread) (string, bool, error) {
	href := th.Href
	if href == "" {
		href = fmt.Sprintf("/thread-%d-1-1.html", th.TID)
	}
	resp, err := c.http.Get(ctx, href)
	if err != nil {
		return "", false, err
	}
	if resp.StatusCode != 200 || BadThread(resp.Body) {
		return "", false, nil
	}
	return resp.Body, true, nil
}
