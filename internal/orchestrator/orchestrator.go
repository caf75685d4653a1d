// Package orchestrator drives one account through login, check-in, and
// optional reply, applying the daily idempotency rule and persisting every
// outcome. Runs for different accounts are independent; operations within
// one account are strictly serialized.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/discuzbot/discuzbot/internal/config"
	"github.com/discuzbot/discuzbot/internal/discuz"
	"github.com/discuzbot/discuzbot/internal/domain"
	"github.com/discuzbot/discuzbot/internal/notify"
	"github.com/discuzbot/discuzbot/internal/store"
	"github.com/discuzbot/discuzbot/internal/transport"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Site is the slice of the site client the orchestrator needs. *discuz.Client
// satisfies it; tests substitute fakes.
type Site interface {
	Login(ctx context.Context, username, password string) (discuz.LoginResult, error)
	ValidateCookie(ctx context.Context) (bool, error)
	Checkin(ctx context.Context) (discuz.CheckinResult, error)
	FetchProfile(ctx context.Context) (domain.Profile, error)
	Reply(ctx context.Context, tid int, message string, dryRun bool) (discuz.ReplyResult, error)
	ForumMaxPage(ctx context.Context, fid int) (int, error)
	ThreadsOnPage(ctx context.Context, fid, page int) ([]discuz.Thread, error)
	ValidateThread(ctx context.Context, th discuz.Thread) (string, bool, error)
	Transport() transport.Client
	Close() error
}

// SiteFactory opens a site client for one account against a resolved base URL
type SiteFactory func(acc *domain.Account, baseURL string, cfg *config.Config) (Site, error)

// Generator produces reply text from thread context
type Generator interface {
	Generate(ctx context.Context, contextText string) (string, error)
}

// Event is a progress notification for dashboards
type Event struct {
	Type      string `json:"type"`
	AccountID int64  `json:"account_id"`
	Label     string `json:"label"`
	State     string `json:"state"`
	Detail    string `json:"detail,omitempty"`
}

// RunResult is the outcome of one account's run
type RunResult struct {
	AccountID int64                 `json:"account_id"`
	Label     string                `json:"label"`
	RunID     string                `json:"run_id"`
	State     domain.RunState       `json:"state"`
	Outcome   domain.CheckinOutcome `json:"outcome,omitempty"`
	Detail    string                `json:"detail,omitempty"`
	BaseURL   string                `json:"base_url,omitempty"`
	Skipped   bool                  `json:"skipped"`
	Duration  time.Duration         `json:"-"`
}

// Summary aggregates outcomes across a multi-account run
type Summary struct {
	Total       int `json:"total"`
	Success     int `json:"success"`
	AlreadyDone int `json:"already_done"`
	Unavailable int `json:"unavailable"`
	Failed      int `json:"failed"`
}

func (s *Summary) add(r *RunResult) {
	s.Total++
	switch {
	case r.State == domain.StateFailed:
		s.Failed++
	case r.Outcome == domain.OutcomeSuccess:
		s.Success++
	case r.Outcome == domain.OutcomeAlreadyDone:
		s.AlreadyDone++
	case r.Outcome == domain.OutcomeUnavailable:
		s.Unavailable++
	}
}

// Orchestrator coordinates runs across all configured accounts
type Orchestrator struct {
	store    *store.Store
	newSite  SiteFactory
	gen      Generator
	notifier notify.Notifier
	onEvent  func(Event)

	cfgMu sync.RWMutex
	cfg   *config.Config

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// New creates an Orchestrator. A nil factory gets the production one; a nil
// notifier stays silent.
func New(cfg *config.Config, st *store.Store, factory SiteFactory, gen Generator, notifier notify.Notifier) *Orchestrator {
	if factory == nil {
		factory = newDiscuzSite
	}
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	return &Orchestrator{
		store:    st,
		newSite:  factory,
		gen:      gen,
		notifier: notifier,
		cfg:      cfg,
		locks:    make(map[int64]*sync.Mutex),
	}
}

func newDiscuzSite(acc *domain.Account, baseURL string, cfg *config.Config) (Site, error) {
	ua := acc.UserAgent
	if ua == "" {
		ua = cfg.Site.UserAgent
	}
	tc, err := transport.Open(transport.Options{
		BaseURL:        baseURL,
		UserAgent:      ua,
		Timeout:        time.Duration(cfg.Site.TimeoutSeconds) * time.Second,
		Retries:        cfg.Site.Retries,
		Proxy:          cfg.Site.Proxy,
		Browser:        cfg.Browser.Enabled,
		Headless:       cfg.Browser.Headless,
		BrowserTimeout: time.Duration(cfg.Browser.TimeoutSeconds) * time.Second,
		ExecPath:       cfg.Browser.ExecPath,
	})
	if err != nil {
		return nil, err
	}
	return discuz.New(tc, cfg.Bot.Signature), nil
}

// Config returns the current configuration snapshot
func (o *Orchestrator) Config() *config.Config {
	o.cfgMu.RLock()
	defer o.cfgMu.RUnlock()
	return o.cfg
}

// SetConfig swaps the configuration; used by the config file watcher
func (o *Orchestrator) SetConfig(cfg *config.Config) {
	o.cfgMu.Lock()
	defer o.cfgMu.Unlock()
	o.cfg = cfg
}

// Store exposes the account store for the CLI/web layer
func (o *Orchestrator) Store() *store.Store { return o.store }

// SetEventHandler registers a progress callback (dashboard streaming)
func (o *Orchestrator) SetEventHandler(fn func(Event)) { o.onEvent = fn }

// lockFor returns the mutex serializing all operations on one account
func (o *Orchestrator) lockFor(accountID int64) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.locks[accountID]
	if !ok {
		l = &sync.Mutex{}
		o.locks[accountID] = l
	}
	return l
}

// Seed imports configuration accounts when the store is empty
func (o *Orchestrator) Seed() (int, error) {
	cfg := o.Config()
	accounts := make([]*domain.Account, 0, len(cfg.Accounts))
	for _, a := range cfg.Accounts {
		accounts = append(accounts, &domain.Account{
			Label:      a.Label,
			Username:   a.Username,
			Password:   a.Password,
			Cookie:     a.Cookie,
			BaseURL:    a.BaseURL,
			MirrorURLs: a.MirrorURLs,
			UserAgent:  a.UserAgent,
			Enabled:    true,
		})
	}
	return o.store.Seed(accounts)
}

type runContext struct {
	acc   *domain.Account
	runID string
	res   *RunResult
}

func (o *Orchestrator) logf(rc *runContext, format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	if err := o.store.AppendLog(rc.acc.ID, rc.runID, line); err != nil {
		log.Printf("append log for account %d: %v", rc.acc.ID, err)
	}
	log.Printf("[%s] %s", rc.acc.Label, line)
}

func (o *Orchestrator) setState(rc *runContext, state domain.RunState, detail string) {
	rc.res.State = state
	if o.onEvent != nil {
		o.onEvent(Event{
			Type:      "state",
			AccountID: rc.acc.ID,
			Label:     rc.acc.Label,
			State:     string(state),
			Detail:    detail,
		})
	}
}

// RunAccount drives one account through the full flow. Site and network
// failures are recorded in the result and the store, not returned: only
// store-level problems surface as errors.
func (o *Orchestrator) RunAccount(ctx context.Context, accountID int64) (*RunResult, error) {
	lock := o.lockFor(accountID)
	lock.Lock()
	defer lock.Unlock()

	cfg := o.Config()

	acc, err := o.store.GetAccount(accountID)
	if err != nil {
		return nil, err
	}
	if !acc.Enabled {
		return nil, fmt.Errorf("account %d (%s) is disabled", acc.ID, acc.Label)
	}

	start := time.Now()
	rc := &runContext{
		acc:   acc,
		runID: uuid.NewString(),
		res: &RunResult{
			AccountID: acc.ID,
			Label:     acc.Label,
			State:     domain.StateIdle,
		},
	}
	rc.res.RunID = rc.runID
	defer func() {
		rc.res.Duration = time.Since(start)
		if keep := cfg.General.LogKeep; keep > 0 {
			if err := o.store.PruneLogs(acc.ID, keep); err != nil {
				log.Printf("prune logs for account %d: %v", acc.ID, err)
			}
		}
	}()

	// Idempotency gate before any network traffic: a terminal record for
	// today means the day is settled and redundant requests would only
	// invite rate limiting.
	o.setState(rc, domain.StateCheckingIdempotency, "")
	today := domain.Day(time.Now())
	if rec, err := o.store.CheckinFor(acc.ID, today); err != nil {
		return nil, err
	} else if rec != nil && rec.Outcome.Terminal() {
		rc.res.Outcome = rec.Outcome
		rc.res.Detail = rec.Detail
		rc.res.Skipped = true
		o.setState(rc, domain.StateDone, rec.Detail)
		o.logf(rc, "check-in already settled today (%s), skipping", rec.Outcome)
		return rc.res, nil
	}

	resolved, err := o.resolveBase(ctx, acc, cfg)
	if err != nil {
		return o.fail(rc, today, fmt.Sprintf("no reachable site: %v", err)), nil
	}
	rc.res.BaseURL = resolved
	o.logf(rc, "using base URL %s", resolved)

	site, err := o.newSite(acc, resolved, cfg)
	if err != nil {
		return o.fail(rc, today, fmt.Sprintf("opening transport: %v", err)), nil
	}
	defer site.Close()

	o.setState(rc, domain.StateLoggingIn, "")
	if err := o.establishSession(ctx, rc, site, cfg); err != nil {
		return o.fail(rc, today, fmt.Sprintf("login: %v", err)), nil
	}

	if !cfg.Bot.DailyCheckin {
		o.setState(rc, domain.StateDone, "check-in disabled")
		o.logf(rc, "daily check-in disabled, login verified only")
		return rc.res, nil
	}

	o.setState(rc, domain.StateCheckingIn, "")
	cr, err := site.Checkin(ctx)
	if err != nil {
		return o.fail(rc, today, fmt.Sprintf("check-in: %v", err)), nil
	}

	rec, _, err := o.store.RecordCheckin(acc.ID, today, cr.Outcome, cr.Detail)
	if err != nil {
		return nil, err
	}
	rc.res.Outcome = rec.Outcome
	rc.res.Detail = rec.Detail
	if cr.Plugin != "" {
		o.logf(rc, "check-in via %s: %s (%s)", cr.Plugin, cr.Outcome, cr.Detail)
	} else {
		o.logf(rc, "check-in: %s (%s)", cr.Outcome, cr.Detail)
	}

	if cr.Outcome == domain.OutcomeFailed {
		o.setState(rc, domain.StateFailed, cr.Detail)
	} else {
		o.setState(rc, domain.StateDone, cr.Detail)
	}
	return rc.res, nil
}

// fail records a failed check-in record for today and marks the run failed
func (o *Orchestrator) fail(rc *runContext, day, detail string) *RunResult {
	rec, _, err := o.store.RecordCheckin(rc.acc.ID, day, domain.OutcomeFailed, detail)
	if err != nil {
		log.Printf("record failure for account %d: %v", rc.acc.ID, err)
		rc.res.Outcome = domain.OutcomeFailed
		rc.res.Detail = detail
	} else {
		rc.res.Outcome = rec.Outcome
		rc.res.Detail = rec.Detail
	}
	o.setState(rc, domain.StateFailed, detail)
	o.logf(rc, "run failed: %s", detail)
	return rc.res
}

func (o *Orchestrator) siteURLs(acc *domain.Account, cfg *config.Config) (string, []string) {
	if acc.BaseURL != "" {
		return acc.BaseURL, acc.MirrorURLs
	}
	return cfg.Site.BaseURL, cfg.Site.MirrorURLs
}

// resolveBase picks the reachable base URL for an account, probing through
// the configured proxy when one is set.
func (o *Orchestrator) resolveBase(ctx context.Context, acc *domain.Account, cfg *config.Config) (string, error) {
	base, mirrors := o.siteURLs(acc, cfg)
	return transport.Resolve(ctx, base, mirrors, transport.Options{
		UserAgent: cfg.Site.UserAgent,
		Timeout:   time.Duration(cfg.Site.TimeoutSeconds) * time.Second,
		Proxy:     cfg.Site.Proxy,
	})
}

// establishSession gets the site client authenticated: cookie validation
// first when a cookie exists, credential login as fallback when configured.
func (o *Orchestrator) establishSession(ctx context.Context, rc *runContext, site Site, cfg *config.Config) error {
	acc := rc.acc

	if acc.HasCookie() {
		site.Transport().SetCookies(domain.ParseCookies(acc.Cookie))
		ok, err := site.ValidateCookie(ctx)
		if err != nil {
			return err
		}
		if ok {
			o.logf(rc, "cookie session valid")
			return nil
		}
		o.logf(rc, "cookie session expired")
		if !acc.HasCredentials() || !cfg.Site.ReloginOnCookieFailure {
			return fmt.Errorf("cookie expired: %w", discuz.ErrAuth)
		}
	}

	if !acc.HasCredentials() {
		return fmt.Errorf("no credentials: %w", discuz.ErrAuth)
	}

	lr, err := site.Login(ctx, acc.Username, acc.Password)
	if err != nil {
		return err
	}
	if !lr.Ok {
		return fmt.Errorf("%s: %w", lr.Reason, discuz.ErrAuth)
	}
	o.logf(rc, "credential login ok")

	// Refresh the stored cookie blob so the next run can skip the
	// credential submission.
	if cookies := site.Transport().Cookies(); len(cookies) > 0 {
		acc.Cookie = domain.FormatCookies(cookies)
		if err := o.store.UpdateAccount(acc); err != nil {
			log.Printf("refresh cookie for account %d: %v", acc.ID, err)
		}
	}
	return nil
}

// RunAll processes every enabled account. Accounts run sequentially unless
// max_workers allows more; a single account's failure never blocks the
// rest. Cancellation is honored between accounts.
func (o *Orchestrator) RunAll(ctx context.Context) ([]*RunResult, *Summary, error) {
	cfg := o.Config()

	accounts, err := o.store.ListAccounts(false)
	if err != nil {
		return nil, nil, err
	}

	results := make([]*RunResult, len(accounts))

	if cfg.General.MaxWorkers <= 1 {
		for i, acc := range accounts {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
			results[i] = o.runOne(ctx, acc)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.General.MaxWorkers)
		for i, acc := range accounts {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				results[i] = o.runOne(gctx, acc)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, nil, err
		}
	}

	summary := &Summary{}
	for _, r := range results {
		summary.add(r)
	}

	o.notifySummary(summary)
	return results, summary, nil
}

func (o *Orchestrator) runOne(ctx context.Context, acc *domain.Account) *RunResult {
	res, err := o.RunAccount(ctx, acc.ID)
	if err != nil {
		return &RunResult{
			AccountID: acc.ID,
			Label:     acc.Label,
			State:     domain.StateFailed,
			Outcome:   domain.OutcomeFailed,
			Detail:    err.Error(),
		}
	}
	return res
}

func (o *Orchestrator) notifySummary(s *Summary) {
	if s.Total == 0 {
		return
	}
	ntype := notify.NotifySuccess
	if s.Failed > 0 {
		ntype = notify.NotifyWarning
	}
	err := o.notifier.Send(notify.Notification{
		Title: "Daily check-in run finished",
		Message: fmt.Sprintf("%d accounts: %d success, %d already done, %d unavailable, %d failed",
			s.Total, s.Success, s.AlreadyDone, s.Unavailable, s.Failed),
		Type: ntype,
	})
	if err != nil {
		log.Printf("notify: %v", err)
	}
}

// RefreshProfile logs an account in, scrapes its space page, and stores the
// result. The stored profile is what dashboards and the CLI show.
func (o *Orchestrator) RefreshProfile(ctx context.Context, accountID int64) (*domain.Profile, error) {
	lock := o.lockFor(accountID)
	lock.Lock()
	defer lock.Unlock()

	cfg := o.Config()

	acc, err := o.store.GetAccount(accountID)
	if err != nil {
		return nil, err
	}
	if !acc.Enabled {
		return nil, fmt.Errorf("account %d (%s) is disabled", acc.ID, acc.Label)
	}

	rc := &runContext{acc: acc, runID: uuid.NewString(), res: &RunResult{AccountID: acc.ID, Label: acc.Label}}

	resolved, err := o.resolveBase(ctx, acc, cfg)
	if err != nil {
		return nil, err
	}

	site, err := o.newSite(acc, resolved, cfg)
	if err != nil {
		return nil, err
	}
	defer site.Close()

	o.setState(rc, domain.StateLoggingIn, "")
	if err := o.establishSession(ctx, rc, site, cfg); err != nil {
		return nil, err
	}

	p, err := site.FetchProfile(ctx)
	if err != nil {
		return nil, err
	}
	p.AccountID = acc.ID
	p.UpdatedAt = time.Now()
	if err := o.store.UpsertProfile(acc.ID, &p); err != nil {
		return nil, err
	}
	o.logf(rc, "profile refreshed: group=%s", p.UserGroup)
	o.setState(rc, domain.StateDone, "profile refreshed")
	return &p, nil
}

// ManualReply logs an account in, generates reply text for the supplied
// thread context, and posts it (or composes only, in dry-run mode).
func (o *Orchestrator) ManualReply(ctx context.Context, accountID int64, tid int, contextText string) (*domain.ReplyJob, error) {
	lock := o.lockFor(accountID)
	lock.Lock()
	defer lock.Unlock()

	cfg := o.Config()

	acc, err := o.store.GetAccount(accountID)
	if err != nil {
		return nil, err
	}
	if !acc.Enabled {
		return nil, fmt.Errorf("account %d (%s) is disabled", acc.ID, acc.Label)
	}
	if o.gen == nil {
		return nil, errors.New("no reply generator configured")
	}

	rc := &runContext{acc: acc, runID: uuid.NewString(), res: &RunResult{AccountID: acc.ID, Label: acc.Label}}

	resolved, err := o.resolveBase(ctx, acc, cfg)
	if err != nil {
		return nil, err
	}

	site, err := o.newSite(acc, resolved, cfg)
	if err != nil {
		return nil, err
	}
	defer site.Close()

	o.setState(rc, domain.StateLoggingIn, "")
	if err := o.establishSession(ctx, rc, site, cfg); err != nil {
		return nil, err
	}

	o.setState(rc, domain.StateReplying, "")
	text, err := o.gen.Generate(ctx, contextText)
	if err != nil {
		return nil, fmt.Errorf("generating reply: %w", err)
	}

	rr, err := site.Reply(ctx, tid, text, cfg.Bot.DryRun)
	if err != nil {
		return nil, err
	}

	job := &domain.ReplyJob{
		AccountID: acc.ID,
		ThreadID:  tid,
		Context:   contextText,
		Generated: text,
		DryRun:    cfg.Bot.DryRun,
		Ok:        rr.Ok,
		Detail:    rr.Detail,
	}
	o.logf(rc, "reply to thread %d (dry-run=%v): ok=%v", tid, job.DryRun, job.Ok)
	o.setState(rc, domain.StateDone, rr.Detail)
	return job, nil
}

// AutoReply picks an unused thread from forum fid, generates a reply from
// its page content, posts it, and marks the thread used so it is never
// replied to twice.
func (o *Orchestrator) AutoReply(ctx context.Context, accountID int64, fid int) (*domain.ReplyJob, error) {
	lock := o.lockFor(accountID)
	lock.Lock()
	defer lock.Unlock()

	cfg := o.Config()
	if !cfg.Bot.ReplyEnabled {
		return nil, errors.New("auto reply is disabled")
	}
	if len(cfg.Bot.ReplyForums) > 0 && !containsInt(cfg.Bot.ReplyForums, fid) {
		return nil, fmt.Errorf("forum %d is not on the reply whitelist", fid)
	}
	if o.gen == nil {
		return nil, errors.New("no reply generator configured")
	}

	acc, err := o.store.GetAccount(accountID)
	if err != nil {
		return nil, err
	}
	if !acc.Enabled {
		return nil, fmt.Errorf("account %d (%s) is disabled", acc.ID, acc.Label)
	}

	rc := &runContext{acc: acc, runID: uuid.NewString(), res: &RunResult{AccountID: acc.ID, Label: acc.Label}}

	resolved, err := o.resolveBase(ctx, acc, cfg)
	if err != nil {
		return nil, err
	}

	site, err := o.newSite(acc, resolved, cfg)
	if err != nil {
		return nil, err
	}
	defer site.Close()

	o.setState(rc, domain.StateLoggingIn, "")
	if err := o.establishSession(ctx, rc, site, cfg); err != nil {
		return nil, err
	}

	th, body, err := o.findFreshThread(ctx, site, fid)
	if err != nil {
		return nil, err
	}

	o.setState(rc, domain.StateReplying, "")
	text, err := o.gen.Generate(ctx, excerpt(body, 2000))
	if err != nil {
		return nil, fmt.Errorf("generating reply: %w", err)
	}

	rr, err := site.Reply(ctx, th.TID, text, cfg.Bot.DryRun)
	if err != nil {
		return nil, err
	}
	if rr.Ok && !cfg.Bot.DryRun {
		if _, err := o.store.MarkThreadUsed(fid, th.TID, th.Href); err != nil {
			log.Printf("mark thread used: %v", err)
		}
	}

	job := &domain.ReplyJob{
		AccountID: acc.ID,
		ThreadID:  th.TID,
		Generated: text,
		DryRun:    cfg.Bot.DryRun,
		Ok:        rr.Ok,
		Detail:    rr.Detail,
	}
	o.logf(rc, "auto reply to thread %d in forum %d: ok=%v", th.TID, fid, job.Ok)
	o.setState(rc, domain.StateDone, rr.Detail)
	return job, nil
}

// findFreshThread scans forum pages for a usable thread not replied to yet
func (o *Orchestrator) findFreshThread(ctx context.Context, site Site, fid int) (discuz.Thread, string, error) {
	const maxPages = 3

	pages, err := site.ForumMaxPage(ctx, fid)
	if err != nil {
		return discuz.Thread{}, "", err
	}
	if pages > maxPages {
		pages = maxPages
	}

	for page := 1; page <= pages; page++ {
		threads, err := site.ThreadsOnPage(ctx, fid, page)
		if err != nil {
			return discuz.Thread{}, "", err
		}
		for _, th := range threads {
			used, err := o.store.ThreadUsed(fid, th.TID)
			if err != nil {
				return discuz.Thread{}, "", err
			}
			if used {
				continue
			}
			body, ok, err := site.ValidateThread(ctx, th)
			if err != nil {
				return discuz.Thread{}, "", err
			}
			if ok {
				return th, body, nil
			}
		}
	}
	return discuz.Thread{}, "", fmt.Errorf("no fresh thread found in forum %d", fid)
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func excerpt(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
