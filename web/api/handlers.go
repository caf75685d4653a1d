package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/discuzbot/discuzbot/internal/domain"
	"github.com/dustin/go-humanize"
)

// AccountResponse is the API shape of an account. Secrets never leave the
// server; the response only says whether they exist.
type AccountResponse struct {
	ID         int64    `json:"id"`
	Label      string   `json:"label"`
	Username   string   `json:"username,omitempty"`
	HasCookie  bool     `json:"has_cookie"`
	BaseURL    string   `json:"base_url,omitempty"`
	MirrorURLs []string `json:"mirror_urls,omitempty"`
	Enabled    bool     `json:"enabled"`
	UpdatedAt  string   `json:"updated_at"`
}

// CheckinResponse is the API shape of one day's record
type CheckinResponse struct {
	Day     string `json:"day"`
	Outcome string `json:"outcome"`
	Detail  string `json:"detail,omitempty"`
	When    string `json:"when"`
}

// LogResponse is the API shape of one log line
type LogResponse struct {
	RunID string `json:"run_id,omitempty"`
	When  string `json:"when"`
	Line  string `json:"line"`
}

// ProfileResponse is the API shape of a scraped account profile
type ProfileResponse struct {
	UserGroup string `json:"user_group,omitempty"`
	Points    *int   `json:"points,omitempty"`
	Money     *int   `json:"money,omitempty"`
	Secoin    *int   `json:"secoin,omitempty"`
	Score     *int   `json:"score,omitempty"`
	When      string `json:"when"`
}

// AccountDetailResponse bundles an account with its recent activity
type AccountDetailResponse struct {
	Account AccountResponse   `json:"account"`
	Profile *ProfileResponse  `json:"profile,omitempty"`
	Today   *CheckinResponse  `json:"today,omitempty"`
	History []CheckinResponse `json:"history"`
	Logs    []LogResponse     `json:"logs"`
}

// StatusResponse is the API response for overall status
type StatusResponse struct {
	Accounts    int    `json:"accounts"`
	Enabled     int    `json:"enabled"`
	DoneToday   int    `json:"done_today"`
	FailedToday int    `json:"failed_today"`
	DryRun      bool   `json:"dry_run"`
	NextRun     string `json:"next_run,omitempty"`
}

// AddAccountRequest is the POST /api/accounts payload
type AddAccountRequest struct {
	Label      string   `json:"label"`
	Username   string   `json:"username"`
	Password   string   `json:"password"`
	Cookie     string   `json:"cookie"`
	BaseURL    string   `json:"base_url"`
	MirrorURLs []string `json:"mirror_urls"`
	UserAgent  string   `json:"user_agent"`
}

// ReplyRequest is the POST /api/accounts/{id}/reply payload
type ReplyRequest struct {
	ThreadID int    `json:"thread_id"`
	Context  string `json:"context"`
}

func accountToResponse(a *domain.Account) AccountResponse {
	return AccountResponse{
		ID:         a.ID,
		Label:      a.Label,
		Username:   a.Username,
		HasCookie:  a.HasCookie(),
		BaseURL:    a.BaseURL,
		MirrorURLs: a.MirrorURLs,
		Enabled:    a.Enabled,
		UpdatedAt:  humanize.Time(a.UpdatedAt),
	}
}

func profileToResponse(p *domain.Profile) *ProfileResponse {
	if p == nil {
		return nil
	}
	return &ProfileResponse{
		UserGroup: p.UserGroup,
		Points:    p.Points,
		Money:     p.Money,
		Secoin:    p.Secoin,
		Score:     p.Score,
		When:      humanize.Time(p.UpdatedAt),
	}
}

func recordToResponse(r *domain.CheckinRecord) CheckinResponse {
	return CheckinResponse{
		Day:     r.Day,
		Outcome: string(r.Outcome),
		Detail:  r.Detail,
		When:    humanize.Time(r.CreatedAt),
	}
}

func (s *Server) statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		accounts, err := s.orch.Store().ListAccounts(true)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		resp := StatusResponse{
			Accounts: len(accounts),
			DryRun:   s.orch.Config().Bot.DryRun,
		}
		today := domain.Day(time.Now())
		for _, acc := range accounts {
			if !acc.Enabled {
				continue
			}
			resp.Enabled++
			rec, err := s.orch.Store().CheckinFor(acc.ID, today)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			if rec == nil {
				continue
			}
			if rec.Outcome == domain.OutcomeFailed {
				resp.FailedToday++
			} else {
				resp.DoneToday++
			}
		}

		if s.sched != nil {
			if next := s.sched.NextRun(); !next.IsZero() {
				resp.NextRun = next.Format(time.RFC3339)
			}
		}
		writeJSON(w, resp)
	}
}

func (s *Server) accountsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			accounts, err := s.orch.Store().ListAccounts(true)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			resp := make([]AccountResponse, 0, len(accounts))
			for _, acc := range accounts {
				resp = append(resp, accountToResponse(acc))
			}
			writeJSON(w, resp)

		case http.MethodPost:
			var req AddAccountRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid JSON")
				return
			}
			if req.Username == "" && req.Cookie == "" {
				writeError(w, http.StatusBadRequest, "account needs a username/password or a cookie")
				return
			}
			acc := &domain.Account{
				Label:      req.Label,
				Username:   req.Username,
				Password:   req.Password,
				Cookie:     req.Cookie,
				BaseURL:    req.BaseURL,
				MirrorURLs: req.MirrorURLs,
				UserAgent:  req.UserAgent,
				Enabled:    true,
			}
			if _, err := s.orch.Store().AddAccount(acc); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			w.WriteHeader(http.StatusCreated)
			writeJSON(w, accountToResponse(acc))

		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	}
}

// accountHandler routes /api/accounts/{id}, /api/accounts/{id}/run,
// /api/accounts/{id}/reply, and /api/accounts/{id}/profile
func (s *Server) accountHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/accounts/")
		parts := strings.SplitN(rest, "/", 2)
		id, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid account id")
			return
		}

		action := ""
		if len(parts) == 2 {
			action = parts[1]
		}

		switch {
		case action == "" && r.Method == http.MethodGet:
			s.accountDetail(w, id)
		case action == "" && r.Method == http.MethodDelete:
			s.disableAccount(w, id)
		case action == "run" && r.Method == http.MethodPost:
			s.runAccount(w, r, id)
		case action == "reply" && r.Method == http.MethodPost:
			s.reply(w, r, id)
		case action == "profile" && r.Method == http.MethodPost:
			s.refreshProfile(w, r, id)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	}
}

func (s *Server) accountDetail(w http.ResponseWriter, id int64) {
	acc, err := s.orch.Store().GetAccount(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}

	history, err := s.orch.Store().History(id, 30)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logs, err := s.orch.Store().Logs(id, 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	profile, err := s.orch.Store().GetProfile(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := AccountDetailResponse{
		Account: accountToResponse(acc),
		Profile: profileToResponse(profile),
		History: make([]CheckinResponse, 0, len(history)),
		Logs:    make([]LogResponse, 0, len(logs)),
	}
	today := domain.Day(time.Now())
	for _, rec := range history {
		cr := recordToResponse(rec)
		resp.History = append(resp.History, cr)
		if rec.Day == today {
			c := cr
			resp.Today = &c
		}
	}
	for _, entry := range logs {
		resp.Logs = append(resp.Logs, LogResponse{
			RunID: entry.RunID,
			When:  humanize.Time(entry.Timestamp),
			Line:  entry.Line,
		})
	}
	writeJSON(w, resp)
}

func (s *Server) disableAccount(w http.ResponseWriter, id int64) {
	if _, err := s.orch.Store().GetAccount(id); err != nil {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}
	if err := s.orch.Store().DisableAccount(id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]bool{"disabled": true})
}

func (s *Server) runAccount(w http.ResponseWriter, r *http.Request, id int64) {
	res, err := s.orch.RunAccount(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, res)
}

// runAllHandler triggers a full run in the background; progress reaches the
// client over the event stream.
func (s *Server) runAllHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		go func() {
			_, summary, err := s.orch.RunAll(context.Background())
			if err != nil {
				log.Printf("run all: %v", err)
				return
			}
			s.sseHub.Broadcast(SSEEvent{Type: "summary", Data: summary})
		}()

		w.WriteHeader(http.StatusAccepted)
		writeJSON(w, map[string]bool{"started": true})
	}
}

func (s *Server) reply(w http.ResponseWriter, r *http.Request, id int64) {
	var req ReplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.ThreadID <= 0 {
		writeError(w, http.StatusBadRequest, "thread_id is required")
		return
	}

	job, err := s.orch.ManualReply(r.Context(), id, req.ThreadID, req.Context)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, job)
}

func (s *Server) refreshProfile(w http.ResponseWriter, r *http.Request, id int64) {
	p, err := s.orch.RefreshProfile(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, profileToResponse(p))
}
