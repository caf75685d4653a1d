package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/discuzbot/discuzbot/internal/ai"
	"github.com/discuzbot/discuzbot/internal/config"
	"github.com/discuzbot/discuzbot/internal/domain"
	"github.com/discuzbot/discuzbot/internal/notify"
	"github.com/discuzbot/discuzbot/internal/orchestrator"
	"github.com/discuzbot/discuzbot/internal/schedule"
	"github.com/discuzbot/discuzbot/internal/store"
	"github.com/discuzbot/discuzbot/tui"
	"github.com/discuzbot/discuzbot/web/api"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	addLabel    string
	addUsername string
	addPassword string
	addCookie   string
	addBaseURL  string
	replyText   string
	historyDays int
	serveAddr   string
)

func init() {
	// checkin command
	checkinCmd := &cobra.Command{
		Use:   "checkin [ACCOUNT_ID]",
		Short: "Run the daily check-in for one account or all",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runCheckin,
	}
	rootCmd.AddCommand(checkinCmd)

	// login command
	loginCmd := &cobra.Command{
		Use:   "login ACCOUNT_ID",
		Short: "Verify that an account can authenticate",
		Args:  cobra.ExactArgs(1),
		RunE:  runLogin,
	}
	rootCmd.AddCommand(loginCmd)

	// reply command
	replyCmd := &cobra.Command{
		Use:   "reply ACCOUNT_ID THREAD_ID",
		Short: "Post an AI-composed reply to a thread",
		Args:  cobra.ExactArgs(2),
		RunE:  runReply,
	}
	replyCmd.Flags().StringVar(&replyText, "context", "", "thread context for the reply generator")
	rootCmd.AddCommand(replyCmd)

	// accounts commands
	accountsCmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage accounts",
		RunE:  runAccountsList,
	}
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Add an account",
		RunE:  runAccountsAdd,
	}
	addCmd.Flags().StringVar(&addLabel, "label", "", "display label")
	addCmd.Flags().StringVar(&addUsername, "username", "", "forum username")
	addCmd.Flags().StringVar(&addPassword, "password", "", "forum password")
	addCmd.Flags().StringVar(&addCookie, "cookie", "", "session cookie string (k=v; k2=v2)")
	addCmd.Flags().StringVar(&addBaseURL, "base-url", "", "per-account base URL override")
	accountsCmd.AddCommand(addCmd)
	accountsCmd.AddCommand(&cobra.Command{
		Use:   "disable ACCOUNT_ID",
		Short: "Disable an account (history is kept)",
		Args:  cobra.ExactArgs(1),
		RunE:  runAccountsDisable,
	})
	rootCmd.AddCommand(accountsCmd)

	// profile command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "profile ACCOUNT_ID",
		Short: "Refresh and show an account's forum profile",
		Args:  cobra.ExactArgs(1),
		RunE:  runProfile,
	})

	// history command
	historyCmd := &cobra.Command{
		Use:   "history ACCOUNT_ID",
		Short: "Show recent check-in history",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistory,
	}
	historyCmd.Flags().IntVar(&historyDays, "days", 30, "number of days to show")
	rootCmd.AddCommand(historyCmd)

	// status command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show today's outcome per account",
		RunE:  runStatus,
	})

	// run command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the scheduler daemon with the web dashboard",
		RunE:  runDaemon,
	})

	// serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web dashboard without the scheduler",
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (host:port)")
	rootCmd.AddCommand(serveCmd)

	// tui command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "tui",
		Short: "Launch the terminal dashboard",
		RunE:  runTUI,
	})
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

// buildOrchestrator assembles the full stack and seeds config accounts on
// first run. The caller owns the returned store.
func buildOrchestrator(cfg *config.Config) (*orchestrator.Orchestrator, *store.Store, error) {
	if path := cfg.General.DatabasePath; path != "" && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, err
		}
	}
	st, err := store.New(cfg.General.DatabasePath)
	if err != nil {
		return nil, nil, err
	}

	var gen orchestrator.Generator
	if cfg.AI.APIKey != "" {
		gen = ai.New(ai.Options{
			APIKey:      cfg.AI.APIKey,
			BaseURL:     cfg.AI.BaseURL,
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
			MaxTokens:   cfg.AI.MaxTokens,
		})
	}

	notifier := notify.FromSettings(notify.Settings{
		SlackWebhook: cfg.Notifications.SlackWebhook,
		Desktop:      cfg.Notifications.Desktop,
	})

	orch := orchestrator.New(cfg, st, nil, gen, notifier)
	if n, err := orch.Seed(); err != nil {
		st.Close()
		return nil, nil, err
	} else if n > 0 {
		log.Printf("seeded %d accounts from config", n)
	}
	return orch, st, nil
}

func parseAccountID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid account id %q", arg)
	}
	return id, nil
}

func runCheckin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	orch, st, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(args) == 1 {
		id, err := parseAccountID(args[0])
		if err != nil {
			return err
		}
		res, err := orch.RunAccount(ctx, id)
		if err != nil {
			return err
		}
		printResult(res)
		if res.State == domain.StateFailed {
			return fmt.Errorf("check-in failed: %s", res.Detail)
		}
		return nil
	}

	results, summary, err := orch.RunAll(ctx)
	if err != nil {
		return err
	}
	for _, res := range results {
		printResult(res)
	}
	fmt.Printf("\n%d accounts: %d success, %d already done, %d unavailable, %d failed\n",
		summary.Total, summary.Success, summary.AlreadyDone, summary.Unavailable, summary.Failed)
	if summary.Failed > 0 {
		return fmt.Errorf("%d account(s) failed", summary.Failed)
	}
	return nil
}

func printResult(res *orchestrator.RunResult) {
	mark := "✓"
	if res.State == domain.StateFailed {
		mark = "✗"
	}
	skipped := ""
	if res.Skipped {
		skipped = " (already settled today)"
	}
	fmt.Printf("%s %-16s %s: %s%s\n", mark, res.Label, res.Outcome, res.Detail, skipped)
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// Login verification is a run without the check-in step.
	cfg.Bot.DailyCheckin = false

	orch, st, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	id, err := parseAccountID(args[0])
	if err != nil {
		return err
	}
	res, err := orch.RunAccount(context.Background(), id)
	if err != nil {
		return err
	}
	if res.State == domain.StateFailed {
		return fmt.Errorf("login failed: %s", res.Detail)
	}
	fmt.Printf("✓ %s authenticated\n", res.Label)
	return nil
}

func runReply(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	orch, st, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	id, err := parseAccountID(args[0])
	if err != nil {
		return err
	}
	tid, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid thread id %q", args[1])
	}

	job, err := orch.ManualReply(context.Background(), id, tid, replyText)
	if err != nil {
		return err
	}
	if job.DryRun {
		fmt.Printf("dry run, composed reply for thread %d:\n\n%s\n", tid, job.Generated)
		return nil
	}
	if !job.Ok {
		return fmt.Errorf("reply rejected: %s", job.Detail)
	}
	fmt.Printf("✓ replied to thread %d\n", tid)
	return nil
}

func runAccountsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	_, st, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	accounts, err := st.ListAccounts(true)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tLABEL\tUSERNAME\tCOOKIE\tENABLED")
	for _, acc := range accounts {
		cookie := "-"
		if acc.HasCookie() {
			cookie = "yes"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%v\n", acc.ID, acc.Label, acc.Username, cookie, acc.Enabled)
	}
	return w.Flush()
}

func runAccountsAdd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if addUsername == "" && addCookie == "" {
		return fmt.Errorf("account needs --username/--password or --cookie")
	}

	_, st, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	acc := &domain.Account{
		Label:    addLabel,
		Username: addUsername,
		Password: addPassword,
		Cookie:   addCookie,
		BaseURL:  addBaseURL,
		Enabled:  true,
	}
	id, err := st.AddAccount(acc)
	if err != nil {
		return err
	}
	fmt.Printf("added account %d (%s)\n", id, acc.Label)
	return nil
}

func runAccountsDisable(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	_, st, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	id, err := parseAccountID(args[0])
	if err != nil {
		return err
	}
	if _, err := st.GetAccount(id); err != nil {
		return err
	}
	if err := st.DisableAccount(id); err != nil {
		return err
	}
	fmt.Printf("disabled account %d\n", id)
	return nil
}

func runProfile(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	orch, st, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	id, err := parseAccountID(args[0])
	if err != nil {
		return err
	}
	p, err := orch.RefreshProfile(context.Background(), id)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "user group\t%s\n", p.UserGroup)
	for _, stat := range []struct {
		name  string
		value *int
	}{
		{"points", p.Points},
		{"money", p.Money},
		{"secoin", p.Secoin},
		{"score", p.Score},
	} {
		if stat.value != nil {
			fmt.Fprintf(w, "%s\t%d\n", stat.name, *stat.value)
		}
	}
	return w.Flush()
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	_, st, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	id, err := parseAccountID(args[0])
	if err != nil {
		return err
	}
	acc, err := st.GetAccount(id)
	if err != nil {
		return err
	}
	records, err := st.History(id, historyDays)
	if err != nil {
		return err
	}

	fmt.Printf("History for %s:\n", acc.Label)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DAY\tOUTCOME\tDETAIL")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\n", rec.Day, rec.Outcome, rec.Detail)
	}
	return w.Flush()
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	_, st, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	accounts, err := st.ListAccounts(true)
	if err != nil {
		return err
	}

	today := domain.Day(time.Now())
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tLABEL\tTODAY\tDETAIL")
	for _, acc := range accounts {
		rec, err := st.CheckinFor(acc.ID, today)
		if err != nil {
			return err
		}
		outcome, detail := "-", ""
		if rec != nil {
			outcome = string(rec.Outcome)
			detail = rec.Detail
		}
		if !acc.Enabled {
			outcome = "disabled"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", acc.ID, acc.Label, outcome, detail)
	}
	return w.Flush()
}

// runDaemon runs the cron scheduler, the web dashboard, and the config
// watcher until interrupted.
func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	orch, st, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	sched, err := schedule.New(cfg.Bot.CheckinCron)
	if err != nil {
		return fmt.Errorf("checkin_cron: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Config edits take effect without a restart.
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	watcher, err := config.NewWatcher(path, func(updated *config.Config) {
		orch.SetConfig(updated)
		log.Printf("configuration reloaded from %s", path)
	})
	if err != nil {
		log.Printf("config watcher disabled: %v", err)
	} else {
		defer watcher.Close()
	}

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	server := api.NewServer(orch, sched, addr, cfg.Web.StaticDir)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("dashboard listening on http://%s", addr)
		return server.Start()
	})
	g.Go(func() error {
		log.Printf("next scheduled check-in: %s", sched.NextRun().Format("2006-01-02 15:04"))
		sched.Start(gctx, func(runCtx context.Context) error {
			_, _, err := orch.RunAll(runCtx)
			return err
		})
		return gctx.Err()
	})
	return g.Wait()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	orch, st, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	addr := serveAddr
	if addr == "" {
		addr = fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	}
	server := api.NewServer(orch, nil, addr, cfg.Web.StaticDir)
	log.Printf("dashboard listening on http://%s", addr)
	return server.Start()
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	orch, st, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	p := tea.NewProgram(tui.NewModel(orch), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
