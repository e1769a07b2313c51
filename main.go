package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alexflint/go-filemutex"
	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"kintai/config"
	"kintai/kintai"
	"kintai/kintai_event"
	"kintai/recorder"
	"kintai/view"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(1)
	}
}

func run() error {
	app := &cli.App{
		Name:  "kintai",
		Usage: "勤怠記録くん",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "設定ファイル (yaml)", EnvVars: []string{"KINTAI_CONFIG"}},
		},
		Commands: []*cli.Command{
			kansiCommand,
			recordCommand,
			statusCommand,
			subjectCommand,
			workdayCommand,
			eventCommand,
			ingestCommand,
			tableCommand,
			viewCommand,
			configCommand,
		},
	}
	return app.Run(os.Args)
}

var subjectFlag = &cli.Int64Flag{Name: "subject", Aliases: []string{"s"}, Usage: "対象者ID (省略時は subject_id)"}

var kansiCommand = &cli.Command{
	Name:  "kansi",
	Usage: "監視スタート",
	Flags: []cli.Flag{subjectFlag},
	Action: func(c *cli.Context) error {
		env, err := setup(c)
		if err != nil {
			return err
		}
		defer env.Close()

		ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := env.ensureSubject(ctx, env.subject(c)); err != nil {
			return err
		}

		ws := kintai_event.NewAllWatchers(env.logger)
		mgr := recorder.NewManager(env.recorder, ws, recorder.NewNotificator(env.cfg.Notify), env.logger, env.subject(c), recorder.MonitorOptions{
			PollingInterval:    env.cfg.Monitor.PollingInterval,
			StartBreakAfter:    env.cfg.Monitor.StartBreakAfter,
			FinishWorkingAfter: env.cfg.Monitor.FinishWorkingAfter,
		})
		fmt.Printf("監視を開始しました (subject %d)\n", env.subject(c))
		return mgr.Kansi(ctx)
	},
}

var recordCommand = &cli.Command{
	Name:      "record",
	Usage:     "イベントを記録 (Started, OnBreak, FromBreak, Finished)",
	ArgsUsage: "<kind>",
	Flags: []cli.Flag{
		subjectFlag,
		&cli.StringFlag{Name: "at", Usage: "時刻 HH:MM または RFC3339 (省略時は現在時刻)"},
	},
	Action: func(c *cli.Context) error {
		kind, err := kintai.ParseEventKind(c.Args().First())
		if err != nil {
			return err
		}
		env, err := setup(c)
		if err != nil {
			return err
		}
		defer env.Close()

		at, err := env.parseAt(c.String("at"))
		if err != nil {
			return err
		}
		snap, err := env.recorder.Record(c.Context, env.subject(c), kind, at)
		if err != nil {
			return err
		}
		fmt.Printf("%s %s を記録しました: %s\n", at.In(env.loc).Format("2006-01-02 15:04"), kind, stateColor(snap.State))
		return nil
	},
}

var statusCommand = &cli.Command{
	Name:  "status",
	Usage: "現在の勤怠状況を表示",
	Flags: []cli.Flag{
		subjectFlag,
		&cli.StringFlag{Name: "at", Usage: "時刻 HH:MM または RFC3339 (省略時は現在時刻)"},
	},
	Action: func(c *cli.Context) error {
		env, err := setup(c)
		if err != nil {
			return err
		}
		defer env.Close()

		at, err := env.parseAt(c.String("at"))
		if err != nil {
			return err
		}
		st, err := env.recorder.Status(c.Context, env.subject(c), at)
		if err != nil {
			return err
		}

		bold := color.New(color.Bold).SprintFunc()
		fmt.Printf("%s  %s\n", bold(string(st.Date)), stateColor(st.State))
		if !st.LastTransitionAt.IsZero() {
			fmt.Printf("  最終記録  %s\n", st.LastTransitionAt.In(env.loc).Format("15:04"))
		}
		fmt.Printf("  労働時間  %s\n", formatSeconds(st.WorkingSeconds))
		fmt.Printf("  休憩時間  %s (上限 %s, 実績 %s)\n",
			formatSeconds(st.BreakSeconds), formatSeconds(st.BreakLimitSeconds), formatSeconds(st.RawBreakSeconds))
		fmt.Printf("  合計      %s\n", color.CyanString(formatSeconds(st.TotalSeconds())))
		return nil
	},
}

var subjectCommand = &cli.Command{
	Name:  "subject",
	Usage: "対象者の管理",
	Subcommands: []*cli.Command{
		{
			Name:  "add",
			Usage: "対象者を登録",
			Flags: []cli.Flag{
				&cli.Int64Flag{Name: "id", Required: true},
				&cli.StringFlag{Name: "name", Required: true},
			},
			Action: func(c *cli.Context) error {
				env, err := setup(c)
				if err != nil {
					return err
				}
				defer env.Close()

				s := recorder.Subject{ID: kintai.SubjectID(c.Int64("id")), Name: c.String("name")}
				if err := env.recorder.RegisterSubject(c.Context, s); err != nil {
					return err
				}
				fmt.Println(color.GreenString("登録しました: %d %s", s.ID, s.Name))
				return nil
			},
		},
		{
			Name:  "list",
			Usage: "対象者の一覧",
			Action: func(c *cli.Context) error {
				env, err := setup(c)
				if err != nil {
					return err
				}
				defer env.Close()

				ss, err := env.recorder.Subjects(c.Context)
				if err != nil {
					return err
				}
				for _, s := range ss {
					fmt.Printf("%4d  %s  (%s)\n", s.ID, s.Name, s.CreatedAt.In(env.loc).Format("2006-01-02"))
				}
				return nil
			},
		},
		{
			Name:  "remove",
			Usage: "対象者と記録を削除",
			Flags: []cli.Flag{&cli.Int64Flag{Name: "id", Required: true}},
			Action: func(c *cli.Context) error {
				env, err := setup(c)
				if err != nil {
					return err
				}
				defer env.Close()

				if err := env.recorder.RemoveSubject(c.Context, kintai.SubjectID(c.Int64("id"))); err != nil {
					return err
				}
				fmt.Println(color.YellowString("削除しました: %d", c.Int64("id")))
				return nil
			},
		},
	},
}

var workdayCommand = &cli.Command{
	Name:  "workday",
	Usage: "勤務日の設定",
	Subcommands: []*cli.Command{
		{
			Name:  "set",
			Usage: "休憩比率と勤務時間帯を設定",
			Flags: []cli.Flag{
				subjectFlag,
				dateFlag,
				&cli.Float64Flag{Name: "working-hours", Usage: "基準労働時間"},
				&cli.Float64Flag{Name: "break-hours", Usage: "基準労働時間あたりの休憩時間"},
				&cli.StringSliceFlag{Name: "window", Usage: "勤務時間帯 HH:MM-HH:MM (複数指定可)"},
			},
			Action: func(c *cli.Context) error {
				env, err := setup(c)
				if err != nil {
					return err
				}
				defer env.Close()

				date, err := env.date(c)
				if err != nil {
					return err
				}
				w := recorder.Workday{
					SubjectID:    env.subject(c),
					Date:         date,
					WorkingHours: env.cfg.Policy.WorkingHours,
					BreakHours:   env.cfg.Policy.BreakHours,
				}
				if c.IsSet("working-hours") {
					w.WorkingHours = c.Float64("working-hours")
				}
				if c.IsSet("break-hours") {
					w.BreakHours = c.Float64("break-hours")
				}
				for _, s := range c.StringSlice("window") {
					win, err := env.parseWindow(date, s)
					if err != nil {
						return err
					}
					w.Windows = append(w.Windows, win)
				}
				if err := env.recorder.SetWorkday(c.Context, w); err != nil {
					return err
				}
				fmt.Println(color.GreenString("%s の勤務設定を保存しました", date))
				return nil
			},
		},
	},
}

var dateFlag = &cli.StringFlag{Name: "date", Usage: "YYYY-MM-DD (省略時は今日)"}

var eventCommand = &cli.Command{
	Name:  "event",
	Usage: "記録したイベントの確認と取り消し",
	Subcommands: []*cli.Command{
		{
			Name:  "list",
			Usage: "勤務日のイベントを一覧表示",
			Flags: []cli.Flag{subjectFlag, dateFlag},
			Action: func(c *cli.Context) error {
				env, err := setup(c)
				if err != nil {
					return err
				}
				defer env.Close()

				date, err := env.date(c)
				if err != nil {
					return err
				}
				rep, err := env.recorder.Report(c.Context, env.subject(c), date, time.Now())
				if err != nil {
					return err
				}
				for _, e := range rep.Events {
					fmt.Printf("%s  %-9s  %s\n", e.ID, e.Kind, e.At.In(env.loc).Format("2006-01-02 15:04:05"))
				}
				return nil
			},
		},
		{
			Name:  "remove",
			Usage: "イベントを取り消す (残りの記録が成り立つ場合のみ)",
			Flags: []cli.Flag{
				subjectFlag,
				dateFlag,
				&cli.StringFlag{Name: "id", Required: true, Usage: "event list で表示される ID"},
			},
			Action: func(c *cli.Context) error {
				env, err := setup(c)
				if err != nil {
					return err
				}
				defer env.Close()

				date, err := env.date(c)
				if err != nil {
					return err
				}
				snap, err := env.recorder.RemoveEvent(c.Context, env.subject(c), date, c.String("id"))
				if err != nil {
					return err
				}
				fmt.Println(color.YellowString("取り消しました: %s", c.String("id")), stateColor(snap.State))
				return nil
			},
		},
	},
}

var ingestCommand = &cli.Command{
	Name:      "ingest",
	Usage:     "JSON Lines の記録を取り込む",
	ArgsUsage: "[file|-]",
	Action: func(c *cli.Context) error {
		env, err := setup(c)
		if err != nil {
			return err
		}
		defer env.Close()

		in := os.Stdin
		if name := c.Args().First(); name != "" && name != "-" {
			f, err := os.Open(name)
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}

		ing := recorder.NewIngester(env.recorder, kintai_event.NewRegistry(&kintai_event.Sequence{}), env.logger)
		res, err := ing.Ingest(c.Context, in)
		fmt.Printf("対象者 %d, 勤務設定 %d, イベント %d, 却下 %d\n", res.Subjects, res.Workdays, res.Events, res.Rejected)
		return err
	},
}

var tableCommand = &cli.Command{
	Name:      "table",
	Usage:     "労働時間の一覧を表で表示",
	ArgsUsage: "[YYYY-MM]",
	Flags:     []cli.Flag{subjectFlag},
	Action: func(c *cli.Context) error {
		env, err := setup(c)
		if err != nil {
			return err
		}
		defer env.Close()

		viewRepo := view.NewViewRepository(env.recorder, env.loc)
		return view.NewTableViewer(viewRepo, env.subject(c), os.Stdout).Do(yearMonthArg(c))
	},
}

var viewCommand = &cli.Command{
	Name:      "view",
	Usage:     "労働時間の一覧を表示",
	ArgsUsage: "[YYYY-MM]",
	Flags:     []cli.Flag{subjectFlag},
	Action: func(c *cli.Context) error {
		env, err := setup(c)
		if err != nil {
			return err
		}
		defer env.Close()

		viewRepo := view.NewViewRepository(env.recorder, env.loc)
		v := view.NewTUI(env.recorder, viewRepo, env.subject(c), env.loc, env.logger)
		return v.Do(yearMonthArg(c))
	},
}

var configCommand = &cli.Command{
	Name:  "config",
	Usage: "設定の表示",
	Subcommands: []*cli.Command{
		{
			Name:  "show",
			Usage: "有効な設定を yaml で表示",
			Action: func(c *cli.Context) error {
				cfg, err := config.Load(c.String("config"))
				if err != nil {
					return err
				}
				out, err := yaml.Marshal(cfg)
				if err != nil {
					return err
				}
				file := cfg.File
				if file == "" {
					file = "(none)"
				}
				fmt.Printf("# config file: %s\n%s", file, out)
				return nil
			},
		},
	},
}

func yearMonthArg(c *cli.Context) string {
	if ym := c.Args().First(); ym != "" {
		return ym
	}
	return time.Now().Format("2006-01")
}

// env holds what every command needs. Close releases the store.
type env struct {
	cfg      *config.Config
	loc      *time.Location
	logger   *slog.Logger
	repo     recorder.Repository
	recorder recorder.Recorder
	fm       *filemutex.FileMutex
	logFile  *os.File
}

func setup(c *cli.Context) (*env, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	logger, logFile, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	repo, err := initDB(c.Context, cfg)
	if err != nil {
		logFile.Close()
		return nil, err
	}
	fm, err := filemutex.New(cfg.LockFile())
	if err != nil {
		repo.Close()
		logFile.Close()
		return nil, err
	}
	rec, err := recorder.NewRecorder(repo, logger, fm, recorder.Options{
		ShiftDuration: cfg.Shift(),
		Location:      loc,
		WorkingHours:  cfg.Policy.WorkingHours,
		BreakHours:    cfg.Policy.BreakHours,
	})
	if err != nil {
		fm.Close()
		repo.Close()
		logFile.Close()
		return nil, err
	}
	return &env{cfg: cfg, loc: loc, logger: logger, repo: repo, recorder: rec, fm: fm, logFile: logFile}, nil
}

func (e *env) Close() {
	if err := e.repo.Close(); err != nil {
		e.logger.Error("close store", slog.Any("err", err))
	}
	if err := e.fm.Close(); err != nil {
		e.logger.Error("close lock file", slog.Any("err", err))
	}
	e.logFile.Close()
}

// ensureSubject registers id under the login name unless it already exists.
func (e *env) ensureSubject(ctx context.Context, id kintai.SubjectID) error {
	_, err := e.recorder.Subject(ctx, id)
	if !errors.Is(err, recorder.ErrNotFound) {
		return err
	}
	name := os.Getenv("USER")
	if name == "" {
		name = fmt.Sprintf("subject-%d", id)
	}
	if err := e.recorder.RegisterSubject(ctx, recorder.Subject{ID: id, Name: name}); err != nil {
		return err
	}
	fmt.Println(color.GreenString("対象者を登録しました: %d %s", id, name))
	return nil
}

// date reads --date, defaulting to the current workday.
func (e *env) date(c *cli.Context) (kintai.Date, error) {
	if !c.IsSet("date") {
		return e.recorder.DateOf(time.Now()), nil
	}
	date, err := kintai.ParseDate(c.String("date"))
	if err != nil {
		return "", fmt.Errorf("日付の形式が不正です ex: 2024-03-01: %w", err)
	}
	return date, nil
}

func (e *env) subject(c *cli.Context) kintai.SubjectID {
	if c.IsSet("subject") {
		return kintai.SubjectID(c.Int64("subject"))
	}
	return kintai.SubjectID(e.cfg.SubjectID)
}

// parseAt accepts an empty string (now), RFC3339, or HH:MM within the current workday.
func (e *env) parseAt(s string) (time.Time, error) {
	now := time.Now()
	switch {
	case s == "":
		return now, nil
	case strings.Contains(s, "T"):
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("時刻の形式が不正です: %w", err)
		}
		return t, nil
	default:
		return e.recorder.ClockOn(e.recorder.DateOf(now), s)
	}
}

func (e *env) parseWindow(date kintai.Date, s string) (recorder.Window, error) {
	from, to, ok := strings.Cut(s, "-")
	if !ok {
		return recorder.Window{}, fmt.Errorf("勤務時間帯の形式が不正です ex: 09:00-18:00: %q", s)
	}
	start, err := e.recorder.ClockOn(date, strings.TrimSpace(from))
	if err != nil {
		return recorder.Window{}, err
	}
	end, err := e.recorder.ClockOn(date, strings.TrimSpace(to))
	if err != nil {
		return recorder.Window{}, err
	}
	return recorder.Window{Start: start, End: end}, nil
}

func initDB(ctx context.Context, cfg *config.Config) (recorder.Repository, error) {
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		return recorder.NewSQLiteRepository(ctx, cfg.Store.Path)
	default:
		return recorder.NewBuntFileRepository(cfg.Store.Path)
	}
}

func newLogger(cfg *config.Config) (*slog.Logger, *os.File, error) {
	logFile, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, nil, err
	}

	return slog.New(
		slog.NewJSONHandler(logFile, &slog.HandlerOptions{
			Level: cfg.SlogLevel(),
		}),
	), logFile, nil
}

func stateColor(s kintai.State) string {
	switch s {
	case kintai.StateWorking:
		return color.GreenString("労働中")
	case kintai.StateOnBreak:
		return color.YellowString("休憩中")
	default:
		return color.New(color.Faint).Sprint("勤務外")
	}
}

func formatSeconds(sec int64) string {
	return fmt.Sprintf("%02d:%02d:%02d", sec/3600, sec%3600/60, sec%60)
}
