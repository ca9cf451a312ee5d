package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/noah-isme/gema-results-api/pkg/resultsclient"
)

type cli struct {
	settings *viper.Viper
	logger   zerolog.Logger
}

func newRootCmd(logger zerolog.Logger) *cobra.Command {
	settings := viper.New()
	settings.SetEnvPrefix("RESULTSCTL")
	settings.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	settings.AutomaticEnv()

	app := &cli{settings: settings, logger: logger}

	root := &cobra.Command{
		Use:           "resultsctl",
		Short:         "Inspect and correct exam results through the results API",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().String("url", "http://localhost:8080/api/v1", "results API base URL")
	root.PersistentFlags().String("token", "", "bearer token")
	root.PersistentFlags().Duration("timeout", 15*time.Second, "request timeout")
	_ = settings.BindPFlag("url", root.PersistentFlags().Lookup("url"))
	_ = settings.BindPFlag("token", root.PersistentFlags().Lookup("token"))
	_ = settings.BindPFlag("timeout", root.PersistentFlags().Lookup("timeout"))

	root.AddCommand(
		app.attemptsCmd(),
		app.attemptItemsCmd(),
		app.representativeCmd(),
		app.detailCmd(),
		app.scoreCmd(),
		app.lockCmd(),
		app.rowsCmd(),
		app.wrongNotesCmd(),
		app.reportCmd(),
	)
	return root
}

func (a *cli) client() *resultsclient.Client {
	return resultsclient.New(
		a.settings.GetString("url"),
		a.settings.GetString("token"),
		resultsclient.WithTimeout(a.settings.GetDuration("timeout")),
		resultsclient.WithLogger(a.logger),
	)
}

func (a *cli) attemptsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attempts <exam-id> <enrollment-id>",
		Short: "List the attempts of a result",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseKey(args)
			if err != nil {
				return err
			}
			attempts, err := a.client().ListAttempts(cmd.Context(), key)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), attempts)
		},
	}
}

func (a *cli) attemptItemsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attempt-items <exam-id> <enrollment-id> <attempt-id>",
		Short: "Show the per-question facts of one attempt",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseKey(args)
			if err != nil {
				return err
			}
			attemptID, err := parseID("attempt-id", args[2])
			if err != nil {
				return err
			}
			view, err := a.client().AttemptItems(cmd.Context(), key, attemptID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), view)
		},
	}
}

func (a *cli) representativeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "representative <exam-id> <enrollment-id> <attempt-id>",
		Short: "Select the attempt that counts for a result",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseKey(args)
			if err != nil {
				return err
			}
			attemptID, err := parseID("attempt-id", args[2])
			if err != nil {
				return err
			}
			client := a.client()
			resolver := resultsclient.NewResolver(client, resultsclient.NewViews(client), a.logger)
			attempt, err := resolver.SetRepresentative(cmd.Context(), key, attemptID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), attempt)
		},
	}
}

func (a *cli) detailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detail <exam-id> <enrollment-id>",
		Short: "Show the result detail of an enrollment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseKey(args)
			if err != nil {
				return err
			}
			detail, err := a.client().Detail(cmd.Context(), key)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), detail)
		},
	}
}

func (a *cli) scoreCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "score <exam-id> <enrollment-id> <question-id> <score>",
		Short: "Correct the score of one question",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseKey(args)
			if err != nil {
				return err
			}
			questionID, err := parseID("question-id", args[2])
			if err != nil {
				return err
			}
			client := a.client()
			session, err := resultsclient.OpenEditSession(cmd.Context(), client, resultsclient.NewViews(client), key)
			if err != nil {
				return err
			}
			if err := session.EnterEdit(); err != nil {
				return err
			}
			session.SetReason(reason)
			item, err := session.PatchScore(cmd.Context(), questionID, args[3])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), item)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded with the correction")
	return cmd
}

func (a *cli) lockCmd() *cobra.Command {
	var (
		unlock bool
		reason string
	)
	cmd := &cobra.Command{
		Use:   "lock <exam-id> <enrollment-id>",
		Short: "Lock or unlock score editing of a result",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseKey(args)
			if err != nil {
				return err
			}
			request := resultsclient.EditLock{Locked: !unlock}
			if reason != "" {
				request.Reason = &reason
			}
			state, err := a.client().SetEditLock(cmd.Context(), key, request)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), state)
		},
	}
	cmd.Flags().BoolVar(&unlock, "unlock", false, "clear the lock instead of setting it")
	cmd.Flags().StringVar(&reason, "reason", "", "lock reason shown to operators")
	return cmd
}

func (a *cli) rowsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rows <exam-id>",
		Short: "List the result rows of an exam",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			examID, err := parseID("exam-id", args[0])
			if err != nil {
				return err
			}
			rows, err := a.client().ListRows(cmd.Context(), examID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rows)
		},
	}
}

type filterFlags struct {
	enrollment  uint
	exam        uint
	lecture     uint
	fromSession int
}

func (f *filterFlags) bind(cmd *cobra.Command) {
	cmd.Flags().UintVar(&f.enrollment, "enrollment", 0, "enrollment id")
	cmd.Flags().UintVar(&f.exam, "exam", 0, "only notes of this exam")
	cmd.Flags().UintVar(&f.lecture, "lecture", 0, "only notes of this lecture")
	cmd.Flags().IntVar(&f.fromSession, "from-session", -1, "only sessions from this order on")
	_ = cmd.MarkFlagRequired("enrollment")
}

func (f *filterFlags) filter() resultsclient.WrongNoteFilter {
	var filter resultsclient.WrongNoteFilter
	if f.exam > 0 {
		filter.ExamID = &f.exam
	}
	if f.lecture > 0 {
		filter.LectureID = &f.lecture
	}
	if f.fromSession >= 0 {
		filter.FromSessionOrder = &f.fromSession
	}
	return filter
}

func (a *cli) wrongNotesCmd() *cobra.Command {
	var (
		flags    filterFlags
		pageSize int
	)
	cmd := &cobra.Command{
		Use:   "wrong-notes",
		Short: "List every wrong answer of an enrollment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			notes, err := a.client().CollectWrongNotes(cmd.Context(), flags.enrollment, flags.filter(), pageSize)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), notes)
		},
	}
	flags.bind(cmd)
	cmd.Flags().IntVar(&pageSize, "page-size", resultsclient.DefaultWrongNotePageSize, "notes fetched per request")
	return cmd
}

func (a *cli) reportCmd() *cobra.Command {
	var (
		flags    filterFlags
		interval time.Duration
		maxPolls int
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate a wrong-note PDF and wait for it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := flags.filter()
			supervisor := resultsclient.NewJobSupervisor(a.client(), resultsclient.SupervisorOptions{
				Interval: interval,
				MaxPolls: maxPolls,
				Logger:   a.logger,
			})
			created, err := supervisor.Start(cmd.Context(), resultsclient.PDFJobRequest{
				EnrollmentID:     flags.enrollment,
				ExamID:           filter.ExamID,
				LectureID:        filter.LectureID,
				FromSessionOrder: filter.FromSessionOrder,
			})
			if err != nil {
				return err
			}
			defer supervisor.Stop()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "job %d queued\n", created.JobID)
			for update := range supervisor.Updates() {
				if update.Err != nil {
					fmt.Fprintf(out, "status check failed: %v\n", update.Err)
					continue
				}
				fmt.Fprintf(out, "job %d %s\n", update.Job.JobID, update.Job.Status)
			}

			job, err := supervisor.Wait(cmd.Context())
			if err != nil {
				return err
			}
			if job.FileURL != nil {
				fmt.Fprintln(out, *job.FileURL)
			}
			return nil
		},
	}
	flags.bind(cmd)
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "delay between status checks")
	cmd.Flags().IntVar(&maxPolls, "max-polls", 0, "give up after this many checks, 0 waits until done")
	return cmd
}

func parseKey(args []string) (resultsclient.ResultKey, error) {
	examID, err := parseID("exam-id", args[0])
	if err != nil {
		return resultsclient.ResultKey{}, err
	}
	enrollmentID, err := parseID("enrollment-id", args[1])
	if err != nil {
		return resultsclient.ResultKey{}, err
	}
	return resultsclient.ResultKey{ExamID: examID, EnrollmentID: enrollmentID}, nil
}

func parseID(name, raw string) (uint, error) {
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || value == 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", name, raw)
	}
	return uint(value), nil
}

func printJSON(out io.Writer, value interface{}) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
