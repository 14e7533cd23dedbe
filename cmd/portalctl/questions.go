package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"portal/internal/adapters/storage"
	auditStorePkg "portal/internal/adapters/storage/audit"
	"portal/internal/application/orchestrators"
	"portal/internal/domain/questionnaire"
)

func newQuestionsCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "questions",
		Short: "Inspect and reorder questionnaire questions",
	}
	cmd.AddCommand(newQuestionsListCmd(g), newQuestionsMoveCmd(g))
	return cmd
}

func newQuestionsListCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "list <questionnaire>",
		Short: "List a questionnaire's questions in display order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			services, sess, err := apiSession(g, cmd.Flags().Changed("api"))
			if err != nil {
				return err
			}
			qs, err := services.QuestionsOf(cmd.Context(), sess, args[0])
			if err != nil {
				return err
			}
			questionnaire.SortQuestions(qs)
			return printQuestions(cmd.OutOrStdout(), qs)
		},
	}
}

func newQuestionsMoveCmd(g *globals) *cobra.Command {
	var auditDB string
	cmd := &cobra.Command{
		Use:   "move <questionnaire> <question> <index>",
		Short: "Move a question to a zero-based position",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[2])
			if err != nil || index < 0 {
				return fmt.Errorf("index must be a non-negative integer, got %q", args[2])
			}
			services, sess, err := apiSession(g, cmd.Flags().Changed("api"))
			if err != nil {
				return err
			}
			creds, _ := loadCredentials(g.credentials)

			deps := orchestrators.ReorderQuestionDeps{
				Lister:    services,
				Questions: services.Questions,
			}
			if auditDB != "" {
				db, err := storage.Open(auditDB)
				if err != nil {
					return err
				}
				defer db.Close()
				if err := storage.MigrateDB(db); err != nil {
					return err
				}
				deps.Audit = auditStorePkg.NewSQLiteStore(db)
			}

			res, err := orchestrators.ExecuteReorderQuestion(cmd.Context(), orchestrators.ReorderQuestionInput{
				Session:         sess,
				Actor:           orchestrators.Actor{Email: creds.Email, Role: creds.Role, UserAgent: "portalctl"},
				QuestionnaireID: args[0],
				QuestionID:      args[1],
				NewIndex:        index,
			}, deps)
			if err != nil {
				var re *orchestrators.ReorderError
				if errors.As(err, &re) && len(re.Questions) > 0 {
					fmt.Fprintln(cmd.ErrOrStderr(), "current order:")
					_ = printQuestions(cmd.ErrOrStderr(), re.Questions)
				}
				return err
			}
			if res.Renumbered {
				fmt.Fprintf(cmd.OutOrStdout(), "renumbered %d questions\n", len(res.Updates))
			}
			return printQuestions(cmd.OutOrStdout(), res.Questions)
		},
	}
	cmd.Flags().StringVar(&auditDB, "audit-db", "", "sqlite database to record the change in")
	return cmd
}

func printQuestions(w io.Writer, qs []questionnaire.Question) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tID\tORDER\tTYPE\tTEXT")
	for i, q := range qs {
		fmt.Fprintf(tw, "%d\t%s\t%g\t%s\t%s\n", i, q.ID, q.Order, q.Type, q.Text)
	}
	return tw.Flush()
}
