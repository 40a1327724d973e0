package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrWong99/readalong/pkg/lesson"
)

func newLessonCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lesson",
		Short: "Generate, validate and list lesson scripts",
	}
	cmd.AddCommand(newLessonGenCommand())
	cmd.AddCommand(newLessonValidateCommand())
	cmd.AddCommand(newLessonListCommand())
	return cmd
}

func newLessonGenCommand() *cobra.Command {
	var (
		lang  string
		intro string
	)
	cmd := &cobra.Command{
		Use:   "gen <word>",
		Short: "Print a spelling lesson for a word as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				l   *lesson.Lesson
				err error
			)
			if intro != "" {
				l, err = lesson.Build(args[0], lang, intro)
			} else {
				l, err = lesson.FromWord(args[0], lang)
			}
			if err != nil {
				return err
			}
			return lesson.Encode(cmd.OutOrStdout(), l)
		},
	}
	cmd.Flags().StringVarP(&lang, "lang", "l", "en", "lesson language (en or fr)")
	cmd.Flags().StringVar(&intro, "intro", "", "custom introduction sentence")
	return cmd
}

func newLessonValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>...",
		Short: "Check lesson files for errors",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var errs []error
			for _, path := range args {
				lessons, err := lesson.LoadFile(path)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "FAIL %s: %v\n", path, err)
					errs = append(errs, err)
					continue
				}
				for _, l := range lessons {
					fmt.Fprintf(cmd.OutOrStdout(), "ok   %s: %s (%d prompts)\n", path, l.ID, l.Prompts())
				}
			}
			if len(errs) > 0 {
				return fmt.Errorf("%d of %d files invalid: %w", len(errs), len(args), errors.Join(errs...))
			}
			return nil
		},
	}
}

func newLessonListCommand() *cobra.Command {
	var lang string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the built-in lessons",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := lesson.Builtin()
			if err != nil {
				return err
			}
			lessons := cat.All()
			if lang != "" {
				lessons = cat.ForLanguage(lang)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tLANGUAGE\tPROMPTS\tTITLE")
			for _, l := range lessons {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", l.ID, l.Language, l.Prompts(), l.Title)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&lang, "lang", "l", "", "only list lessons in this language")
	return cmd
}
