package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid      bool              `json:"valid"`
	Components []string          `json:"components,omitempty"`
	Queries    []string          `json:"queries,omitempty"`
	Errors     []ValidationIssue `json:"errors,omitempty"`
}

// ValidationIssue is one reported problem.
type ValidationIssue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <schemas-dir>",
		Short: "Compile and check component schemas and named queries",
		Long: `Compile the CUE component schemas and named queries in a directory.

Reports float fields, malformed keys, fragment chains that break the
construction rules, and references to undeclared components or fields.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	result, loadErrors := LoadSchemas(dir, LoadModeCollectAll)
	if result == nil && len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return formatter.Fail(ExitCommandError, loadErr.Code, loadErr.Message, nil)
		}
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, loadErrors[0].Error(), nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", result.FileCount, dir)

	if len(loadErrors) > 0 {
		issues := make([]ValidationIssue, 0, len(loadErrors))
		for _, err := range loadErrors {
			issue := ValidationIssue{Code: ErrCodeGeneric, Message: err.Error()}
			var loadErr *LoadError
			if errors.As(err, &loadErr) {
				issue.Code = loadErr.Code
				issue.Message = loadErr.Message
				if loadErr.Pos.IsValid() {
					issue.Line = loadErr.Pos.Line()
				}
			}
			issues = append(issues, issue)
		}
		return outputValidationErrors(formatter, issues)
	}

	return outputValidateSuccess(formatter, result)
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result *LoadResult) error {
	queries := make([]string, 0, len(result.Queries))
	for _, q := range result.Queries {
		queries = append(queries, q.Name)
	}
	if formatter.JSON() {
		return formatter.Success(ValidationResult{
			Valid:      true,
			Components: result.Schemas.Names(),
			Queries:    queries,
		})
	}

	fmt.Fprintf(formatter.Writer, "✓ %d component(s), %d quer%s valid\n",
		len(result.Schemas), len(queries), plural(len(queries), "y", "ies"))
	for _, name := range result.Schemas.Names() {
		formatter.VerboseLog("  component %s", name)
	}
	return nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, issues []ValidationIssue) error {
	if formatter.JSON() {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: issues},
			Error: &CLIError{
				Code:    issues[0].Code,
				Message: issues[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, issue := range issues {
		if issue.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", issue.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", issue.Code, issue.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))
}
