package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/stageflow/stageflow/pkg/log"
	"github.com/stageflow/stageflow/pkg/models"
	"github.com/stageflow/stageflow/pkg/validation"
)

// ValidateCommand validates a workflow definition JSON file without touching
// any persistence backend. The exit code is non-zero when the graph has
// errors, which makes it usable in CI pipelines.
func ValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Aliases:   []string{"v"},
		Usage:     "Validate a workflow definition file",
		ArgsUsage: "<workflow.json>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the validation result as JSON",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			path := command.Args().First()
			if path == "" {
				return fmt.Errorf("usage: stageflow validate <workflow.json>")
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read workflow file: %w", err)
			}

			var workflow models.Workflow
			if err := json.Unmarshal(data, &workflow); err != nil {
				return fmt.Errorf("failed to parse workflow file: %w", err)
			}

			result := validation.NewValidator(log.WithModule("validate")).Validate(&workflow)

			if command.Bool("json") {
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")

				if err := encoder.Encode(result); err != nil {
					return err
				}
			} else {
				printResult(result)
			}

			if !result.Valid {
				return cli.Exit("", 1)
			}

			return nil
		},
	}
}

func printResult(result *validation.Result) {
	for _, issue := range result.Errors {
		fmt.Printf("error   %-28s %s (%s)\n", issue.Code, issue.Message, issue.EntityRef)
	}

	for _, issue := range result.Warnings {
		fmt.Printf("warning %-28s %s (%s)\n", issue.Code, issue.Message, issue.EntityRef)
	}

	if result.Valid {
		fmt.Printf("graph is valid (%d warnings)\n", len(result.Warnings))
	} else {
		fmt.Printf("graph is invalid (%d errors, %d warnings)\n", len(result.Errors), len(result.Warnings))
	}
}
