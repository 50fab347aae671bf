package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/Bots-Avatar/inseq"
)

func methodsCmd() *cli.Command {
	return &cli.Command{
		Name:  "methods",
		Usage: "List registered attribution methods",
		Action: func(ctx context.Context, c *cli.Command) error {
			for _, name := range inseq.ListMethods() {
				fmt.Println(name)
			}
			return nil
		},
	}
}

func stepsCmd() *cli.Command {
	return &cli.Command{
		Name:  "steps",
		Usage: "List registered step functions",
		Action: func(ctx context.Context, c *cli.Command) error {
			for _, name := range inseq.ListStepFunctions() {
				fmt.Println(name)
			}
			return nil
		},
	}
}
