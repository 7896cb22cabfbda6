package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/newmatik/gerbtrace-shell/internal/bridge"
)

func newCallCmd(c *cli) *cobra.Command {
	var (
		addr    string
		token   string
		timeout time.Duration
		list    bool
	)

	cmd := &cobra.Command{
		Use:   "call <command> [json-args]",
		Short: "Invoke a command on a running shell",
		Args: func(cmd *cobra.Command, args []string) error {
			if list {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.RangeArgs(1, 2)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				return fmt.Errorf("--addr is required")
			}
			if token == "" {
				token = c.cfg.Token
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			client := bridge.NewClient(addr, token)

			if list {
				names, err := client.List(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), strings.Join(names, "\n"))
				return nil
			}

			var params json.RawMessage
			if len(args) == 2 {
				if !json.Valid([]byte(args[1])) {
					return fmt.Errorf("arguments are not valid JSON: %s", args[1])
				}
				params = json.RawMessage(args[1])
			}

			result, err := client.Invoke(ctx, args[0], params)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(result))
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "bridge address (host:port or ws:// URL)")
	cmd.Flags().StringVar(&token, "token", "", "session token printed by serve")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	cmd.Flags().BoolVar(&list, "list", false, "list available commands")
	return cmd
}
