package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newSaveCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "save [payload]",
		Short: "Save post-update info, replacing any pending record",
		Long:  "Save post-update info. The payload is read from stdin when no argument is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload string
			if len(args) == 1 {
				payload = args[0]
			} else {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read payload: %w", err)
				}
				payload = string(b)
			}

			if err := c.mailbox().Save(payload); err != nil {
				return err
			}
			c.logger.Info().Int("bytes", len(payload)).Msg("post-update info saved")
			return nil
		},
	}
}

func newConsumeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Print and remove pending post-update info",
		Long:  "Print pending post-update info and remove it. Prints nothing when nothing is pending; never fails.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, ok := c.mailbox().Consume()
			if !ok {
				c.logger.Debug().Msg("no pending post-update info")
				return nil
			}
			_, err := io.WriteString(cmd.OutOrStdout(), payload)
			return err
		},
	}
}

func newStatusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the mailbox location and whether info is pending",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mb := c.mailbox()
			path, err := mb.Path()
			if err != nil {
				return err
			}
			state := "empty"
			if mb.Pending() {
				state = "pending"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "path:  %s\nstate: %s\n", path, state)
			return nil
		},
	}
}

func newPathCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the post-update info file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := c.mailbox().Path()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}
