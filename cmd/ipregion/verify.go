package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ipregion/internal/logger"
)

func (c *cli) newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Scan the whole index: coverage, data pointers and region fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, _, err := c.openSearcher()
			if err != nil {
				return err
			}
			defer s.Close()
			st, err := s.Verify()
			if err != nil {
				logger.L().Error("verify_error", "db", c.cfg.DBPath, "err", err)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d index blocks, %d data records, %d bytes\n", st.Blocks, st.DataRecords, st.Size)
			return nil
		},
	}
}

func (c *cli) newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print the super header of the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, _, err := c.openSearcher()
			if err != nil {
				return err
			}
			defer s.Close()
			h, err := s.Header()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "file:        %s\n", c.cfg.DBPath)
			fmt.Fprintf(out, "size:        %d\n", s.Size())
			fmt.Fprintf(out, "index start: %d\n", h.IndexStartPtr)
			fmt.Fprintf(out, "index end:   %d\n", h.IndexEndPtr)
			fmt.Fprintf(out, "blocks:      %d\n", h.BlockCount())
			return nil
		},
	}
}
