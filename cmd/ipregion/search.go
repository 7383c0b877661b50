package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ipregion/internal/locator"
)

const prompt = "ipregion>> "

func (c *cli) newSearchCmd() *cobra.Command {
	var display bool
	cmd := &cobra.Command{
		Use:   "search [ip...]",
		Short: "Resolve addresses given as arguments, or interactively from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.resolve()
			if err != nil {
				return err
			}
			l, err := locator.Open(cfg)
			if err != nil {
				return err
			}
			defer l.Close()
			out := cmd.OutOrStdout()
			if len(args) > 0 {
				failed := 0
				for _, ip := range args {
					if !searchOne(cmd.Context(), l, out, ip, display) {
						failed++
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d lookups failed", failed, len(args))
				}
				return nil
			}
			return repl(cmd.Context(), l, cmd.InOrStdin(), out, display)
		},
	}
	cmd.Flags().BoolVar(&display, "unknown", false, "show empty and \"0\" fields as \"unknown\"")
	return cmd
}

func searchOne(ctx context.Context, l *locator.Locator, out io.Writer, ip string, display bool) bool {
	start := time.Now()
	r, err := l.Search(ctx, ip)
	took := time.Since(start)
	if err != nil {
		fmt.Fprintf(out, "%s\terror: %v\n", ip, err)
		return false
	}
	if display {
		r = locator.Display(r)
	}
	fmt.Fprintf(out, "%s\t%s\t%s\n", ip, r, took)
	return true
}

// repl：逐行读取地址直到 EOF 或 quit/exit
func repl(ctx context.Context, l *locator.Locator, in io.Reader, out io.Writer, display bool) error {
	fmt.Fprintf(out, "algorithm: %s, type quit to exit\n", l.Algorithm())
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, prompt)
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			continue
		case "quit", "exit":
			return nil
		}
		searchOne(ctx, l, out, line, display)
	}
}
