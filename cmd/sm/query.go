package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"time"

	messenger "github.com/ledblwka/secure-messenger"
	"github.com/ledblwka/secure-messenger/envelope"
	"github.com/spf13/cobra"
)

func (a *app) usersCmd() *cobra.Command {
	var asJSON, onlineOnly bool
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List registered users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, err := a.client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), messenger.DefaultTimeout)
			defer cancel()

			users, err := c.Users(ctx)
			if err != nil {
				return err
			}
			if onlineOnly {
				users = slices.DeleteFunc(users, func(u messenger.UserInfo) bool { return !u.IsOnline })
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), users)
			}
			for _, u := range users {
				status := "offline"
				if u.IsOnline {
					status = "online"
				}
				key := ""
				if u.PublicKey != "" {
					key = "  key"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %s%s\n", u.Username, status, key)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print raw JSON")
	cmd.Flags().BoolVar(&onlineOnly, "online", false, "Only list online users")
	return cmd
}

func (a *app) historyCmd() *cobra.Command {
	var asJSON bool
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print stored messages, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := a.resolve()
			if err != nil {
				return err
			}
			codec, err := cfg.Chat.Envelope.NewCodec()
			if err != nil {
				return err
			}
			c, _, err := a.client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), messenger.DefaultTimeout)
			defer cancel()

			records, err := c.History(ctx)
			if err != nil {
				return err
			}
			slices.SortStableFunc(records, func(x, y messenger.HistoryRecord) int {
				return x.Timestamp.Compare(y.Timestamp)
			})
			if limit > 0 && len(records) > limit {
				records = records[len(records)-limit:]
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), records)
			}
			for _, r := range records {
				a.printRecord(cmd.OutOrStdout(), codec, r)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print raw records without decoding")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Only print the newest N messages")
	return cmd
}

func (a *app) printRecord(w io.Writer, codec envelope.Codec, r messenger.HistoryRecord) {
	text, _, err := envelope.Open(codec, envelope.Envelope{
		Content:            r.Content,
		InitializationData: envelope.MetaFromWire(r.IV),
		AuthTag:            envelope.MetaFromWire(r.AuthTag),
	})
	if err != nil {
		a.logger.Debug("history envelope not decoded", "id", r.ID, "err", err)
	}
	fmt.Fprintln(w, formatLine(r.Timestamp, r.Sender, r.Recipient, text))
}

func formatLine(at time.Time, sender, recipient, text string) string {
	stamp := "----------- --:--"
	if !at.IsZero() {
		stamp = at.Local().Format("2006-01-02 15:04")
	}
	if recipient == "" || recipient == messenger.Broadcast {
		return fmt.Sprintf("[%s] %s: %s", stamp, sender, text)
	}
	return fmt.Sprintf("[%s] %s -> %s: %s", stamp, sender, recipient, text)
}
