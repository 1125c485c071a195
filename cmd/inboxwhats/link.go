package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"inboxwhats/internal/account"
)

var (
	linkState        string
	linkCode         string
	linkRefreshToken string
	linkEmail        string
)

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Operator tools for attaching a Gmail account to a chat user",
}

var linkURLCmd = &cobra.Command{
	Use:   "url",
	Short: "Print the Google consent URL for a link state token",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, "inboxwhats-link", needs{})
		if err != nil {
			return err
		}
		defer a.Close()

		u, err := a.linker().ConsentURL(linkState)
		if err != nil {
			return err
		}
		fmt.Println(u)
		return nil
	},
}

var linkAttachCmd = &cobra.Command{
	Use:   "attach",
	Short: "Verify a link state token and store the user's Gmail credentials",
	Long: `Verifies the state token sent to the user in chat and stores credentials
for that user. Pass --code to exchange an authorization code returned by the
consent page, or --refresh-token to store a token obtained elsewhere.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, "inboxwhats-link", needs{})
		if err != nil {
			return err
		}
		defer a.Close()

		acc, err := a.linker().Attach(ctx, linkState, account.Credentials{
			Code:         linkCode,
			RefreshToken: linkRefreshToken,
			EmailAddress: linkEmail,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Linked account %d to user %d. The user can now reply \"done\" in chat.\n", acc.ID, acc.UserID)
		return nil
	},
}

func (a *app) linker() *account.Linker {
	return account.NewLinker(a.gmailClient(), a.repos.users, a.repos.accounts, a.cfg.Security.LinkSecret, a.logger)
}

func init() {
	for _, c := range []*cobra.Command{linkURLCmd, linkAttachCmd} {
		c.Flags().StringVar(&linkState, "state", "", "link state token from the chat message")
		_ = c.MarkFlagRequired("state")
	}
	linkAttachCmd.Flags().StringVar(&linkCode, "code", "", "authorization code from the consent redirect")
	linkAttachCmd.Flags().StringVar(&linkRefreshToken, "refresh-token", "", "refresh token to store as-is")
	linkAttachCmd.Flags().StringVar(&linkEmail, "email", "", "mailbox address, for display")
	linkAttachCmd.MarkFlagsOneRequired("code", "refresh-token")
	linkAttachCmd.MarkFlagsMutuallyExclusive("code", "refresh-token")

	linkCmd.AddCommand(linkURLCmd, linkAttachCmd)
	rootCmd.AddCommand(linkCmd)
}
