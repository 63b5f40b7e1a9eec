package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dtroode/contestauth/internal/config"
	"github.com/dtroode/contestauth/internal/model"
)

// cli carries flag values and I/O shared by all commands.
type cli struct {
	in  io.Reader
	out io.Writer

	logLevel int
	dbDriver string
	dbDSN    string
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	c := &cli{in: in, out: out}

	root := &cobra.Command{
		Use:   "contestauth",
		Short: "Account login and session management for the contest rating tracker",
		Long: `contestauth signs users in against the remote identity provider and keeps
a local account store usable when the provider is unreachable. A remembered
session lets the next run resume without credentials.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(in)
	root.SetOut(out)

	root.PersistentFlags().IntVar(&c.logLevel, "log-level", 0, "slog level (-4 debug, 0 info, 4 warn, 8 error)")
	root.PersistentFlags().StringVar(&c.dbDriver, "db-driver", "", "local database driver (sqlite or postgres)")
	root.PersistentFlags().StringVar(&c.dbDSN, "db-dsn", "", "local database DSN")

	root.AddCommand(
		c.newLoginCmd(),
		c.newRegisterCmd(),
		c.newWhoamiCmd(),
		c.newLogoutCmd(),
		c.newResetCmd(),
		newVersionCmd(out),
	)

	return root
}

// open loads configuration, applies flag overrides and wires the services.
func (c *cli) open(cmd *cobra.Command) (*app, error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = c.logLevel
	}
	if flags.Changed("db-driver") {
		cfg.Database.Driver = c.dbDriver
	}
	if flags.Changed("db-dsn") {
		cfg.Database.DSN = c.dbDSN
	}

	return newApp(cmd.Context(), cfg)
}

func (c *cli) report(out model.Outcome) error {
	if !out.Success {
		return errors.New(out.Message)
	}
	fmt.Fprintln(c.out, out.Message)
	return nil
}

func (c *cli) newLoginCmd() *cobra.Command {
	var remember bool

	cmd := &cobra.Command{
		Use:   "login [username-or-email]",
		Short: "Sign in with a username or email",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrompter(c.in, c.out)

			identifier, err := argOrPrompt(p, args, "Username or email")
			if err != nil {
				return err
			}
			password, err := p.password("Password")
			if err != nil {
				return err
			}

			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := run(cmd.Context(), a, func(ctx context.Context) model.Outcome {
				return a.coordinator.Login(ctx, identifier, password, remember)
			})
			if err != nil {
				return err
			}
			return c.report(out)
		},
	}

	cmd.Flags().BoolVar(&remember, "remember", true, "keep the session for the next run")
	return cmd
}

func (c *cli) newRegisterCmd() *cobra.Command {
	var (
		remember bool
		fullName string
	)

	cmd := &cobra.Command{
		Use:   "register [email]",
		Short: "Create an account; the username is the part of the email before @",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrompter(c.in, c.out)

			email, err := argOrPrompt(p, args, "Email")
			if err != nil {
				return err
			}
			password, err := p.newPassword("Password")
			if err != nil {
				return err
			}

			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := run(cmd.Context(), a, func(ctx context.Context) model.Outcome {
				return a.coordinator.Register(ctx, email, password, fullName, remember)
			})
			if err != nil {
				return err
			}
			if err := c.report(out); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Your username is %s.\n", out.Account.Username)
			return nil
		},
	}

	cmd.Flags().BoolVar(&remember, "remember", true, "keep the session for the next run")
	cmd.Flags().StringVar(&fullName, "name", "", "full name shown in the rating tables (defaults to the username)")
	return cmd
}

func (c *cli) newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Resume the remembered session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := run(cmd.Context(), a, a.coordinator.AutoLogin)
			if err != nil {
				return err
			}
			if err := c.report(out); err != nil {
				return err
			}

			acc := out.Account
			fmt.Fprintf(c.out, "Username: %s\nEmail: %s\nRating: %d\nContests: %d\n",
				acc.Username, acc.Email, acc.CurrentRating, acc.ContestsParticipated)
			return nil
		},
	}
}

func (c *cli) newLogoutCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "logout [username]",
		Short: "Forget a remembered session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return errors.New("specify a username or --all")
			}

			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := run(cmd.Context(), a, func(ctx context.Context) model.Outcome {
				if all {
					return a.coordinator.LogoutAll(ctx)
				}
				return a.coordinator.Logout(ctx, args[0])
			})
			if err != nil {
				return err
			}
			return c.report(out)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "forget every stored session")
	return cmd
}

func (c *cli) newResetCmd() *cobra.Command {
	var oldPassword bool

	cmd := &cobra.Command{
		Use:   "reset [email]",
		Short: "Reset a password with a one-time code",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrompter(c.in, c.out)

			email, err := argOrPrompt(p, args, "Email")
			if err != nil {
				return err
			}

			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			reset := a.coordinator.BeginPasswordReset(email)

			type issued struct {
				code string
				out  model.Outcome
			}
			res, err := run(ctx, a, func(ctx context.Context) issued {
				code, out := reset.Issue(ctx)
				return issued{code: code, out: out}
			})
			if err != nil {
				return err
			}
			if err := c.report(res.out); err != nil {
				return err
			}
			// there is no delivery channel; the requester sees the code directly
			fmt.Fprintf(c.out, "Your reset code is: %s\n", res.code)

			for {
				code, err := p.text("Enter the code (empty to cancel)")
				if err != nil {
					return err
				}
				if code == "" {
					return errors.New("password reset cancelled")
				}

				out, err := run(ctx, a, func(ctx context.Context) model.Outcome {
					return reset.Verify(ctx, code)
				})
				if err != nil {
					return err
				}
				if out.Success {
					fmt.Fprintln(c.out, out.Message)
					break
				}
				if out.Kind != model.KindOTPRejected {
					return errors.New(out.Message)
				}
				fmt.Fprintln(c.out, out.Message)
			}

			newPassword, err := p.newPassword("New password")
			if err != nil {
				return err
			}
			var old string
			if oldPassword {
				if old, err = p.password("Old password"); err != nil {
					return err
				}
			}

			out, err := run(ctx, a, func(ctx context.Context) model.ResetOutcome {
				return reset.Complete(ctx, newPassword, old)
			})
			if err != nil {
				return err
			}
			if err := c.report(out.Outcome); err != nil {
				return err
			}
			if !out.RemoteSynced && a.identity.Enabled() {
				fmt.Fprintln(c.out, "The remote account was not updated. Use your new password to sign in locally.")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&oldPassword, "old-password", false, "also ask for the old password to sign in to the remote provider")
	return cmd
}

func newVersionCmd(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(out, "Build version: %s\nBuild date: %s\nBuild commit: %s\n", buildVersion, buildDate, buildCommit)
		},
	}
}

func argOrPrompt(p *prompter, args []string, prompt string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	return p.text(prompt)
}
