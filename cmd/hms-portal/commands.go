package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hms/hms/internal/client"
	"github.com/hms/hms/internal/guard"
	"github.com/hms/hms/internal/session"
)

// app is what every subcommand works with: the API client and the session
// persisted in the session file.
type app struct {
	out     io.Writer
	logger  zerolog.Logger
	api     *client.Client
	session *session.Manager
	routes  guard.Routes
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".hms-session.json"
	}
	return filepath.Join(dir, "hms", "session.json")
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("HMS")
	v.AutomaticEnv()

	a := &app{out: out, routes: guard.DefaultRoutes()}

	root := &cobra.Command{
		Use:           "hms-portal",
		Short:         "Sign in to the hospital portal and check page access",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := zerolog.WarnLevel
			if v.GetBool("verbose") {
				level = zerolog.DebugLevel
			}
			a.logger = zerolog.New(zerolog.ConsoleWriter{Out: errOut}).Level(level).With().Timestamp().Logger()

			a.api = client.New(v.GetString("api_url"), v.GetDuration("timeout"), a.logger)
			a.session = session.NewManager(session.NewFileStorage(v.GetString("session_file")), a.logger)
			a.session.Restore()
			return nil
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.String("api", "http://localhost:8000", "API base URL")
	flags.String("session-file", defaultSessionFile(), "where the session is stored")
	flags.Duration("timeout", 10*time.Second, "request timeout")
	flags.BoolP("verbose", "v", false, "debug logging")
	v.BindPFlag("api_url", flags.Lookup("api"))                //nolint:errcheck
	v.BindPFlag("session_file", flags.Lookup("session-file")) //nolint:errcheck
	v.BindPFlag("timeout", flags.Lookup("timeout"))           //nolint:errcheck
	v.BindPFlag("verbose", flags.Lookup("verbose"))           //nolint:errcheck

	root.AddCommand(
		a.registerCmd(),
		a.loginCmd(),
		a.logoutCmd(),
		a.whoamiCmd(),
		a.openCmd(),
	)
	return root
}

func (a *app) registerCmd() *cobra.Command {
	var in client.RegisterInput
	var profile client.ProfileInput

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a patient account",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Password = passwordFrom(cmd)
			if profile != (client.ProfileInput{}) {
				in.PatientProfile = &profile
			}
			u, err := a.api.Register(cmd.Context(), in)
			if err != nil {
				return describe(err)
			}
			fmt.Fprintf(a.out, "Registered %s <%s>. Log in with: hms-portal login --email %s\n", u.Name, u.Email, u.Email)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.Email, "email", "", "account email")
	f.StringVar(&in.Name, "name", "", "full name")
	f.StringVar(&in.Phone, "phone", "", "phone number")
	f.String("password", "", "password (falls back to HMS_PASSWORD)")
	f.StringVar(&profile.DateOfBirth, "dob", "", "date of birth, YYYY-MM-DD")
	f.StringVar(&profile.Gender, "gender", "", "gender")
	f.StringVar(&profile.Address, "address", "", "home address")
	f.StringVar(&profile.EmergencyContact, "emergency-contact", "", "emergency contact")
	f.StringVar(&profile.BloodType, "blood-type", "", "blood type, e.g. O+")
	return cmd
}

func (a *app) loginCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.api.Login(cmd.Context(), email, passwordFrom(cmd))
			if err != nil {
				return describe(err)
			}
			st, err := a.session.Login(res.Token, res.Role, res.User)
			if err != nil {
				return fmt.Errorf("could not save session: %w", err)
			}
			fmt.Fprintf(a.out, "Logged in as %s (%s). Landing page: %s\n",
				res.User.Name, st.Role(), guard.Landing(st.Role()))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().String("password", "", "password (falls back to HMS_PASSWORD)")
	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.session.Logout(); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Logged out.")
			return nil
		},
	}
}

func (a *app) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the stored session and check it against the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, ok := a.session.State().Credentials()
			if !ok {
				fmt.Fprintln(a.out, "Not logged in.")
				return nil
			}
			u, err := a.api.Me(cmd.Context(), creds.Token)
			if errors.Is(err, client.ErrUnauthorized) {
				// The server no longer accepts the token.
				if err := a.session.Logout(); err != nil {
					return err
				}
				fmt.Fprintln(a.out, "Session expired. Please log in again.")
				return nil
			}
			if err != nil {
				return describe(err)
			}
			fmt.Fprintf(a.out, "%s <%s>\nrole: %s\nid:   %s\n", u.Name, u.Email, u.Role, u.ID)
			return nil
		},
	}
}

func (a *app) openCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <path>",
		Short: "Check whether the current session may open a portal page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := a.routes.Navigate(a.session.State(), args[0])
			switch d.Kind {
			case guard.Allow:
				fmt.Fprintf(a.out, "allow %s\n", args[0])
			default:
				fmt.Fprintf(a.out, "%s -> %s\n", d.Kind, d.Target())
			}
			return nil
		},
	}
}

func passwordFrom(cmd *cobra.Command) string {
	if p, _ := cmd.Flags().GetString("password"); p != "" {
		return p
	}
	return os.Getenv("HMS_PASSWORD")
}

// describe hides server failure details; other API errors already carry the
// message the server chose for users.
func describe(err error) error {
	if errors.Is(err, client.ErrServer) {
		return client.ErrServer
	}
	return err
}
