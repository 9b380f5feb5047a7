package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Eskedar21/VIMS-sub000/internal/remote"
)

var (
	authUsername  string
	authPassword  string
	authMachineID string
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Check credentials and kiosk registration against the central system",
		Long: `Talk to the central system's auth endpoints. With api.use_mocks (or
VITE_API_USE_MOCKS=true) the calls are answered locally.`,
		Example: `  vims auth login --username inspector1
  vims auth verify --machine-id KIOSK-07
  vims auth handshake
  vims auth logout`,
	}

	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Sign an inspector in",
		Long: `Sign an inspector in. The password is read from --password or the
VIMS_PASSWORD environment variable. The session is saved in the data
directory and its token is sent by later commands until it expires or
"vims auth logout" removes it.`,
		Args: cobra.NoArgs,
		RunE: authLoginRun,
	}
	loginCmd.Flags().StringVar(&authUsername, "username", "", "inspector username")
	loginCmd.Flags().StringVar(&authPassword, "password", "", "inspector password (default $VIMS_PASSWORD)")

	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that this kiosk is registered and trusted",
		Args:  cobra.NoArgs,
		RunE:  authVerifyRun,
	}

	logoutCmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove the saved inspector session",
		Args:  cobra.NoArgs,
		RunE:  authLogoutRun,
	}

	handshakeCmd := &cobra.Command{
		Use:   "handshake",
		Short: "Open a sync session for this kiosk",
		Args:  cobra.NoArgs,
		RunE:  authHandshakeRun,
	}

	cmd.PersistentFlags().StringVar(&authMachineID, "machine-id", "", "kiosk id (default: hostname)")
	cmd.AddCommand(loginCmd, logoutCmd, verifyCmd, handshakeCmd)
	return cmd
}

func authLoginRun(cmd *cobra.Command, args []string) error {
	rc, err := newRemoteClient()
	if err != nil {
		return err
	}

	password := authPassword
	if password == "" {
		password = os.Getenv("VIMS_PASSWORD")
	}

	ctx, cancel := interruptContext()
	defer cancel()

	s, err := rc.Login(ctx, remote.Credentials{Username: authUsername, Password: password})
	if err != nil {
		if errors.Is(err, remote.ErrInvalidCredentials) {
			return fmt.Errorf("login rejected: username and password are required")
		}
		return err
	}

	if err := remote.SaveSession(globalCfg.SessionPath(), s); err != nil {
		return err
	}

	fmt.Printf("Logged in as %s (%s)\n", s.User.Name, s.User.Role)
	if !s.ExpiresAt.IsZero() {
		fmt.Printf("  Session expires: %s\n", s.ExpiresAt.Local().Format("2006-01-02 15:04"))
	}
	fmt.Printf("  Session saved: %s\n", globalCfg.SessionPath())
	return nil
}

func authLogoutRun(cmd *cobra.Command, args []string) error {
	if err := remote.RemoveSession(globalCfg.SessionPath()); err != nil {
		return err
	}
	fmt.Println("Logged out")
	return nil
}

func authVerifyRun(cmd *cobra.Command, args []string) error {
	rc, err := newRemoteClient()
	if err != nil {
		return err
	}

	ctx, cancel := interruptContext()
	defer cancel()

	m := remote.LocalMachine(authMachineID, globalCfg.Inspection.CenterID)
	st, err := rc.VerifyMachine(ctx, m)
	if err != nil {
		return err
	}

	fmt.Printf("Machine:     %s\n", m.MachineID)
	fmt.Printf("Fingerprint: %s\n", m.Fingerprint)
	if st.Trusted {
		fmt.Println("Status:      trusted")
	} else {
		fmt.Println("Status:      not trusted")
	}
	if st.Message != "" {
		fmt.Printf("Message:     %s\n", st.Message)
	}
	if !st.Trusted {
		return fmt.Errorf("machine %s is not trusted", m.MachineID)
	}
	return nil
}

func authHandshakeRun(cmd *cobra.Command, args []string) error {
	rc, err := newRemoteClient()
	if err != nil {
		return err
	}

	ctx, cancel := interruptContext()
	defer cancel()

	m := remote.LocalMachine(authMachineID, globalCfg.Inspection.CenterID)
	h, err := rc.Handshake(ctx, m)
	if err != nil {
		return err
	}

	fmt.Printf("Session:     %s\n", h.SessionID)
	if !h.ServerTime.IsZero() {
		skew := time.Since(h.ServerTime).Round(time.Second)
		fmt.Printf("Server time: %s (skew %s)\n", h.ServerTime.Format(time.RFC3339), skew)
	}
	if h.SyncInterval > 0 {
		fmt.Printf("Sync every:  %s\n", time.Duration(h.SyncInterval)*time.Second)
	}
	return nil
}
