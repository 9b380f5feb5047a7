package remote

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidCredentials is returned by a mocked login with empty credentials.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Credentials are an inspector's sign-in details.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// User is the signed-in inspector.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	CenterID string `json:"centerId,omitempty"`
}

// Session is the result of a successful login.
type Session struct {
	Token     string    `json:"token"`
	User      User      `json:"user"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Machine identifies this kiosk to the central system.
type Machine struct {
	MachineID   string `json:"machineId"`
	CenterID    string `json:"centerId"`
	Hostname    string `json:"hostname,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// MachineStatus is the central system's view of a kiosk.
type MachineStatus struct {
	Trusted  bool   `json:"trusted"`
	CenterID string `json:"centerId,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Handshake is the session a trusted kiosk opens before syncing.
type Handshake struct {
	SessionID    string    `json:"sessionId"`
	ServerTime   time.Time `json:"serverTime"`
	SyncInterval int       `json:"syncIntervalSeconds,omitempty"`
}

// LocalMachine describes this host for VerifyMachine and Handshake.
func LocalMachine(machineID, centerID string) Machine {
	host, _ := os.Hostname()
	if machineID == "" {
		machineID = host
	}
	return Machine{
		MachineID:   machineID,
		CenterID:    centerID,
		Hostname:    host,
		Fingerprint: uuid.NewSHA1(uuid.NameSpaceOID, []byte(host+"/"+machineID)).String(),
	}
}

// Login signs an inspector in and keeps the returned token for later calls.
func (c *Client) Login(ctx context.Context, creds Credentials) (*Session, error) {
	var s Session
	if c.useMocks {
		if strings.TrimSpace(creds.Username) == "" || creds.Password == "" {
			return nil, ErrInvalidCredentials
		}
		s = Session{
			Token:     "mock-" + uuid.NewString(),
			User:      User{ID: "mock-" + creds.Username, Name: creds.Username, Role: "inspector"},
			ExpiresAt: time.Now().Add(8 * time.Hour),
		}
	} else if err := c.postJSON(ctx, "/auth/login", creds, &s); err != nil {
		return nil, fmt.Errorf("failed to log in: %w", err)
	}

	c.SetToken(s.Token)
	c.logger.Info("inspector logged in", "user", s.User.Name, "mock", c.useMocks)
	return &s, nil
}

// VerifyMachine asks whether this kiosk is registered and trusted.
func (c *Client) VerifyMachine(ctx context.Context, m Machine) (*MachineStatus, error) {
	if c.useMocks {
		return &MachineStatus{Trusted: true, CenterID: m.CenterID, Message: "mock verification"}, nil
	}

	var st MachineStatus
	if err := c.postJSON(ctx, "/auth/machine/verify", m, &st); err != nil {
		return nil, fmt.Errorf("failed to verify machine: %w", err)
	}
	return &st, nil
}

// Handshake opens a sync session for a trusted kiosk.
func (c *Client) Handshake(ctx context.Context, m Machine) (*Handshake, error) {
	if c.useMocks {
		return &Handshake{SessionID: "mock-" + uuid.NewString(), ServerTime: time.Now().UTC()}, nil
	}

	var h Handshake
	if err := c.postJSON(ctx, "/auth/machine/handshake", m, &h); err != nil {
		return nil, fmt.Errorf("failed machine handshake: %w", err)
	}
	return &h, nil
}
