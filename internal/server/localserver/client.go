package localserver

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
)

// Call sends one command to the control socket and returns the reply. A
// reply reporting failure is returned as an error.
func Call(ctx context.Context, socketPath, cmd string, args ...string) (string, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	line := strings.Join(append([]string{cmd}, args...), " ") + "\n"
	if _, err := io.WriteString(conn, line); err != nil {
		return "", err
	}

	reply, err := io.ReadAll(conn)
	if err != nil {
		return "", err
	}
	if msg, ok := strings.CutPrefix(string(reply), errorPrefix); ok {
		return "", errors.New(strings.TrimSpace(msg))
	}
	return string(reply), nil
}
