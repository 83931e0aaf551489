//go:build linux

package main

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cdoenges/misclib/client"
	"github.com/cdoenges/misclib/internal/logging"
)

var sendCmd = &cobra.Command{
	Use:   "send <host:port> <message>...",
	Short: "Send a message to a port and print the reply",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runSend,
}

var sendTimeout time.Duration

func init() {
	sendCmd.Flags().DurationVarP(&sendTimeout, "timeout", "t", 5*time.Second, "Time to wait for the reply")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	host, portStr, err := net.SplitHostPort(args[0])
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", args[0], err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return fmt.Errorf("invalid port %q: %w", portStr, err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), sendTimeout)
	defer cancel()
	c, err := client.Dial(ctx, host, uint16(port))
	if err != nil {
		return err
	}
	defer c.Close()
	if err := c.SetDeadline(time.Now().Add(sendTimeout)); err != nil {
		return err
	}

	msg := strings.Join(args[1:], " ")
	logging.Logger.Debug("Sending", "address", args[0], "length", len(msg))
	buf := make([]byte, 4096)
	n, err := c.SendAndReceive([]byte(msg), buf)
	if err != nil {
		return err
	}
	if n == 0 {
		logging.Logger.Info("Server closed the connection", "address", args[0])
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(buf[:n]))
	return nil
}
