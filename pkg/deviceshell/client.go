// Package deviceshell is a thin client for the device command shell
// (spec §6): the out-of-scope external process that actually talks to
// an Android device or emulator over ADB. The shell itself is an
// external collaborator; this package only implements the client
// side of its length-delimited JSON-lines wire protocol, the shape
// original_source's IpcClient held on both the control plane and the
// UI.
package deviceshell

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// batchSeparator is the fixed ASCII sentinel embedded between command
// outputs in a batch response (spec §6).
const batchSeparator = "\x1e---ZERECA-BATCH-SEP---\x1e"

// Request mirrors the device shell's request envelope. Type is one of
// "GetDevices", "GetEmulatorState", "Execute", "ExecuteBatch",
// "IsFreeFireRunning", "Ping".
type Request struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	DeviceID string   `json:"deviceId,omitempty"`
	Command  string   `json:"command,omitempty"`
	Commands []string `json:"commands,omitempty"`
}

// Response mirrors the device shell's reply envelope.
type Response struct {
	ID          string   `json:"id"`
	Success     bool     `json:"success"`
	Error       string   `json:"error,omitempty"`
	Results     []string `json:"results,omitempty"`
	TotalTimeMs float64  `json:"totalTimeMs,omitempty"`
	Raw         json.RawMessage `json:"-"`
}

// ErrRequestFailed wraps a Response whose Success field is false.
type ErrRequestFailed struct {
	Response Response
}

func (e *ErrRequestFailed) Error() string {
	return fmt.Sprintf("deviceshell: request %s failed: %s", e.Response.ID, e.Response.Error)
}

// Client is a connection to the device shell's local socket, sending
// one length-delimited JSON line per request and reading one back.
type Client struct {
	conn    net.Conn
	reader  *bufio.Reader
	timeout time.Duration

	mu sync.Mutex
}

// Dial connects to the device shell over a local TCP or unix-socket
// address (net.Dial's network/address pair, e.g. "tcp", "127.0.0.1:7913").
func Dial(network, address string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout(network, address, timeout)
	if err != nil {
		return nil, fmt.Errorf("deviceshell: dial %s %s: %w", network, address, err)
	}
	return &Client{conn: conn, reader: bufio.NewReader(conn), timeout: timeout}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) call(req Request) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	data, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("deviceshell: marshal request: %w", err)
	}
	data = append(data, '\n')

	if c.timeout > 0 {
		c.conn.SetDeadline(time.Now().Add(c.timeout))
	}
	if _, err := c.conn.Write(data); err != nil {
		return Response{}, fmt.Errorf("deviceshell: write request: %w", err)
	}

	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return Response{}, fmt.Errorf("deviceshell: read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return Response{}, fmt.Errorf("deviceshell: parse response: %w", err)
	}
	resp.Raw = line
	if resp.ID != req.ID {
		return Response{}, fmt.Errorf("deviceshell: response id %q does not match request id %q", resp.ID, req.ID)
	}
	if !resp.Success {
		return resp, &ErrRequestFailed{Response: resp}
	}
	return resp, nil
}

// Ping checks liveness of the device shell process.
func (c *Client) Ping() error {
	_, err := c.call(Request{Type: "Ping"})
	return err
}

// GetDevices lists connected devices/emulators.
func (c *Client) GetDevices() (Response, error) {
	return c.call(Request{Type: "GetDevices"})
}

// IsFreeFireRunning reports whether the target game process is
// running on deviceID.
func (c *Client) IsFreeFireRunning(deviceID string) (bool, error) {
	resp, err := c.call(Request{Type: "IsFreeFireRunning", DeviceID: deviceID})
	if err != nil {
		return false, err
	}
	return len(resp.Results) > 0 && resp.Results[0] == "true", nil
}

// Execute runs a single shell command on deviceID.
func (c *Client) Execute(deviceID, command string) (string, error) {
	resp, err := c.call(Request{Type: "Execute", DeviceID: deviceID, Command: command})
	if err != nil {
		return "", err
	}
	if len(resp.Results) > 0 {
		return resp.Results[0], nil
	}
	return "", nil
}

// ExecuteBatch runs commands in sequence, returning one result per
// command and the device shell's measured total time.
func (c *Client) ExecuteBatch(deviceID string, commands []string) ([]string, time.Duration, error) {
	resp, err := c.call(Request{Type: "ExecuteBatch", DeviceID: deviceID, Commands: commands})
	if err != nil {
		return nil, 0, err
	}
	return resp.Results, time.Duration(resp.TotalTimeMs * float64(time.Millisecond)), nil
}

// SplitBatchOutput splits a single batch output blob on the fixed
// sentinel separator, for callers who received a raw combined string
// instead of the parsed Results array.
func SplitBatchOutput(combined string) []string {
	var parts []string
	start := 0
	for {
		idx := indexOf(combined[start:], batchSeparator)
		if idx < 0 {
			parts = append(parts, combined[start:])
			return parts
		}
		parts = append(parts, combined[start:start+idx])
		start += idx + len(batchSeparator)
	}
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
