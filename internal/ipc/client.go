package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/1broseidon/winrules/internal/engine"
	"github.com/1broseidon/winrules/internal/runtimepath"
)

// Client handles IPC communication with the daemon
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a new IPC client
func NewClient() *Client {
	socketPath, err := runtimepath.SocketPath()
	if err != nil {
		// Keep constructor non-failing; sendRequest surfaces connection errors.
		socketPath = ""
	}

	return &Client{
		socketPath: socketPath,
		timeout:    5 * time.Second,
	}
}

// sendRequest sends a request and waits for a response
func (c *Client) sendRequest(req *Request) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w (is the daemon running?)", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(c.timeout))

	reqData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	reqData = append(reqData, '\n')
	if _, err := conn.Write(reqData); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	reader := bufio.NewReader(conn)
	respData, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(respData, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if resp.Status == "ERROR" {
		return nil, fmt.Errorf("daemon error: %s", resp.Error)
	}

	return &resp, nil
}

// call sends cmd with an optional payload and decodes the response data
// into out when out is non-nil.
func (c *Client) call(cmd CommandType, payload any, out any) error {
	req := &Request{Command: cmd}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal %s payload: %w", cmd, err)
		}
		req.Payload = data
	}

	resp, err := c.sendRequest(req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("failed to parse %s data: %w", cmd, err)
	}
	return nil
}

// Reload asks the daemon to reload its rules from disk.
func (c *Client) Reload() (*ReloadData, error) {
	var data ReloadData
	if err := c.call(CommandReload, nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetStatus retrieves daemon status
func (c *Client) GetStatus() (*StatusData, error) {
	var status StatusData
	if err := c.call(CommandGetStatus, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// GetStats retrieves the engine statistics snapshot.
func (c *Client) GetStats() (*engine.Statistics, error) {
	var stats engine.Statistics
	if err := c.call(CommandGetStats, nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// ClearStats zeroes the engine counters.
func (c *Client) ClearStats() error {
	return c.call(CommandClearStats, nil, nil)
}

// ListRules returns the active rules in evaluation order.
func (c *Client) ListRules() ([]RuleInfo, error) {
	var data RulesData
	if err := c.call(CommandListRules, nil, &data); err != nil {
		return nil, err
	}
	return data.Rules, nil
}

// ListWindows returns the engine's tracked windows.
func (c *Client) ListWindows() ([]engine.Window, error) {
	var data WindowsData
	if err := c.call(CommandListWindows, nil, &data); err != nil {
		return nil, err
	}
	return data.Windows, nil
}

// SetRuleEnabled enables or disables a rule by name.
func (c *Client) SetRuleEnabled(name string, enabled bool) error {
	return c.call(CommandSetRuleEnabled, SetRuleEnabledPayload{Name: name, Enabled: enabled}, nil)
}

// Ping checks if the daemon is responding
func (c *Client) Ping() error {
	_, err := c.GetStatus()
	return err
}
