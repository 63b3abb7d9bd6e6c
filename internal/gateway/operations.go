package gateway

import (
	"context"
	"encoding/json"
)

// dialogResult is the wire shape of both file dialog responses.
type dialogResult struct {
	Path      string `json:"path"`
	Cancelled bool   `json:"cancelled"`
}

// CheckUpdate implements UpdateOps. A null result payload means no update
// is available.
func (c *Client) CheckUpdate(ctx context.Context) (*UpdateInfo, error) {
	var info *UpdateInfo
	if err := c.call(ctx, OpCheckUpdate, nil, &info); err != nil {
		return nil, err
	}
	return info, nil
}

// DownloadUpdate implements UpdateOps. Events are decoded and handed to
// onEvent in arrival order; a chunk that fails to decode is dropped.
func (c *Client) DownloadUpdate(ctx context.Context, onEvent func(DownloadEvent)) error {
	return c.stream(ctx, OpDownloadUpdate, nil, func(chunk json.RawMessage) {
		var ev DownloadEvent
		if err := json.Unmarshal(chunk, &ev); err != nil {
			log.Warn("malformed download event", "error", err)
			return
		}
		onEvent(ev)
	})
}

func (c *Client) InstallUpdate(ctx context.Context) error {
	return c.call(ctx, OpInstallUpdate, nil, nil)
}

func (c *Client) RelaunchProcess(ctx context.Context) error {
	return c.call(ctx, OpRelaunchProcess, nil, nil)
}

func (c *Client) ChangeMonitoringEnabled(ctx context.Context) (bool, error) {
	var enabled bool
	if err := c.call(ctx, OpGetChangeMonitoringEnabled, nil, &enabled); err != nil {
		return false, err
	}
	return enabled, nil
}

func (c *Client) SetChangeMonitoringEnabled(ctx context.Context, enabled bool) error {
	return c.call(ctx, OpSetChangeMonitoringEnabled, map[string]bool{"enabled": enabled}, nil)
}

func (c *Client) StartChangeMonitoring(ctx context.Context) error {
	return c.call(ctx, OpStartChangeMonitoring, nil, nil)
}

func (c *Client) StopChangeMonitoring(ctx context.Context) error {
	return c.call(ctx, OpStopChangeMonitoring, nil, nil)
}

// SubscribeDataChanged implements MonitorOps. It registers interest with
// the backend and wires pushed payloads to fn. The returned UnsubscribeFunc
// releases both the native registration and the local listener.
func (c *Client) SubscribeDataChanged(ctx context.Context, fn func(DataChange)) (UnsubscribeFunc, error) {
	var resp struct {
		SubscriptionID string `json:"subscriptionId"`
	}
	if err := c.call(ctx, OpListen, map[string]string{"event": EventDataChanged}, &resp); err != nil {
		return nil, err
	}

	unsubLocal := c.emitter.Subscribe(EventDataChanged, func(payload any) {
		raw, ok := payload.(json.RawMessage)
		if !ok {
			return
		}
		var change DataChange
		if err := json.Unmarshal(raw, &change); err != nil {
			log.Warn("malformed data-changed payload", "error", err)
			return
		}
		fn(change)
	})

	subID := resp.SubscriptionID
	return func() error {
		unsubLocal()
		return c.call(context.Background(), OpUnlisten, map[string]string{"subscriptionId": subID}, nil)
	}, nil
}

func (c *Client) Encrypt(ctx context.Context, plaintext, password string) (string, error) {
	var out string
	in := map[string]string{"data": plaintext, "password": password}
	if err := c.call(ctx, OpEncrypt, in, &out); err != nil {
		return "", err
	}
	return out, nil
}

func (c *Client) Decrypt(ctx context.Context, ciphertext, password string) (string, error) {
	var out string
	in := map[string]string{"data": ciphertext, "password": password}
	if err := c.call(ctx, OpDecrypt, in, &out); err != nil {
		return "", err
	}
	return out, nil
}

func (c *Client) CollectBackupRecords(ctx context.Context) ([]BackupRecord, error) {
	var records []BackupRecord
	if err := c.call(ctx, OpCollectBackupRecords, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) RestoreBackupRecords(ctx context.Context, records []BackupRecord) (*RestoreOutcome, error) {
	var outcome RestoreOutcome
	in := map[string]any{"records": records}
	if err := c.call(ctx, OpRestoreBackupRecords, in, &outcome); err != nil {
		return nil, err
	}
	return &outcome, nil
}

func (c *Client) OpenFileDialog(ctx context.Context, opts OpenFileOptions) (string, bool, error) {
	var res dialogResult
	if err := c.call(ctx, OpOpenFileDialog, opts, &res); err != nil {
		return "", false, err
	}
	return res.Path, !res.Cancelled, nil
}

func (c *Client) SaveFileDialog(ctx context.Context, opts SaveFileOptions) (string, bool, error) {
	var res dialogResult
	if err := c.call(ctx, OpSaveFileDialog, opts, &res); err != nil {
		return "", false, err
	}
	return res.Path, !res.Cancelled, nil
}

func (c *Client) ReadFileBytes(ctx context.Context, path string) ([]byte, error) {
	var resp struct {
		Data []byte `json:"data"`
	}
	if err := c.call(ctx, OpReadFileBytes, map[string]string{"path": path}, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) WriteTextFile(ctx context.Context, path, content string) error {
	in := map[string]string{"path": path, "contents": content}
	return c.call(ctx, OpWriteTextFile, in, nil)
}

func (c *Client) TrayEnabled(ctx context.Context) (bool, error) {
	return c.getBool(ctx, OpGetTrayEnabled)
}

func (c *Client) SetTrayEnabled(ctx context.Context, enabled bool) error {
	return c.call(ctx, OpSetTrayEnabled, map[string]bool{"enabled": enabled}, nil)
}

func (c *Client) SilentStartEnabled(ctx context.Context) (bool, error) {
	return c.getBool(ctx, OpGetSilentStart)
}

func (c *Client) SetSilentStartEnabled(ctx context.Context, enabled bool) error {
	return c.call(ctx, OpSetSilentStart, map[string]bool{"enabled": enabled}, nil)
}

func (c *Client) getBool(ctx context.Context, op string) (bool, error) {
	var value bool
	if err := c.call(ctx, op, nil, &value); err != nil {
		return false, err
	}
	return value, nil
}
