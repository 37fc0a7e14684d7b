package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func call[Resp any](c *Client, method string, req any) (*Resp, error) {
	var resp Resp
	if err := c.client.Call(serviceName+"."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Start requests the daemon to start the download session.
func (c *Client) Start() (*StartResponse, error) {
	return call[StartResponse](c, "Start", StartRequest{})
}

// Stop requests the daemon to stop the download session.
func (c *Client) Stop() (*StopResponse, error) {
	return call[StopResponse](c, "Stop", StopRequest{})
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusResponse](c, "Status", StatusRequest{})
}

// Append adds transfers and returns their IDs.
func (c *Client) Append(req AppendRequest) (*AppendResponse, error) {
	return call[AppendResponse](c, "Append", req)
}

// CheckURLs expands URLs through the plugins without adding them.
func (c *Client) CheckURLs(urls []string) (*CheckResponse, error) {
	return call[CheckResponse](c, "CheckURLs", CheckRequest{URLs: urls})
}

// List pages through packages.
func (c *Client) List(req ListRequest) (*ListResponse, error) {
	return call[ListResponse](c, "List", req)
}

// Describe fetches one package or transfer.
func (c *Client) Describe(id string, children bool) (*DescribeResponse, error) {
	return call[DescribeResponse](c, "Describe", DescribeRequest{ID: id, Children: children})
}

// Search finds nodes whose property matches value.
func (c *Client) Search(req SearchRequest) (*ListResponse, error) {
	return call[ListResponse](c, "Search", req)
}

// QueueAll queues every paused or failed transfer.
func (c *Client) QueueAll() (*OKResponse, error) {
	return call[OKResponse](c, "QueueAll", EmptyRequest{})
}

// PauseAll pauses every transfer.
func (c *Client) PauseAll() (*OKResponse, error) {
	return call[OKResponse](c, "PauseAll", EmptyRequest{})
}

// Queue queues the given nodes.
func (c *Client) Queue(ids []string) (*BatchResponse, error) {
	return call[BatchResponse](c, "Queue", BatchRequest{IDs: ids})
}

// Pause pauses the given nodes.
func (c *Client) Pause(ids []string) (*BatchResponse, error) {
	return call[BatchResponse](c, "Pause", BatchRequest{IDs: ids})
}

// Reload restarts the given nodes from scratch.
func (c *Client) Reload(ids []string) (*BatchResponse, error) {
	return call[BatchResponse](c, "Reload", BatchRequest{IDs: ids})
}

// Cancel removes the given nodes, optionally deleting their files.
func (c *Client) Cancel(ids []string, deleteFiles bool) (*BatchResponse, error) {
	return call[BatchResponse](c, "Cancel", BatchRequest{IDs: ids, DeleteFiles: deleteFiles})
}

// Move moves a node to index within parent.
func (c *Client) Move(req MoveRequest) (*OKResponse, error) {
	return call[OKResponse](c, "Move", req)
}

// SetProperties assigns writable properties on one node.
func (c *Client) SetProperties(id string, values map[string]any) (*OKResponse, error) {
	return call[OKResponse](c, "SetProperties", SetPropertiesRequest{ID: id, Values: values})
}

// Interactions lists transfers waiting for a captcha or settings response.
func (c *Client) Interactions() (*InteractionsResponse, error) {
	return call[InteractionsResponse](c, "Interactions", EmptyRequest{})
}

// SubmitCaptcha answers a pending captcha.
func (c *Client) SubmitCaptcha(id, response string) (*OKResponse, error) {
	return call[OKResponse](c, "SubmitCaptcha", CaptchaRequest{ID: id, Response: response})
}

// SubmitSettings answers a pending settings request.
func (c *Client) SubmitSettings(id string, values map[string]any) (*OKResponse, error) {
	return call[OKResponse](c, "SubmitSettings", SettingsRequest{ID: id, Values: values})
}

// SetConcurrency changes the concurrency limit and returns the applied value.
func (c *Client) SetConcurrency(limit int) (*ConcurrencyResponse, error) {
	return call[ConcurrencyResponse](c, "SetConcurrency", ConcurrencyRequest{Limit: limit})
}

// SetNextAction changes what happens once the queue drains.
func (c *Client) SetNextAction(action string) (*OKResponse, error) {
	return call[OKResponse](c, "SetNextAction", NextActionRequest{Action: action})
}

// LogTail returns log lines from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	return call[LogTailResponse](c, "LogTail", req)
}

// DatabaseHealth retrieves detailed database diagnostics.
func (c *Client) DatabaseHealth() (*DatabaseHealthResponse, error) {
	return call[DatabaseHealthResponse](c, "DatabaseHealth", DatabaseHealthRequest{})
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	return call[TestNotificationResponse](c, "TestNotification", TestNotificationRequest{})
}
