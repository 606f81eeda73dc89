package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fluidsettings/fluid-settingsd/internal/busmsg"
	"github.com/fluidsettings/fluid-settingsd/internal/settings"
)

// ErrTimeout is returned by Client when no reply arrives within the
// request's deadline.
var ErrTimeout = errors.New("protocol: request timed out")

// Client is a minimal synchronous caller of the bus protocol: it
// sends one request, waits for the correlated reply (or a deadline),
// and returns it decoded. It is not a general-purpose multiplexing
// client: at most one request may be outstanding at a time. The
// interactive client library itself is an external collaborator.
type Client struct {
	self    busmsg.Address
	daemon  busmsg.Address
	bus     busmsg.Bus
	timeout time.Duration
	pending *pendingRequests

	mu      sync.Mutex
	waitKey pendingKey
	waitCh  chan busmsg.Message
}

// NewClient builds a client addressed as self that talks to the
// daemon at daemon over bus. timeout is the per-request deadline
// (DefaultTimeout if zero), matching fluid-settings-timeout.
func NewClient(self, daemon busmsg.Address, bus busmsg.Bus, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		self:    self,
		daemon:  daemon,
		bus:     bus,
		timeout: timeout,
		pending: newPendingRequests(),
	}
}

// Handle implements busmsg.Handler so a Client can be registered on a
// Bus to receive replies. A reply arriving with no outstanding waiter
// (the deadline already fired) is silently discarded.
func (c *Client) Handle(from busmsg.Address, msg busmsg.Message) []busmsg.Message {
	c.mu.Lock()
	ch := c.waitCh
	key := c.waitKey
	c.mu.Unlock()

	if ch == nil || !c.pending.complete(key.command, key.name) {
		return nil
	}

	c.mu.Lock()
	c.waitCh = nil
	c.mu.Unlock()

	ch <- msg
	return nil
}

func (c *Client) request(command, name string, msg busmsg.Message) (busmsg.Message, error) {
	ch := make(chan busmsg.Message, 1)

	c.mu.Lock()
	c.waitKey = pendingKey{command, name}
	c.waitCh = ch
	c.mu.Unlock()

	timedOut := make(chan struct{})
	c.pending.start(command, name, c.timeout, func() { close(timedOut) })

	if err := c.bus.Send(c.self, c.daemon, msg); err != nil {
		c.pending.complete(command, name)
		return busmsg.Message{}, err
	}

	select {
	case reply := <-ch:
		return reply, nil
	case <-timedOut:
		return busmsg.Message{}, ErrTimeout
	}
}

// Get issues a FLUID_SETTINGS_GET for name at the effective (highest)
// priority.
func (c *Client) Get(name string) (text string, result settings.GetResult, err error) {
	reply, err := c.request(CmdGet, name, busmsg.New(CmdGet, map[string]string{ParamName: name}))
	if err != nil {
		return "", settings.Error, err
	}
	switch reply.Command {
	case ReplyValue:
		return reply.ParamOr(ParamValue, ""), settings.Success, nil
	case ReplyDefaultValue:
		return reply.ParamOr(ParamValue, ""), settings.Default, nil
	case ReplyNotSet:
		return "", settings.NotSet, nil
	case ReplyInvalid:
		return "", settings.Error, fmt.Errorf("protocol: GET rejected: %s", reply.ParamOr(ParamMessage, ""))
	default:
		return "", settings.Error, fmt.Errorf("protocol: unexpected reply %s to GET", reply.Command)
	}
}

// Put issues a FLUID_SETTINGS_PUT.
func (c *Client) Put(name, value string, priority settings.Priority) (settings.SetResult, error) {
	params := map[string]string{ParamName: name, ParamValue: value, ParamPriority: strconv.Itoa(int(priority))}
	reply, err := c.request(CmdPut, name, busmsg.New(CmdPut, params))
	if err != nil {
		return settings.SetError, err
	}
	switch reply.Command {
	case ReplyUpdated:
		return setResultFromToken(reply.ParamOr(ParamReason, "")), nil
	case ReplyInvalid:
		return settings.SetError, fmt.Errorf("protocol: PUT rejected: %s", reply.ParamOr(ParamMessage, ""))
	default:
		return settings.SetError, fmt.Errorf("protocol: unexpected reply %s to PUT", reply.Command)
	}
}

func setResultFromToken(token string) settings.SetResult {
	switch token {
	case "new":
		return settings.New
	case "new_priority":
		return settings.NewPriority
	case "changed":
		return settings.Changed
	case "newer":
		return settings.Newer
	case "unchanged":
		return settings.Unchanged
	default:
		return settings.SetError
	}
}

// Delete issues a FLUID_SETTINGS_DELETE, reporting whether a record
// was actually removed.
func (c *Client) Delete(name string, priority settings.Priority) (removed bool, err error) {
	params := map[string]string{ParamName: name, ParamPriority: strconv.Itoa(int(priority))}
	reply, err := c.request(CmdDelete, name, busmsg.New(CmdDelete, params))
	if err != nil {
		return false, err
	}
	if reply.Command != ReplyDeleted {
		return false, fmt.Errorf("protocol: unexpected reply %s to DELETE", reply.Command)
	}
	_, hadMessage := reply.Param(ParamMessage)
	return !hadMessage, nil
}

// List issues a FLUID_SETTINGS_LIST and returns the sorted option
// catalogue.
func (c *Client) List() ([]string, error) {
	reply, err := c.request(CmdList, "", busmsg.New(CmdList, nil))
	if err != nil {
		return nil, err
	}
	if reply.Command != ReplyOptions {
		return nil, fmt.Errorf("protocol: unexpected reply %s to LIST", reply.Command)
	}
	csv := reply.ParamOr(ParamOptions, "")
	if csv == "" {
		return nil, nil
	}
	return strings.Split(csv, ","), nil
}
