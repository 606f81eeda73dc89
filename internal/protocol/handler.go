package protocol

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fluidsettings/fluid-settingsd/internal/busmsg"
	"github.com/fluidsettings/fluid-settingsd/internal/metrics"
	"github.com/fluidsettings/fluid-settingsd/internal/settings"
	"github.com/fluidsettings/fluid-settingsd/internal/subscriptions"
)

// Handler dispatches inbound client commands to the settings store
// and subscription router, and delivers spontaneous VALUE_UPDATED
// notifications on the same bus connection. It implements both
// busmsg.Handler (for inbound commands) and subscriptions.Notifier
// (for outbound change notifications).
type Handler struct {
	self   busmsg.Address
	bus    busmsg.Bus
	store  *settings.Store
	router *subscriptions.Router
}

// NewHandler builds a protocol handler. self is the address this
// daemon's client-facing bus connection is known as; it is used as
// the "from" when sending spontaneous VALUE_UPDATED notifications.
func NewHandler(self busmsg.Address, bus busmsg.Bus, store *settings.Store, router *subscriptions.Router) *Handler {
	return &Handler{self: self, bus: bus, store: store, router: router}
}

// Handle implements busmsg.Handler.
func (h *Handler) Handle(from busmsg.Address, msg busmsg.Message) []busmsg.Message {
	var replies []busmsg.Message
	switch msg.Command {
	case CmdGet:
		replies = []busmsg.Message{h.handleGet(msg)}
	case CmdPut:
		replies = []busmsg.Message{h.handlePut(msg)}
	case CmdDelete:
		replies = []busmsg.Message{h.handleDelete(msg)}
	case CmdList:
		replies = []busmsg.Message{h.handleList()}
	case CmdListen:
		replies = h.handleListen(from, msg)
	case CmdForget:
		replies = []busmsg.Message{h.handleForget(from, msg)}
	default:
		replies = []busmsg.Message{invalid(msg.Command, "unrecognised command")}
	}

	if len(replies) > 0 {
		metrics.RequestsTotal.WithLabelValues(msg.Command, resultLabel(replies[0])).Inc()
	}
	return replies
}

// resultLabel derives a coarse result label for metrics from the
// reply that would otherwise only be inspected by a client.
func resultLabel(reply busmsg.Message) string {
	switch reply.Command {
	case ReplyInvalid:
		return "INVALID"
	case ReplyUpdated:
		return strings.ToUpper(reply.ParamOr(ParamReason, "unknown"))
	case ReplyDeleted:
		if _, had := reply.Param(ParamMessage); had {
			return "NOOP"
		}
		return "DELETED"
	case ReplyValue:
		return "SUCCESS"
	case ReplyDefaultValue:
		return "DEFAULT"
	case ReplyNotSet:
		return "NOT_SET"
	case ReplyOptions, ReplyRegistered, ReplyReady, ReplyForget:
		return "SUCCESS"
	default:
		return "UNKNOWN"
	}
}

// NotifyValueChanged implements subscriptions.Notifier.
func (h *Handler) NotifyValueChanged(sub subscriptions.Subscriber, name, value string, isSet bool) {
	params := map[string]string{ParamName: name}
	if isSet {
		params[ParamValue] = value
	} else {
		params[ParamError] = "value undefined"
	}
	to := busmsg.Address{Peer: sub.Peer, Service: sub.Service}
	_ = h.bus.Send(h.self, to, busmsg.New(ValueUpdated, params))
}

func invalid(command, message string) busmsg.Message {
	return busmsg.New(ReplyInvalid, map[string]string{ParamCommand: command, ParamMessage: message})
}

func (h *Handler) handleGet(msg busmsg.Message) busmsg.Message {
	name, ok := msg.Param(ParamName)
	if !ok {
		return invalid(CmdGet, "missing required parameter: name")
	}

	_, hasPriority := msg.Param(ParamPriority)
	_, hasAll := msg.Param(ParamAll)
	_, hasDefault := msg.Param(ParamDefault)

	modifiers := 0
	for _, set := range []bool{hasPriority, hasAll, hasDefault} {
		if set {
			modifiers++
		}
	}
	if modifiers > 1 {
		return invalid(CmdGet, "priority, all and default are mutually exclusive")
	}

	switch {
	case hasDefault:
		text, result := h.store.GetDefault(name)
		return getReply(name, text, result)

	case hasAll:
		if !h.store.ListKnown(name) {
			return busmsg.New(ReplyNotSet, map[string]string{ParamError: "unknown setting"})
		}
		return busmsg.New(ReplyAllValues, map[string]string{ParamValues: h.store.Serialize(name)})

	case hasPriority:
		priority, err := parsePriority(msg.ParamOr(ParamPriority, ""))
		if err != nil {
			return invalid(CmdGet, "invalid priority")
		}
		text, result := h.store.Get(name, priority)
		return getReply(name, text, result)

	default:
		text, result := h.store.Get(name, settings.HighestPriority)
		return getReply(name, text, result)
	}
}

func getReply(name, text string, result settings.GetResult) busmsg.Message {
	switch result {
	case settings.Success:
		return busmsg.New(ReplyValue, map[string]string{ParamName: name, ParamValue: text})
	case settings.Default:
		return busmsg.New(ReplyDefaultValue, map[string]string{ParamName: name, ParamValue: text})
	case settings.NotSet:
		return busmsg.New(ReplyNotSet, map[string]string{ParamError: "not set"})
	case settings.PriorityNotFound:
		return busmsg.New(ReplyNotSet, map[string]string{ParamError: "no value at that priority"})
	case settings.Unknown:
		return busmsg.New(ReplyNotSet, map[string]string{ParamError: "unknown setting"})
	default:
		return invalid(CmdGet, "invalid request")
	}
}

func (h *Handler) handlePut(msg busmsg.Message) busmsg.Message {
	name, ok := msg.Param(ParamName)
	if !ok {
		return invalid(CmdPut, "missing required parameter: name")
	}
	value, ok := msg.Param(ParamValue)
	if !ok {
		return invalid(CmdPut, "missing required parameter: value")
	}

	priority := settings.AdministratorPriority
	if raw, present := msg.Param(ParamPriority); present {
		p, err := parsePriority(raw)
		if err != nil {
			return invalid(CmdPut, "invalid priority")
		}
		priority = p
	}

	ts := time.Now().UTC()
	if raw, present := msg.Param(ParamTimestamp); present {
		parsed, err := parseTimestamp(raw)
		if err != nil {
			return invalid(CmdPut, "invalid timestamp")
		}
		ts = parsed
	}

	result := h.store.Set(name, value, priority, ts, settings.OriginLocal)
	switch result {
	case settings.SetUnknown:
		return invalid(CmdPut, "unknown setting")
	case settings.SetError:
		return invalid(CmdPut, "value failed validation, or priority/timestamp out of range")
	default:
		return busmsg.New(ReplyUpdated, map[string]string{ParamName: name, ParamReason: setReasonToken(result)})
	}
}

func setReasonToken(result settings.SetResult) string {
	switch result {
	case settings.New:
		return "new"
	case settings.NewPriority:
		return "new_priority"
	case settings.Changed:
		return "changed"
	case settings.Newer:
		return "newer"
	case settings.Unchanged:
		return "unchanged"
	default:
		return "error"
	}
}

func (h *Handler) handleDelete(msg busmsg.Message) busmsg.Message {
	name, ok := msg.Param(ParamName)
	if !ok {
		return invalid(CmdDelete, "missing required parameter: name")
	}

	priority := settings.AdministratorPriority
	if raw, present := msg.Param(ParamPriority); present {
		p, err := parsePriority(raw)
		if err != nil {
			return invalid(CmdDelete, "invalid priority")
		}
		priority = p
	}

	removed := h.store.Reset(name, priority, settings.OriginLocal)
	reply := map[string]string{ParamName: name}
	if !removed {
		reply[ParamMessage] = "nothing was deleted"
	}
	return busmsg.New(ReplyDeleted, reply)
}

func (h *Handler) handleList() busmsg.Message {
	options := h.store.ListOptions()
	return busmsg.New(ReplyOptions, map[string]string{ParamOptions: strings.Join(options, ",")})
}

func (h *Handler) handleListen(from busmsg.Address, msg busmsg.Message) []busmsg.Message {
	names, err := splitNames(msg)
	if err != nil {
		return []busmsg.Message{invalid(CmdListen, err.Error())}
	}

	sub := subscriptions.Subscriber{Peer: from.Peer, Service: from.Service}
	anyNew := h.router.Listen(sub, names)

	registered := map[string]string{}
	if !anyNew {
		registered[ParamMessage] = "already registered"
	}
	replies := []busmsg.Message{busmsg.New(ReplyRegistered, registered)}

	errCount := 0
	for _, name := range names {
		text, result := h.store.Get(name, settings.HighestPriority)
		isSet := result == settings.Success || result == settings.Default
		params := map[string]string{ParamName: name}
		if isSet {
			params[ParamValue] = text
		} else {
			params[ParamError] = "value undefined"
		}
		if result == settings.Unknown || result == settings.Error {
			errCount++
		}
		replies = append(replies, busmsg.New(ValueUpdated, params))
	}

	ready := map[string]string{}
	if errCount > 0 {
		ready[ParamErrCount] = strconv.Itoa(errCount)
	}
	replies = append(replies, busmsg.New(ReplyReady, ready))
	return replies
}

func (h *Handler) handleForget(from busmsg.Address, msg busmsg.Message) busmsg.Message {
	names, err := splitNames(msg)
	if err != nil {
		return invalid(CmdForget, err.Error())
	}

	sub := subscriptions.Subscriber{Peer: from.Peer, Service: from.Service}
	anyRemoved := h.router.Forget(sub, names)

	reply := map[string]string{}
	if !anyRemoved {
		reply[ParamMessage] = "not listening"
	}
	return busmsg.New(ReplyForget, reply)
}

func splitNames(msg busmsg.Message) ([]string, error) {
	raw, ok := msg.Param(ParamNames)
	if !ok {
		return nil, errMissingNames
	}
	var names []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		canon, err := settings.CanonicalizeName(part)
		if err != nil {
			return nil, errBadName
		}
		names = append(names, canon)
	}
	if len(names) == 0 {
		return nil, errEmptyNames
	}
	sort.Strings(names)
	return names, nil
}

func parsePriority(raw string) (settings.Priority, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	p := settings.Priority(n)
	if !settings.ValidPriority(p) {
		return 0, errPriorityRange
	}
	return p, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	nsec, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, nsec).UTC(), nil
}
