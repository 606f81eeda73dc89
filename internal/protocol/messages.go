// Package protocol implements the client-facing bus protocol: it
// turns inbound busmsg.Message commands into calls on the settings
// store and subscription router, and turns their results back into
// reply messages.
package protocol

// Command names, exactly as carried on the wire.
const (
	CmdGet    = "FLUID_SETTINGS_GET"
	CmdPut    = "FLUID_SETTINGS_PUT"
	CmdDelete = "FLUID_SETTINGS_DELETE"
	CmdList   = "FLUID_SETTINGS_LIST"
	CmdListen = "FLUID_SETTINGS_LISTEN"
	CmdForget = "FLUID_SETTINGS_FORGET"

	ReplyValue        = "FLUID_SETTINGS_VALUE"
	ReplyAllValues    = "FLUID_SETTINGS_ALL_VALUES"
	ReplyDefaultValue = "FLUID_SETTINGS_DEFAULT_VALUE"
	ReplyNotSet       = "FLUID_SETTINGS_NOT_SET"
	ReplyInvalid      = "FLUID_SETTINGS_INVALID"
	ReplyUpdated      = "FLUID_SETTINGS_UPDATED"
	ReplyDeleted      = "FLUID_SETTINGS_DELETED"
	ReplyOptions      = "FLUID_SETTINGS_OPTIONS"
	ReplyRegistered   = "FLUID_SETTINGS_REGISTERED"
	ReplyReady        = "FLUID_SETTINGS_READY"
	ReplyForget       = "FLUID_SETTINGS_FORGET"
	ValueUpdated      = "FLUID_SETTINGS_VALUE_UPDATED"

	CmdGossip       = "FLUID_SETTINGS_GOSSIP"
	ReplyConnected  = "FLUID_SETTINGS_CONNECTED"
	CmdValueChanged = "VALUE_CHANGED"
)

// Parameter names, exactly as carried on the wire.
const (
	ParamName      = "name"
	ParamValue     = "value"
	ParamValues    = "values"
	ParamPriority  = "priority"
	ParamAll       = "all"
	ParamDefault   = "default"
	ParamTimestamp = "timestamp"
	ParamNames     = "names"
	ParamMessage   = "message"
	ParamReason    = "reason"
	ParamError     = "error"
	ParamErrCount  = "errcnt"
	ParamCommand   = "command"
	ParamMyIP      = "my_ip"
	ParamOptions   = "options"
	ParamServer    = "server"
	ParamService   = "service"
)
