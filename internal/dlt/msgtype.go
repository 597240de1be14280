package dlt

import (
	"fmt"
	"strings"
)

// MessageType is the MSTP field of the extended header
type MessageType uint8

const (
	MessageTypeLog          MessageType = 0
	MessageTypeAppTrace     MessageType = 1
	MessageTypeNetworkTrace MessageType = 2
	MessageTypeControl      MessageType = 3
	MessageTypeUndefined    MessageType = 0xFF
)

func decodeMessageType(mstp uint8) MessageType {
	switch MessageType(mstp) {
	case MessageTypeLog, MessageTypeAppTrace, MessageTypeNetworkTrace, MessageTypeControl:
		return MessageType(mstp)
	default:
		return MessageTypeUndefined
	}
}

func (t MessageType) String() string {
	switch t {
	case MessageTypeLog:
		return "log"
	case MessageTypeAppTrace:
		return "app_trace"
	case MessageTypeNetworkTrace:
		return "nw_trace"
	case MessageTypeControl:
		return "control"
	default:
		return "undefined"
	}
}

// MessageTypeInfo is the MTIN field interpreted against its message type.
// Each message type has its own range of values; codes with no mapping
// become InfoUndefined.
type MessageTypeInfo int

const (
	InfoUndefined MessageTypeInfo = iota

	LogFatal
	LogError
	LogWarn
	LogInfo
	LogDebug
	LogVerbose

	TraceVariable
	TraceFunctionIn
	TraceFunctionOut
	TraceState
	TraceVFB

	NetworkIPC
	NetworkCAN
	NetworkFlexRay
	NetworkMOST
	NetworkEthernet
	NetworkSomeIP
	NetworkUserDefined

	ControlRequest
	ControlResponse
	ControlTime
)

var messageTypeInfoNames = map[MessageTypeInfo]string{
	InfoUndefined:      "undefined",
	LogFatal:           "fatal",
	LogError:           "error",
	LogWarn:            "warn",
	LogInfo:            "info",
	LogDebug:           "debug",
	LogVerbose:         "verbose",
	TraceVariable:      "variable",
	TraceFunctionIn:    "func_in",
	TraceFunctionOut:   "func_out",
	TraceState:         "state",
	TraceVFB:           "vfb",
	NetworkIPC:         "ipc",
	NetworkCAN:         "can",
	NetworkFlexRay:     "flexray",
	NetworkMOST:        "most",
	NetworkEthernet:    "ethernet",
	NetworkSomeIP:      "someip",
	NetworkUserDefined: "user_defined",
	ControlRequest:     "request",
	ControlResponse:    "response",
	ControlTime:        "time",
}

func (i MessageTypeInfo) String() string {
	if name, ok := messageTypeInfoNames[i]; ok {
		return name
	}
	return fmt.Sprintf("MessageTypeInfo(%d)", int(i))
}

// IsLogLevel reports whether the value is one of the log levels
func (i MessageTypeInfo) IsLogLevel() bool {
	return i >= LogFatal && i <= LogVerbose
}

func decodeMessageTypeInfo(t MessageType, mtin uint8) MessageTypeInfo {
	switch t {
	case MessageTypeLog:
		if mtin >= 1 && mtin <= 6 {
			return LogFatal + MessageTypeInfo(mtin-1)
		}
	case MessageTypeAppTrace:
		if mtin >= 1 && mtin <= 5 {
			return TraceVariable + MessageTypeInfo(mtin-1)
		}
	case MessageTypeNetworkTrace:
		switch {
		case mtin >= 1 && mtin <= 6:
			return NetworkIPC + MessageTypeInfo(mtin-1)
		case mtin >= 7 && mtin <= 15:
			return NetworkUserDefined
		}
	case MessageTypeControl:
		if mtin >= 1 && mtin <= 3 {
			return ControlRequest + MessageTypeInfo(mtin-1)
		}
	}
	return InfoUndefined
}

// encodeMessageTypeInfo returns the MTIN code of i, or 0 when i has none
// (user defined network traces carry their code separately).
func encodeMessageTypeInfo(i MessageTypeInfo) uint8 {
	switch {
	case i >= LogFatal && i <= LogVerbose:
		return uint8(i-LogFatal) + 1
	case i >= TraceVariable && i <= TraceVFB:
		return uint8(i-TraceVariable) + 1
	case i >= NetworkIPC && i <= NetworkSomeIP:
		return uint8(i-NetworkIPC) + 1
	case i >= ControlRequest && i <= ControlTime:
		return uint8(i-ControlRequest) + 1
	default:
		return 0
	}
}

// messageTypeOf returns the message type a type info value belongs to
func messageTypeOf(i MessageTypeInfo) MessageType {
	switch {
	case i >= LogFatal && i <= LogVerbose:
		return MessageTypeLog
	case i >= TraceVariable && i <= TraceVFB:
		return MessageTypeAppTrace
	case i >= NetworkIPC && i <= NetworkUserDefined:
		return MessageTypeNetworkTrace
	case i >= ControlRequest && i <= ControlTime:
		return MessageTypeControl
	default:
		return MessageTypeUndefined
	}
}

// ParseLogLevel parses a log level name ("fatal" ... "verbose"). Numeric
// levels 1-6 are accepted as well.
func ParseLogLevel(s string) (MessageTypeInfo, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for lvl := LogFatal; lvl <= LogVerbose; lvl++ {
		if s == lvl.String() || s == fmt.Sprint(int(lvl-LogFatal)+1) {
			return lvl, nil
		}
	}
	if s == "warning" {
		return LogWarn, nil
	}
	return InfoUndefined, fmt.Errorf("unknown log level %q", s)
}
