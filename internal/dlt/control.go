package dlt

import "fmt"

// Control message service ids
const (
	ServiceSetLogLevel                 uint32 = 0x01
	ServiceSetTraceStatus              uint32 = 0x02
	ServiceGetLogInfo                  uint32 = 0x03
	ServiceGetDefaultLogLevel          uint32 = 0x04
	ServiceStoreConfiguration          uint32 = 0x05
	ServiceResetToFactoryDefault       uint32 = 0x06
	ServiceSetComInterfaceStatus       uint32 = 0x07
	ServiceSetComInterfaceMaxBandwidth uint32 = 0x08
	ServiceSetVerboseMode              uint32 = 0x09
	ServiceSetMessageFiltering         uint32 = 0x0A
	ServiceSetTimingPackets            uint32 = 0x0B
	ServiceGetLocalTime                uint32 = 0x0C
	ServiceUseEcuID                    uint32 = 0x0D
	ServiceUseSessionID                uint32 = 0x0E
	ServiceUseTimestamp                uint32 = 0x0F
	ServiceUseExtendedHeader           uint32 = 0x10
	ServiceSetDefaultLogLevel          uint32 = 0x11
	ServiceSetDefaultTraceStatus       uint32 = 0x12
	ServiceGetSoftwareVersion          uint32 = 0x13
	ServiceMessageBufferOverflow       uint32 = 0x14
	ServiceGetDefaultTraceStatus       uint32 = 0x15
	ServiceGetComInterfaceStatus       uint32 = 0x16
	ServiceGetLogChannelNames          uint32 = 0x17
	ServiceGetComInterfaceMaxBandwidth uint32 = 0x18
	ServiceGetVerboseModeStatus        uint32 = 0x19
	ServiceGetMessageFilteringStatus   uint32 = 0x1A
	ServiceGetUseEcuID                 uint32 = 0x1B
	ServiceGetUseSessionID             uint32 = 0x1C
	ServiceGetUseTimestamp             uint32 = 0x1D
	ServiceGetUseExtendedHeader        uint32 = 0x1E
	ServiceGetTraceStatus              uint32 = 0x1F
	ServiceUnregisterContext           uint32 = 0xF01
	ServiceConnectionInfo              uint32 = 0xF02
	ServiceTimezone                    uint32 = 0xF03
	ServiceMarker                      uint32 = 0xF04
)

var serviceNames = map[uint32]string{
	ServiceSetLogLevel:                 "set_log_level",
	ServiceSetTraceStatus:              "set_trace_status",
	ServiceGetLogInfo:                  "get_log_info",
	ServiceGetDefaultLogLevel:          "get_default_log_level",
	ServiceStoreConfiguration:          "store_configuration",
	ServiceResetToFactoryDefault:       "reset_to_factory_default",
	ServiceSetComInterfaceStatus:       "set_com_interface_status",
	ServiceSetComInterfaceMaxBandwidth: "set_com_interface_max_bandwidth",
	ServiceSetVerboseMode:              "set_verbose_mode",
	ServiceSetMessageFiltering:         "set_message_filtering",
	ServiceSetTimingPackets:            "set_timing_packets",
	ServiceGetLocalTime:                "get_local_time",
	ServiceUseEcuID:                    "use_ecu_id",
	ServiceUseSessionID:                "use_session_id",
	ServiceUseTimestamp:                "use_timestamp",
	ServiceUseExtendedHeader:           "use_extended_header",
	ServiceSetDefaultLogLevel:          "set_default_log_level",
	ServiceSetDefaultTraceStatus:       "set_default_trace_status",
	ServiceGetSoftwareVersion:          "get_software_version",
	ServiceMessageBufferOverflow:       "message_buffer_overflow",
	ServiceGetDefaultTraceStatus:       "get_default_trace_status",
	ServiceGetComInterfaceStatus:       "get_com_interface_status",
	ServiceGetLogChannelNames:          "get_log_channel_names",
	ServiceGetComInterfaceMaxBandwidth: "get_com_interface_max_bandwidth",
	ServiceGetVerboseModeStatus:        "get_verbose_mode_status",
	ServiceGetMessageFilteringStatus:   "get_message_filtering_status",
	ServiceGetUseEcuID:                 "get_use_ecu_id",
	ServiceGetUseSessionID:             "get_use_session_id",
	ServiceGetUseTimestamp:             "get_use_timestamp",
	ServiceGetUseExtendedHeader:        "get_use_extended_header",
	ServiceGetTraceStatus:              "get_trace_status",
	ServiceUnregisterContext:           "unregister_context",
	ServiceConnectionInfo:              "connection_info",
	ServiceTimezone:                    "timezone",
	ServiceMarker:                      "marker",
}

// ServiceName returns the name of a control service id
func ServiceName(id uint32) string {
	if name, ok := serviceNames[id]; ok {
		return name
	}
	return fmt.Sprintf("service(0x%x)", id)
}

// Control response status codes (first byte after the service id)
const (
	ControlStatusOK           = 0x00
	ControlStatusNotSupported = 0x01
	ControlStatusError        = 0x02
)

// ControlStatusName returns the name of a control response status
func ControlStatusName(status byte) string {
	switch status {
	case ControlStatusOK:
		return "ok"
	case ControlStatusNotSupported:
		return "not_supported"
	case ControlStatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", status)
	}
}

// ControlInfo describes a non-verbose control message
type ControlInfo struct {
	ServiceID   uint32
	ServiceName string
	Response    bool
	Status      string // responses only
}

// Control returns the control service carried by the frame, if it is a
// non-verbose control message.
func (f *Frame) Control() (*ControlInfo, bool) {
	if f.Extended == nil || f.Extended.MessageType != MessageTypeControl || f.Payload.Mode != ModeNonVerbose {
		return nil, false
	}
	info := &ControlInfo{
		ServiceID:   f.Payload.MessageID,
		ServiceName: ServiceName(f.Payload.MessageID),
		Response:    f.Extended.MessageTypeInfo == ControlResponse,
	}
	if info.Response && len(f.Payload.Data) > 0 {
		info.Status = ControlStatusName(f.Payload.Data[0])
	}
	return info, true
}
