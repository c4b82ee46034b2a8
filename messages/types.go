package messages

// Destination identifies the intended recipient of a PSRP message.
type Destination uint32

const (
	DestinationClient Destination = 1
	DestinationServer Destination = 2
)

func (d Destination) String() string {
	switch d {
	case DestinationClient:
		return "Client"
	case DestinationServer:
		return "Server"
	default:
		return "Unknown"
	}
}

// MessageType is the numeric PSRP message type id, [MS-PSRP] §2.2.2.
type MessageType uint32

const (
	MessageTypeSessionCapability      MessageType = 0x00010002
	MessageTypeInitRunspacePool       MessageType = 0x00010004
	MessageTypePublicKey              MessageType = 0x00010005
	MessageTypeEncryptedSessionKey    MessageType = 0x00010006
	MessageTypePublicKeyRequest       MessageType = 0x00010007
	MessageTypeConnectRunspacePool    MessageType = 0x00010008
	MessageTypeSetMaxRunspaces        MessageType = 0x00021002
	MessageTypeSetMinRunspaces        MessageType = 0x00021003
	MessageTypeRunspaceAvailability   MessageType = 0x00021004
	MessageTypeRunspacePoolState      MessageType = 0x00021005
	MessageTypeCreatePipeline         MessageType = 0x00021006
	MessageTypeGetAvailableRunspaces  MessageType = 0x00021007
	MessageTypeUserEvent              MessageType = 0x00021008
	MessageTypeApplicationPrivateData MessageType = 0x00021009
	MessageTypeGetCommandMetadata     MessageType = 0x0002100A
	MessageTypeRunspacePoolInitData   MessageType = 0x0002100B
	MessageTypeResetRunspaceState     MessageType = 0x0002100C
	MessageTypeRunspacePoolHostCall   MessageType = 0x00021100
	MessageTypeRunspacePoolHostResp   MessageType = 0x00021101
	MessageTypePipelineInput          MessageType = 0x00041002
	MessageTypeEndOfPipelineInput     MessageType = 0x00041003
	MessageTypePipelineOutput         MessageType = 0x00041004
	MessageTypeErrorRecord            MessageType = 0x00041005
	MessageTypePipelineState          MessageType = 0x00041006
	MessageTypeDebugRecord            MessageType = 0x00041007
	MessageTypeVerboseRecord          MessageType = 0x00041008
	MessageTypeWarningRecord          MessageType = 0x00041009
	MessageTypeProgressRecord         MessageType = 0x00041010
	MessageTypeInformationRecord      MessageType = 0x00041011
	MessageTypePipelineHostCall       MessageType = 0x00041100
	MessageTypePipelineHostResponse   MessageType = 0x00041101
)

var messageTypeNames = map[MessageType]string{
	MessageTypeSessionCapability:      "SessionCapability",
	MessageTypeInitRunspacePool:       "InitRunspacePool",
	MessageTypePublicKey:              "PublicKey",
	MessageTypeEncryptedSessionKey:    "EncryptedSessionKey",
	MessageTypePublicKeyRequest:       "PublicKeyRequest",
	MessageTypeConnectRunspacePool:    "ConnectRunspacePool",
	MessageTypeSetMaxRunspaces:        "SetMaxRunspaces",
	MessageTypeSetMinRunspaces:        "SetMinRunspaces",
	MessageTypeRunspaceAvailability:   "RunspaceAvailability",
	MessageTypeRunspacePoolState:      "RunspacePoolState",
	MessageTypeCreatePipeline:         "CreatePipeline",
	MessageTypeGetAvailableRunspaces:  "GetAvailableRunspaces",
	MessageTypeUserEvent:              "UserEvent",
	MessageTypeApplicationPrivateData: "ApplicationPrivateData",
	MessageTypeGetCommandMetadata:     "GetCommandMetadata",
	MessageTypeRunspacePoolInitData:   "RunspacePoolInitData",
	MessageTypeResetRunspaceState:     "ResetRunspaceState",
	MessageTypeRunspacePoolHostCall:   "RunspacePoolHostCall",
	MessageTypeRunspacePoolHostResp:   "RunspacePoolHostResponse",
	MessageTypePipelineInput:          "PipelineInput",
	MessageTypeEndOfPipelineInput:     "EndOfPipelineInput",
	MessageTypePipelineOutput:         "PipelineOutput",
	MessageTypeErrorRecord:            "ErrorRecord",
	MessageTypePipelineState:          "PipelineState",
	MessageTypeDebugRecord:            "DebugRecord",
	MessageTypeVerboseRecord:          "VerboseRecord",
	MessageTypeWarningRecord:          "WarningRecord",
	MessageTypeProgressRecord:         "ProgressRecord",
	MessageTypeInformationRecord:      "InformationRecord",
	MessageTypePipelineHostCall:       "PipelineHostCall",
	MessageTypePipelineHostResponse:   "PipelineHostResponse",
}

func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "Unknown"
}

// RunspacePoolState is the runspace pool state enumeration carried by
// RUNSPACEPOOL_STATE messages, [MS-PSRP] §2.2.3.4.
type RunspacePoolState int32

const (
	RunspacePoolStateBeforeOpen           RunspacePoolState = 0
	RunspacePoolStateOpening              RunspacePoolState = 1
	RunspacePoolStateOpened               RunspacePoolState = 2
	RunspacePoolStateClosed               RunspacePoolState = 3
	RunspacePoolStateClosing              RunspacePoolState = 4
	RunspacePoolStateBroken               RunspacePoolState = 5
	RunspacePoolStateNegotiationSent      RunspacePoolState = 6
	RunspacePoolStateNegotiationSucceeded RunspacePoolState = 7
	RunspacePoolStateConnecting           RunspacePoolState = 8
	RunspacePoolStateDisconnected         RunspacePoolState = 9
)

// PipelineState is the pipeline state enumeration carried by PIPELINE_STATE
// messages, [MS-PSRP] §2.2.3.5.
type PipelineState int32

const (
	PipelineStateNotStarted   PipelineState = 0
	PipelineStateRunning      PipelineState = 1
	PipelineStateStopping     PipelineState = 2
	PipelineStateStopped      PipelineState = 3
	PipelineStateCompleted    PipelineState = 4
	PipelineStateFailed       PipelineState = 5
	PipelineStateDisconnected PipelineState = 6
)
