package protocol

// Version is the protocol version spoken by this build.
const Version uint32 = 1

// Kind is the "type" discriminator of a message.
type Kind string

const (
	KindHandshake    Kind = "handshake"
	KindHandshakeAck Kind = "handshake_ack"
	KindRender       Kind = "render"
	KindEvent        Kind = "event"
	KindPosition     Kind = "position"
	KindShutdown     Kind = "shutdown"
	KindShutdownAck  Kind = "shutdown_ack"
	KindError        Kind = "error"
)

// Request is a message sent from the host to the sandbox.
type Request interface {
	RequestKind() Kind
}

// Response is a message sent from the sandbox to the host.
type Response interface {
	ResponseKind() Kind
}

// IconMetadata describes the icon a script renders. The host owns it; the
// script may only toggle Selected and Hovered.
type IconMetadata struct {
	Path        string  `json:"path"`
	Name        string  `json:"name"`
	Width       uint32  `json:"width"`
	Height      uint32  `json:"height"`
	Selected    bool    `json:"selected"`
	Hovered     bool    `json:"hovered"`
	MimeType    string  `json:"mime_type,omitempty"`
	IsDirectory bool    `json:"is_directory,omitempty"`
	Size        *uint64 `json:"size,omitempty"`
	IconType    string  `json:"icon_type,omitempty"`
}

// RenderContext sizes the canvas handed to a render callback. It is
// independent of the icon's own width and height.
type RenderContext struct {
	CanvasWidth      uint32 `json:"canvas_width"`
	CanvasHeight     uint32 `json:"canvas_height"`
	DevicePixelRatio Number `json:"device_pixel_ratio,omitempty"`
}

// PositionInput carries the grid parameters for one icon slot.
type PositionInput struct {
	ScreenWidth  uint32 `json:"screen_width"`
	ScreenHeight uint32 `json:"screen_height"`
	IconCount    uint32 `json:"icon_count"`
	IconIndex    uint32 `json:"icon_index"`
	CellWidth    uint32 `json:"cell_width"`
	CellHeight   uint32 `json:"cell_height"`
}

// Action is a host-defined desktop operation requested by a script.
type Action struct {
	Action  string  `json:"action"`
	Payload *string `json:"payload,omitempty"`
}

// NewAction builds an Action with a payload.
func NewAction(action, payload string) *Action {
	return &Action{Action: action, Payload: &payload}
}

// Requests

// Handshake opens a session.
type Handshake struct {
	Version uint32 `json:"version"`
}

// RenderRequest asks the sandbox to render ScriptPath for Metadata.
type RenderRequest struct {
	Metadata   IconMetadata  `json:"metadata"`
	Context    RenderContext `json:"context"`
	ScriptPath string        `json:"script_path"`
}

// EventRequest delivers one input event to the loaded script.
type EventRequest struct {
	Event Event `json:"event"`
}

// PositionRequest asks for the screen position of one icon.
type PositionRequest struct {
	Input PositionInput `json:"input"`
}

// Shutdown ends the session after one ShutdownAck.
type Shutdown struct{}

func (Handshake) RequestKind() Kind       { return KindHandshake }
func (RenderRequest) RequestKind() Kind   { return KindRender }
func (EventRequest) RequestKind() Kind    { return KindEvent }
func (PositionRequest) RequestKind() Kind { return KindPosition }
func (Shutdown) RequestKind() Kind        { return KindShutdown }

// Responses

// HandshakeAck answers Handshake with the sandbox's own version.
type HandshakeAck struct {
	Version uint32 `json:"version"`
	Success bool   `json:"success"`
}

// RenderResponse carries the canvas commands in emission order.
type RenderResponse struct {
	Commands Commands `json:"commands"`
}

// EventResult answers EventRequest.
type EventResult struct {
	Handled bool    `json:"handled"`
	Action  *Action `json:"action"`
}

// Position answers PositionRequest.
type Position struct {
	X Number `json:"x"`
	Y Number `json:"y"`
}

// ShutdownAck is the last message of a session.
type ShutdownAck struct{}

// ErrorResponse reports a contained failure inside the sandbox.
type ErrorResponse struct {
	Message string `json:"message"`
}

func (HandshakeAck) ResponseKind() Kind   { return KindHandshakeAck }
func (RenderResponse) ResponseKind() Kind { return KindRender }
func (EventResult) ResponseKind() Kind    { return KindEvent }
func (Position) ResponseKind() Kind       { return KindPosition }
func (ShutdownAck) ResponseKind() Kind    { return KindShutdownAck }
func (ErrorResponse) ResponseKind() Kind  { return KindError }
