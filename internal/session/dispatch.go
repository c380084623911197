package session

import "github.com/avaropoint/rdcp/internal/protocol"

// Role selects which side of the dispatch table a session uses.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}

// streamingOpcodes are accepted by either side while streaming.
var streamingOpcodes = []protocol.Opcode{
	protocol.OpHeartbeat,
	protocol.OpHeartbeatResponse,
	protocol.OpScreenData,
	protocol.OpCursorPosition,
	protocol.OpMouseEvent,
	protocol.OpKeyboardEvent,
	protocol.OpClipboardData,
	protocol.OpErrorMessage,
	protocol.OpStatusUpdate,
}

// dispatchTable is the (state, opcode) acceptance table. Opcodes received
// in states where they are not listed are protocol violations and fail the
// session.
type dispatchTable map[State]map[protocol.Opcode]bool

func newDispatchTable(role Role) dispatchTable {
	t := dispatchTable{
		StateHandshakeSent:  {},
		StateChallenged:     {},
		StateAuthenticating: {},
		StateStreaming:      {},
	}
	switch role {
	case RoleClient:
		t[StateHandshakeSent][protocol.OpHandshakeResponse] = true
		t[StateChallenged][protocol.OpAuthChallenge] = true
		t[StateAuthenticating][protocol.OpAuthResponse] = true
	case RoleServer:
		t[StateHandshakeSent][protocol.OpHandshakeRequest] = true
		t[StateChallenged][protocol.OpAuthRequest] = true
		t[StateAuthenticating][protocol.OpAuthRequest] = true
	}
	for _, op := range streamingOpcodes {
		t[StateStreaming][op] = true
	}
	return t
}

// allows reports whether op may arrive in state. Heartbeats are accepted
// at any point past HandshakeSent; they refresh liveness and nothing else.
func (t dispatchTable) allows(state State, op protocol.Opcode) bool {
	if op == protocol.OpHeartbeat || op == protocol.OpHeartbeatResponse {
		switch state {
		case StateHandshakeSent, StateChallenged, StateAuthenticating,
			StateStreaming, StateClosing:
			return true
		}
		return false
	}
	allowed, ok := t[state]
	return ok && allowed[op]
}
