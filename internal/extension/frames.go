package extension

import (
	"github.com/tidwall/sjson"

	"github.com/chris/whispr/internal/agent"
	"github.com/chris/whispr/internal/bridge"
)

// Frame types.
const (
	typeProcessTranscript = "PROCESS_TRANSCRIPT"
	typeResetChat         = "RESET_CHAT"
	typeRPCResult         = "RPC_RESULT"

	typeSession      = "SESSION"
	typeResult       = "RESULT"
	typeStatusUpdate = "STATUS_UPDATE"
	typeRPC          = "RPC"
)

// RPC methods the extension implements.
const (
	methodGetActiveTab   = "tabs.getActive"
	methodCreateTab      = "tabs.create"
	methodGetText        = "tabs.getText"
	methodCreateBookmark = "bookmarks.create"
)

// frame builds a JSON object from a type and path/value pairs. Paths are
// static and values are plain maps or scalars, so sjson cannot fail here.
func frame(typ string, pairs ...any) []byte {
	b := []byte(`{}`)
	b, _ = sjson.SetBytes(b, "type", typ)
	for i := 0; i+1 < len(pairs); i += 2 {
		b, _ = sjson.SetBytes(b, pairs[i].(string), pairs[i+1])
	}
	return b
}

func sessionFrame(id string) []byte {
	return frame(typeSession, "id", id)
}

func resultFrame(id string, res bridge.Result) []byte {
	return frame(typeResult, "id", id, "success", res.Success, "message", res.Message)
}

func errorFrame(id, message string) []byte {
	return resultFrame(id, bridge.Result{Message: message})
}

func statusFrame(p agent.Progress) []byte {
	return frame(typeStatusUpdate, "payload.stage", p.Stage, "payload.detail", p.Detail)
}

func rpcFrame(id, method string, params any) []byte {
	if params == nil {
		params = map[string]any{}
	}
	return frame(typeRPC, "id", id, "method", method, "params", params)
}
