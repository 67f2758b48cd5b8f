package eventbus

import (
	"encoding/binary"

	"mulex/internal/proctable"
	"mulex/internal/wire"
)

// Reserved procedure ids for the event bus's control plane (§6), numbered
// in their own block alongside rdb's 100s.
const (
	ProcSubscribe   proctable.ProcedureId = 200
	ProcUnsubscribe proctable.ProcedureId = 201
	ProcRegister    proctable.ProcedureId = 202
	ProcGetId       proctable.ProcedureId = 203
)

// RegisterProcedures installs the event bus's register/get_id/subscribe/
// unsubscribe RPCs. CallerId on these calls is the ClientId of the socket
// issuing them, threaded explicitly into Subscribe/Unsubscribe (§9 Design
// Note).
func RegisterProcedures(bus *Server) {
	proctable.Register(proctable.Descriptor{
		Id: ProcRegister, Name: "mxevt::register",
		Handler: func(_ uint64, payload []byte) ([]byte, error) {
			name, err := wire.DecodeGenericBlob(payload)
			if err != nil {
				return nil, err
			}
			return encodeBool(bus.Register(string(name))), nil
		},
	})

	proctable.Register(proctable.Descriptor{
		Id: ProcGetId, Name: "mxevt::get_id",
		Handler: func(_ uint64, payload []byte) ([]byte, error) {
			name, err := wire.DecodeGenericBlob(payload)
			if err != nil {
				return nil, err
			}
			buf := make([]byte, 2)
			binary.LittleEndian.PutUint16(buf, bus.GetId(string(name)))
			return buf, nil
		},
	})

	proctable.Register(proctable.Descriptor{
		Id: ProcSubscribe, Name: "mxevt::subscribe", Void: true,
		Handler: func(callerId uint64, payload []byte) ([]byte, error) {
			name, err := wire.DecodeGenericBlob(payload)
			if err != nil {
				return nil, err
			}
			return nil, bus.Subscribe(callerId, string(name))
		},
	})

	proctable.Register(proctable.Descriptor{
		Id: ProcUnsubscribe, Name: "mxevt::unsubscribe", Void: true,
		Handler: func(callerId uint64, payload []byte) ([]byte, error) {
			name, err := wire.DecodeGenericBlob(payload)
			if err != nil {
				return nil, err
			}
			return nil, bus.Unsubscribe(callerId, string(name))
		},
	})
}

func encodeBool(b bool) []byte {
	if b {
		return []byte{1}
	}
	return []byte{0}
}
