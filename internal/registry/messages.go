package registry

import (
	"encoding/json"
	"fmt"
)

// WireKind discriminates the peer wire messages listed in the spec's
// external-interfaces table.
type WireKind string

const (
	KindRegisterNotify   WireKind = "register_notify"
	KindUnregisterNotify WireKind = "unregister_notify"
	KindAddMetaNotify    WireKind = "add_meta_notify"
	KindSyncReq          WireKind = "sync_req"
	KindSyncResp         WireKind = "sync_resp"
)

// SyncEntry is one row of a sync_resp bulk snapshot.
type SyncEntry struct {
	Name      Name         `json:"name"`
	Principal PrincipalRef `json:"principal"`
	Meta      Meta         `json:"meta,omitempty"`
}

// Envelope is the single wire frame type exchanged between registrars. Only
// the field matching Kind is populated; this mirrors a tagged union without
// reaching for a custom binary codec the teacher never used.
type Envelope struct {
	Kind WireKind `json:"kind"`
	From NodeID   `json:"from"`

	Name      Name         `json:"name,omitempty"`
	Principal PrincipalRef `json:"principal,omitempty"`
	Meta      Meta         `json:"meta,omitempty"`
	Entries   []SyncEntry  `json:"entries,omitempty"`
}

// EncodeEnvelope serializes e for transport.
func EncodeEnvelope(e Envelope) ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEnvelope parses a frame previously produced by EncodeEnvelope.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("registry: decode envelope: %w", err)
	}
	return e, nil
}

func registerNotifyEnvelope(self NodeID, name Name, principal PrincipalRef) Envelope {
	return Envelope{Kind: KindRegisterNotify, From: self, Name: name, Principal: principal}
}

func unregisterNotifyEnvelope(self NodeID, name Name) Envelope {
	return Envelope{Kind: KindUnregisterNotify, From: self, Name: name}
}

func addMetaNotifyEnvelope(self NodeID, name Name, meta Meta) Envelope {
	return Envelope{Kind: KindAddMetaNotify, From: self, Name: name, Meta: meta}
}

func syncReqEnvelope(self NodeID) Envelope {
	return Envelope{Kind: KindSyncReq, From: self}
}

func syncRespEnvelope(self NodeID, entries []SyncEntry) Envelope {
	return Envelope{Kind: KindSyncResp, From: self, Entries: entries}
}
