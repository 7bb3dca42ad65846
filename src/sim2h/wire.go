// Package sim2h implements the relay that joins agents into DHT spaces
// over websockets, replicates published entries to the peers expected to
// hold them, and drives missing-aspect resync. All relay sends are fire
// and forget; reliability comes from the periodic resync pass.
package sim2h

import (
	"encoding/json"

	"github.com/dynaput247/holochain-sub000/src/common"
	"github.com/dynaput247/holochain-sub000/src/core"
)

// WireVersion gates client compatibility in the Hello exchange. A client
// announcing a different version is disconnected.
const WireVersion = 1

// Message type tags.
const (
	TypePing           = "ping"
	TypePong           = "pong"
	TypeStatus         = "status"
	TypeStatusResponse = "status_response"
	TypeHello          = "hello"
	TypeHelloResponse  = "hello_response"

	TypeJoinSpace  = "join_space"
	TypeLeaveSpace = "leave_space"

	TypeSendDirectMessage       = "send_direct_message"
	TypeSendDirectMessageResult = "send_direct_message_result"

	TypePublishEntry     = "publish_entry"
	TypeQueryEntry       = "query_entry"
	TypeQueryEntryResult = "query_entry_result"
	TypeQueryLinks       = "query_links"
	TypeQueryLinksResult = "query_links_result"

	TypeGetAuthoringEntryList       = "handle_get_authoring_entry_list"
	TypeGetAuthoringEntryListResult = "handle_get_authoring_entry_list_result"
	TypeGetGossipingEntryList       = "handle_get_gossiping_entry_list"
	TypeGetGossipingEntryListResult = "handle_get_gossiping_entry_list_result"

	TypeFetchEntry       = "handle_fetch_entry"
	TypeFetchEntryResult = "handle_fetch_entry_result"
	TypeStoreEntryAspect = "handle_store_entry_aspect"
)

// Message is one wire message: a type tag plus its type-specific payload.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Envelope wraps a client-originated message with the sender's signature
// over the serialized message. The relay verifies the signature against
// the claimed source key before processing.
type Envelope struct {
	Provenance core.Provenance `json:"provenance"`
	Message    json.RawMessage `json:"message"`
}

// Verify checks the envelope signature.
func (e *Envelope) Verify() bool {
	return e.Provenance.Verify(e.Message)
}

// Signer produces envelopes; the agent satisfies it.
type Signer interface {
	Provenance(data []byte) (core.Provenance, error)
}

// Seal signs a message into an envelope.
func Seal(signer Signer, msgType string, payload interface{}) (*Envelope, error) {
	msg, err := encodeMessage(msgType, payload)
	if err != nil {
		return nil, err
	}
	prov, err := signer.Provenance(msg)
	if err != nil {
		return nil, err
	}
	return &Envelope{Provenance: prov, Message: msg}, nil
}

func encodeMessage(msgType string, payload interface{}) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, common.NewHcError(common.ErrSerialization, err.Error())
		}
		raw = data
	}
	msg, err := json.Marshal(Message{Type: msgType, Payload: raw})
	if err != nil {
		return nil, common.NewHcError(common.ErrSerialization, err.Error())
	}
	return msg, nil
}

// Aspect is one replicable piece of data attached to an entry address. The
// aspect address is the hash of the content, so holders can be diffed by
// address lists alone.
type Aspect struct {
	Address core.Address    `json:"address"`
	Content json.RawMessage `json:"content"`
}

// NewAspect hashes content into an aspect.
func NewAspect(content []byte) Aspect {
	return Aspect{
		Address: core.AddressOf(core.Content(content)),
		Content: json.RawMessage(content),
	}
}

// AspectList maps entry addresses to the aspect addresses known for them.
type AspectList map[core.Address][]core.Address

// HelloPayload opens the version exchange.
type HelloPayload struct {
	Version int `json:"version"`
}

// StatusPayload answers a status request with relay-wide counts.
type StatusPayload struct {
	Spaces      int `json:"spaces"`
	Connections int `json:"connections"`
}

// JoinSpacePayload binds a connection to a space under an agent identity.
// The agent must match the envelope's provenance source.
type JoinSpacePayload struct {
	Space   core.Address `json:"space"`
	AgentID string       `json:"agent_id"`
}

// DirectMessagePayload carries an app-level message between two agents,
// and its response on the way back.
type DirectMessagePayload struct {
	MsgID      string `json:"msg_id"`
	FromAgent  string `json:"from_agent"`
	ToAgent    string `json:"to_agent"`
	Payload    string `json:"payload"`
	IsResponse bool   `json:"is_response"`
}

// PublishEntryPayload announces new aspects for an entry address.
type PublishEntryPayload struct {
	EntryAddress core.Address `json:"entry_address"`
	Aspects      []Aspect     `json:"aspects"`
}

// QueryEntryPayload asks the relay to resolve an entry from whoever
// holds it.
type QueryEntryPayload struct {
	RequestID    string       `json:"request_id"`
	EntryAddress core.Address `json:"entry_address"`
}

// QueryEntryResultPayload returns the held aspects for a queried entry.
type QueryEntryResultPayload struct {
	RequestID    string       `json:"request_id"`
	EntryAddress core.Address `json:"entry_address"`
	Aspects      []Aspect     `json:"aspects"`
}

// QueryLinksPayload asks the relay for the link targets on a base.
type QueryLinksPayload struct {
	RequestID string       `json:"request_id"`
	Base      core.Address `json:"base"`
	Tag       string       `json:"tag"`
}

// QueryLinksResultPayload answers a links query.
type QueryLinksResultPayload struct {
	RequestID string         `json:"request_id"`
	Base      core.Address   `json:"base"`
	Tag       string         `json:"tag"`
	Targets   []core.Address `json:"targets"`
}

// EntryListPayload answers an authoring or gossiping list request with the
// address→aspect map a node holds.
type EntryListPayload struct {
	RequestID string     `json:"request_id"`
	List      AspectList `json:"list"`
}

// FetchEntryPayload asks a holder for aspect content on another node's
// behalf.
type FetchEntryPayload struct {
	RequestID    string         `json:"request_id"`
	EntryAddress core.Address   `json:"entry_address"`
	Aspects      []core.Address `json:"aspects,omitempty"`
}

// FetchEntryResultPayload returns fetched aspect content.
type FetchEntryResultPayload struct {
	RequestID    string       `json:"request_id"`
	EntryAddress core.Address `json:"entry_address"`
	Aspects      []Aspect     `json:"aspects"`
}

// StoreEntryAspectPayload instructs a node to hold one aspect.
type StoreEntryAspectPayload struct {
	EntryAddress core.Address `json:"entry_address"`
	Aspect       Aspect       `json:"aspect"`
}
