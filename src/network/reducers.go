package network

import (
	"github.com/dynaput247/holochain-sub000/src/core"
	"github.com/dynaput247/holochain-sub000/src/state"
)

// InitNetworkAction attaches a connection and records the instance's
// network identity.
type InitNetworkAction struct {
	Conn    Connection
	AgentID string
	DnaHash string
}

// ActionName implements state.Action.
func (InitNetworkAction) ActionName() string { return "network/init" }

// OpenQueryAction clears the previous round's result for an address so a
// fresh entry query starts from a blank row.
type OpenQueryAction struct {
	Address core.Address
}

// ActionName implements state.Action.
func (OpenQueryAction) ActionName() string { return "network/open_query" }

// OpenLinksQueryAction clears the previous round's result for a links
// query key.
type OpenLinksQueryAction struct {
	Key LinksKey
}

// ActionName implements state.Action.
func (OpenLinksQueryAction) ActionName() string { return "network/open_links_query" }

// HandleQueryEntryResultAction records the response to an entry query.
type HandleQueryEntryResultAction struct {
	Address core.Address
	Entry   *core.Entry
	Status  core.CrudStatus
}

// ActionName implements state.Action.
func (HandleQueryEntryResultAction) ActionName() string { return "network/handle_query_entry_result" }

// HandleGetLinksResultAction records the response to a links query.
type HandleGetLinksResultAction struct {
	Key     LinksKey
	Targets []core.Address
}

// ActionName implements state.Action.
func (HandleGetLinksResultAction) ActionName() string { return "network/handle_get_links_result" }

// GetLinksTimeoutAction converts a still-pending links query into a
// Timeout error. If the response arrived first, it is a no-op.
type GetLinksTimeoutAction struct {
	Key LinksKey
}

// ActionName implements state.Action.
func (GetLinksTimeoutAction) ActionName() string { return "network/get_links_timeout" }

// QueryTimeoutAction converts a still-pending entry query into a Timeout
// error.
type QueryTimeoutAction struct {
	Address core.Address
}

// ActionName implements state.Action.
func (QueryTimeoutAction) ActionName() string { return "network/query_timeout" }

// OpenDirectMessageAction starts tracking a direct-message round trip.
type OpenDirectMessageAction struct {
	MsgID     string
	ToAgentID string
}

// ActionName implements state.Action.
func (OpenDirectMessageAction) ActionName() string { return "network/open_direct_message" }

// ResolveDirectMessageAction records the response to a direct message.
type ResolveDirectMessageAction struct {
	MsgID    string
	Response string
}

// ActionName implements state.Action.
func (ResolveDirectMessageAction) ActionName() string { return "network/resolve_direct_message" }

// Reduce applies network actions. Unknown actions return prev unchanged.
func Reduce(prev *State, aw state.ActionWrapper) *State {
	switch action := aw.Action.(type) {
	case InitNetworkAction:
		next := prev.clone()
		next.Initialized = true
		next.conn = action.Conn
		next.AgentID = action.AgentID
		next.DnaHash = action.DnaHash
		return next

	case OpenQueryAction:
		if _, ok := prev.QueryResults[action.Address]; !ok {
			return prev
		}
		next := prev.clone()
		next.dropQueryResult(action.Address)
		return next

	case OpenLinksQueryAction:
		if _, ok := prev.LinksResults[action.Key]; !ok {
			return prev
		}
		next := prev.clone()
		next.dropLinksResult(action.Key)
		return next

	case HandleQueryEntryResultAction:
		next := prev.clone()
		next.recordQueryResult(action.Address, &QueryResult{
			Entry:  action.Entry,
			Status: action.Status,
		})
		return next

	case HandleGetLinksResultAction:
		next := prev.clone()
		next.recordLinksResult(action.Key, &LinksResult{Targets: action.Targets})
		return next

	case GetLinksTimeoutAction:
		if res, ok := prev.LinksResults[action.Key]; ok && res != nil {
			return prev
		}
		next := prev.clone()
		next.recordLinksResult(action.Key, &LinksResult{Err: ErrTimeout})
		return next

	case QueryTimeoutAction:
		if res, ok := prev.QueryResults[action.Address]; ok && res != nil {
			return prev
		}
		next := prev.clone()
		next.recordQueryResult(action.Address, &QueryResult{Err: ErrTimeout})
		return next

	case OpenDirectMessageAction:
		next := prev.clone()
		next.recordDirectMessage(action.MsgID, &DirectMessageSession{ToAgentID: action.ToAgentID})
		return next

	case ResolveDirectMessageAction:
		session, ok := prev.DirectMessages[action.MsgID]
		if !ok {
			return prev
		}
		next := prev.clone()
		next.recordDirectMessage(action.MsgID, &DirectMessageSession{
			ToAgentID: session.ToAgentID,
			Response:  action.Response,
			Done:      true,
		})
		return next
	}
	return prev
}
