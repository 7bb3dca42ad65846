package workflows

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dynaput247/holochain-sub000/src/common"
	"github.com/dynaput247/holochain-sub000/src/core"
	"github.com/dynaput247/holochain-sub000/src/instance"
	"github.com/dynaput247/holochain-sub000/src/network"
)

// DirectMessageTimeout bounds custom direct message round trips.
const DirectMessageTimeout = 5 * time.Second

var directMessageSeq int64

// DirectMessageHandler produces the response to an incoming direct
// message.
type DirectMessageHandler func(fromAgentID, payload string) string

// InstanceCallbacks adapts an instance into the callbacks a network node
// needs: peers' published entries run the hold workflow, queries serve
// from the local shard, and direct messages go to the handler.
func InstanceCallbacks(inst *instance.Instance, handler DirectMessageHandler) network.NodeCallbacks {
	return network.NodeCallbacks{
		StoreEntry: func(ewh core.EntryWithHeader) {
			if err := HoldEntry(inst, ewh); err != nil {
				inst.Logger().WithField("error", err.Error()).Debug("Rejected published entry")
			}
		},
		FetchEntry: func(address core.Address) (*core.Entry, core.CrudStatus, bool) {
			store := inst.DhtStore()
			content, found, err := store.ContentStorage().Fetch(address)
			if err != nil || !found {
				return nil, 0, false
			}
			entry, err := core.EntryFromContent(content)
			if err != nil {
				return nil, 0, false
			}
			status, hasStatus, err := store.Status(address)
			if err != nil {
				return nil, 0, false
			}
			if !hasStatus {
				status = core.StatusLive
			}
			return entry, status, true
		},
		FetchLinks: func(base core.Address, tag string) []core.Address {
			targets, err := inst.DhtStore().GetLinks(base, tag)
			if err != nil {
				return nil
			}
			return targets
		},
		QueryResult: func(address core.Address, entry *core.Entry, status core.CrudStatus) {
			inst.Dispatch(network.HandleQueryEntryResultAction{
				Address: address,
				Entry:   entry,
				Status:  status,
			})
		},
		LinksResult: func(key network.LinksKey, targets []core.Address) {
			inst.Dispatch(network.HandleGetLinksResultAction{Key: key, Targets: targets})
		},
		DirectMessage: func(msgID, fromAgentID, payload string) string {
			if handler == nil {
				return ""
			}
			return handler(fromAgentID, payload)
		},
		DirectMessageResponse: func(msgID, response string) {
			inst.Dispatch(network.ResolveDirectMessageAction{MsgID: msgID, Response: response})
		},
	}
}

// JoinNetwork attaches a connection to the instance. The DNA hash is
// whatever the nucleus holds; pre-genesis instances join with an empty
// hash and re-join after initialization.
func JoinNetwork(inst *instance.Instance, conn network.Connection) error {
	dnaHash := ""
	if dna := inst.State().Nucleus.Dna; dna != nil {
		dnaHash = string(dna.ToEntry().Address())
	}
	_, err := inst.DispatchAndWait(network.InitNetworkAction{
		Conn:    conn,
		AgentID: inst.Agent().Identity,
		DnaHash: dnaHash,
	})
	return err
}

// SendDirectMessage sends an application-level message to a peer and
// waits for its response.
func SendDirectMessage(inst *instance.Instance, toAgentID, payload string) (string, error) {
	conn := inst.State().Network.Connection()
	if conn == nil {
		return "", common.NewHcError(common.ErrGeneric, "instance has no network connection")
	}

	msgID := fmt.Sprintf("%s-%d", inst.Agent().Identity, atomic.AddInt64(&directMessageSeq, 1))
	if _, err := inst.DispatchAndWait(network.OpenDirectMessageAction{
		MsgID:     msgID,
		ToAgentID: toAgentID,
	}); err != nil {
		return "", err
	}
	if err := conn.SendDirectMessage(msgID, toAgentID, payload); err != nil {
		return "", err
	}

	err := inst.WaitFor(func(root *instance.RootState) bool {
		session := root.Network.DirectMessages[msgID]
		return session != nil && session.Done
	}, DirectMessageTimeout)
	if err != nil {
		return "", err
	}
	return inst.State().Network.DirectMessages[msgID].Response, nil
}
