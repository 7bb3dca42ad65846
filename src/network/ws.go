package network

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/dynaput247/holochain-sub000/src/common"
	"github.com/dynaput247/holochain-sub000/src/core"
	"github.com/dynaput247/holochain-sub000/src/sim2h"
)

// WsConnection implements Connection over a websocket to a relay. It keeps
// an aspect book of what it holds so it can answer the relay's entry-list
// and fetch requests.
type WsConnection struct {
	ws        *websocket.Conn
	signer    sim2h.Signer
	agentID   string
	space     core.Address
	callbacks NodeCallbacks
	logger    *logrus.Entry

	writeMu sync.Mutex

	bookMu   sync.Mutex
	authored sim2h.AspectList
	held     sim2h.AspectList
	content  map[core.Address]sim2h.Aspect

	reqSeq int64

	closeOnce sync.Once
	done      chan struct{}
}

// DialRelay connects to a relay, announces the wire version, joins the
// space, and starts the read pump.
func DialRelay(url string, space core.Address, agentID string, signer sim2h.Signer, callbacks NodeCallbacks, logger *logrus.Entry) (*WsConnection, error) {
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, common.NewHcErrorf(common.ErrIO, "dialing relay %s: %s", url, err.Error())
	}
	c := &WsConnection{
		ws:        ws,
		signer:    signer,
		agentID:   agentID,
		space:     space,
		callbacks: callbacks,
		logger:    logger,
		authored:  make(sim2h.AspectList),
		held:      make(sim2h.AspectList),
		content:   make(map[core.Address]sim2h.Aspect),
		done:      make(chan struct{}),
	}
	if err := c.send(sim2h.TypeHello, sim2h.HelloPayload{Version: sim2h.WireVersion}); err != nil {
		ws.Close()
		return nil, err
	}
	if err := c.send(sim2h.TypeJoinSpace, sim2h.JoinSpacePayload{Space: space, AgentID: agentID}); err != nil {
		ws.Close()
		return nil, err
	}
	go c.readPump()
	return c, nil
}

func (c *WsConnection) send(msgType string, payload interface{}) error {
	env, err := sim2h.Seal(c.signer, msgType, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return common.NewHcError(common.ErrSerialization, err.Error())
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return common.NewHcError(common.ErrIO, err.Error())
	}
	return nil
}

// PublishEntry implements Connection: the entry travels as one aspect of
// its address.
func (c *WsConnection) PublishEntry(ewh core.EntryWithHeader) error {
	content, err := json.Marshal(ewh)
	if err != nil {
		return common.NewHcError(common.ErrSerialization, err.Error())
	}
	aspect := sim2h.NewAspect(content)
	entryAddress := ewh.Entry.Address()

	c.bookMu.Lock()
	c.authored[entryAddress] = append(c.authored[entryAddress], aspect.Address)
	c.held[entryAddress] = append(c.held[entryAddress], aspect.Address)
	c.content[aspect.Address] = aspect
	c.bookMu.Unlock()

	return c.send(sim2h.TypePublishEntry, sim2h.PublishEntryPayload{
		EntryAddress: entryAddress,
		Aspects:      []sim2h.Aspect{aspect},
	})
}

// QueryEntry implements Connection.
func (c *WsConnection) QueryEntry(address core.Address) error {
	return c.send(sim2h.TypeQueryEntry, sim2h.QueryEntryPayload{
		RequestID:    c.nextRequestID(),
		EntryAddress: address,
	})
}

// QueryLinks implements Connection.
func (c *WsConnection) QueryLinks(base core.Address, tag string) error {
	return c.send(sim2h.TypeQueryLinks, sim2h.QueryLinksPayload{
		RequestID: c.nextRequestID(),
		Base:      base,
		Tag:       tag,
	})
}

// SendDirectMessage implements Connection.
func (c *WsConnection) SendDirectMessage(msgID, toAgentID, payload string) error {
	return c.send(sim2h.TypeSendDirectMessage, sim2h.DirectMessagePayload{
		MsgID:     msgID,
		FromAgent: c.agentID,
		ToAgent:   toAgentID,
		Payload:   payload,
	})
}

// Close implements Connection.
func (c *WsConnection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.send(sim2h.TypeLeaveSpace, nil)
		c.ws.Close()
	})
	<-c.done
	return err
}

func (c *WsConnection) nextRequestID() string {
	return fmt.Sprintf("%s-%d", c.agentID, atomic.AddInt64(&c.reqSeq, 1))
}

// readPump translates relay traffic into callbacks until the socket dies.
func (c *WsConnection) readPump() {
	defer close(c.done)
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		msg := new(sim2h.Message)
		if err := json.Unmarshal(raw, msg); err != nil {
			c.logger.WithField("error", err.Error()).Debug("Dropping malformed relay message")
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *WsConnection) handleMessage(msg *sim2h.Message) {
	switch msg.Type {
	case sim2h.TypePong, sim2h.TypeHelloResponse, sim2h.TypeStatusResponse:
		// Liveness answers need no action here.

	case sim2h.TypeStoreEntryAspect:
		var store sim2h.StoreEntryAspectPayload
		if json.Unmarshal(msg.Payload, &store) != nil {
			return
		}
		c.storeAspect(store.EntryAddress, store.Aspect)

	case sim2h.TypeQueryEntryResult:
		var result sim2h.QueryEntryResultPayload
		if json.Unmarshal(msg.Payload, &result) != nil {
			return
		}
		if c.callbacks.QueryResult == nil || len(result.Aspects) == 0 {
			return
		}
		var ewh core.EntryWithHeader
		if json.Unmarshal(result.Aspects[0].Content, &ewh) != nil || ewh.Entry == nil {
			return
		}
		c.callbacks.QueryResult(result.EntryAddress, ewh.Entry, core.StatusLive)

	case sim2h.TypeQueryLinks:
		var query sim2h.QueryLinksPayload
		if json.Unmarshal(msg.Payload, &query) != nil {
			return
		}
		var targets []core.Address
		if c.callbacks.FetchLinks != nil {
			targets = c.callbacks.FetchLinks(query.Base, query.Tag)
		}
		if targets == nil {
			return
		}
		c.send(sim2h.TypeQueryLinksResult, sim2h.QueryLinksResultPayload{
			RequestID: query.RequestID,
			Base:      query.Base,
			Tag:       query.Tag,
			Targets:   targets,
		})

	case sim2h.TypeQueryLinksResult:
		var result sim2h.QueryLinksResultPayload
		if json.Unmarshal(msg.Payload, &result) != nil {
			return
		}
		if c.callbacks.LinksResult != nil {
			c.callbacks.LinksResult(LinksKey{Base: result.Base, Tag: result.Tag}, result.Targets)
		}

	case sim2h.TypeGetAuthoringEntryList:
		c.sendEntryList(msg.Payload, sim2h.TypeGetAuthoringEntryListResult, true)

	case sim2h.TypeGetGossipingEntryList:
		c.sendEntryList(msg.Payload, sim2h.TypeGetGossipingEntryListResult, false)

	case sim2h.TypeFetchEntry:
		var fetch sim2h.FetchEntryPayload
		if json.Unmarshal(msg.Payload, &fetch) != nil {
			return
		}
		c.serveFetch(fetch)

	case sim2h.TypeSendDirectMessage:
		var dm sim2h.DirectMessagePayload
		if json.Unmarshal(msg.Payload, &dm) != nil {
			return
		}
		response := ""
		if c.callbacks.DirectMessage != nil {
			response = c.callbacks.DirectMessage(dm.MsgID, dm.FromAgent, dm.Payload)
		}
		c.send(sim2h.TypeSendDirectMessage, sim2h.DirectMessagePayload{
			MsgID:      dm.MsgID,
			FromAgent:  c.agentID,
			ToAgent:    dm.FromAgent,
			Payload:    response,
			IsResponse: true,
		})

	case sim2h.TypeSendDirectMessageResult:
		var dm sim2h.DirectMessagePayload
		if json.Unmarshal(msg.Payload, &dm) != nil {
			return
		}
		if c.callbacks.DirectMessageResponse != nil {
			c.callbacks.DirectMessageResponse(dm.MsgID, dm.Payload)
		}

	default:
		c.logger.WithField("type", msg.Type).Debug("Ignoring relay message")
	}
}

// storeAspect records a pushed aspect and hands the carried entry to the
// hold path.
func (c *WsConnection) storeAspect(entryAddress core.Address, aspect sim2h.Aspect) {
	c.bookMu.Lock()
	c.held[entryAddress] = append(c.held[entryAddress], aspect.Address)
	c.content[aspect.Address] = aspect
	c.bookMu.Unlock()

	if c.callbacks.StoreEntry == nil {
		return
	}
	var ewh core.EntryWithHeader
	if json.Unmarshal(aspect.Content, &ewh) != nil || ewh.Entry == nil {
		c.logger.Debug("Dropping aspect that is not an entry")
		return
	}
	c.callbacks.StoreEntry(ewh)
}

func (c *WsConnection) sendEntryList(payload json.RawMessage, resultType string, authoringOnly bool) {
	var request sim2h.EntryListPayload
	if json.Unmarshal(payload, &request) != nil {
		return
	}

	c.bookMu.Lock()
	source := c.held
	if authoringOnly {
		source = c.authored
	}
	list := make(sim2h.AspectList, len(source))
	for entry, aspects := range source {
		list[entry] = append([]core.Address(nil), aspects...)
	}
	c.bookMu.Unlock()

	c.send(resultType, sim2h.EntryListPayload{RequestID: request.RequestID, List: list})
}

// serveFetch answers a fetch with whichever requested aspects are in the
// local book; with no explicit aspect filter, everything held for the
// entry goes back.
func (c *WsConnection) serveFetch(fetch sim2h.FetchEntryPayload) {
	c.bookMu.Lock()
	var aspects []sim2h.Aspect
	if len(fetch.Aspects) > 0 {
		for _, address := range fetch.Aspects {
			if aspect, ok := c.content[address]; ok {
				aspects = append(aspects, aspect)
			}
		}
	} else {
		for _, address := range c.held[fetch.EntryAddress] {
			if aspect, ok := c.content[address]; ok {
				aspects = append(aspects, aspect)
			}
		}
	}
	c.bookMu.Unlock()

	c.send(sim2h.TypeFetchEntryResult, sim2h.FetchEntryResultPayload{
		RequestID:    fetch.RequestID,
		EntryAddress: fetch.EntryAddress,
		Aspects:      aspects,
	})
}
