package realtime

import (
	"context"
	"encoding/json"
	"errors"
)

// Dispatch routes one inbound frame to its handler and, when the frame
// carried an ack number, replies with the outcome on the same connection.
func (e *Engine) Dispatch(c *Conn, evt *Event) {
	ctx, cancel := context.WithTimeout(context.Background(), e.opTimeout)
	defer cancel()

	id, err := e.dispatch(ctx, c, evt)

	if evt.Ack == 0 {
		if err != nil {
			e.log.Debug().Err(err).Str("event", evt.Event).Str("user_id", c.UserID.String()).Msg("event failed")
		}
		return
	}

	ack := AckPayload{OK: err == nil, ID: id}
	if err != nil {
		ack.Error = err.Error()
	}
	frame, merr := marshalAck(evt.Ack, ack)
	if merr != nil {
		return
	}
	c.enqueue(frame)
}

func (e *Engine) dispatch(ctx context.Context, c *Conn, evt *Event) (string, error) {
	switch normalizeEvent(evt.Event) {
	case EventMessageSend:
		var p SendMessagePayload
		if err := unmarshalData(evt.Data, &p); err != nil {
			return "", err
		}
		sender, err := e.store.GetUserByID(ctx, c.UserID)
		if err != nil {
			return "", err
		}
		if sender == nil {
			return "", ErrUnknownUser
		}
		msg, err := e.SendDirect(ctx, sender, &p)
		if err != nil {
			return "", err
		}
		return msg.ID, nil

	case EventMessageRead:
		var p ReadPayload
		if err := unmarshalData(evt.Data, &p); err != nil {
			return "", err
		}
		msg, err := e.MarkRead(ctx, c.UserID, p.MessageID)
		if err != nil {
			return "", err
		}
		return msg.ID, nil

	case EventMessageReaction:
		var p ReactionPayload
		if err := unmarshalData(evt.Data, &p); err != nil {
			return "", err
		}
		msg, err := e.React(ctx, c.UserID, p.MessageID, p.Emoji)
		if err != nil {
			return "", err
		}
		return msg.ID, nil

	case EventTyping, EventStopTyping:
		var p TypingPayload
		if err := unmarshalData(evt.Data, &p); err != nil {
			return "", err
		}
		e.RelayTyping(c, normalizeEvent(evt.Event), &p)
		return "", nil

	case EventGroupJoin:
		var p GroupJoinPayload
		if err := unmarshalData(evt.Data, &p); err != nil {
			return "", err
		}
		return "", e.JoinGroup(ctx, c, p.GroupID)

	case EventGroupMessageSend:
		var p GroupMessagePayload
		if err := unmarshalData(evt.Data, &p); err != nil {
			return "", err
		}
		sender, err := e.store.GetUserByID(ctx, c.UserID)
		if err != nil {
			return "", err
		}
		if sender == nil {
			return "", ErrUnknownUser
		}
		msg, err := e.SendGroup(ctx, sender, &p)
		if err != nil {
			return "", err
		}
		return msg.ID, nil

	case EventGroupMessageRead:
		var p GroupReadPayload
		if err := unmarshalData(evt.Data, &p); err != nil {
			return "", err
		}
		msg, err := e.MarkGroupRead(ctx, c.UserID, &p)
		if err != nil {
			return "", err
		}
		return msg.ID, nil

	case EventGroupMessageReaction:
		var p GroupReactionPayload
		if err := unmarshalData(evt.Data, &p); err != nil {
			return "", err
		}
		msg, err := e.ReactGroup(ctx, c.UserID, &p)
		if err != nil {
			return "", err
		}
		return msg.ID, nil

	default:
		return "", errUnknownEvent(evt.Event)
	}
}

type errUnknownEvent string

func (e errUnknownEvent) Error() string { return "unknown event: " + string(e) }

var errMissingData = errors.New("missing event data")

func unmarshalData(data json.RawMessage, dst any) error {
	if len(data) == 0 {
		return errMissingData
	}
	return json.Unmarshal(data, dst)
}
