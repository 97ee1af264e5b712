package dispatcher

import (
	"context"
	"encoding/base64"

	"github.com/dimchat/station/internal/barrack"
	"github.com/dimchat/station/internal/envelope"
	"github.com/dimchat/station/internal/id"
)

// metaCommand answers "meta" queries — the one station-command content
// kind the in-scope Barrack collaborator can actually serve: the core
// calls Barrack and returns the User/Group value for an identifier.
type metaCommand struct {
	barrack barrack.Barrack
}

func (metaCommand) Kind() string { return "meta" }

func (c metaCommand) Execute(_ context.Context, env envelope.Envelope, body map[string]any) (map[string]any, error) {
	target, ok := targetIdentity(body, env.Sender)
	if !ok {
		return map[string]any{"command": "meta", "error": "bad ID"}, nil
	}
	user, found := c.barrack.Resolve(target)
	if !found {
		return map[string]any{"command": "meta", "ID": target.String(), "error": "not found"}, nil
	}
	return map[string]any{
		"command": "meta",
		"ID":      target.String(),
		"meta":    base64.StdEncoding.EncodeToString(user.PublicKey),
	}, nil
}

// profileCommand answers "profile" (a.k.a. document) queries. Like
// meta, the station only has the Barrack's resolved view to offer; it
// carries no separate profile store of its own.
type profileCommand struct {
	barrack barrack.Barrack
}

func (profileCommand) Kind() string { return "profile" }

func (c profileCommand) Execute(_ context.Context, env envelope.Envelope, body map[string]any) (map[string]any, error) {
	target, ok := targetIdentity(body, env.Sender)
	if !ok {
		return map[string]any{"command": "profile", "error": "bad ID"}, nil
	}
	_, found := c.barrack.Resolve(target)
	if !found {
		return map[string]any{"command": "profile", "ID": target.String(), "error": "not found"}, nil
	}
	return map[string]any{
		"command": "profile",
		"ID":      target.String(),
	}, nil
}

// builtinCommands builds the processors backed by b. mute list,
// contacts storage and chat-bot content kinds are deliberately left
// unregistered: they are external collaborators this core does not
// implement.
func builtinCommands(b barrack.Barrack) commandTable {
	return newCommandTable(
		metaCommand{barrack: b},
		profileCommand{barrack: b},
	)
}

// targetIdentity pulls the "ID" field a meta/profile query names,
// defaulting to the requester's own identity when absent.
func targetIdentity(body map[string]any, fallback id.ID) (id.ID, bool) {
	raw, ok := body["ID"].(string)
	if !ok || raw == "" {
		return fallback, true
	}
	return id.Parse(raw)
}
