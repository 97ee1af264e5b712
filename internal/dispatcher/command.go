package dispatcher

import (
	"context"
	"strings"

	"github.com/dimchat/station/internal/envelope"
)

// CommandProcessor answers one station-addressed content kind: each is
// a self-contained reply function the dispatcher can invoke by content
// kind, and none participate in the protocol or routing machinery. The
// dispatcher only owns the registry and the invocation; the processors
// themselves
// (mute list, contacts storage, chat-bot) are external collaborators
// and are not implemented here beyond the meta/profile query built-ins,
// which the in-scope Barrack can actually answer.
type CommandProcessor interface {
	// Kind is the content "command" field this processor answers,
	// e.g. "meta" or "profile".
	Kind() string
	// Execute builds the reply envelope's ciphertext for one request
	// envelope addressed to the station.
	Execute(ctx context.Context, env envelope.Envelope, body map[string]any) (map[string]any, error)
}

// commandTable holds one Dispatcher's registered station-command
// processors, keyed by their content kind. It is built once at
// construction time and never mutated afterward, so Dispatch can read
// it without a lock and two Dispatcher instances never share
// built-ins.
type commandTable map[string]CommandProcessor

// newCommandTable builds the dispatch table from a list of processors;
// later entries for the same kind replace earlier ones.
func newCommandTable(procs ...CommandProcessor) commandTable {
	t := make(commandTable, len(procs))
	for _, p := range procs {
		t[strings.ToLower(p.Kind())] = p
	}
	return t
}

// get retrieves a processor by content kind.
func (t commandTable) get(kind string) (CommandProcessor, bool) {
	p, ok := t[strings.ToLower(kind)]
	return p, ok
}
