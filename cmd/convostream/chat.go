package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/AltairaLabs/convostream/runtime/conversation"
	"github.com/AltairaLabs/convostream/runtime/events"
	"github.com/AltairaLabs/convostream/runtime/stream"
)

const quitCommand = "/quit"

// chat opens the conversation's stream and runs the line REPL until /quit,
// end of input, ctx cancellation, or the channel ending.
func chat(ctx context.Context, a *app, conversationID string, history []conversation.Turn) error {
	cred, err := a.auth.Current(ctx)
	if err != nil {
		return err
	}

	p := newPrinter(a.out, conversationID)
	a.bus.SubscribeAll(p.handle)
	p.history(history)

	slot := stream.NewSlot(a.factory(history, p.attach))
	defer slot.Leave()

	client, err := slot.Switch(ctx, conversationID, cred)
	if err != nil {
		return err
	}
	// A pending prompt is sent during Open.
	sent := 0
	if len(client.Snapshot().Turns) > len(history) {
		sent = 1
	}
	p.wait(ctx, client, sent)

	lines := readLines(a.in)
	interactive := isTerminal(a.in)
	for {
		if interactive {
			p.say("you> ")
		}
		var line string
		select {
		case <-ctx.Done():
			p.say("\n")
			return nil
		case <-client.Done():
			return closedError(client.Snapshot())
		case l, ok := <-lines:
			if !ok {
				p.say("\n")
				return nil
			}
			line = strings.TrimSpace(l)
		}

		switch {
		case line == "":
			continue
		case line == quitCommand:
			return nil
		}

		if !client.Send(line) {
			snap := client.Snapshot()
			if snap.State.Terminal() {
				return closedError(snap)
			}
			p.say("(not sent: a response is still streaming)\n")
			continue
		}
		sent++
		p.wait(ctx, client, sent)
	}
}

// readLines feeds input lines into a channel closed at end of input.
func readLines(in io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			out <- scanner.Text()
		}
	}()
	return out
}

// isTerminal reports whether in is an interactive terminal. Piped input gets
// no prompt.
func isTerminal(in io.Reader) bool {
	f, ok := in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// closedError describes why a client ended. A clean server close is not an error.
func closedError(snap stream.Snapshot) error {
	if snap.Err == stream.ErrorNone {
		return nil
	}
	if snap.Cause != nil {
		return snap.Cause
	}
	return fmt.Errorf("stream %s: %s", snap.State, snap.Err)
}

// printer renders the conversation as events arrive. Text is printed as the
// delta between the model turn's current text and what was already shown.
type printer struct {
	out            io.Writer
	conversationID string
	changed        chan struct{}

	mu       sync.Mutex
	client   *stream.Client
	finished int
	closed   bool
	textIdx  int
	textOff  int
	refsSeen map[string]bool
}

func newPrinter(out io.Writer, conversationID string) *printer {
	return &printer{
		out:            out,
		conversationID: conversationID,
		changed:        make(chan struct{}, 1),
		textIdx:        -1,
		refsSeen:       make(map[string]bool),
	}
}

// say writes s without interleaving with streamed output.
func (p *printer) say(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = io.WriteString(p.out, s)
}

func (p *printer) attach(c *stream.Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.client = c
}

// history prints stored turns before the stream opens.
func (p *printer) history(turns []conversation.Turn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, t := range turns {
		if t.Role == conversation.RoleUser {
			fmt.Fprintf(p.out, "you> %s\n", t.Text)
			continue
		}
		fmt.Fprintf(p.out, "model> %s\n", t.Text)
		p.refsLocked(i, t)
	}
}

func (p *printer) handle(evt *events.Event) {
	if evt.ConversationID != p.conversationID {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil || evt.ConnectionID != p.client.ConnectionID() {
		return
	}

	//exhaustive:ignore
	switch evt.Type {
	case events.EventTextAppended:
		if data, ok := evt.Data.(events.TextAppendedData); ok {
			p.textLocked(p.client.Snapshot(), data.Index)
		}
	case events.EventMetadataMerged:
		data, ok := evt.Data.(events.MetadataMergedData)
		if !ok {
			return
		}
		snap := p.client.Snapshot()
		if data.Index < len(snap.Turns) {
			p.refsLocked(data.Index, snap.Turns[data.Index])
		}
	case events.EventRequestCompleted:
		p.textLocked(p.client.Snapshot(), p.textIdx)
		fmt.Fprintln(p.out)
		p.finished++
		p.signal()
	case events.EventStreamClosed:
		if data, ok := evt.Data.(events.StreamClosedData); ok && data.Interrupted {
			fmt.Fprintln(p.out, "\n(response interrupted)")
		}
		p.closed = true
		p.signal()
	}
}

func (p *printer) textLocked(snap stream.Snapshot, idx int) {
	if idx < 0 || idx >= len(snap.Turns) {
		return
	}
	if idx != p.textIdx {
		p.textIdx, p.textOff = idx, 0
		fmt.Fprint(p.out, "model> ")
	}
	text := snap.Turns[idx].Text
	if len(text) > p.textOff {
		fmt.Fprint(p.out, text[p.textOff:])
		p.textOff = len(text)
	}
}

func (p *printer) refsLocked(idx int, t conversation.Turn) {
	refs := []struct {
		label string
		value *string
	}{
		{"question image", t.QuestionImageRef},
		{"answer image", t.AnswerImageRef},
		{"video", t.VideoRef},
	}
	for _, r := range refs {
		if r.value == nil {
			continue
		}
		key := fmt.Sprintf("%d/%s", idx, r.label)
		if p.refsSeen[key] {
			continue
		}
		p.refsSeen[key] = true
		fmt.Fprintf(p.out, "  [%s: %s]\n", r.label, *r.value)
	}
}

func (p *printer) signal() {
	select {
	case p.changed <- struct{}{}:
	default:
	}
}

// wait blocks until want responses have been printed, the channel ends or
// ctx is done.
func (p *printer) wait(ctx context.Context, c *stream.Client, want int) {
	for {
		p.mu.Lock()
		done := p.finished >= want || p.closed
		p.mu.Unlock()
		if done {
			return
		}
		select {
		case <-p.changed:
		case <-c.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}
